package evidence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"optiquery/internal/graphdb"
	"optiquery/internal/protocol"
)

// Properties reports, for nodes carrying every requested label, which
// property keys occur and how their value types are distributed. A server
// without valueType() answers with {"error": message}.
//
// The result maps each key to a list of {type, percentage} entries, where
// percentage is the share of matching nodes holding that key with that
// type, rounded to two decimals. Entries are ordered by percentage
// descending, then by type.
type Properties struct{}

type propertyShare struct {
	typ     string
	percent float64
}

func (Properties) Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error) {
	r, ok := req.(protocol.PropertiesRequest)
	if !ok {
		return nil, errWrongRequest("properties", req)
	}

	pattern := labelPattern(r.Labels)
	totalCypher := fmt.Sprintf("MATCH (n%s) RETURN count(n) AS total", pattern)
	typesCypher := fmt.Sprintf(
		"MATCH (n%s) UNWIND keys(n) AS key RETURN key, valueType(n[key]) AS type, count(*) AS count", pattern)

	out, err := db.WithReadTransaction(ctx, func(ctx context.Context, tx graphdb.Tx) (any, error) {
		row, err := readOne(ctx, tx, totalCypher)
		if err != nil {
			return nil, err
		}
		total := asInt64(row["total"])
		if total == 0 {
			return map[string]any{}, nil
		}

		rows, err := tx.Run(ctx, typesCypher, nil)
		if err != nil {
			return nil, err
		}
		return propertyDistribution(rows, total), nil
	})
	if err != nil {
		return rejected(fmt.Sprintf("properties for %v", r.Labels), err)
	}
	return out, nil
}

func propertyDistribution(rows []graphdb.Record, total int64) map[string]any {
	counts := map[string]map[string]int64{}
	for _, row := range rows {
		key, _ := row["key"].(string)
		typ, _ := row["type"].(string)
		typ = strings.TrimSuffix(typ, " NOT NULL")
		if counts[key] == nil {
			counts[key] = map[string]int64{}
		}
		counts[key][typ] += asInt64(row["count"])
	}

	out := make(map[string]any, len(counts))
	for key, byType := range counts {
		shares := make([]propertyShare, 0, len(byType))
		for typ, n := range byType {
			shares = append(shares, propertyShare{typ: typ, percent: roundTo(float64(n)*100/float64(total), 2)})
		}
		sort.Slice(shares, func(i, j int) bool {
			if shares[i].percent != shares[j].percent {
				return shares[i].percent > shares[j].percent
			}
			return shares[i].typ < shares[j].typ
		})

		entries := make([]any, len(shares))
		for i, s := range shares {
			entries[i] = map[string]any{"type": s.typ, "percentage": s.percent}
		}
		out[key] = entries
	}
	return out
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
