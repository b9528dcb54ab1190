package evidence

import (
	"context"
	"fmt"
	"sort"

	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
)

const (
	nodeCountsCypher  = "MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS count"
	relCountsCypher   = "MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count"
	indexesCypher     = "SHOW INDEXES YIELD name, type, labelsOrTypes, properties RETURN name, type, labelsOrTypes, properties"
	constraintsCypher = "SHOW CONSTRAINTS YIELD name, type, labelsOrTypes, properties RETURN name, type, labelsOrTypes, properties"
)

// DatabaseStats summarises the database for the opening message: node
// counts per label, relationship counts per type, indexes and constraints.
type DatabaseStats struct{}

func (DatabaseStats) Open(ctx context.Context, query string, db graphdb.Reader) (any, error) {
	timer := logging.StartTimer(logging.CategoryEvidence, "database stats")
	defer timer.Stop()

	out, err := db.WithReadTransaction(ctx, func(ctx context.Context, tx graphdb.Tx) (any, error) {
		nodes, err := countsBy(ctx, tx, nodeCountsCypher, "label")
		if err != nil {
			return nil, err
		}
		rels, err := countsBy(ctx, tx, relCountsCypher, "type")
		if err != nil {
			return nil, err
		}
		indexes, supported, err := schemaObjects(ctx, tx, indexesCypher)
		if err != nil {
			return nil, err
		}
		// a failed statement aborts the transaction, so stop listing
		constraints := []any{}
		if supported {
			if constraints, _, err = schemaObjects(ctx, tx, constraintsCypher); err != nil {
				return nil, err
			}
		}
		return map[string]any{
			"node_count_by_label": nodes,
			"rel_count_by_type":   rels,
			"indexes":             indexes,
			"constraints":         constraints,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("database stats: %w", err)
	}
	return out, nil
}

func countsBy(ctx context.Context, tx graphdb.Tx, cypher, column string) (map[string]any, error) {
	rows, err := tx.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		name, _ := row[column].(string)
		out[name] = asInt64(row["count"])
	}
	return out, nil
}

// schemaObjects lists indexes or constraints sorted by name. Servers that
// do not support the SHOW command yield an empty list and supported=false.
func schemaObjects(ctx context.Context, tx graphdb.Tx, cypher string) (objects []any, supported bool, err error) {
	rows, err := tx.Run(ctx, cypher, nil)
	if err != nil {
		if se, ok := graphdb.AsStatementError(err); ok {
			logging.Get(logging.CategoryEvidence).Warn("schema listing unavailable: %s", se.Code)
			return []any{}, false, nil
		}
		return nil, false, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i]["name"].(string)
		b, _ := rows[j]["name"].(string)
		return a < b
	})

	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"name":            row["name"],
			"type":            row["type"],
			"labels_or_types": nonNilList(row["labelsOrTypes"]),
			"properties":      nonNilList(row["properties"]),
		})
	}
	return out, true, nil
}

func nonNilList(v any) any {
	if v == nil {
		return []any{}
	}
	return v
}
