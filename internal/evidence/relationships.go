package evidence

import (
	"context"
	"fmt"
	"math"

	"optiquery/internal/graphdb"
	"optiquery/internal/protocol"
)

// RelationshipCount reports the average number of relationships of the
// requested type leaving each node that carries every from-label and
// arriving at a node that carries every to-label. Source nodes without any
// such relationship count as zero. The average is rounded to the nearest
// integer, halves away from zero.
type RelationshipCount struct{}

func (RelationshipCount) Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error) {
	r, ok := req.(protocol.RelationshipCountRequest)
	if !ok {
		return nil, errWrongRequest("relationship count", req)
	}

	cypher := fmt.Sprintf(
		"MATCH (a%s) OPTIONAL MATCH (a)-[r:%s]->(%s) WITH a, count(r) AS rels RETURN count(a) AS sources, sum(rels) AS total",
		labelPattern(r.FromNodeLabels), quoteName(r.RelType), labelPattern(r.ToNodeLabels))

	out, err := db.WithReadTransaction(ctx, func(ctx context.Context, tx graphdb.Tx) (any, error) {
		row, err := readOne(ctx, tx, cypher)
		if err != nil {
			return nil, err
		}
		return averagePerSource(asInt64(row["sources"]), asFloat64(row["total"])), nil
	})
	if err != nil {
		return rejected(fmt.Sprintf("relationship count %v-[%s]->%v", r.FromNodeLabels, r.RelType, r.ToNodeLabels), err)
	}
	return out, nil
}

func averagePerSource(sources int64, total float64) int64 {
	if sources == 0 {
		return 0
	}
	return int64(math.Round(total / float64(sources)))
}
