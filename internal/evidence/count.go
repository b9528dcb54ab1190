package evidence

import (
	"context"
	"fmt"

	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// CountNodes counts nodes carrying every requested label.
type CountNodes struct{}

func (CountNodes) Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error) {
	r, ok := req.(protocol.CountNodesRequest)
	if !ok {
		return nil, errWrongRequest("count nodes", req)
	}

	cypher := fmt.Sprintf("MATCH (n%s) RETURN count(n) AS count", labelPattern(r.Labels))
	out, err := db.WithReadTransaction(ctx, func(ctx context.Context, tx graphdb.Tx) (any, error) {
		row, err := readOne(ctx, tx, cypher)
		if err != nil {
			return nil, err
		}
		return asInt64(row["count"]), nil
	})
	if err != nil {
		return rejected(fmt.Sprintf("count nodes %v", r.Labels), err)
	}

	logging.EvidenceDebug("count nodes %v = %d", r.Labels, out)
	return out, nil
}
