package evidence

import (
	"context"
	"regexp"

	"optiquery/internal/graphdb"
	"optiquery/internal/protocol"
)

// leadingPlanKeyword matches an EXPLAIN or PROFILE the agent already put in
// front of its query.
var leadingPlanKeyword = regexp.MustCompile(`(?is)^\s*(?:EXPLAIN|PROFILE)\b\s*`)

// Explain returns the execution plan of a candidate query without running
// it. Queries the server rejects as invalid produce {"error": message} so
// the agent can correct itself; other failures are returned as errors.
type Explain struct{}

func (Explain) Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error) {
	r, ok := req.(protocol.ExplainRequest)
	if !ok {
		return nil, errWrongRequest("explain", req)
	}

	cypher := ExplainStatement(r.Query)
	out, err := db.WithReadTransaction(ctx, func(ctx context.Context, tx graphdb.Tx) (any, error) {
		plan, err := tx.Explain(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		return plan.Map(), nil
	})
	if err != nil {
		return rejected("explain", err)
	}
	return out, nil
}

// ExplainStatement prefixes query with EXPLAIN, replacing any EXPLAIN or
// PROFILE already present so the query is never executed.
func ExplainStatement(query string) string {
	return "EXPLAIN " + leadingPlanKeyword.ReplaceAllString(query, "")
}
