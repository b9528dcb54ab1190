// Package evidence implements the providers that answer agent requests with
// facts read from the graph database. Every provider does its work inside
// exactly one read transaction and returns a JSON-safe value.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// Provider answers one kind of schema-valid request.
type Provider interface {
	Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error)
}

// OpeningProvider produces the evidence sent with the opening message.
type OpeningProvider interface {
	Open(ctx context.Context, query string, db graphdb.Reader) (any, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error)

func (f ProviderFunc) Run(ctx context.Context, req protocol.Request, db graphdb.Reader) (any, error) {
	return f(ctx, req, db)
}

// errWrongRequest reports a provider registered for the wrong kind.
func errWrongRequest(want string, got protocol.Request) error {
	return fmt.Errorf("%s provider cannot serve %s (%T)", want, got.Kind(), got)
}

// rejected turns a statement the server refused into {"error": message}
// evidence for the agent. Any other error is returned wrapped with what.
func rejected(what string, err error) (any, error) {
	if se, ok := graphdb.AsStatementError(err); ok {
		logging.Evidence("%s rejected by server: %s", what, se.Code)
		return map[string]any{"error": se.Message}, nil
	}
	return nil, fmt.Errorf("%s: %w", what, err)
}

// quoteName backtick-quotes a label or relationship type so arbitrary names
// cannot change the statement.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// labelPattern renders ":`A`:`B`" for a conjunction of labels.
func labelPattern(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteByte(':')
		b.WriteString(quoteName(l))
	}
	return b.String()
}

// asInt64 reads a count column.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// asFloat64 reads a numeric column.
func asFloat64(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// readOne runs a single-row statement and returns that row, or nil.
func readOne(ctx context.Context, tx graphdb.Tx, cypher string) (graphdb.Record, error) {
	rows, err := tx.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
