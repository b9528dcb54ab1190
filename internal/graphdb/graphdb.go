// Package graphdb abstracts read-only access to the graph database the
// query under optimization runs against. Evidence providers only ever see
// a Reader; the Neo4j implementation lives in neo4j.go.
package graphdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"optiquery/internal/protocol"
)

// DatabaseType identifies the graph database dialect.
type DatabaseType string

const (
	TypeNeo4j DatabaseType = "NEO4J"
)

// ParseDatabaseType accepts the canonical upper-case names.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch DatabaseType(s) {
	case TypeNeo4j:
		return TypeNeo4j, nil
	}
	return "", fmt.Errorf("unknown database type %q: %w", s, protocol.ErrUnsupportedConfiguration)
}

// DatabaseContext holds connection parameters. It is a value type and is
// never mutated after construction.
type DatabaseContext struct {
	Host     string `validate:"required"`
	Username string `validate:"required"`
	Password string
	// Database selects a named database; empty uses the server default.
	Database string
}

var validate = validator.New()

// Validate checks the connection parameters are complete.
func (c DatabaseContext) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("database context: %s is required", verrs[0].Field())
		}
		return fmt.Errorf("database context: %w", err)
	}
	return nil
}

// Record is one result row keyed by column name.
type Record map[string]any

// Plan is a node of an execution plan tree.
type Plan struct {
	Operator    string         `json:"operator"`
	Arguments   map[string]any `json:"arguments"`
	Identifiers []string       `json:"identifiers"`
	Children    []Plan         `json:"children"`
}

// Map returns the JSON-safe form of the plan tree.
func (p Plan) Map() map[string]any {
	args := make(map[string]any, len(p.Arguments))
	for k, v := range p.Arguments {
		args[k] = jsonSafe(v)
	}
	ids := make([]any, len(p.Identifiers))
	for i, id := range p.Identifiers {
		ids[i] = id
	}
	children := make([]any, len(p.Children))
	for i, c := range p.Children {
		children[i] = c.Map()
	}
	return map[string]any{
		"operator":    p.Operator,
		"arguments":   args,
		"identifiers": ids,
		"children":    children,
	}
}

// Tx is a read transaction.
type Tx interface {
	// Run executes cypher and collects every row.
	Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
	// Explain executes cypher (which must already carry an EXPLAIN prefix)
	// and returns the plan without materialising rows.
	Explain(ctx context.Context, cypher string, params map[string]any) (*Plan, error)
}

// TxFunc is the unit of work run inside a read transaction.
type TxFunc func(ctx context.Context, tx Tx) (any, error)

// Reader opens read transactions. Implementations must be safe for
// concurrent use and release every transaction they open, on every path.
type Reader interface {
	WithReadTransaction(ctx context.Context, fn TxFunc) (any, error)
}

// StatementError is a client-side Cypher error (syntax, semantics, unknown
// procedure). It describes the query, not the connection.
type StatementError struct {
	Code    string
	Message string
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsStatementError unwraps err into a StatementError.
func AsStatementError(err error) (*StatementError, bool) {
	var se *StatementError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrNoPlan is returned by Explain when the server produced no plan.
var ErrNoPlan = errors.New("server returned no execution plan")

// jsonSafe normalises driver values into the types encoding/json renders
// faithfully.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonSafe(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = jsonSafe(item)
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}
