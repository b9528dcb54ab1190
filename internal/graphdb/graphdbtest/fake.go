// Package graphdbtest provides an in-memory graphdb.Reader for tests.
package graphdbtest

import (
	"context"
	"sync"

	"optiquery/internal/graphdb"
)

// RunFunc answers one Cypher statement.
type RunFunc func(cypher string, params map[string]any) ([]graphdb.Record, error)

// ExplainFunc answers one EXPLAIN statement.
type ExplainFunc func(cypher string) (*graphdb.Plan, error)

// Reader is a scripted graphdb.Reader. It records every statement and
// counts transactions so tests can assert each one was released.
type Reader struct {
	OnRun     RunFunc
	OnExplain ExplainFunc
	// BeginErr fails every transaction before fn runs.
	BeginErr error

	mu         sync.Mutex
	statements []string
	opened     int
	closed     int
}

// WithReadTransaction implements graphdb.Reader.
func (r *Reader) WithReadTransaction(ctx context.Context, fn graphdb.TxFunc) (any, error) {
	if r.BeginErr != nil {
		return nil, r.BeginErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.closed++
		r.mu.Unlock()
	}()

	return fn(ctx, &tx{r: r})
}

// Statements returns every statement run so far, in order.
func (r *Reader) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

// Transactions returns how many transactions were opened and closed.
func (r *Reader) Transactions() (opened, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened, r.closed
}

func (r *Reader) record(cypher string) {
	r.mu.Lock()
	r.statements = append(r.statements, cypher)
	r.mu.Unlock()
}

type tx struct {
	r *Reader
}

func (t *tx) Run(ctx context.Context, cypher string, params map[string]any) ([]graphdb.Record, error) {
	t.r.record(cypher)
	if t.r.OnRun == nil {
		return nil, nil
	}
	return t.r.OnRun(cypher, params)
}

func (t *tx) Explain(ctx context.Context, cypher string, params map[string]any) (*graphdb.Plan, error) {
	t.r.record(cypher)
	if t.r.OnExplain == nil {
		return &graphdb.Plan{Operator: "ProduceResults"}, nil
	}
	return t.r.OnExplain(cypher)
}
