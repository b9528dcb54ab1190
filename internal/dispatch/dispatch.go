// Package dispatch maps validated agent requests to evidence providers and
// wraps provider output into response messages. The kind → provider table
// and the per-database dialect table are fixed at construction; a dialect
// missing any mapping is rejected before a conversation starts.
package dispatch

import (
	"context"
	"fmt"

	"optiquery/internal/evidence"
	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
	"optiquery/internal/prompt"
	"optiquery/internal/protocol"
)

// Registry is an immutable kind → provider table.
type Registry struct {
	providers map[protocol.QueryType]evidence.Provider
}

// NewRegistry copies providers into a registry. Only request kinds may be
// registered.
func NewRegistry(providers map[protocol.QueryType]evidence.Provider) (*Registry, error) {
	out := make(map[protocol.QueryType]evidence.Provider, len(providers))
	for kind, p := range providers {
		if !kind.IsRequest() {
			return nil, fmt.Errorf("cannot register a provider for %q: not a request kind: %w", kind, protocol.ErrUnsupportedConfiguration)
		}
		if p == nil {
			return nil, fmt.Errorf("nil provider for %s: %w", kind, protocol.ErrUnsupportedConfiguration)
		}
		out[kind] = p
	}
	return &Registry{providers: out}, nil
}

// Lookup returns the provider registered for kind.
func (r *Registry) Lookup(kind protocol.QueryType) (evidence.Provider, bool) {
	p, ok := r.providers[kind]
	return p, ok
}

// Dialect describes one database type: how conversations open, which
// requests the agent may send and the instructions it is given.
type Dialect struct {
	DatabaseType graphdb.DatabaseType
	OpeningKind  protocol.QueryType
	Opening      evidence.OpeningProvider
	RequestKinds []protocol.QueryType
	// Instructions renders the system instructions for a turn bound.
	Instructions func(maxTurns int) (string, error)
}

// Dispatcher serves requests for a fixed set of dialects.
type Dispatcher struct {
	registry *Registry
	dialects map[graphdb.DatabaseType]Dialect
}

// New builds a dispatcher. Dialects are checked lazily by Dialect so a
// dispatcher may carry dialects for databases that are never used.
func New(registry *Registry, dialects ...Dialect) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		dialects: make(map[graphdb.DatabaseType]Dialect, len(dialects)),
	}
	for _, dl := range dialects {
		dl.RequestKinds = append([]protocol.QueryType(nil), dl.RequestKinds...)
		d.dialects[dl.DatabaseType] = dl
	}
	return d
}

// Neo4jDialect returns the Neo4j dialect.
func Neo4jDialect() Dialect {
	return Dialect{
		DatabaseType: graphdb.TypeNeo4j,
		OpeningKind:  protocol.QueryTypeNeo4jOpening,
		Opening:      evidence.DatabaseStats{},
		RequestKinds: []protocol.QueryType{
			protocol.QueryTypeNeo4jCountNodesWithLabels,
			protocol.QueryTypeNeo4jPropertiesForLabels,
			protocol.QueryTypeNeo4jRelBetweenNodesCount,
			protocol.QueryTypeNeo4jExplainQuery,
		},
		Instructions: func(maxTurns int) (string, error) {
			return prompt.SystemInstruction(graphdb.TypeNeo4j, prompt.Neo4jParams(maxTurns))
		},
	}
}

// Default returns a dispatcher for every supported database type.
func Default() *Dispatcher {
	registry, err := NewRegistry(map[protocol.QueryType]evidence.Provider{
		protocol.QueryTypeNeo4jCountNodesWithLabels: evidence.CountNodes{},
		protocol.QueryTypeNeo4jPropertiesForLabels:  evidence.Properties{},
		protocol.QueryTypeNeo4jRelBetweenNodesCount: evidence.RelationshipCount{},
		protocol.QueryTypeNeo4jExplainQuery:         evidence.Explain{},
	})
	if err != nil {
		// static table; only a programming error gets here
		panic(err)
	}
	return New(registry, Neo4jDialect())
}

// Dialect returns the dialect for dbType after checking that it is
// complete: an opening kind and provider, instructions, and a provider for
// every request kind.
func (d *Dispatcher) Dialect(dbType graphdb.DatabaseType) (Dialect, error) {
	dl, ok := d.dialects[dbType]
	if !ok {
		return Dialect{}, fmt.Errorf("database type %q: %w", dbType, protocol.ErrUnsupportedConfiguration)
	}
	if !dl.OpeningKind.IsOpening() || dl.Opening == nil {
		return Dialect{}, fmt.Errorf("database type %q has no opening mapping: %w", dbType, protocol.ErrUnsupportedConfiguration)
	}
	if dl.Instructions == nil {
		return Dialect{}, fmt.Errorf("database type %q has no system instructions: %w", dbType, protocol.ErrUnsupportedConfiguration)
	}
	if len(dl.RequestKinds) == 0 {
		return Dialect{}, fmt.Errorf("database type %q accepts no requests: %w", dbType, protocol.ErrUnsupportedConfiguration)
	}
	for _, kind := range dl.RequestKinds {
		if _, ok := d.registry.Lookup(kind); !ok {
			return Dialect{}, fmt.Errorf("database type %q: no provider for %s: %w", dbType, kind, protocol.ErrUnsupportedConfiguration)
		}
	}
	dl.RequestKinds = append([]protocol.QueryType(nil), dl.RequestKinds...)
	return dl, nil
}

// Open builds the opening message for query.
func (d *Dispatcher) Open(ctx context.Context, dl Dialect, query string, db graphdb.Reader) (protocol.Message, error) {
	stats, err := dl.Opening.Open(ctx, query, db)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.NewMessage(dl.OpeningKind, map[string]any{
		protocol.KeyOriginalQuery: query,
		protocol.KeyDBStats:       stats,
	}), nil
}

// Dispatch runs the provider registered for req and returns the response.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request, db graphdb.Reader) (protocol.Message, error) {
	p, ok := d.registry.Lookup(req.Kind())
	if !ok {
		return protocol.Message{}, fmt.Errorf("no provider for %s: %w", req.Kind(), protocol.ErrUnsupportedConfiguration)
	}

	timer := logging.StartTimer(logging.CategoryEvidence, string(req.Kind()))
	result, err := p.Run(ctx, req, db)
	timer.Stop()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.NewResultMessage(req, result), nil
}
