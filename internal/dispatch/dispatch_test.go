package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiquery/internal/evidence"
	"optiquery/internal/graphdb"
	"optiquery/internal/graphdb/graphdbtest"
	"optiquery/internal/protocol"
)

func constProvider(v any) evidence.Provider {
	return evidence.ProviderFunc(func(context.Context, protocol.Request, graphdb.Reader) (any, error) {
		return v, nil
	})
}

func TestNewRegistry_RejectsNonRequestKinds(t *testing.T) {
	for _, kind := range []protocol.QueryType{
		protocol.QueryTypeNeo4jOpening,
		protocol.QueryTypeOptimizeFinished,
		protocol.QueryType("NEO4J_EXPLAIN_QUERY_RESULT"),
		protocol.QueryType("BOGUS"),
	} {
		_, err := NewRegistry(map[protocol.QueryType]evidence.Provider{kind: constProvider(1)})
		assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration, kind)
	}

	_, err := NewRegistry(map[protocol.QueryType]evidence.Provider{protocol.QueryTypeNeo4jExplainQuery: nil})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
}

func TestNewRegistry_IsImmutable(t *testing.T) {
	table := map[protocol.QueryType]evidence.Provider{
		protocol.QueryTypeNeo4jExplainQuery: constProvider(1),
	}
	r, err := NewRegistry(table)
	require.NoError(t, err)

	table[protocol.QueryTypeNeo4jCountNodesWithLabels] = constProvider(2)
	_, ok := r.Lookup(protocol.QueryTypeNeo4jCountNodesWithLabels)
	assert.False(t, ok)
	_, ok = r.Lookup(protocol.QueryTypeNeo4jExplainQuery)
	assert.True(t, ok)
}

func TestDefault_Neo4jDialectIsComplete(t *testing.T) {
	dl, err := Default().Dialect(graphdb.TypeNeo4j)
	require.NoError(t, err)
	assert.Equal(t, protocol.QueryTypeNeo4jOpening, dl.OpeningKind)
	assert.Len(t, dl.RequestKinds, 4)

	text, err := dl.Instructions(10)
	require.NoError(t, err)
	assert.Contains(t, text, "at most 10 messages")
}

func TestDialect_Incomplete(t *testing.T) {
	partial, err := NewRegistry(map[protocol.QueryType]evidence.Provider{
		protocol.QueryTypeNeo4jExplainQuery: constProvider(1),
	})
	require.NoError(t, err)

	noOpening := Neo4jDialect()
	noOpening.Opening = nil

	noInstructions := Neo4jDialect()
	noInstructions.Instructions = nil

	wrongOpening := Neo4jDialect()
	wrongOpening.OpeningKind = protocol.QueryTypeNeo4jExplainQuery

	tests := []struct {
		name   string
		d      *Dispatcher
		dbType graphdb.DatabaseType
	}{
		{"unknown database type", Default(), graphdb.DatabaseType("POSTGRES")},
		{"missing request provider", New(partial, Neo4jDialect()), graphdb.TypeNeo4j},
		{"missing opening provider", New(partial, noOpening), graphdb.TypeNeo4j},
		{"opening kind is not an opening", New(partial, wrongOpening), graphdb.TypeNeo4j},
		{"missing instructions", New(partial, noInstructions), graphdb.TypeNeo4j},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.d.Dialect(tt.dbType)
			assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
		})
	}
}

func TestDispatch_WrapsResult(t *testing.T) {
	r, err := NewRegistry(map[protocol.QueryType]evidence.Provider{
		protocol.QueryTypeNeo4jCountNodesWithLabels: constProvider(int64(42)),
	})
	require.NoError(t, err)
	d := New(r)

	req := protocol.CountNodesRequest{Type: protocol.QueryTypeNeo4jCountNodesWithLabels, Labels: []string{"Person"}}
	msg, err := d.Dispatch(context.Background(), req, &graphdbtest.Reader{})
	require.NoError(t, err)

	assert.Equal(t, protocol.QueryType("NEO4J_COUNT_NODES_WITH_LABELS_RESULT"), msg.Kind())
	assert.True(t, msg.Kind().IsResult())
	assert.False(t, msg.Kind().IsRequest())
	assert.Equal(t, map[string]any{"result": int64(42)}, msg.Data())
}

func TestDispatch_PropagatesProviderError(t *testing.T) {
	boom := errors.New("connection reset")
	r, err := NewRegistry(map[protocol.QueryType]evidence.Provider{
		protocol.QueryTypeNeo4jExplainQuery: evidence.ProviderFunc(func(context.Context, protocol.Request, graphdb.Reader) (any, error) {
			return nil, boom
		}),
	})
	require.NoError(t, err)

	req := protocol.ExplainRequest{Type: protocol.QueryTypeNeo4jExplainQuery, Query: "RETURN 1"}
	_, err = New(r).Dispatch(context.Background(), req, &graphdbtest.Reader{})
	assert.ErrorIs(t, err, boom)
}

func TestDispatch_UnregisteredKind(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	req := protocol.ExplainRequest{Type: protocol.QueryTypeNeo4jExplainQuery, Query: "RETURN 1"}
	_, err = New(r).Dispatch(context.Background(), req, &graphdbtest.Reader{})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
}

func TestOpen(t *testing.T) {
	d := Default()
	dl, err := d.Dialect(graphdb.TypeNeo4j)
	require.NoError(t, err)

	db := &graphdbtest.Reader{OnRun: func(cypher string, _ map[string]any) ([]graphdb.Record, error) {
		if cypher == "MATCH (n) UNWIND labels(n) AS label RETURN label, count(*) AS count" {
			return []graphdb.Record{{"label": "Person", "count": int64(3)}}, nil
		}
		return nil, nil
	}}

	msg, err := d.Open(context.Background(), dl, "MATCH (p:Person) RETURN p", db)
	require.NoError(t, err)
	assert.Equal(t, protocol.QueryTypeNeo4jOpening, msg.Kind())

	data := msg.Data()
	assert.Equal(t, "MATCH (p:Person) RETURN p", data["original_query"])
	stats := data["db_stats"].(map[string]any)
	assert.Equal(t, map[string]any{"Person": int64(3)}, stats["node_count_by_label"])
}
