package prompt

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiquery/internal/graphdb"
	"optiquery/internal/protocol"
)

var jsonBlock = regexp.MustCompile("(?s)```json\n(.*?)\n```")

func TestSystemInstruction_Neo4j(t *testing.T) {
	text, err := SystemInstruction(graphdb.TypeNeo4j, Neo4jParams(25))
	require.NoError(t, err)

	for _, kind := range []protocol.QueryType{
		protocol.QueryTypeNeo4jOpening,
		protocol.QueryTypeNeo4jCountNodesWithLabels,
		protocol.QueryTypeNeo4jPropertiesForLabels,
		protocol.QueryTypeNeo4jRelBetweenNodesCount,
		protocol.QueryTypeNeo4jExplainQuery,
		protocol.QueryTypeOptimizeFinished,
	} {
		assert.Contains(t, text, string(kind))
	}
	assert.Contains(t, text, "at most 25 messages")
	assert.Contains(t, text, "AVERAGE number of relationships")
	assert.NotContains(t, text, "<no value>")
}

func TestSystemInstruction_Neo4jGuidance(t *testing.T) {
	text, err := SystemInstruction(graphdb.TypeNeo4j, Neo4jParams(25))
	require.NoError(t, err)

	for _, section := range []string{
		"TYPOS AND SYNTAX",
		"INDEXES AND CONSTRAINTS",
		"LABEL SUBSETS",
		"QUESTION QUOTA",
		"CHECKLIST",
	} {
		assert.Contains(t, text, section)
	}
	assert.Contains(t, text, "Never reference an index or constraint that is not listed")
	assert.Contains(t, text, "rewrite (:X) as (:X:Y)")
	assert.Contains(t, text, "Ask at least 3 questions of types "+string(protocol.QueryTypeNeo4jCountNodesWithLabels))
	assert.Contains(t, text, "also propose a version")
}

// Every example in the instructions must be accepted by the validator,
// otherwise the agent is taught to send rejected messages.
func TestSystemInstruction_ExamplesValidate(t *testing.T) {
	text, err := SystemInstruction(graphdb.TypeNeo4j, Neo4jParams(25))
	require.NoError(t, err)

	blocks := jsonBlock.FindAllStringSubmatch(text, -1)
	require.Len(t, blocks, 5)

	seen := map[protocol.QueryType]bool{}
	for _, b := range blocks {
		msg, err := protocol.Parse(b[1])
		require.NoError(t, err, b[1])
		require.NoError(t, protocol.Validate(msg.Kind(), msg.Data()), b[1])
		seen[msg.Kind()] = true
	}
	assert.Len(t, seen, 5)
	assert.True(t, seen[protocol.QueryTypeOptimizeFinished])
}

func TestSystemInstruction_UnknownDialect(t *testing.T) {
	_, err := SystemInstruction(graphdb.DatabaseType("POSTGRES"), Params{})
	assert.True(t, errors.Is(err, protocol.ErrUnsupportedConfiguration))
}
