// Package prompt renders the system instructions that teach the agent the
// message protocol for one database dialect. Templates are embedded in the
// binary and filled from the protocol constants, so the instructions can
// never drift from what the validator accepts.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"

	"optiquery/internal/graphdb"
	"optiquery/internal/protocol"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

// templateFiles maps each dialect to its template.
var templateFiles = map[graphdb.DatabaseType]string{
	graphdb.TypeNeo4j: "neo4j.tmpl",
}

// Params are the values substituted into a template.
type Params struct {
	Opening    protocol.QueryType
	Finished   protocol.QueryType
	CountNodes protocol.QueryType
	Properties protocol.QueryType
	RelCount   protocol.QueryType
	Explain    protocol.QueryType

	ResultSuffix     string
	OriginalQueryKey string
	DBStatsKey       string
	MaxTurns         int
	// DiscoveryQuota is the minimum number of schema questions asked before
	// finishing.
	DiscoveryQuota int
}

// DefaultDiscoveryQuota is the question quota announced to the agent.
const DefaultDiscoveryQuota = 3

// Neo4jParams returns the parameters for the Neo4j dialect.
func Neo4jParams(maxTurns int) Params {
	return Params{
		Opening:          protocol.QueryTypeNeo4jOpening,
		Finished:         protocol.QueryTypeOptimizeFinished,
		CountNodes:       protocol.QueryTypeNeo4jCountNodesWithLabels,
		Properties:       protocol.QueryTypeNeo4jPropertiesForLabels,
		RelCount:         protocol.QueryTypeNeo4jRelBetweenNodesCount,
		Explain:          protocol.QueryTypeNeo4jExplainQuery,
		ResultSuffix:     protocol.ResultSuffix,
		OriginalQueryKey: protocol.KeyOriginalQuery,
		DBStatsKey:       protocol.KeyDBStats,
		MaxTurns:         maxTurns,
		DiscoveryQuota:   DefaultDiscoveryQuota,
	}
}

func load() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("prompt").Option("missingkey=error").ParseFS(templatesFS, "templates/*.tmpl")
	})
	return parsed, parseErr
}

// SystemInstruction renders the instructions for dbType.
func SystemInstruction(dbType graphdb.DatabaseType, params Params) (string, error) {
	name, ok := templateFiles[dbType]
	if !ok {
		return "", fmt.Errorf("no system instructions for database type %q: %w", dbType, protocol.ErrUnsupportedConfiguration)
	}

	tmpl, err := load()
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt templates: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, params); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
