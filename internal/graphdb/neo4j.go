package graphdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"optiquery/internal/logging"
)

// statementErrorPrefix marks Cypher client errors that describe the query.
const statementErrorPrefix = "Neo.ClientError.Statement."

// Neo4jReader runs read transactions against a Neo4j server. It owns the
// driver, which is safe for concurrent use; each transaction gets its own
// session.
type Neo4jReader struct {
	driver   neo4j.DriverWithContext
	database string
}

// OpenNeo4j connects to the server described by dbc and verifies
// connectivity before returning.
func OpenNeo4j(ctx context.Context, dbc DatabaseContext) (*Neo4jReader, error) {
	if err := dbc.Validate(); err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryDatabase, "connect")
	defer timer.Stop()

	driver, err := neo4j.NewDriverWithContext(dbc.Host, neo4j.BasicAuth(dbc.Username, dbc.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver for %s: %w", dbc.Host, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", dbc.Host, err)
	}

	logging.Database("Connected to neo4j at %s (database=%q)", dbc.Host, dbc.Database)
	return &Neo4jReader{driver: driver, database: dbc.Database}, nil
}

// Close releases the driver.
func (r *Neo4jReader) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// WithReadTransaction runs fn in exactly one read-mode transaction. The
// transaction is rolled back and the session closed on every path, even
// when ctx is already cancelled.
func (r *Neo4jReader) WithReadTransaction(ctx context.Context, fn TxFunc) (any, error) {
	timer := logging.StartTimer(logging.CategoryDatabase, "read transaction")
	defer timer.Stop()

	release := context.WithoutCancel(ctx)

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer func() {
		if cerr := session.Close(release); cerr != nil {
			logging.DatabaseWarn("Failed to close session: %v", cerr)
		}
	}()

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, translate(err)
	}
	defer func() {
		// Close rolls back; the work is read-only so nothing is lost.
		if cerr := tx.Close(release); cerr != nil {
			logging.DatabaseDebug("Closing read transaction: %v", cerr)
		}
	}()

	return fn(ctx, &neo4jTx{tx: tx})
}

type neo4jTx struct {
	tx neo4j.ExplicitTransaction
}

func (t *neo4jTx) Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	logging.DatabaseDebug("Run: %s", cypher)
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, translate(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Record, len(records))
	for i, rec := range records {
		row := rec.AsMap()
		for k, v := range row {
			row[k] = jsonSafe(v)
		}
		out[i] = row
	}
	return out, nil
}

func (t *neo4jTx) Explain(ctx context.Context, cypher string, params map[string]any) (*Plan, error) {
	logging.DatabaseDebug("Explain: %s", cypher)
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, translate(err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return nil, translate(err)
	}
	plan := summary.Plan()
	if plan == nil {
		return nil, ErrNoPlan
	}
	converted := convertPlan(plan)
	return &converted, nil
}

func convertPlan(p neo4j.Plan) Plan {
	children := p.Children()
	out := Plan{
		Operator:    p.Operator(),
		Arguments:   p.Arguments(),
		Identifiers: append([]string{}, p.Identifiers()...),
		Children:    make([]Plan, 0, len(children)),
	}
	if out.Arguments == nil {
		out.Arguments = map[string]any{}
	}
	for _, c := range children {
		out.Children = append(out.Children, convertPlan(c))
	}
	return out
}

// translate turns Cypher client errors into StatementError and leaves
// everything else (connectivity, auth, transient) untouched.
func translate(err error) error {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && strings.HasPrefix(nerr.Code, statementErrorPrefix) {
		return &StatementError{Code: nerr.Code, Message: nerr.Msg}
	}
	if neo4j.IsConnectivityError(err) {
		logging.DatabaseWarn("Connectivity error: %v", err)
	}
	return err
}
