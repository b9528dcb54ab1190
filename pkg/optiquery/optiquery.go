// Package optiquery is the public entry point of the query optimization
// engine. It re-exports the types a caller needs from the internal
// packages and wires a transport, a database reader and the conversation
// driver for each call.
package optiquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"optiquery/internal/agent"
	"optiquery/internal/conversation"
	"optiquery/internal/dispatch"
	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// Re-exported types.
type (
	DatabaseContext = graphdb.DatabaseContext
	Result          = protocol.OptimizationResult
	OptimizedQuery  = protocol.OptimizedQuery
	Outcome         = conversation.Outcome
	Transcript      = conversation.Transcript
	Transport       = agent.Transport
	Reader          = graphdb.Reader
	TransportError  = protocol.TransportFailure
)

// Re-exported errors.
var (
	ErrUnsupportedConfiguration = protocol.ErrUnsupportedConfiguration
	ErrUnsupportedModel         = protocol.ErrUnsupportedModel
	ErrNonTermination           = protocol.ErrNonTermination
)

// Request describes one optimization.
type Request struct {
	// DatabaseType is the dialect, e.g. "NEO4J".
	DatabaseType string
	DB           DatabaseContext
	// AgentType is "GEMINI" or "CHATGPT" (config names gemini and openai
	// are accepted too).
	AgentType string
	// AgentAuth must hold exactly one entry, "api_key".
	AgentAuth map[string]string
	Query     string
	// Model overrides the provider default when set.
	Model string
}

type options struct {
	maxTurns    int
	transport   Transport
	reader      Reader
	dispatcher  *dispatch.Dispatcher
	baseURL     string
	timeout     time.Duration
	concurrency int
}

// Option customizes a call.
type Option func(*options)

// WithMaxTurns bounds the conversation. Zero keeps the default.
func WithMaxTurns(n int) Option { return func(o *options) { o.maxTurns = n } }

// WithTransport replaces the provider transport built from AgentType.
// AgentType and AgentAuth are then ignored.
func WithTransport(t Transport) Option { return func(o *options) { o.transport = t } }

// WithReader replaces the database connection built from DB. The caller
// keeps ownership of r.
func WithReader(r Reader) Option { return func(o *options) { o.reader = r } }

// WithDispatcher replaces the default evidence dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option { return func(o *options) { o.dispatcher = d } }

// WithBaseURL points the provider transport at another endpoint.
func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

// WithTimeout sets the per-call provider timeout.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithConcurrency limits how many conversations OptimizeBatch runs at once.
func WithConcurrency(n int) Option { return func(o *options) { o.concurrency = n } }

func buildOptions(opts []Option) options {
	o := options{concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dispatcher == nil {
		o.dispatcher = dispatch.Default()
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o
}

// OptimizeQuery runs one conversation and returns the agent's validated
// result or one fatal error.
func OptimizeQuery(ctx context.Context, req Request, opts ...Option) (Result, error) {
	out, err := Optimize(ctx, req, opts...)
	if err != nil {
		return Result{}, err
	}
	return out.Result, nil
}

// Optimize is OptimizeQuery returning the transcript as well.
func Optimize(ctx context.Context, req Request, opts ...Option) (Outcome, error) {
	o := buildOptions(opts)
	s, err := open(ctx, req.DatabaseType, req.DB, req.AgentType, req.AgentAuth, req.Model, o)
	if err != nil {
		return Outcome{}, err
	}
	defer s.close(ctx)
	return s.driver.Run(ctx, req.Query)
}

// BatchItem is the outcome of one query in a batch.
type BatchItem struct {
	Query   string
	Outcome Outcome
	Err     error
}

// OptimizeBatch optimizes several queries against the same database and
// agent. Conversations run concurrently and share only the transport and
// the database driver. Configuration errors fail the whole batch before
// any turn; per-query failures are reported in the items.
func OptimizeBatch(ctx context.Context, req Request, queries []string, opts ...Option) ([]BatchItem, error) {
	o := buildOptions(opts)
	s, err := open(ctx, req.DatabaseType, req.DB, req.AgentType, req.AgentAuth, req.Model, o)
	if err != nil {
		return nil, err
	}
	defer s.close(ctx)

	items := make([]BatchItem, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, q := range queries {
		items[i].Query = q
		g.Go(func() error {
			out, err := s.driver.Run(gctx, q)
			items[i].Outcome = out
			items[i].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logging.Conversation("Batch finished: %d queries", len(queries))
	return items, nil
}

// session holds what one call wires together.
type session struct {
	driver *conversation.Driver
	owned  *graphdb.Neo4jReader
}

func (s *session) close(ctx context.Context) {
	if s.owned == nil {
		return
	}
	if err := s.owned.Close(context.WithoutCancel(ctx)); err != nil {
		logging.DatabaseWarn("Failed to close neo4j driver: %v", err)
	}
}

// open resolves every configuration choice before touching the network,
// then connects to the database.
func open(ctx context.Context, dbTypeName string, dbc DatabaseContext, agentTypeName string,
	auth map[string]string, model string, o options) (*session, error) {
	dbType, err := graphdb.ParseDatabaseType(strings.ToUpper(strings.TrimSpace(dbTypeName)))
	if err != nil {
		return nil, err
	}
	if _, err := o.dispatcher.Dialect(dbType); err != nil {
		return nil, err
	}

	transport := o.transport
	if transport == nil {
		agentType, err := agent.ParseType(agentTypeName)
		if err != nil {
			return nil, err
		}
		transport, err = agent.New(ctx, agent.Config{
			Type:    agentType,
			Model:   model,
			Auth:    auth,
			BaseURL: o.baseURL,
			Timeout: o.timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	s := &session{}
	reader := o.reader
	if reader == nil {
		if err := dbc.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrUnsupportedConfiguration)
		}
		r, err := graphdb.OpenNeo4j(ctx, dbc)
		if err != nil {
			return nil, &protocol.TransportFailure{Component: protocol.ComponentDatabase, Err: err}
		}
		s.owned = r
		reader = r
	}

	driver, err := conversation.New(conversation.Options{
		Transport:    transport,
		Dispatcher:   o.dispatcher,
		DatabaseType: dbType,
		DB:           reader,
		MaxTurns:     o.maxTurns,
	})
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.driver = driver
	return s, nil
}
