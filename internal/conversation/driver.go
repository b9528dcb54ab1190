// Package conversation drives one optimization dialogue between the agent
// and the database: it sends the opening message, validates every reply,
// serves evidence requests and stops on the terminal message, a fatal
// error or the turn bound.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"optiquery/internal/agent"
	"optiquery/internal/dispatch"
	"optiquery/internal/graphdb"
	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// DefaultMaxTurns bounds a conversation when Options.MaxTurns is zero.
const DefaultMaxTurns = 25

// slowTurn is the agent round trip above which a turn is logged as slow.
const slowTurn = 30 * time.Second

// CorrectionHeader prefixes the text sent back after a rejected reply.
const CorrectionHeader = "Your previous message was rejected: "

// Options wires a driver.
type Options struct {
	Transport    agent.Transport
	Dispatcher   *dispatch.Dispatcher
	DatabaseType graphdb.DatabaseType
	DB           graphdb.Reader
	MaxTurns     int
}

// Driver runs conversations for one database and one agent. A driver holds
// only immutable configuration, so concurrent Run calls are safe as long as
// the transport and reader are.
type Driver struct {
	transport    agent.Transport
	dispatcher   *dispatch.Dispatcher
	dialect      dispatch.Dialect
	db           graphdb.Reader
	maxTurns     int
	instructions string
	allowed      []protocol.QueryType
}

// New checks the configuration and builds a driver. Every configuration
// problem is reported here, before any turn is sent.
func New(opts Options) (*Driver, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("conversation needs an agent transport: %w", protocol.ErrUnsupportedConfiguration)
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("conversation needs a database reader: %w", protocol.ErrUnsupportedConfiguration)
	}
	if opts.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns must not be negative, got %d: %w", opts.MaxTurns, protocol.ErrUnsupportedConfiguration)
	}
	if opts.MaxTurns == 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Default()
	}

	dl, err := opts.Dispatcher.Dialect(opts.DatabaseType)
	if err != nil {
		return nil, err
	}
	instructions, err := dl.Instructions(opts.MaxTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to render system instructions: %w", err)
	}

	allowed := append([]protocol.QueryType{protocol.QueryTypeOptimizeFinished}, dl.RequestKinds...)

	return &Driver{
		transport:    opts.Transport,
		dispatcher:   opts.Dispatcher,
		dialect:      dl,
		db:           opts.DB,
		maxTurns:     opts.MaxTurns,
		instructions: instructions,
		allowed:      allowed,
	}, nil
}

// run is the mutable state of one Run call.
type run struct {
	state      State
	transcript Transcript
	log        *logging.RequestLogger
}

func (r *run) enter(s State) {
	r.log.Debug("%s -> %s", r.state, s)
	r.state = s
}

func (r *run) outcome() Outcome {
	return Outcome{State: r.state, Transcript: r.transcript.clone()}
}

// Run optimizes query. It returns the terminal result or exactly one fatal
// error; the outcome carries the transcript in both cases.
func (d *Driver) Run(ctx context.Context, query string) (Outcome, error) {
	id := uuid.NewString()
	r := &run{
		state:      StateInit,
		transcript: Transcript{ID: id},
		log:        logging.WithRequestID(logging.CategoryConversation, id),
	}
	start := time.Now()
	logging.Audit(logging.AuditEvent{
		EventType:      logging.AuditConversationStart,
		ConversationID: id,
		Target:         string(d.dialect.DatabaseType),
		Success:        true,
	})
	r.log.Info("Starting conversation: db=%s max_turns=%d query_len=%d", d.dialect.DatabaseType, d.maxTurns, len(query))

	result, err := d.loop(ctx, r, query)

	end := logging.AuditEvent{
		EventType:      logging.AuditConversationEnd,
		ConversationID: id,
		Turn:           r.transcript.Turns,
		Success:        err == nil,
		Duration:       time.Since(start),
	}
	if err != nil {
		r.enter(StateFatal)
		end.Error = err.Error()
		r.log.Warn("Conversation failed after %d turns: %v", r.transcript.Turns, err)
	} else {
		r.log.Info("Conversation finished in %d turns (%d rejected): %d queries, %d suggestions",
			r.transcript.Turns, r.transcript.Rejections(),
			len(result.OptimizedQueriesAndExplanations), len(result.Suggestions))
	}
	logging.Audit(end)

	out := r.outcome()
	if err == nil {
		out.Result = result
	}
	return out, err
}

func (d *Driver) loop(ctx context.Context, r *run, query string) (protocol.OptimizationResult, error) {
	if err := ctx.Err(); err != nil {
		return protocol.OptimizationResult{}, fmt.Errorf("conversation cancelled: %w", err)
	}

	// the provider call is not interruptible; cancellation is observed
	// between turns
	opening, err := d.dispatcher.Open(context.WithoutCancel(ctx), d.dialect, query, d.db)
	if err != nil {
		return protocol.OptimizationResult{}, databaseFailure(err)
	}
	outbound, err := protocol.Encode(opening)
	if err != nil {
		return protocol.OptimizationResult{}, fmt.Errorf("failed to encode opening message: %w", err)
	}
	outboundKind := opening.Kind()

	for r.transcript.Turns < d.maxTurns {
		if err := ctx.Err(); err != nil {
			return protocol.OptimizationResult{}, fmt.Errorf("conversation cancelled after %d turns: %w", r.transcript.Turns, err)
		}

		r.enter(StateAwaitingReply)
		r.transcript.Turns++
		turn := r.transcript.Turns
		logging.AuditTurn(logging.AuditTurnSent, r.transcript.ID, turn, string(outboundKind))

		timer := logging.StartTimer(logging.CategoryConversation, "agent turn")
		reply, err := d.transport.SendTurn(ctx, protocol.TurnRequest{
			SystemInstruction: d.instructions,
			History:           r.transcript.History(),
			Text:              outbound,
		})
		timer.StopWithThreshold(slowTurn)
		r.transcript.record(Entry{Role: protocol.RoleEngine, Text: outbound, Kind: outboundKind})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return protocol.OptimizationResult{}, fmt.Errorf("conversation cancelled during turn %d: %w", turn, ctxErr)
			}
			return protocol.OptimizationResult{}, &protocol.TransportFailure{Component: protocol.ComponentAgent, Err: err}
		}

		r.enter(StateValidating)
		msg, req, result, err := d.validate(reply)
		if err != nil {
			se, ok := protocol.AsSchemaError(err)
			if !ok {
				return protocol.OptimizationResult{}, err
			}
			r.transcript.record(Entry{Role: protocol.RoleAgent, Text: reply, Kind: msg.Kind(), Rejection: se.Reason})
			logging.AuditTurn(logging.AuditTurnRejected, r.transcript.ID, turn, string(msg.Kind()))
			r.log.Info("Turn %d rejected: %s", turn, se.Reason)

			outbound = CorrectionHeader + se.Reason
			outboundKind = ""
			continue
		}
		r.transcript.record(Entry{Role: protocol.RoleAgent, Text: reply, Kind: msg.Kind()})
		logging.AuditTurn(logging.AuditTurnReceived, r.transcript.ID, turn, string(msg.Kind()))

		if msg.Kind().IsTerminal() {
			r.enter(StateTerminal)
			return result, nil
		}

		r.enter(StateDispatching)
		r.log.Debug("Turn %d: dispatching %s", turn, req.Kind())
		resp, err := d.dispatcher.Dispatch(context.WithoutCancel(ctx), req, d.db)
		if err != nil {
			return protocol.OptimizationResult{}, databaseFailure(err)
		}
		logging.Audit(logging.AuditEvent{
			EventType:      logging.AuditEvidenceServed,
			ConversationID: r.transcript.ID,
			Turn:           turn,
			QueryType:      string(resp.Kind()),
			Success:        true,
		})

		outbound, err = protocol.Encode(resp)
		if err != nil {
			return protocol.OptimizationResult{}, fmt.Errorf("failed to encode %s: %w", resp.Kind(), err)
		}
		outboundKind = resp.Kind()
	}

	return protocol.OptimizationResult{}, fmt.Errorf("%w: no %s after %d turns",
		protocol.ErrNonTermination, protocol.QueryTypeOptimizeFinished, d.maxTurns)
}

// validate parses reply and decodes it into either a request or the final
// result. Only schema errors are returned.
func (d *Driver) validate(reply string) (protocol.Message, protocol.Request, protocol.OptimizationResult, error) {
	msg, err := protocol.Parse(reply)
	if err != nil {
		return protocol.Message{}, nil, protocol.OptimizationResult{}, err
	}
	if err := protocol.CheckAllowed(msg.Kind(), d.allowed); err != nil {
		return msg, nil, protocol.OptimizationResult{}, err
	}
	if msg.Kind().IsTerminal() {
		result, err := protocol.DecodeFinished(msg.Data())
		return msg, nil, result, err
	}
	req, err := protocol.DecodeRequest(msg.Kind(), msg.Data())
	return msg, req, protocol.OptimizationResult{}, err
}

// databaseFailure classifies a provider error. Configuration errors pass
// through unchanged; everything else is a fatal database failure.
func databaseFailure(err error) error {
	if errors.Is(err, protocol.ErrUnsupportedConfiguration) || protocol.IsTransportFailure(err) {
		return err
	}
	return &protocol.TransportFailure{Component: protocol.ComponentDatabase, Err: err}
}
