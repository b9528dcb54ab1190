package agent

import (
	"context"
	"fmt"
	"sync"

	"optiquery/internal/protocol"
)

// Reply configures one agent turn in a scripted sequence.
type Reply struct {
	Text string
	Err  error
}

// ScriptedTransport is a deterministic transport for tests and dry runs.
// It replays its replies in order and records every request it receives.
type ScriptedTransport struct {
	mu       sync.Mutex
	index    int
	replies  []Reply
	requests []protocol.TurnRequest
}

var _ Transport = (*ScriptedTransport)(nil)

// NewScriptedTransport returns a transport replying with texts in order.
func NewScriptedTransport(texts ...string) *ScriptedTransport {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return &ScriptedTransport{replies: replies}
}

// NewScriptedTransportWithReplies allows scripting failures.
func NewScriptedTransportWithReplies(replies ...Reply) *ScriptedTransport {
	cloned := make([]Reply, len(replies))
	copy(cloned, replies)
	return &ScriptedTransport{replies: cloned}
}

// SendTurn implements Transport.
func (s *ScriptedTransport) SendTurn(_ context.Context, req protocol.TurnRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.History = append([]protocol.Turn(nil), req.History...)
	s.requests = append(s.requests, req)

	if s.index >= len(s.replies) {
		return "", fmt.Errorf("script exhausted at turn %d", s.index+1)
	}
	current := s.replies[s.index]
	s.index++
	if current.Err != nil {
		return "", current.Err
	}
	return current.Text, nil
}

// Requests returns every request received so far.
func (s *ScriptedTransport) Requests() []protocol.TurnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.TurnRequest(nil), s.requests...)
}

// Calls returns how many turns were sent.
func (s *ScriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
