package conversation

import "optiquery/internal/protocol"

// State is the driver's position in the turn loop.
type State int

const (
	StateInit State = iota
	StateAwaitingReply
	StateValidating
	StateDispatching
	StateTerminal
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateValidating:
		return "VALIDATING"
	case StateDispatching:
		return "DISPATCHING"
	case StateTerminal:
		return "TERMINAL"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Entry is one recorded message of a conversation.
type Entry struct {
	Role protocol.Role `json:"role"`
	Text string        `json:"text"`
	// Kind is empty for corrective turns and for replies that failed to parse.
	Kind protocol.QueryType `json:"kind,omitempty"`
	// Rejection holds the reason an agent reply was refused.
	Rejection string `json:"rejection,omitempty"`
}

// Transcript is the explicit conversation state threaded through the loop.
// It lives for one Run and is handed back to the caller, never stored.
type Transcript struct {
	ID      string  `json:"id"`
	Entries []Entry `json:"entries"`
	// Turns counts agent round trips, corrective ones included.
	Turns int `json:"turns"`
}

// History returns the entries as transport turns.
func (t Transcript) History() []protocol.Turn {
	out := make([]protocol.Turn, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = protocol.Turn{Role: e.Role, Text: e.Text}
	}
	return out
}

// Rejections counts agent replies that failed validation.
func (t Transcript) Rejections() int {
	n := 0
	for _, e := range t.Entries {
		if e.Rejection != "" {
			n++
		}
	}
	return n
}

func (t *Transcript) record(e Entry) {
	t.Entries = append(t.Entries, e)
}

func (t Transcript) clone() Transcript {
	t.Entries = append([]Entry(nil), t.Entries...)
	return t
}

// Outcome is what Run returns. Result is set only when State is
// StateTerminal.
type Outcome struct {
	Result     protocol.OptimizationResult
	State      State
	Transcript Transcript
}
