// Package protocol defines the message schema exchanged between the
// optimization engine and the agent: query types, messages, requests,
// the terminal result and the validator that guards all of them.
package protocol

import (
	"sort"
	"strings"
)

// QueryType tags every message on the wire. The set is closed.
type QueryType string

const (
	// general
	QueryTypeOptimizeFinished QueryType = "OPTIMIZE_FINISHED"

	// neo4j
	QueryTypeNeo4jOpening              QueryType = "NEO4J_OPENING_QUERY"
	QueryTypeNeo4jCountNodesWithLabels QueryType = "NEO4J_COUNT_NODES_WITH_LABELS"
	QueryTypeNeo4jPropertiesForLabels  QueryType = "NEO4J_PROPERTIES_FOR_LABELS"
	QueryTypeNeo4jRelBetweenNodesCount QueryType = "NEO4J_REL_BETWEEN_NODES_COUNT"
	QueryTypeNeo4jExplainQuery         QueryType = "NEO4J_EXPLAIN_QUERY"
)

// ResultSuffix marks engine responses to agent requests.
const ResultSuffix = "_RESULT"

// shape identifies the data layout a query type carries.
type shape int

const (
	shapeFinished shape = iota + 1
	shapeOpening
	shapeCountNodes
	shapeProperties
	shapeRelationshipCount
	shapeExplain
)

var shapes = map[QueryType]shape{
	QueryTypeOptimizeFinished:          shapeFinished,
	QueryTypeNeo4jOpening:              shapeOpening,
	QueryTypeNeo4jCountNodesWithLabels: shapeCountNodes,
	QueryTypeNeo4jPropertiesForLabels:  shapeProperties,
	QueryTypeNeo4jRelBetweenNodesCount: shapeRelationshipCount,
	QueryTypeNeo4jExplainQuery:         shapeExplain,
}

// IsRequest reports whether the agent may send this kind to ask for evidence.
func (q QueryType) IsRequest() bool {
	switch shapes[q] {
	case shapeCountNodes, shapeProperties, shapeRelationshipCount, shapeExplain:
		return true
	}
	return false
}

// IsOpening reports whether q opens a conversation.
func (q QueryType) IsOpening() bool { return shapes[q] == shapeOpening }

// IsTerminal reports whether q ends a conversation.
func (q QueryType) IsTerminal() bool { return shapes[q] == shapeFinished }

// IsResult reports whether q is the engine's answer to a request kind.
func (q QueryType) IsResult() bool {
	base, ok := strings.CutSuffix(string(q), ResultSuffix)
	return ok && QueryType(base).IsRequest()
}

// Known reports whether q belongs to the closed enumeration.
func (q QueryType) Known() bool {
	_, ok := shapes[q]
	return ok || q.IsResult()
}

// ResultKind returns the response kind for a request kind.
func (q QueryType) ResultKind() QueryType {
	return q + ResultSuffix
}

// KnownQueryTypes lists the agent-visible base kinds in sorted order.
func KnownQueryTypes() []QueryType {
	out := make([]QueryType, 0, len(shapes))
	for q := range shapes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Message is one immutable protocol message. Data is deep-copied on the way
// in and on the way out.
type Message struct {
	kind QueryType
	data map[string]any
}

// NewMessage builds a message owning a private copy of data.
func NewMessage(kind QueryType, data map[string]any) Message {
	return Message{kind: kind, data: cloneMap(data)}
}

// Kind returns the query type.
func (m Message) Kind() QueryType { return m.kind }

// Data returns a copy of the message data.
func (m Message) Data() map[string]any { return cloneMap(m.data) }

// wireMessage is the exact wire shape: two keys, nothing else.
type wireMessage struct {
	QueryType QueryType      `json:"query_type"`
	Data      map[string]any `json:"data"`
}

// MarshalJSON encodes the message in wire form.
func (m Message) MarshalJSON() ([]byte, error) {
	data := m.data
	if data == nil {
		data = map[string]any{}
	}
	return marshalNoEscape(wireMessage{QueryType: m.kind, Data: data})
}

// String returns the wire form, or the kind alone if data cannot be encoded.
func (m Message) String() string {
	s, err := Encode(m)
	if err != nil {
		return string(m.kind)
	}
	return s
}

// Role identifies who produced a turn.
type Role string

const (
	RoleEngine Role = "engine"
	RoleAgent  Role = "agent"
)

// Turn is one entry of conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TurnRequest is everything a transport needs to produce the agent's next
// reply. Transports keep no history of their own.
type TurnRequest struct {
	SystemInstruction string
	History           []Turn
	Text              string
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = cloneMap(item)
		}
		return out
	default:
		return v
	}
}
