package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AuditEventType names one kind of audit event.
type AuditEventType string

const (
	// Conversation lifecycle
	AuditConversationStart AuditEventType = "conversation_start"
	AuditConversationEnd   AuditEventType = "conversation_end"

	// Turns
	AuditTurnSent     AuditEventType = "turn_sent"
	AuditTurnReceived AuditEventType = "turn_received"
	AuditTurnRejected AuditEventType = "turn_rejected"

	// Evidence
	AuditEvidenceServed AuditEventType = "evidence_served"

	// LLM API
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"
)

// AuditEvent is one structured audit record. Zero-valued fields are omitted
// from the output.
type AuditEvent struct {
	EventType      AuditEventType
	ConversationID string
	Turn           int
	QueryType      string
	Target         string
	Success        bool
	Duration       time.Duration
	Error          string
	Message        string
}

// Audit writes e to the audit category as typed zap fields.
func Audit(e AuditEvent) {
	fields := []zap.Field{
		zap.String("event", string(e.EventType)),
		zap.Bool("success", e.Success),
	}
	if e.ConversationID != "" {
		fields = append(fields, zap.String("conversation", e.ConversationID))
	}
	if e.Turn > 0 {
		fields = append(fields, zap.Int("turn", e.Turn))
	}
	if e.QueryType != "" {
		fields = append(fields, zap.String("query_type", e.QueryType))
	}
	if e.Target != "" {
		fields = append(fields, zap.String("target", e.Target))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Int64("dur_ms", e.Duration.Milliseconds()))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.EventType)
	}
	Get(CategoryAudit).sugar.Desugar().Info(msg, fields...)
}

// AuditTurn records one turn of a conversation.
func AuditTurn(event AuditEventType, conversationID string, turn int, queryType string) {
	Audit(AuditEvent{
		EventType:      event,
		ConversationID: conversationID,
		Turn:           turn,
		QueryType:      queryType,
		Success:        event != AuditTurnRejected,
	})
}

// AuditLLMSend records a provider call about to be sent.
func AuditLLMSend(provider, model string, messages int) {
	Audit(AuditEvent{
		EventType: AuditLLMRequest,
		Target:    provider + "/" + model,
		Success:   true,
		Message:   fmt.Sprintf("llm_request messages=%d", messages),
	})
}

// AuditLLM records one provider call.
func AuditLLM(provider, model string, d time.Duration, err error) {
	e := AuditEvent{
		EventType: AuditLLMResponse,
		Target:    provider + "/" + model,
		Success:   err == nil,
		Duration:  d,
	}
	if err != nil {
		e.EventType = AuditLLMError
		e.Error = err.Error()
	}
	Audit(e)
}
