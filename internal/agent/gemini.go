package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// GeminiConfig configures the Gemini transport.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.0-flash",
		Timeout: 120 * time.Second,
	}
}

// GeminiTransport talks to the Gemini API through the genai SDK.
type GeminiTransport struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiTransport creates a Gemini transport.
func NewGeminiTransport(ctx context.Context, cfg GeminiConfig) (*GeminiTransport, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiConfig("").Model
	}
	return &GeminiTransport{client: client, model: model, timeout: cfg.Timeout}, nil
}

// SendTurn sends the history plus req.Text and returns the reply text.
func (t *GeminiTransport) SendTurn(ctx context.Context, req protocol.TurnRequest) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, t.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		var role genai.Role = genai.RoleUser
		if turn.Role == protocol.RoleAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Text, genai.RoleUser))

	gcfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if req.SystemInstruction != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	start := time.Now()
	logging.APIDebug("[Gemini] SendTurn: model=%s history=%d text_len=%d", t.model, len(req.History), len(req.Text))
	logging.AuditLLMSend("gemini", t.model, len(contents))

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, gcfg)
	logging.AuditLLM("gemini", t.model, time.Since(start), err)
	if err != nil {
		logging.APIError("[Gemini] SendTurn: model=%s failed after %v: %v", t.model, time.Since(start), err)
		return "", t.classify(err)
	}

	// An empty reply (MAX_TOKENS, SAFETY) is passed through so the driver
	// rejects it and asks again.
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		logging.APIWarn("[Gemini] SendTurn: empty reply from model=%s finish_reason=%s", t.model, finishReason(resp))
		return "", nil
	}
	logging.API("[Gemini] SendTurn: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "none"
	}
	return string(resp.Candidates[0].FinishReason)
}

func (t *GeminiTransport) classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == http.StatusNotFound {
		return fmt.Errorf("gemini model %q: %w: %v", t.model, protocol.ErrUnsupportedModel, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
