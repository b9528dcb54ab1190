package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

// OpenAIConfig configures the ChatGPT transport.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 120 * time.Second,
	}
}

// OpenAITransport talks to the OpenAI chat completions API.
type OpenAITransport struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAITransport creates a ChatGPT transport.
func NewOpenAITransport(cfg OpenAIConfig) *OpenAITransport {
	return &OpenAITransport{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// SendTurn posts the system instructions, the history and req.Text.
func (t *OpenAITransport) SendTurn(ctx context.Context, req protocol.TurnRequest) (string, error) {
	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemInstruction})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == protocol.RoleAgent {
			role = "assistant"
		}
		messages = append(messages, openAIMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Text})

	body, err := json.Marshal(openAIRequest{
		Model:          t.model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	logging.APIDebug("[OpenAI] SendTurn: model=%s messages=%d", t.model, len(messages))
	logging.AuditLLMSend("openai", t.model, len(messages))

	text, err := t.post(ctx, body)
	logging.AuditLLM("openai", t.model, time.Since(start), err)
	if err != nil {
		return "", err
	}
	logging.API("[OpenAI] SendTurn: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

func (t *OpenAITransport) post(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		logging.APIError("[OpenAI] request to %s failed: %v", t.baseURL, err)
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed openAIResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		logging.APIWarn("[OpenAI] model=%s status=%d", t.model, resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound || (parsed.Error != nil && parsed.Error.Code == "model_not_found") {
			return "", fmt.Errorf("openai model %q: %w", t.model, protocol.ErrUnsupportedModel)
		}
		return "", fmt.Errorf("openai API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to parse response: %w", jsonErr)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
