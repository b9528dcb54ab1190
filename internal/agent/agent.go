// Package agent provides the transports that carry turns to a language
// model provider and bring back its raw reply. Transports are stateless per
// call: the conversation driver passes the full history with every turn.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"optiquery/internal/protocol"
)

// Transport sends one turn and returns the agent's raw reply.
type Transport interface {
	SendTurn(ctx context.Context, req protocol.TurnRequest) (string, error)
}

// Type identifies a model provider.
type Type string

const (
	TypeGemini  Type = "GEMINI"
	TypeChatGPT Type = "CHATGPT"
)

// ParseType accepts the canonical names and the config provider names.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gemini":
		return TypeGemini, nil
	case "chatgpt", "openai":
		return TypeChatGPT, nil
	}
	return "", fmt.Errorf("unknown agent type %q: %w", s, protocol.ErrUnsupportedConfiguration)
}

// AuthKeyAPIKey is the only credential key a provider accepts.
const AuthKeyAPIKey = "api_key"

// Config selects and configures a transport.
type Config struct {
	Type Type
	// Model overrides the provider default when set.
	Model string
	// Auth must contain exactly one entry, "api_key".
	Auth    map[string]string
	BaseURL string
	Timeout time.Duration
}

// New builds the transport for cfg.Type.
func New(ctx context.Context, cfg Config) (Transport, error) {
	apiKey, err := apiKeyFrom(cfg.Type, cfg.Auth)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case TypeGemini:
		gc := DefaultGeminiConfig(apiKey)
		applyOverrides(&gc.Model, &gc.BaseURL, &gc.Timeout, cfg)
		return NewGeminiTransport(ctx, gc)
	case TypeChatGPT:
		oc := DefaultOpenAIConfig(apiKey)
		applyOverrides(&oc.Model, &oc.BaseURL, &oc.Timeout, cfg)
		return NewOpenAITransport(oc), nil
	}
	return nil, fmt.Errorf("agent type %q: %w", cfg.Type, protocol.ErrUnsupportedConfiguration)
}

func applyOverrides(model, baseURL *string, timeout *time.Duration, cfg Config) {
	if cfg.Model != "" {
		*model = cfg.Model
	}
	if cfg.BaseURL != "" {
		*baseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		*timeout = cfg.Timeout
	}
}

func apiKeyFrom(t Type, auth map[string]string) (string, error) {
	key, ok := auth[AuthKeyAPIKey]
	if !ok || len(auth) != 1 {
		keys := make([]string, 0, len(auth))
		for k := range auth {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("auth for %s must contain only %s, not %v: %w",
			t, AuthKeyAPIKey, keys, protocol.ErrUnsupportedConfiguration)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("auth for %s has an empty %s: %w", t, AuthKeyAPIKey, protocol.ErrUnsupportedConfiguration)
	}
	return key, nil
}

// withDefaultTimeout applies timeout when ctx has no deadline.
func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
