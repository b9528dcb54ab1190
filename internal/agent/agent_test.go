package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"optiquery/internal/logging"
	"optiquery/internal/protocol"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"GEMINI", TypeGemini},
		{"gemini", TypeGemini},
		{" openai ", TypeChatGPT},
		{"CHATGPT", TypeChatGPT},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseType("claude")
	assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
}

func TestNew_RejectsBadAuth(t *testing.T) {
	tests := []struct {
		name string
		auth map[string]string
	}{
		{"nil", nil},
		{"wrong key", map[string]string{"token": "x"}},
		{"extra key", map[string]string{"api_key": "x", "org": "y"}},
		{"empty key", map[string]string{"api_key": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), Config{Type: TypeChatGPT, Auth: tt.auth})
			assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "LLAMA", Auth: map[string]string{"api_key": "k"}})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedConfiguration)
}

func TestNew_AppliesOverrides(t *testing.T) {
	tr, err := New(context.Background(), Config{
		Type:    TypeChatGPT,
		Model:   "gpt-4o-mini",
		Auth:    map[string]string{"api_key": "k"},
		BaseURL: "http://localhost:1/v1/",
		Timeout: time.Second,
	})
	require.NoError(t, err)

	oa, ok := tr.(*OpenAITransport)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", oa.model)
	assert.Equal(t, "http://localhost:1/v1", oa.baseURL)
	assert.Equal(t, time.Second, oa.timeout)
}

func sampleTurn() protocol.TurnRequest {
	return protocol.TurnRequest{
		SystemInstruction: "speak json",
		History: []protocol.Turn{
			{Role: protocol.RoleEngine, Text: `{"query_type":"NEO4J_OPENING"}`},
			{Role: protocol.RoleAgent, Text: `{"query_type":"NEO4J_EXPLAIN_QUERY"}`},
		},
		Text: `{"query_type":"NEO4J_EXPLAIN_QUERY_RESULT"}`,
	}
}

func TestOpenAITransport_SendTurn(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "}}]}`)
	}))
	defer srv.Close()

	cfg := DefaultOpenAIConfig("secret")
	cfg.BaseURL = srv.URL
	text, err := NewOpenAITransport(cfg).SendTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)

	require.Len(t, got.Messages, 4)
	roles := []string{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role, got.Messages[3].Role}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "gpt-4o", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAITransport_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unsupported bool
	}{
		{"not found", http.StatusNotFound, `{"error":{"message":"nope"}}`, true},
		{"model_not_found code", http.StatusBadRequest, `{"error":{"message":"nope","code":"model_not_found"}}`, true},
		{"server error", http.StatusInternalServerError, `boom`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			cfg := DefaultOpenAIConfig("secret")
			cfg.BaseURL = srv.URL
			_, err := NewOpenAITransport(cfg).SendTurn(context.Background(), sampleTurn())
			require.Error(t, err)
			assert.Equal(t, tt.unsupported, errors.Is(err, protocol.ErrUnsupportedModel))
		})
	}
}

func TestOpenAITransport_LogsCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logging.SetLogger(zap.New(core))
	defer restore()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	cfg := DefaultOpenAIConfig("secret")
	cfg.BaseURL = srv.URL
	_, err := NewOpenAITransport(cfg).SendTurn(context.Background(), sampleTurn())
	require.Error(t, err)

	events := map[string]bool{}
	for _, e := range logs.FilterLoggerName("audit").All() {
		events[e.ContextMap()["event"].(string)] = true
	}
	assert.True(t, events["llm_request"])
	assert.True(t, events["llm_error"])

	warns := logs.FilterLoggerName("api").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "status=429")
}

func TestGeminiTransport_SendTurn(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]}}]}`)
	}))
	defer srv.Close()

	cfg := DefaultGeminiConfig("secret")
	cfg.BaseURL = srv.URL
	tr, err := NewGeminiTransport(context.Background(), cfg)
	require.NoError(t, err)

	text, err := tr.SendTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)

	contents, ok := body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.NotNil(t, body["systemInstruction"])
}

func TestGeminiTransport_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"models/nope is not found","status":"NOT_FOUND"}}`)
	}))
	defer srv.Close()

	cfg := DefaultGeminiConfig("secret")
	cfg.BaseURL = srv.URL
	cfg.Model = "nope"
	tr, err := NewGeminiTransport(context.Background(), cfg)
	require.NoError(t, err)

	_, err = tr.SendTurn(context.Background(), sampleTurn())
	assert.ErrorIs(t, err, protocol.ErrUnsupportedModel)
}

func TestGeminiTransport_EmptyReplyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":""}]},"finishReason":"SAFETY"}]}`)
	}))
	defer srv.Close()

	cfg := DefaultGeminiConfig("secret")
	cfg.BaseURL = srv.URL
	tr, err := NewGeminiTransport(context.Background(), cfg)
	require.NoError(t, err)

	text, err := tr.SendTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestScriptedTransport(t *testing.T) {
	boom := errors.New("boom")
	s := NewScriptedTransportWithReplies(Reply{Text: "a"}, Reply{Err: boom})

	req := sampleTurn()
	text, err := s.SendTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", text)

	req.History[0].Text = "mutated"
	_, err = s.SendTurn(context.Background(), req)
	assert.ErrorIs(t, err, boom)

	_, err = s.SendTurn(context.Background(), req)
	assert.ErrorContains(t, err, "script exhausted at turn 3")

	assert.Equal(t, 3, s.Calls())
	assert.Equal(t, `{"query_type":"NEO4J_OPENING"}`, s.Requests()[0].History[0].Text)
}

func TestLiveTransports(t *testing.T) {
	for _, tc := range []struct {
		typ Type
		env string
	}{
		{TypeGemini, "GEMINI_API_KEY"},
		{TypeChatGPT, "OPENAI_API_KEY"},
	} {
		t.Run(string(tc.typ), func(t *testing.T) {
			key := os.Getenv(tc.env)
			if key == "" {
				t.Skipf("%s not set", tc.env)
			}
			tr, err := New(context.Background(), Config{Type: tc.typ, Auth: map[string]string{AuthKeyAPIKey: key}})
			require.NoError(t, err)

			text, err := tr.SendTurn(context.Background(), protocol.TurnRequest{
				SystemInstruction: `Reply with the JSON object {"ok": true} and nothing else.`,
				Text:              "ping",
			})
			require.NoError(t, err)
			assert.Contains(t, text, "ok")
		})
	}
}
