package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY",
		"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"OPTIQUERY_MAX_TURNS",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected Provider=gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.Conversation.MaxTurns != 25 {
		t.Errorf("expected MaxTurns=25, got %d", cfg.Conversation.MaxTurns)
	}
	if cfg.Database.Type != "NEO4J" {
		t.Errorf("expected Database.Type=NEO4J, got %s", cfg.Database.Type)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "optiquery.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Model = "gpt-4o"
	cfg.Conversation.MaxTurns = 7

	require.NoError(t, cfg.Save(path))

	loaded, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfg, err := LoadWithEnvFile(filepath.Join(dir, "absent.yaml"), filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "optiquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0600))

	_, err := LoadWithEnvFile(path, "")
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("OPTIQUERY_MAX_TURNS", "12")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NEO4J_USERNAME=reader\nNEO4J_PASSWORD=from-file\n"), 0600))

	cfg, err := LoadWithEnvFile(filepath.Join(dir, "absent.yaml"), envFile)
	require.NoError(t, err)

	assert.Equal(t, "neo4j://graph:7687", cfg.Database.Host)
	assert.Equal(t, "reader", cfg.Database.Username)
	// process environment wins over .env
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 12, cfg.Conversation.MaxTurns)
	// no gemini key, so the openai key selects the provider
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "env-openai", cfg.LLM.APIKey)
}

func TestConfig_ProviderKey_ReadsEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OPENAI_API_KEY=file-openai\n"), 0600))

	cfg, err := LoadWithEnvFile(filepath.Join(dir, "absent.yaml"), envFile)
	require.NoError(t, err)
	assert.Equal(t, "env-gemini", cfg.LLM.APIKey)

	assert.Equal(t, "file-openai", cfg.ProviderKey("openai"))
	assert.Equal(t, "env-gemini", cfg.ProviderKey("gemini"))
	assert.Empty(t, cfg.ProviderKey("anthropic"))

	// the process environment still wins
	t.Setenv("OPENAI_API_KEY", "env-openai")
	assert.Equal(t, "env-openai", cfg.ProviderKey("openai"))
}

func TestConfig_EnvOverrides_ConfiguredProviderWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	require.NoError(t, cfg.applyEnvOverrides(envLookup(nil)))
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "env-openai", cfg.LLM.APIKey)
}

func TestConfig_EnvOverrides_BadMaxTurns(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPTIQUERY_MAX_TURNS", "many")

	_, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.ErrorContains(t, err, "OPTIQUERY_MAX_TURNS")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	// Default has no API key
	assert.ErrorContains(t, cfg.Validate(), "API key not configured")

	cfg.LLM.APIKey = "test-key"
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.LLM.Provider = "zai" }, "LLM.Provider must be one of [gemini openai]"},
		{"database type", func(c *Config) { c.Database.Type = "POSTGRES" }, "Database.Type must be one of [NEO4J]"},
		{"host", func(c *Config) { c.Database.Host = "" }, "Database.Host is required"},
		{"max turns", func(c *Config) { c.Conversation.MaxTurns = 0 }, "Conversation.MaxTurns must be at least 1"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "Logging.Level must be one of"},
		{"timeout", func(c *Config) { c.LLM.Timeout = "soon" }, "invalid llm.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			c.LLM.APIKey = "test-key"
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())

	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())

	cfg.LLM.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.GetLLMTimeout())

	opts := cfg.Logging.Options()
	assert.Equal(t, "info", opts.Level)
	assert.Equal(t, "console", opts.Format)
}
