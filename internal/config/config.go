// Package config loads optiquery configuration from YAML, .env files and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config path used when none is given.
const DefaultConfigFile = "optiquery.yaml"

// Config holds all optiquery configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Graph database holding the data the query runs against
	Database DatabaseConfig `yaml:"database"`

	// Conversation limits
	Conversation ConversationConfig `yaml:"conversation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// dotenv holds the .env values read by Load, if any.
	dotenv map[string]string
}

// LLMConfig configures the agent transport.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai"`
	APIKey   string `yaml:"api_key" validate:"required"`
	Model    string `yaml:"model" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Timeout  string `yaml:"timeout"`
}

// DatabaseConfig configures the graph database connection.
type DatabaseConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=NEO4J"`
	Host     string `yaml:"host" validate:"required"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ConversationConfig bounds conversations.
type ConversationConfig struct {
	MaxTurns      int `yaml:"max_turns" validate:"min=1"`
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},
		Database: DatabaseConfig{
			Type:     "NEO4J",
			Host:     "neo4j://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Conversation: ConversationConfig{
			MaxTurns:      25,
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, then applies a .env file from
// the working directory and the process environment. Missing files are not
// an error.
func Load(path string) (*Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit .env path.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dotenv := map[string]string{}
	if envFile != "" {
		dotenv, err = godotenv.Read(envFile)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
			dotenv = map[string]string{}
		}
	}

	// Override with environment variables
	if len(dotenv) > 0 {
		cfg.dotenv = dotenv
	}
	if err := cfg.applyEnvOverrides(envLookup(dotenv)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// envLookup prefers the process environment over the .env file.
func envLookup(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	// The configured provider's key wins; otherwise the first key found
	// selects the provider.
	keys := make(map[string]string, len(ProviderKeyEnv))
	for provider, env := range ProviderKeyEnv {
		keys[provider] = getenv(env)
	}
	if key := keys[c.LLM.Provider]; key != "" {
		c.LLM.APIKey = key
	} else if c.LLM.APIKey == "" {
		for _, p := range ValidProviders {
			if keys[p] != "" {
				c.LLM.Provider = p
				c.LLM.APIKey = keys[p]
				break
			}
		}
	}

	if v := getenv("NEO4J_URI"); v != "" {
		c.Database.Host = v
	}
	if v := getenv("NEO4J_USERNAME"); v != "" {
		c.Database.Username = v
	}
	if v := getenv("NEO4J_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("NEO4J_DATABASE"); v != "" {
		c.Database.Database = v
	}

	if v := getenv("OPTIQUERY_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPTIQUERY_MAX_TURNS %q: %w", v, err)
		}
		c.Conversation.MaxTurns = n
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openai"}

// ProviderKeyEnv names the environment variable holding each provider's key.
var ProviderKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// ProviderKey returns the API key for provider from the environment or the
// .env file read by Load.
func (c *Config) ProviderKey(provider string) string {
	env, ok := ProviderKeyEnv[provider]
	if !ok {
		return ""
	}
	return envLookup(c.dotenv)(env)
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or OPENAI_API_KEY)")
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("invalid llm.timeout %q: %w", c.LLM.Timeout, err)
		}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
