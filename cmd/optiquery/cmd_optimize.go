package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optiquery/internal/agent"
	"optiquery/internal/config"
	"optiquery/pkg/optiquery"
)

var (
	queryFile      string
	providerFlag   string
	modelFlag      string
	apiKeyFlag     string
	maxTurnsFlag   int
	outputFormat   string
	showTranscript bool
	markdownStyle  string
)

// optimizeCmd runs one conversation per query
var optimizeCmd = &cobra.Command{
	Use:   "optimize [query]",
	Short: "Ask the agent for a faster, equivalent version of a query",
	Long: `Starts an optimization conversation for each query. The query comes from
the argument, from --query-file, or from stdin when the argument is "-".

A query file may hold several statements terminated by ";". They are
optimized concurrently, up to conversation.max_concurrent at a time.

Examples:
  optiquery optimize "MATCH (p:Person) WHERE p.name = 'Ann' RETURN p"
  optiquery optimize --query-file queries.cypher --output json
  cat slow.cypher | optiquery optimize - --provider openai --transcript`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&queryFile, "query-file", "f", "", "Read ;-terminated queries from a file")
	optimizeCmd.Flags().StringVar(&providerFlag, "provider", "", "LLM provider: gemini or openai (overrides config)")
	optimizeCmd.Flags().StringVar(&modelFlag, "model", "", "Model identifier (overrides config)")
	optimizeCmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "Provider API key (or set GEMINI_API_KEY / OPENAI_API_KEY)")
	optimizeCmd.Flags().IntVar(&maxTurnsFlag, "max-turns", 0, "Maximum agent turns per conversation (overrides config)")
	optimizeCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or json")
	optimizeCmd.Flags().BoolVar(&showTranscript, "transcript", false, "Print every exchanged message after the result")
	optimizeCmd.Flags().StringVar(&markdownStyle, "style", "auto", "Markdown style for text output (auto, dark, light, notty)")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	queries, err := readQueries(args, queryFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	p, err := newPrinter(cmd.OutOrStdout(), outputFormat, markdownStyle, showTranscript)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := requestFromConfig(cfg)
	opts := []optiquery.Option{
		optiquery.WithMaxTurns(cfg.Conversation.MaxTurns),
		optiquery.WithTimeout(cfg.GetLLMTimeout()),
		optiquery.WithBaseURL(cfg.LLM.BaseURL),
		optiquery.WithConcurrency(cfg.Conversation.MaxConcurrent),
	}
	logger.Info("Optimizing",
		zap.Int("queries", len(queries)),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("database", cfg.Database.Host))

	if len(queries) == 1 {
		req.Query = queries[0]
		out, runErr := optiquery.Optimize(ctx, req, opts...)
		if runErr != nil && out.Transcript.ID == "" {
			// configuration or connection error before the conversation began
			return runErr
		}
		if err := p.print(req.Query, out, runErr); err != nil {
			return err
		}
		return runErr
	}

	items, err := optiquery.OptimizeBatch(ctx, req, queries, opts...)
	if err != nil {
		return err
	}
	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
			logger.Warn("Conversation failed", zap.String("query", item.Query), zap.Error(item.Err))
		}
		if err := p.print(item.Query, item.Outcome, item.Err); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(items))
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// applyFlagOverrides layers command flags over the loaded config.
func applyFlagOverrides(c *config.Config) {
	if providerFlag != "" && providerFlag != c.LLM.Provider {
		c.LLM.Provider = providerFlag
		if modelFlag == "" {
			c.LLM.Model = defaultModel(providerFlag)
		}
		c.LLM.APIKey = c.ProviderKey(providerFlag)
	}
	if modelFlag != "" {
		c.LLM.Model = modelFlag
	}
	if apiKeyFlag != "" {
		c.LLM.APIKey = apiKeyFlag
	}
	if maxTurnsFlag > 0 {
		c.Conversation.MaxTurns = maxTurnsFlag
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return agent.DefaultOpenAIConfig("").Model
	default:
		return agent.DefaultGeminiConfig("").Model
	}
}

func requestFromConfig(c *config.Config) optiquery.Request {
	return optiquery.Request{
		DatabaseType: c.Database.Type,
		DB: optiquery.DatabaseContext{
			Host:     c.Database.Host,
			Username: c.Database.Username,
			Password: c.Database.Password,
			Database: c.Database.Database,
		},
		AgentType: c.LLM.Provider,
		AgentAuth: map[string]string{agent.AuthKeyAPIKey: c.LLM.APIKey},
		Model:     c.LLM.Model,
	}
}

// readQueries returns the queries to optimize, in input order.
func readQueries(args []string, file string, stdin io.Reader) ([]string, error) {
	var text string
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass a query or --query-file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read query file: %w", err)
		}
		text = string(data)
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	case len(args) == 1:
		return []string{strings.TrimSpace(args[0])}, nil
	default:
		return nil, errors.New("no query given")
	}

	queries := splitStatements(text)
	if len(queries) == 0 {
		return nil, errors.New("no query found in input")
	}
	return queries, nil
}

// splitStatements splits on ";" outside string literals and comments.
// Comments are dropped; a block comment leaves a space behind.
func splitStatements(text string) []string {
	var (
		out     []string
		current strings.Builder
		quote   rune
		comment bool
		block   bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
		case block:
			if r == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				block = false
				i++
				current.WriteByte(' ')
			}
		case quote != 0:
			current.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				current.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			comment = true
			i++
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			block = true
			i++
		case r == '\'' || r == '"' || r == '`':
			quote = r
			current.WriteRune(r)
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
