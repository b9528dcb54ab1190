package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"optiquery/internal/config"
	"optiquery/internal/dispatch"
	"optiquery/internal/graphdb"
)

var (
	promptDBType string
	forceInit    bool
)

// explainPromptCmd prints the system instructions sent to the agent
var explainPromptCmd = &cobra.Command{
	Use:   "explain-prompt",
	Short: "Print the system instructions the agent receives",
	Long: `Prints the protocol description sent to the agent as system instructions
for the given database type. Use --max-turns to see the turn bound it
announces.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbType, err := graphdb.ParseDatabaseType(strings.ToUpper(promptDBType))
		if err != nil {
			return err
		}
		dl, err := dispatch.Default().Dialect(dbType)
		if err != nil {
			return err
		}

		turns := cfg.Conversation.MaxTurns
		if maxTurnsFlag > 0 {
			turns = maxTurnsFlag
		}
		text, err := dl.Instructions(turns)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// initCmd writes a default config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default optiquery.yaml",
	Long: `Writes the default configuration to the --config path. API keys are not
written; set GEMINI_API_KEY or OPENAI_API_KEY in the environment or a .env
file instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	explainPromptCmd.Flags().StringVar(&promptDBType, "db-type", string(graphdb.TypeNeo4j), "Database type")
	explainPromptCmd.Flags().IntVar(&maxTurnsFlag, "max-turns", 0, "Turn bound to announce (default from config)")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}
