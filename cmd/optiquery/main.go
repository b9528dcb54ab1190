package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optiquery/internal/config"
	"optiquery/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "optiquery",
	Short: "Optimize graph database queries with a language model",
	Long: `optiquery lets a language model inspect your graph database through a
strict request/response protocol and propose faster, equivalent queries.

The model never runs queries itself: it asks for label counts, property
distributions, relationship averages and execution plans, and every request
is validated before anything touches the database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
		}
		if err := logging.Initialize(opts); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Root().Named("cli")
		logging.Boot("optiquery %s starting: %s", version, cmd.Name())
		logging.BootDebug("config file: %s", configPath)
		logging.ConfigDebug("provider=%s model=%s database=%s max_turns=%d",
			cfg.LLM.Provider, cfg.LLM.Model, cfg.Database.Type, cfg.Conversation.MaxTurns)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the optiquery version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "optiquery %s\n", version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to the YAML config file")

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(explainPromptCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
