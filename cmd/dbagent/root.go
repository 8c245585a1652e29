package main

import (
	"fmt"
	"os"

	"github.com/Protocol-Lattice/go-dbagent/src/config"
	"github.com/Protocol-Lattice/go-dbagent/src/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runtimeEnv is what every subcommand needs after flags are parsed.
type runtimeEnv struct {
	cfg    config.Config
	logger zerolog.Logger
}

var (
	flagEnvFile  string
	flagProvider string
	flagModel    string
	flagLogLevel string
	flagPretty   bool

	env runtimeEnv
)

var rootCmd = &cobra.Command{
	Use:           "dbagent",
	Short:         "LLM agents for SQL databases and CSV files",
	Long:          `dbagent binds a language model to database tools. Run "dbagent serve" for the HTTP API or use the ask, csv and assistant commands locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if flagEnvFile != "" {
			files = append(files, flagEnvFile)
		}
		cfg, err := config.Load(files...)
		if err != nil {
			return err
		}
		applyFlags(cmd, &cfg)
		env = runtimeEnv{cfg: cfg, logger: logging.New(cfg.LogLevel, cfg.LogPretty)}
		return nil
	},
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = flagProvider
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("pretty") {
		cfg.LogPretty = flagPretty
	}
	if flags.Changed("addr") {
		cfg.Addr = flagAddr
	}
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEnvFile, "env-file", "", "Env file to load (default .env)")
	pf.StringVar(&flagProvider, "provider", "", "LLM provider: openai|gemini|anthropic|ollama|dummy")
	pf.StringVar(&flagModel, "model", "", "Model ID for the selected provider")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.BoolVar(&flagPretty, "pretty", false, "Human readable logs")

	rootCmd.AddCommand(serveCmd, askCmd, csvCmd, assistantCmd)
}
