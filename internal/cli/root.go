// Package cli is the nl2sql command line: the HTTP server plus one-shot
// commands for asking questions, inspecting the audit trail and indexing.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nl2sql/internal/config"
	"nl2sql/internal/logging"
)

var (
	cfg     *config.Config
	logger  *zap.Logger
	rootCmd = &cobra.Command{
		Use:   "nl2sql",
		Short: "Answer questions about a PostgreSQL database in natural language",
		Long: `nl2sql turns questions into validated PostgreSQL, runs them on a
read-only connection and explains the results.

Start the HTTP API:
  nl2sql serve

Ask from the terminal:
  nl2sql ask "How many orders were placed last month?"

Settings come from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(indexCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err = logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
}
