// Package cmd provides the CLI commands for docvector.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docvector/docvector/internal/config"
	"github.com/docvector/docvector/internal/logging"
)

var (
	configPath     string
	ingestRoot     string
	logLevel       string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docvector CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docvector",
		Short: "Ingest documents into a vector search backend",
		Long: `docvector discovers documents under a root directory, extracts
metadata, chunks content on sentence boundaries, generates embeddings,
and uploads the results to a cloud hybrid-search service or an embedded
local vector store.

Already-processed files are skipped via a signature tracker, so repeated
runs only pick up new and changed files.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&ingestRoot, "root", "", "Ingest root (overrides config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(
		newInitCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newStatusCmd(),
		newResetCmd(),
		newDoctorCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves configuration for a command invocation, applying the
// --root and --log-level flag overrides on top of the loaded config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if ingestRoot != "" {
		cfg.Ingest.Root = ingestRoot
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Ingest.Root == "" {
		return nil, fmt.Errorf("no ingest root configured (set ingest.root, DOCVECTOR_ROOT, or --root)")
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv("DOCVECTOR_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		WriteToStderr: true,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}
