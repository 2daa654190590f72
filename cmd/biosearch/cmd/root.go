// Package cmd implements the biosearch CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/logging"
	"github.com/openbiomed/biosearch/pkg/version"
)

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	var (
		debug      bool
		logCleanup func()
	)

	cmd := &cobra.Command{
		Use:   "biosearch",
		Short: "Hybrid search and QA over biomedical literature",
		Long: `biosearch indexes biomedical literature and clinical-trial records
for hybrid retrieval: BM25 lexical search and vector search fused
into one ranking, with optional cross-encoder reranking and
question answering on top.

Quick start:
  biosearch ingest documents.jsonl    # build the indexes
  biosearch search "hypertension treatment"
  biosearch ask "What are the side effects of metformin?"
  biosearch serve                     # HTTP API`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional. API keys come from the environment,
			// never from config files.
			_ = godotenv.Load()

			level := "info"
			if debug {
				level = "debug"
			}
			logger, cleanup, err := logging.Setup(logging.Config{
				Level:         level,
				FilePath:      logging.DefaultLogPath(),
				WriteToStderr: debug,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			slog.SetDefault(logger)
			logCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCleanup != nil {
				logCleanup()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.SetVersionTemplate("biosearch version {{.Version}}\n")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
