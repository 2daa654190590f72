package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/output"
	"github.com/openbiomed/biosearch/internal/search"
	"github.com/openbiomed/biosearch/internal/telemetry"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and query statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.Stats(ctx)
			if err != nil {
				return err
			}
			snapshot := a.metrics.Snapshot()

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Index   *search.EngineStats `json:"index"`
					Queries *telemetry.Snapshot `json:"queries"`
				}{stats, snapshot})
			}

			out := output.New(os.Stdout)
			out.Heading("Index")
			out.Detailf("documents: %d", stats.DocumentCount)
			out.Detailf("vectors: %d", stats.VectorCount)
			for source, count := range stats.CountsBySource {
				out.Detailf("%s: %d", source, count)
			}
			out.Detailf("embedding model: %s", stats.EmbeddingModel)
			out.Detailf("reranker: %s", enabledWord(stats.RerankerEnabled))

			out.Newline()
			out.Heading("Queries (this process)")
			out.Detailf("total: %d", snapshot.TotalQueries)
			out.Detailf("zero results: %d (%.1f%%)", snapshot.ZeroResultCount, snapshot.ZeroResultPercentage())
			for _, tc := range snapshot.TopTerms {
				out.Detail(fmt.Sprintf("%s: %d", tc.Term, tc.Count))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
