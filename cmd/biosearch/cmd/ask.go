package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/output"
	"github.com/openbiomed/biosearch/internal/qa"
)

func newAskCmd() *cobra.Command {
	var (
		topK       int
		source     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed corpus",
		Long: `Retrieve relevant documents, cut them into passages, extract answer
spans, and synthesize a cited answer when a generator is configured.

Span extraction needs an extractor endpoint and synthesis needs at
least one generator in the configuration; without them the command
still returns the retrieved evidence.

Example:
  biosearch ask "What are the side effects of metformin?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			orchestrator, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			resp, err := orchestrator.Answer(ctx, strings.Join(args, " "), qa.QuestionOptions{
				TopK: topK,
				Filters: docstore.Filters{
					SourceType: docstore.SourceType(source),
				},
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			output.New(os.Stdout).RenderAnswer(resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Retrieval depth (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "Limit to one corpus: literature or trial")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
