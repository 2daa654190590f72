package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/output"
	"github.com/openbiomed/biosearch/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		topK       int
		alpha      float64
		sortBy     string
		source     string
		yearMin    int
		yearMax    int
		fullText   bool
		openAccess bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Run a hybrid search: BM25 and vector retrieval fused into one
ranking. Alpha weights the lexical side (1.0 is lexical-only, 0.0 is
vector-only).

Examples:
  biosearch search "metformin cardiovascular outcomes"
  biosearch search "htn treatment" --source trial --year-min 2020
  biosearch search "covid vaccines" --sort date_desc --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := search.SearchOptions{
				TopK:   topK,
				SortBy: search.SortOrder(sortBy),
				Filters: docstore.Filters{
					SourceType:      docstore.SourceType(source),
					RequireFullText: fullText,
					OpenAccessOnly:  openAccess,
				},
			}
			if cmd.Flags().Changed("alpha") {
				opts.Alpha = &alpha
			}
			if yearMin > 0 {
				opts.Filters.YearMin = &yearMin
			}
			if yearMax > 0 {
				opts.Filters.YearMax = &yearMax
			}

			results, err := a.engine.Search(ctx, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			out := output.New(os.Stdout)
			out.Heading(fmt.Sprintf("%d results", len(results)))
			out.RenderResults(results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Lexical weight in fusion, 0.0-1.0")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort order: relevance, date_desc, date_asc")
	cmd.Flags().StringVar(&source, "source", "", "Limit to one corpus: literature or trial")
	cmd.Flags().IntVar(&yearMin, "year-min", 0, "Earliest publication year")
	cmd.Flags().IntVar(&yearMax, "year-max", 0, "Latest publication year")
	cmd.Flags().BoolVar(&fullText, "full-text", false, "Only documents with body text")
	cmd.Flags().BoolVar(&openAccess, "open-access", false, "Only open-access documents")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
