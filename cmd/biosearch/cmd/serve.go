package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openbiomed/biosearch/internal/api"
	"github.com/openbiomed/biosearch/internal/output"
	"github.com/openbiomed/biosearch/pkg/version"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve search, question answering, document lookup, health, and
statistics over HTTP.

Endpoints:
  POST /api/v1/search
  POST /api/v1/question
  POST /api/v1/batch-question
  GET  /api/v1/document/{id}
  GET  /api/v1/health
  GET  /api/v1/statistics

The server holds the data directory lock for the whole run; ingest
cannot run against the same directory until it stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}

			orchestrator, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			server := api.NewServer(a.cfg.Server, a.engine, orchestrator, a.metrics, version.Version)

			out := output.New(os.Stdout)
			out.Successf("biosearch %s listening on http://%s", version.Short(), server.Addr())
			out.Detail("press Ctrl+C to stop")

			if err := server.Run(ctx); err != nil {
				return err
			}
			slog.Info("server_stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")

	return cmd
}
