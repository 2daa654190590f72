// Package api exposes biosearch over HTTP: search, question
// answering, document lookup, health, and statistics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openbiomed/biosearch/internal/config"
	"github.com/openbiomed/biosearch/internal/docstore"
	"github.com/openbiomed/biosearch/internal/qa"
	"github.com/openbiomed/biosearch/internal/search"
	"github.com/openbiomed/biosearch/internal/telemetry"
)

// SearchService is the retrieval surface the API serves.
type SearchService interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)
	Document(ctx context.Context, id string) (*docstore.Document, error)
	Stats(ctx context.Context) (*search.EngineStats, error)
}

// QAService is the question-answering surface the API serves.
type QAService interface {
	Answer(ctx context.Context, question string, opts qa.QuestionOptions) (*qa.Response, error)
	AnswerBatch(ctx context.Context, questions []string, opts qa.QuestionOptions) ([]qa.BatchAnswer, error)
}

// Server is the biosearch HTTP server.
type Server struct {
	httpServer *http.Server
	searchSvc  SearchService
	qaSvc      QAService
	metrics    *telemetry.QueryMetrics
	version    string
	addr       string
	shutdown   time.Duration
}

// NewServer wires handlers and middleware. The QA service and metrics
// collector are optional: question endpoints return 503 without a QA
// service, and statistics omit query metrics without a collector.
func NewServer(cfg config.ServerConfig, searchSvc SearchService, qaSvc QAService, metrics *telemetry.QueryMetrics, version string) *Server {
	s := &Server{
		searchSvc: searchSvc,
		qaSvc:     qaSvc,
		metrics:   metrics,
		version:   version,
		addr:      net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		shutdown:  cfg.ShutdownTimeout,
	}
	if s.shutdown <= 0 {
		s.shutdown = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/question", s.handleQuestion)
	mux.HandleFunc("POST /api/v1/batch-question", s.handleBatchQuestion)
	mux.HandleFunc("GET /api/v1/document/{id}", s.handleDocument)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/statistics", s.handleStatistics)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      withRequestID(withAccessLog(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_listening", slog.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("server_shutting_down", slog.Duration("timeout", s.shutdown))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
