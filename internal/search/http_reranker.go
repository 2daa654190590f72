package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	bioerrors "github.com/openbiomed/biosearch/internal/errors"
)

// HTTP reranker defaults.
const (
	DefaultRerankerBatchSize = 8
	DefaultRerankerTimeout   = 30 * time.Second

	rerankerBreakerFailures = 3
	rerankerBreakerReset    = 60 * time.Second
)

// HTTPRerankerConfig configures the cross-encoder client.
type HTTPRerankerConfig struct {
	// Endpoint is the reranker service base URL.
	Endpoint string

	// BatchSize is how many documents are scored per request
	// (default: 8). Batches are sent sequentially.
	BatchSize int

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// SkipHealthCheck skips the startup health check.
	SkipHealthCheck bool
}

// HTTPReranker scores query/document pairs via an HTTP cross-encoder
// service. A circuit breaker shields searches from a down service:
// after repeated failures the reranker reports unavailable until the
// reset timeout elapses.
type HTTPReranker struct {
	client   *http.Client
	config   HTTPRerankerConfig
	breaker  *bioerrors.Breaker
	endpoint string
	mu       sync.RWMutex
	closed   bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a reranker client and verifies the service
// is reachable unless SkipHealthCheck is set.
func NewHTTPReranker(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, bioerrors.ValidationError("reranker endpoint is required", nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRerankerBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	r := &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		breaker:  bioerrors.NewBreaker("reranker", rerankerBreakerFailures, rerankerBreakerReset),
		endpoint: cfg.Endpoint,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.healthCheck(checkCtx); err != nil {
			return nil, bioerrors.ServiceError("reranker health check failed", err)
		}
	}

	slog.Debug("reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to reranker service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reranker service unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores documents in sequential batches of BatchSize. Partial
// failure fails the whole call; the engine treats that as a signal to
// keep the fused order.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.RUnlock()

	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	if !r.breaker.Allow() {
		return nil, bioerrors.ErrBreakerOpen
	}

	results := make([]RerankResult, 0, len(documents))
	for start := 0; start < len(documents); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(documents) {
			end = len(documents)
		}

		scores, err := r.rerankBatch(ctx, query, documents[start:end])
		if err != nil {
			r.breaker.Record(err)
			return nil, err
		}
		for i, score := range scores {
			results = append(results, RerankResult{Index: start + i, Score: score})
		}
	}

	r.breaker.Record(nil)
	return results, nil
}

func (r *HTTPReranker) rerankBatch(ctx context.Context, query string, documents []string) ([]float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, bioerrors.New(bioerrors.ErrCodeRerankFailed, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, bioerrors.New(bioerrors.ErrCodeRerankFailed,
			fmt.Sprintf("reranker returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(parsed.Scores) != len(documents) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(parsed.Scores), len(documents))
	}
	return parsed.Scores, nil
}

// Available reports whether the service is reachable and the breaker
// is not open.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	if !r.breaker.Allow() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.healthCheck(checkCtx) == nil
}

// Close releases the HTTP client resources.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.client.CloseIdleConnections()
	return nil
}
