package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	bioerrors "github.com/openbiomed/biosearch/internal/errors"
)

// Extractor defaults.
const (
	DefaultMinConfidence    = 0.01
	DefaultExtractorTimeout = 30 * time.Second
	DefaultExtractorBatch   = 8
	DefaultMaxPassages      = 10

	extractorBreakerFailures = 3
	extractorBreakerReset    = 60 * time.Second
)

// ExtractorConfig configures the span-extraction client.
type ExtractorConfig struct {
	// Endpoint is the extractive QA service base URL.
	Endpoint string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// MinConfidence drops answers below this threshold (default: 0.01).
	MinConfidence float64

	// MaxPassages caps how many passages are sent (default: 10).
	MaxPassages int

	// BatchSize is how many passages go in one request (default: 8).
	// Batches are sent sequentially.
	BatchSize int

	// SkipHealthCheck skips the startup health check.
	SkipHealthCheck bool
}

// AnswerExtractor runs extractive QA against passages.
type AnswerExtractor interface {
	// Extract returns answers above the confidence threshold, sorted
	// by confidence descending.
	Extract(ctx context.Context, question string, passages []Passage) ([]Answer, error)

	// Available reports whether the extractor can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// HTTPExtractor calls an HTTP span-QA service. Like the reranker it
// sits behind a circuit breaker so a down service does not stall
// every question.
type HTTPExtractor struct {
	client  *http.Client
	config  ExtractorConfig
	breaker *bioerrors.Breaker
	mu      sync.RWMutex
	closed  bool
}

var _ AnswerExtractor = (*HTTPExtractor)(nil)

// NewHTTPExtractor creates an extractor client.
func NewHTTPExtractor(ctx context.Context, cfg ExtractorConfig) (*HTTPExtractor, error) {
	if cfg.Endpoint == "" {
		return nil, bioerrors.ValidationError("extractor endpoint is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExtractorTimeout
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = DefaultMaxPassages
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultExtractorBatch
	}

	e := &HTTPExtractor{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:  cfg,
		breaker: bioerrors.NewBreaker("extractor", extractorBreakerFailures, extractorBreakerReset),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := e.healthCheck(checkCtx); err != nil {
			return nil, bioerrors.ServiceError("extractor health check failed", err)
		}
	}

	slog.Debug("extractor_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("min_confidence", cfg.MinConfidence),
		slog.Int("max_passages", cfg.MaxPassages))

	return e, nil
}

func (e *HTTPExtractor) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to extractor service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("extractor service unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

type extractRequest struct {
	Question string   `json:"question"`
	Contexts []string `json:"contexts"`
}

type extractedSpan struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

type extractResponse struct {
	Answers []extractedSpan `json:"answers"`
}

// Extract sends the top MaxPassages passages in sequential batches,
// keeps non-empty answers above MinConfidence, and returns them
// sorted by confidence descending with buckets assigned.
func (e *HTTPExtractor) Extract(ctx context.Context, question string, passages []Passage) ([]Answer, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("extractor is closed")
	}
	e.mu.RUnlock()

	if len(passages) == 0 {
		return []Answer{}, nil
	}
	if len(passages) > e.config.MaxPassages {
		passages = passages[:e.config.MaxPassages]
	}

	if !e.breaker.Allow() {
		return nil, bioerrors.ErrBreakerOpen
	}

	var answers []Answer
	for start := 0; start < len(passages); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]

		scores, err := e.extractBatch(ctx, question, batch)
		if err != nil {
			e.breaker.Record(err)
			return nil, err
		}

		for i, s := range scores {
			text := strings.TrimSpace(s.Answer)
			if text == "" || s.Score < e.config.MinConfidence {
				continue
			}
			p := batch[i]
			answers = append(answers, Answer{
				Type:       AnswerExtracted,
				Text:       text,
				Confidence: s.Score,
				Bucket:     BucketFor(s.Score),
				DocID:      p.DocID,
				Title:      p.Title,
				SourceType: p.SourceType,
				Passage:    p.Text,
			})
		}
	}
	e.breaker.Record(nil)

	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].Confidence > answers[j].Confidence
	})
	return answers, nil
}

func (e *HTTPExtractor) extractBatch(ctx context.Context, question string, batch []Passage) ([]extractedSpan, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	contexts := make([]string, len(batch))
	for i, p := range batch {
		contexts[i] = p.Text
	}

	body, err := json.Marshal(extractRequest{Question: question, Contexts: contexts})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, bioerrors.New(bioerrors.ErrCodeExtractionFailed, "extract request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, bioerrors.New(bioerrors.ErrCodeExtractionFailed,
			fmt.Sprintf("extractor returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	if len(parsed.Answers) != len(batch) {
		return nil, fmt.Errorf("extractor returned %d answers for %d passages", len(parsed.Answers), len(batch))
	}
	return parsed.Answers, nil
}

// Available reports whether the service is reachable and the breaker
// is not open.
func (e *HTTPExtractor) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	if !e.breaker.Allow() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return e.healthCheck(checkCtx) == nil
}

// Close releases the HTTP client resources.
func (e *HTTPExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
