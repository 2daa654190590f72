package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	bioerrors "github.com/openbiomed/biosearch/internal/errors"
)

// OpenAIEmbedder generates embeddings through any OpenAI-compatible
// embeddings endpoint (OpenAI, Ollama, vLLM, LM Studio).
type OpenAIEmbedder struct {
	mu         sync.RWMutex
	embedder   embeddings.Embedder
	model      string
	dimensions int
	retry      bioerrors.RetryConfig
	logger     *slog.Logger
	closed     bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL is the embeddings endpoint.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKeyEnv names the environment variable holding the API key.
	// Local endpoints that need no auth can leave the variable unset.
	APIKeyEnv string

	// Dimensions is the expected embedding dimensionality. 0 means
	// detect from the first embedding.
	Dimensions int
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, bioerrors.ConfigError("embeddings base URL is required", nil)
	}
	if cfg.Model == "" {
		return nil, bioerrors.ConfigError("embeddings model is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	token := "none"
	if cfg.APIKeyEnv != "" {
		if v := os.Getenv(cfg.APIKeyEnv); v != "" {
			token = v
		}
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder:   embedder,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		retry:      bioerrors.DefaultRetryConfig(),
		logger:     logger.With("component", "openai_embedder"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, bioerrors.New(bioerrors.ErrCodeEmbeddingFailed, "embedder returned no vectors", nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Embedding endpoints shed load with transient 429/5xx responses;
	// back off and retry before giving up on the batch.
	vecs, err := bioerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		return e.embedder.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, bioerrors.Wrap(bioerrors.ErrCodeEmbeddingFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, bioerrors.New(bioerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(texts)), nil)
	}

	e.mu.Lock()
	if e.dimensions == 0 && len(vecs[0]) > 0 {
		e.dimensions = len(vecs[0])
		e.logger.Debug("embedding_dimensions_detected", slog.Int("dimensions", e.dimensions))
	}
	e.mu.Unlock()

	return vecs, nil
}

// Dimensions returns the embedding dimension (0 until first embed when
// auto-detecting).
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available probes the endpoint with a tiny embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	_, err := e.embedder.EmbedDocuments(ctx, []string{"ping"})
	if err != nil {
		e.logger.Debug("embedder_unavailable", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
