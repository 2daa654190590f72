package embed

import (
	"fmt"
	"log/slog"

	"github.com/openbiomed/biosearch/internal/config"
)

// NewFromConfig builds the configured embedder, wrapped in an LRU cache.
func NewFromConfig(cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "static":
		inner = NewStaticEmbedder()
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKeyEnv:  cfg.APIKeyEnv,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
