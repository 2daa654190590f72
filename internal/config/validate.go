package config

import (
	"fmt"
	"math"
)

// Validate checks the configuration for invalid values.
// It is called after all sources have been merged.
func (c *Config) Validate() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search.alpha must be in [0,1], got %v", c.Search.Alpha)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return fmt.Errorf("search.candidate_multiplier must be positive, got %d", c.Search.CandidateMultiplier)
	}

	if c.Passages.MaxLength <= 0 {
		return fmt.Errorf("passages.max_length must be positive, got %d", c.Passages.MaxLength)
	}
	if c.Passages.MaxChunksPerDoc <= 0 {
		return fmt.Errorf("passages.max_chunks_per_doc must be positive, got %d", c.Passages.MaxChunksPerDoc)
	}
	if c.Passages.ChunkDiscount <= 0 || c.Passages.ChunkDiscount > 1 {
		return fmt.Errorf("passages.chunk_discount must be in (0,1], got %v", c.Passages.ChunkDiscount)
	}

	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("embeddings.provider must be openai or static, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.base_url is required for the openai provider")
	}

	if c.Reranker.Enabled {
		if c.Reranker.Endpoint == "" {
			return fmt.Errorf("reranker.endpoint is required when reranker is enabled")
		}
		sum := c.Reranker.CombinedWeight + c.Reranker.RerankWeight
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("reranker weights must sum to 1.0, got %v", sum)
		}
	}

	if c.Extractor.MinConfidence < 0 || c.Extractor.MinConfidence > 1 {
		return fmt.Errorf("extractor.min_confidence must be in [0,1], got %v", c.Extractor.MinConfidence)
	}

	seen := make(map[string]bool)
	for _, g := range c.Generators {
		if g.Name == "" {
			return fmt.Errorf("generator name must not be empty")
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate generator name %q", g.Name)
		}
		seen[g.Name] = true
		if g.Model == "" {
			return fmt.Errorf("generator %q: model must not be empty", g.Name)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0,65535], got %d", c.Server.Port)
	}

	return nil
}
