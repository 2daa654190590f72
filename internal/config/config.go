// Package config loads and validates biosearch configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/biosearch/config.yaml)
//  3. Project config (biosearch.yaml in the working directory)
//  4. Environment variables (BIOSEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete biosearch configuration.
type Config struct {
	Version    int               `yaml:"version" json:"version"`
	Paths      PathsConfig       `yaml:"paths" json:"paths"`
	Server     ServerConfig      `yaml:"server" json:"server"`
	Search     SearchConfig      `yaml:"search" json:"search"`
	Passages   PassagesConfig    `yaml:"passages" json:"passages"`
	Embeddings EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig    `yaml:"reranker" json:"reranker"`
	Extractor  ExtractorConfig   `yaml:"extractor" json:"extractor"`
	Generators []GeneratorConfig `yaml:"generators" json:"generators"`
	Logging    LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig configures on-disk data locations.
type PathsConfig struct {
	// DataDir holds the lexical index, vector index, and snapshot store.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// Alpha is the lexical weight in score fusion (0.0-1.0).
	// The vector side receives 1-alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// TopK is the default number of results returned.
	TopK int `yaml:"top_k" json:"top_k"`

	// CandidateMultiplier controls how many candidates each retrieval
	// leg fetches relative to TopK before fusion.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
}

// PassagesConfig configures passage extraction for QA.
type PassagesConfig struct {
	// MaxLength is the maximum passage length in characters.
	MaxLength int `yaml:"max_length" json:"max_length"`

	// MaxChunksPerDoc caps how many full-text chunks one document contributes.
	MaxChunksPerDoc int `yaml:"max_chunks_per_doc" json:"max_chunks_per_doc"`

	// ChunkDiscount scales full-text chunk scores relative to the
	// abstract passage of the same document.
	ChunkDiscount float64 `yaml:"chunk_discount" json:"chunk_discount"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "openai" (any OpenAI-compatible
	// endpoint) or "static" (deterministic, offline).
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the OpenAI-compatible embeddings endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Keys are never read from YAML.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	CacheSize  int `yaml:"cache_size" json:"cache_size"`
}

// RerankerConfig configures the optional cross-encoder reranker.
type RerankerConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// CombinedWeight and RerankWeight blend the fused score with the
	// cross-encoder score into the final score.
	CombinedWeight float64 `yaml:"combined_weight" json:"combined_weight"`
	RerankWeight   float64 `yaml:"rerank_weight" json:"rerank_weight"`
}

// ExtractorConfig configures the span-extraction QA service.
type ExtractorConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	// MinConfidence drops extracted answers below this threshold.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// MaxPassages caps how many passages are sent for extraction.
	MaxPassages int `yaml:"max_passages" json:"max_passages"`
}

// GeneratorConfig configures one answer-synthesis backend.
// Generators are tried in the order they appear; the first available
// one is used.
type GeneratorConfig struct {
	// Name identifies the generator (e.g. "groq", "gemini", "openai").
	Name string `yaml:"name" json:"name"`

	// BaseURL is the OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`

	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			Alpha:               0.5,
			TopK:                10,
			CandidateMultiplier: 3,
		},
		Passages: PassagesConfig{
			MaxLength:       512,
			MaxChunksPerDoc: 3,
			ChunkDiscount:   0.8,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			BaseURL:    "",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "BIOSEARCH_EMBEDDINGS_API_KEY",
			Dimensions: 0, // auto-detect from embedder
			BatchSize:  32,
			CacheSize:  10000,
		},
		Reranker: RerankerConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:8081",
			BatchSize:      8,
			Timeout:        30 * time.Second,
			CombinedWeight: 0.3,
			RerankWeight:   0.7,
		},
		Extractor: ExtractorConfig{
			Endpoint:      "",
			Timeout:       30 * time.Second,
			MinConfidence: 0.01,
			MaxPassages:   10,
		},
		Generators: nil, // no generators configured means extractive-only QA
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the default data directory (~/.biosearch/data).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".biosearch", "data")
	}
	return filepath.Join(home, ".biosearch", "data")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "biosearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "biosearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "biosearch", "config.yaml")
}

// Load loads configuration starting from the given directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{"biosearch.yaml", "biosearch.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Alpha of exactly 0 is meaningful (vector-only), so it is only
	// settable via env override, not YAML merge.
	if other.Search.Alpha != 0 {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.CandidateMultiplier != 0 {
		c.Search.CandidateMultiplier = other.Search.CandidateMultiplier
	}

	if other.Passages.MaxLength != 0 {
		c.Passages.MaxLength = other.Passages.MaxLength
	}
	if other.Passages.MaxChunksPerDoc != 0 {
		c.Passages.MaxChunksPerDoc = other.Passages.MaxChunksPerDoc
	}
	if other.Passages.ChunkDiscount != 0 {
		c.Passages.ChunkDiscount = other.Passages.ChunkDiscount
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.APIKeyEnv != "" {
		c.Embeddings.APIKeyEnv = other.Embeddings.APIKeyEnv
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Reranker.Enabled {
		c.Reranker.Enabled = true
	}
	if other.Reranker.Endpoint != "" {
		c.Reranker.Endpoint = other.Reranker.Endpoint
	}
	if other.Reranker.BatchSize != 0 {
		c.Reranker.BatchSize = other.Reranker.BatchSize
	}
	if other.Reranker.Timeout != 0 {
		c.Reranker.Timeout = other.Reranker.Timeout
	}
	if other.Reranker.CombinedWeight != 0 {
		c.Reranker.CombinedWeight = other.Reranker.CombinedWeight
	}
	if other.Reranker.RerankWeight != 0 {
		c.Reranker.RerankWeight = other.Reranker.RerankWeight
	}

	if other.Extractor.Endpoint != "" {
		c.Extractor.Endpoint = other.Extractor.Endpoint
	}
	if other.Extractor.Timeout != 0 {
		c.Extractor.Timeout = other.Extractor.Timeout
	}
	if other.Extractor.MinConfidence != 0 {
		c.Extractor.MinConfidence = other.Extractor.MinConfidence
	}
	if other.Extractor.MaxPassages != 0 {
		c.Extractor.MaxPassages = other.Extractor.MaxPassages
	}

	if len(other.Generators) > 0 {
		c.Generators = other.Generators
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies BIOSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BIOSEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("BIOSEARCH_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("BIOSEARCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("BIOSEARCH_ALPHA"); v != "" {
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && a >= 0 && a <= 1 {
			c.Search.Alpha = a
		}
	}
	if v := os.Getenv("BIOSEARCH_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("BIOSEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("BIOSEARCH_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("BIOSEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("BIOSEARCH_RERANKER_ENABLED"); v != "" {
		c.Reranker.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("BIOSEARCH_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("BIOSEARCH_EXTRACTOR_ENDPOINT"); v != "" {
		c.Extractor.Endpoint = v
	}
	if v := os.Getenv("BIOSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
