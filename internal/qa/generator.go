package qa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/openbiomed/biosearch/internal/config"
	bioerrors "github.com/openbiomed/biosearch/internal/errors"
)

// DefaultGeneratorTimeout bounds one synthesis call.
const DefaultGeneratorTimeout = 60 * time.Second

// Generator synthesizes an answer from a prompt.
type Generator interface {
	// Name identifies the backend.
	Name() string

	// Generate produces an answer from the system and user prompts.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// Available reports whether the backend is usable right now.
	Available(ctx context.Context) bool
}

// ChatGenerator wraps an OpenAI-compatible chat backend.
type ChatGenerator struct {
	name        string
	model       string
	temperature float64
	timeout     time.Duration
	client      llms.Model
	breaker     *bioerrors.Breaker
	hasKey      bool
}

var _ Generator = (*ChatGenerator)(nil)

// NewChatGenerator creates a generator from its configuration. The
// API key is read from the environment variable the config names;
// local endpoints can leave it unset.
func NewChatGenerator(cfg config.GeneratorConfig) (*ChatGenerator, error) {
	if cfg.Name == "" || cfg.Model == "" {
		return nil, bioerrors.ValidationError("generator name and model are required", nil)
	}

	token := "none"
	hasKey := true
	if cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
		if token == "" {
			token = "none"
			hasKey = false
		}
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, bioerrors.New(bioerrors.ErrCodeGenerationFailed,
			fmt.Sprintf("create %s client", cfg.Name), err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGeneratorTimeout
	}

	return &ChatGenerator{
		name:        cfg.Name,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		client:      client,
		breaker:     bioerrors.NewBreaker("generator:"+cfg.Name, 3, 2*time.Minute),
		hasKey:      hasKey,
	}, nil
}

// Name returns the generator name.
func (g *ChatGenerator) Name() string { return g.name }

// Available reports whether the backend has credentials and its
// breaker is closed. No network probe: chat endpoints rarely expose a
// cheap health check, so failures surface on the first call and trip
// the breaker.
func (g *ChatGenerator) Available(_ context.Context) bool {
	return g.hasKey && g.breaker.Allow()
}

// Generate sends the prompt and returns the first choice.
func (g *ChatGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !g.breaker.Allow() {
		return "", bioerrors.ErrBreakerOpen
	}

	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	resp, err := g.client.GenerateContent(genCtx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		g.breaker.Record(err)
		return "", bioerrors.New(bioerrors.ErrCodeGenerationFailed,
			fmt.Sprintf("%s generation failed", g.name), err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%s returned no choices", g.name)
		g.breaker.Record(err)
		return "", bioerrors.New(bioerrors.ErrCodeGenerationFailed, err.Error(), nil)
	}

	g.breaker.Record(nil)
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Chain tries generators in preference order and synthesizes with the
// first available one.
type Chain struct {
	generators []Generator
	mu         sync.RWMutex
}

// NewChain builds a generator chain from configuration. Generators
// that fail to construct are skipped with a warning; an empty chain
// is valid and simply reports unavailable.
func NewChain(cfgs []config.GeneratorConfig) *Chain {
	var generators []Generator
	for _, cfg := range cfgs {
		g, err := NewChatGenerator(cfg)
		if err != nil {
			slog.Warn("generator_skipped",
				slog.String("name", cfg.Name),
				slog.String("error", err.Error()))
			continue
		}
		generators = append(generators, g)
	}
	return &Chain{generators: generators}
}

// NewChainFromGenerators builds a chain from existing generators.
func NewChainFromGenerators(generators ...Generator) *Chain {
	return &Chain{generators: generators}
}

// Available reports whether any generator in the chain is usable.
func (c *Chain) Available(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.generators {
		if g.Available(ctx) {
			return true
		}
	}
	return false
}

// Generate synthesizes with the first available generator. Later
// generators are tried when an earlier one fails mid-call. Returns
// the answer and the name of the generator that produced it.
func (c *Chain) Generate(ctx context.Context, system, prompt string) (string, string, error) {
	c.mu.RLock()
	generators := c.generators
	c.mu.RUnlock()

	var lastErr error
	for _, g := range generators {
		if !g.Available(ctx) {
			continue
		}
		answer, err := g.Generate(ctx, system, prompt)
		if err != nil {
			slog.Warn("generator_failed",
				slog.String("name", g.Name()),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		return answer, g.Name(), nil
	}

	if lastErr != nil {
		return "", "", lastErr
	}
	return "", "", bioerrors.New(bioerrors.ErrCodeGenerationFailed, "no generator available", nil)
}
