package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiomed/biosearch/internal/config"
)

func TestNewChatGenerator_RequiresNameAndModel(t *testing.T) {
	_, err := NewChatGenerator(config.GeneratorConfig{Name: "groq"})
	assert.Error(t, err)

	_, err = NewChatGenerator(config.GeneratorConfig{Model: "llama-3.3-70b"})
	assert.Error(t, err)
}

func TestNewChatGenerator_MissingKeyMeansUnavailable(t *testing.T) {
	t.Setenv("BIOSEARCH_TEST_MISSING_KEY", "")

	g, err := NewChatGenerator(config.GeneratorConfig{
		Name:      "groq",
		Model:     "llama-3.3-70b",
		BaseURL:   "https://api.groq.com/openai/v1",
		APIKeyEnv: "BIOSEARCH_TEST_MISSING_KEY",
	})
	require.NoError(t, err)
	assert.False(t, g.Available(context.Background()))
}

func TestNewChatGenerator_LocalEndpointNeedsNoKey(t *testing.T) {
	g, err := NewChatGenerator(config.GeneratorConfig{
		Name:    "ollama",
		Model:   "llama3",
		BaseURL: "http://localhost:11434/v1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())
	assert.True(t, g.Available(context.Background()))
}

func TestNewChain_SkipsBrokenConfigs(t *testing.T) {
	chain := NewChain([]config.GeneratorConfig{
		{Name: "broken"}, // no model
		{Name: "ollama", Model: "llama3", BaseURL: "http://localhost:11434/v1"},
	})

	assert.True(t, chain.Available(context.Background()))
}
