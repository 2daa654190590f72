package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int32
	batchCalls int32
	batchTexts int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.embedCalls, 1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.batchCalls, 1)
	atomic.AddInt32(&c.batchTexts, int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_SecondCallHitsCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hypertension")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "hypertension")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.embedCalls)
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"warm", "cold one", "cold two"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.NotNil(t, v)
	}

	// Only the two cold texts went to the inner embedder.
	assert.Equal(t, int32(2), inner.batchTexts)
}

func TestCachedEmbedder_AllCachedSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, int32(1), inner.batchCalls)

	_, err = cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.batchCalls)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static-hash-v1", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
