package skill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	// Given: a cached fake
	inner := newFakeEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: embedding the same text twice
	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	// Then: the inner embedder ran once
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.callCount())
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchOnlySendsMisses(t *testing.T) {
	inner := newFakeEmbedder(4)
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	_, err := c.Embed(ctx, "b")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "b", "ccc"})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, float32(3), out[2][0], "results keep input order")
	assert.Equal(t, []string{"b", "a", "ccc"}, inner.texts)
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newFakeEmbedder(4)
	inner.err = errBoom
	c := NewCachedEmbedder(inner, 0)

	_, err := c.Embed(context.Background(), "x")

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	c := NewCachedEmbedder(newFakeEmbedder(8), 1)

	assert.Equal(t, 8, c.Dimensions())
	assert.Equal(t, "fake", c.ModelName())
}
