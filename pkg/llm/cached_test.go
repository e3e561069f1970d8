package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/cache"
	"github.com/xhad/campusconnect/pkg/llm"
	"github.com/xhad/campusconnect/pkg/llm/llmtest"
)

func TestCachedEmbedderHitsCache(t *testing.T) {
	inner := llmtest.NewEmbedder(3).Set("hostel fees", []float32{1, 0, 0})
	cached := llm.NewCachedEmbedder(inner, cache.NewMemoryClient(10), "test-model", time.Hour)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hostel fees")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "  hostel   fees ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.Calls(), 1)
	assert.Equal(t, 3, cached.Dimension())
}

func TestCachedEmbedderBatchOnlyEmbedsMisses(t *testing.T) {
	inner := llmtest.NewEmbedder(3)
	cached := llm.NewCachedEmbedder(inner, cache.NewMemoryClient(10), "m", time.Hour)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "a question")
	require.NoError(t, err)

	out, err := cached.EmbedBatch(ctx, []string{"a question", "another question"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"a question", "another question"}, inner.Calls())
}

func TestCachedEmbedderPassesErrorsThrough(t *testing.T) {
	inner := llmtest.NewEmbedder(3)
	inner.FailAll(errors.New("connection refused"))
	cached := llm.NewCachedEmbedder(inner, cache.NewMemoryClient(10), "m", time.Hour)

	_, err := cached.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	_, err = cached.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
}
