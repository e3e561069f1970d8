package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  "openai",
		APIKey:    "sk-test",
		Dimension: 1536,
	})
	require.NoError(t, err)
	assert.Equal(t, 1536, emb.Dimension())
	assert.Equal(t, "text-embedding-3-small", emb.Model())

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "bogus", Dimension: 3})
	assert.Error(t, err)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "openai"})
	assert.Error(t, err)
}

func TestEmbedNormalizesInput(t *testing.T) {
	var seen []string
	emb := llm.NewEmbedderFromFunc(llm.EmbedderConfig{Dimension: 2}, func(_ context.Context, texts []string) ([][]float32, error) {
		seen = append(seen, texts...)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	})

	v, err := emb.Embed(context.Background(), "  hostel\r\n\tfees  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, []string{"hostel fees"}, seen)
}

func TestEmbedRejectsBlankBeforeCallingProvider(t *testing.T) {
	called := false
	emb := llm.NewEmbedderFromFunc(llm.EmbedderConfig{Dimension: 2}, func(context.Context, []string) ([][]float32, error) {
		called = true
		return nil, nil
	})

	_, err := emb.Embed(context.Background(), " \n\t ")
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)

	_, err = emb.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
	assert.False(t, called)
}

func TestEmbedProviderFailures(t *testing.T) {
	tests := []struct {
		name string
		fn   llm.EmbedFunc
	}{
		{
			name: "provider error",
			fn: func(context.Context, []string) ([][]float32, error) {
				return nil, errors.New("401 unauthorized")
			},
		},
		{
			name: "wrong count",
			fn: func(context.Context, []string) ([][]float32, error) {
				return [][]float32{}, nil
			},
		},
		{
			name: "wrong dimension",
			fn: func(_ context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1, 2, 3}}, nil
			},
		},
		{
			name: "zero vector",
			fn: func(context.Context, []string) ([][]float32, error) {
				return [][]float32{{0, 0}}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := llm.NewEmbedderFromFunc(llm.EmbedderConfig{Dimension: 2}, tt.fn)
			_, err := emb.Embed(context.Background(), "question")
			assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
		})
	}
}

func TestEmbedReturnsUnitVectors(t *testing.T) {
	raw := [][]float32{{3, 4}, {0, -2}}
	emb := llm.NewEmbedderFromFunc(llm.EmbedderConfig{Dimension: 2}, func(_ context.Context, texts []string) ([][]float32, error) {
		return raw[:len(texts)], nil
	})

	vectors, err := emb.EmbedBatch(context.Background(), []string{"hostel fees", "library hours"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vectors[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, -1}, vectors[1], 1e-6)
	assert.Equal(t, []float32{3, 4}, raw[0], "provider output is not modified in place")
}
