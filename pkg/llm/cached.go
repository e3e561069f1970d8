package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/xhad/campusconnect/internal/types"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/cache"
)

// CachedEmbedder keeps vectors keyed by model and normalized text. Cache
// failures are logged and never fail an embedding.
type CachedEmbedder struct {
	inner  types.Embedder
	cache  cache.Client
	ttl    time.Duration
	model  string
	logger zerolog.Logger
}

type CacheOption func(*CachedEmbedder)

func WithCacheLogger(l zerolog.Logger) CacheOption {
	return func(c *CachedEmbedder) { c.logger = l }
}

func NewCachedEmbedder(inner types.Embedder, client cache.Client, model string, ttl time.Duration, opts ...CacheOption) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:  inner,
		cache:  client,
		ttl:    ttl,
		model:  model,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		norm := NormalizeInput(t)
		if norm == "" {
			return nil, fmt.Errorf("embed item %d: %w", i, apperr.ErrEmptyInput)
		}
		keys[i] = c.key(norm)

		data, err := c.cache.Get(ctx, keys[i])
		if err == nil {
			if v, ok := decodeVector(data, c.inner.Dimension()); ok {
				out[i] = v
				continue
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("embedding cache read failed")
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, norm)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		if err := c.cache.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache write failed")
		}
	}

	return out, nil
}

func (c *CachedEmbedder) key(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	n := len(data) / 4
	if dim > 0 && n != dim {
		return nil, false
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, true
}
