package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/processor"
)

// EmbedFunc is the raw provider call: one vector per input, same order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbedderConfig represents the configuration for an embedding provider.
type EmbedderConfig struct {
	Provider  string // openai or ollama
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
}

// Embedder normalizes input, calls the provider and checks the returned
// vectors against the configured dimension.
type Embedder struct {
	config EmbedderConfig
	embed  EmbedFunc
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	var fn EmbedFunc
	switch config.Provider {
	case "openai":
		if config.Model == "" {
			config.Model = string(goopenai.SmallEmbedding3)
		}
		fn = openAIEmbedFunc(config)
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		fn = emb.CreateEmbedding
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return &Embedder{config: config, embed: fn}, nil
}

// NewEmbedderFromFunc builds an Embedder over an arbitrary provider call.
func NewEmbedderFromFunc(config EmbedderConfig, fn EmbedFunc) *Embedder {
	return &Embedder{config: config, embed: fn}
}

func openAIEmbedFunc(config EmbedderConfig) EmbedFunc {
	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	client := goopenai.NewClientWithConfig(clientConfig)
	model := goopenai.EmbeddingModel(config.Model)

	return func(ctx context.Context, texts []string) ([][]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input: texts,
			Model: model,
		})
		if err != nil {
			return nil, err
		}

		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	}
}

func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

func (e *Embedder) Model() string {
	return e.config.Model
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one provider call. A blank entry fails the
// whole batch with ErrEmptyInput before the provider is contacted.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = NormalizeInput(t)
		if inputs[i] == "" {
			return nil, fmt.Errorf("embed item %d: %w", i, apperr.ErrEmptyInput)
		}
	}

	vectors, err := e.embed(ctx, inputs)
	if err != nil {
		return nil, apperr.Upstream("embed", err)
	}
	if len(vectors) != len(inputs) {
		return nil, apperr.Upstream("embed", fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(inputs)))
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if e.config.Dimension > 0 && len(v) != e.config.Dimension {
			return nil, apperr.Upstream("embed", fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), e.config.Dimension))
		}
		unit, ok := normalize(v)
		if !ok {
			return nil, apperr.Upstream("embed", fmt.Errorf("vector %d has zero norm", i))
		}
		out[i] = unit
	}

	return out, nil
}

// normalize scales v to unit length, which the distance thresholds assume.
// It reports false for a zero vector.
func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// NormalizeInput is applied to every text before embedding so equal
// questions map to equal vectors (and equal cache keys).
func NormalizeInput(text string) string {
	return strings.TrimSpace(processor.Clean(text))
}
