// Package llmtest provides deterministic stand-ins for the embedding and
// generation providers.
package llmtest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/llm"
)

// Embedder returns registered vectors for known texts and a unit-length
// hash vector for anything else. Texts are matched after llm.NormalizeInput.
type Embedder struct {
	Dim int

	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]error
	err     error
	calls   []string
}

func NewEmbedder(dim int) *Embedder {
	return &Embedder{
		Dim:     dim,
		vectors: make(map[string][]float32),
		fail:    make(map[string]error),
	}
}

// Set pins the vector returned for text.
func (e *Embedder) Set(text string, v []float32) *Embedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[llm.NormalizeInput(text)] = v
	return e
}

// FailOn makes any batch containing text fail with an upstream error.
func (e *Embedder) FailOn(text string, err error) *Embedder {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[llm.NormalizeInput(text)] = err
	return e
}

// FailAll makes every call fail with an upstream error; nil clears it.
func (e *Embedder) FailAll(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns every text embedded so far.
func (e *Embedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Embedder) Dimension() int { return e.Dim }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	fn := func(_ context.Context, inputs []string) ([][]float32, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.err != nil {
			return nil, e.err
		}
		out := make([][]float32, len(inputs))
		for i, t := range inputs {
			if err, ok := e.fail[t]; ok {
				return nil, err
			}
			e.calls = append(e.calls, t)
			if v, ok := e.vectors[t]; ok {
				out[i] = append([]float32(nil), v...)
				continue
			}
			out[i] = HashVector(t, e.Dim)
		}
		return out, nil
	}

	// Going through llm.Embedder keeps blank-input and error wrapping
	// identical to the real gateway.
	return llm.NewEmbedderFromFunc(llm.EmbedderConfig{Dimension: e.Dim}, fn).EmbedBatch(ctx, texts)
}

// HashVector derives a unit vector from the sha256 of text.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", i, text)))
		x := float64(binary.LittleEndian.Uint32(sum[:4]))/float64(math.MaxUint32)*2 - 1
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Generator replies with a fixed answer and records every prompt.
type Generator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]llms.MessageContent
}

func NewGenerator(reply string) *Generator {
	return &Generator{reply: reply}
}

// Fail makes the next calls return an upstream error wrapping err.
func (g *Generator) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *Generator) Generate(_ context.Context, messages []llms.MessageContent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, messages)
	if g.err != nil {
		return "", apperr.Upstream("generate", g.err)
	}
	return g.reply, nil
}

func (g *Generator) Prompts() [][]llms.MessageContent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]llms.MessageContent(nil), g.prompts...)
}
