package types

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// Embedder turns text into a fixed-length vector. Implementations reject
// blank input with apperr.ErrEmptyInput and mark provider failures with
// apperr.ErrUpstreamUnavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// LanguageDetector is best effort and never fails; it returns a fallback
// code when it cannot decide.
type LanguageDetector interface {
	Detect(text string) string
}

// Chunker cleans text and splits it into overlapping windows.
type Chunker interface {
	Split(text string) (clean string, chunks []string)
}
