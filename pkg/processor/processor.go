package processor

import (
	"strings"
)

const (
	DefaultChunkSize     = 500
	DefaultChunkOverlap  = 50
	DefaultMinChunkChars = 40
)

type ProcessorConfig struct {
	ChunkSize     int // tokens per window
	ChunkOverlap  int // tokens shared by consecutive windows
	MinChunkChars int // chunks shorter than this are dropped
}

type Processor struct {
	config ProcessorConfig
}

// NewWithConfig fills zero fields with the defaults. ChunkOverlap is only
// defaulted together with ChunkSize, so an explicit window may use zero
// overlap.
func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if config.MinChunkChars == 0 {
		config.MinChunkChars = DefaultMinChunkChars
	}

	return Processor{
		config: config,
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}

// Clean normalizes line endings and collapses every whitespace run to a
// single space.
func (p Processor) Clean(text string) string {
	return Clean(text)
}

func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// Fields splits on newlines too, so this also folds line breaks into spaces.
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits text on whitespace into windows of ChunkSize tokens, each
// starting ChunkSize-ChunkOverlap tokens after the previous one, then drops
// windows shorter than MinChunkChars characters.
func (p Processor) Chunk(text string) []string {
	windows := splitIntoWindows(strings.Fields(text), p.config.ChunkSize, p.config.ChunkOverlap)

	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		if len([]rune(w)) < p.config.MinChunkChars {
			continue
		}
		chunks = append(chunks, w)
	}
	return chunks
}

// Split is Clean followed by Chunk.
func (p Processor) Split(text string) (string, []string) {
	clean := p.Clean(text)
	return clean, p.Chunk(clean)
}

func splitIntoWindows(tokens []string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}

	var windows []string
	start := 0
	for start < len(tokens) {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, strings.Join(tokens[start:end], " "))

		if end == len(tokens) {
			break
		}

		next := start + size - overlap
		if next <= start {
			// overlap >= size would never advance
			break
		}
		start = next
	}
	return windows
}

// Reassemble joins windows produced with the given overlap back into the
// original token sequence by dropping the leading overlap of every window
// after the first.
func Reassemble(chunks []string, overlap int) []string {
	var tokens []string
	for i, c := range chunks {
		words := strings.Fields(c)
		if i > 0 {
			skip := overlap
			if skip > len(words) {
				skip = len(words)
			}
			words = words[skip:]
		}
		tokens = append(tokens, words...)
	}
	return tokens
}
