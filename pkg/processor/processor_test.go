package processor_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/campusconnect/pkg/processor"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("token%03d", i)
	}
	return strings.Join(w, " ")
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "Hostel fees\r\nare due\rin July", "Hostel fees are due in July"},
		{"blank lines", "line one\n\n\nline two", "line one line two"},
		{"tabs and spaces", "  a\t\tb    c  ", "a b c"},
		{"only whitespace", " \n\t\r\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, processor.Clean(tt.in))
		})
	}
}

func TestChunkWindows(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:     10,
		ChunkOverlap:  3,
		MinChunkChars: 1,
	})

	chunks := p.Chunk(words(24))

	// starts at 0, 7, 14; the third window reaches the last token
	require.Len(t, chunks, 3)
	assert.True(t, strings.HasPrefix(chunks[0], "token000"))
	assert.True(t, strings.HasPrefix(chunks[1], "token007"))
	assert.True(t, strings.HasPrefix(chunks[2], "token014"))
	assert.True(t, strings.HasSuffix(chunks[2], "token023"))
	assert.Len(t, strings.Fields(chunks[0]), 10)
}

func TestChunkStopsWhenTokensConsumed(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 3, MinChunkChars: 1})

	// exactly one window: no trailing window made only of overlap
	chunks := p.Chunk(words(10))
	assert.Len(t, chunks, 1)
}

func TestChunkNonAdvancingOverlap(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5, ChunkOverlap: 5, MinChunkChars: 1})

	chunks := p.Chunk(words(20))
	assert.Len(t, chunks, 1)

	p = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5, ChunkOverlap: 9, MinChunkChars: 1})
	assert.Len(t, p.Chunk(words(20)), 1)
}

func TestChunkDropsShortChunks(t *testing.T) {
	p := processor.New()

	assert.Empty(t, p.Chunk("too short"))
	assert.Empty(t, p.Chunk(""))

	long := "The hostel fee for the academic year is payable in two instalments."
	assert.Equal(t, []string{long}, p.Chunk(long))
}

func TestChunkReassemblesTokens(t *testing.T) {
	sizes := []int{5, 9, 10, 11, 450, 500, 501, 949, 950, 951, 1777}
	p := processor.New()
	cfg := p.Config()

	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d tokens", n), func(t *testing.T) {
			text := words(n)
			chunks := p.Chunk(text)
			require.NotEmpty(t, chunks)
			assert.Equal(t, strings.Fields(text), processor.Reassemble(chunks, cfg.ChunkOverlap))
		})
	}
}

func TestSplit(t *testing.T) {
	p := processor.New()
	clean, chunks := p.Split("Admissions open\r\n\r\nin   June for all undergraduate programmes.")

	assert.Equal(t, "Admissions open in June for all undergraduate programmes.", clean)
	assert.Equal(t, []string{clean}, chunks)
}

func TestDefaults(t *testing.T) {
	cfg := processor.New().Config()
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 40, cfg.MinChunkChars)
}

func TestZeroOverlapIsKept(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 3, ChunkOverlap: 0, MinChunkChars: 1})
	assert.Equal(t, 0, p.Config().ChunkOverlap)

	chunks := p.Chunk("one two three four five six seven")
	assert.Equal(t, []string{"one two three", "four five six", "seven"}, chunks)
}
