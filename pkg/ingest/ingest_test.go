package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/extract"
	"github.com/xhad/campusconnect/pkg/ingest"
	"github.com/xhad/campusconnect/pkg/llm/llmtest"
	"github.com/xhad/campusconnect/pkg/processor"
	"github.com/xhad/campusconnect/pkg/store"
)

const rules = "Hostel gates close at ten pm.\r\nVisitors must sign in at the front desk.\n\nQuiet hours run until six am."

func newManager() (*ingest.Manager, *store.Memory, *llmtest.Embedder) {
	st := store.NewMemory()
	emb := llmtest.NewEmbedder(3)
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 8, ChunkOverlap: 2, MinChunkChars: 10})
	return ingest.NewManager(st, emb, ingest.WithChunker(p), ingest.WithBatchSize(2)), st, emb
}

func TestIngestCreatesDocument(t *testing.T) {
	m, st, emb := newManager()
	ctx := context.Background()

	res, err := m.Ingest(ctx, nil, extract.RawContent{Filename: "hostel.txt", Data: []byte(rules)})
	require.NoError(t, err)
	assert.Equal(t, "hostel.txt", res.Title)
	assert.Equal(t, "txt", res.SourceType)
	assert.Equal(t, 3, res.ChunkCount)

	doc, err := st.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Hostel gates close at ten pm. Visitors must sign in at the front desk. Quiet hours run until six am.", doc.FinalText)

	chunks, err := st.Chunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
	assert.Equal(t, processor.Reassemble([]string{chunks[0].Content, chunks[1].Content, chunks[2].Content}, 2),
		processor.Reassemble([]string{doc.FinalText}, 0))
	assert.Len(t, emb.Calls(), 3)
}

func TestIngestReplacesChunkSet(t *testing.T) {
	m, st, _ := newManager()
	ctx := context.Background()

	first, err := m.Ingest(ctx, nil, extract.RawContent{Filename: "hostel.txt", Data: []byte(rules)})
	require.NoError(t, err)

	id := first.DocumentID
	second, err := m.Ingest(ctx, &id, extract.RawContent{
		Filename: "hostel-v2.txt",
		Data:     []byte("Hostel gates now close at eleven pm every night."),
	}, ingest.WithTitle("Hostel rules"))
	require.NoError(t, err)
	assert.Equal(t, id, second.DocumentID)
	assert.Equal(t, "Hostel rules", second.Title)
	assert.Equal(t, 2, second.ChunkCount)

	chunks, err := st.Chunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hostel gates now close at eleven pm every", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)

	docs, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestFailedReindexKeepsPreviousState(t *testing.T) {
	m, st, emb := newManager()
	ctx := context.Background()

	res, err := m.Ingest(ctx, nil, extract.RawContent{Filename: "hostel.txt", Data: []byte(rules)})
	require.NoError(t, err)
	before, err := st.Chunks(ctx, res.DocumentID)
	require.NoError(t, err)

	boom := errors.New("quota exceeded")
	emb.FailAll(boom)

	_, err = m.UpdateText(ctx, res.DocumentID, "", "Completely different text about library opening hours and rules.")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrReindexFailed)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, boom)

	after, err := st.Chunks(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	doc, err := st.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Contains(t, doc.FinalText, "Hostel gates")
}

func TestIngestRejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     extract.RawContent
		wantErr error
	}{
		{"empty text", extract.RawContent{Filename: "blank.txt", Data: []byte(" \r\n\t ")}, apperr.ErrEmptyDocument},
		{"unsupported", extract.RawContent{Filename: "scan.pdf", Data: []byte("%PDF-1.4")}, apperr.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, st, emb := newManager()
			ctx := context.Background()

			_, err := m.Ingest(ctx, nil, tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, emb.Calls())

			docs, err := st.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestUnknownDocument(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()
	id := uuid.New()

	_, err := m.Ingest(ctx, &id, extract.RawContent{Filename: "a.txt", Data: []byte(rules)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.UpdateText(ctx, id, "", rules)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, m.Delete(ctx, id), apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	m, st, _ := newManager()
	ctx := context.Background()

	res, err := m.Ingest(ctx, nil, extract.RawContent{Filename: "hostel.txt", Data: []byte(rules)})
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, res.DocumentID))

	hits, err := st.SearchChunks(ctx, llmtest.HashVector("anything", 3), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
