// Package ingest turns uploaded files into documents and keeps each
// document's chunk set in step with its text.
//
// A document is re-indexed as a whole: its chunks are embedded first and
// then swapped in by one store call, so readers see either the old set or
// the new one.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/internal/types"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/extract"
	"github.com/xhad/campusconnect/pkg/processor"
	"github.com/xhad/campusconnect/pkg/store"
)

type Result struct {
	DocumentID uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	ChunkCount int       `json:"chunks"`
}

type Manager struct {
	store     store.DocumentStore
	extractor *extract.Extractor
	chunker   types.Chunker
	embedder  types.Embedder
	batchSize int
	logger    zerolog.Logger
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithChunker(c types.Chunker) Option {
	return func(m *Manager) { m.chunker = c }
}

func WithExtractor(e *extract.Extractor) Option {
	return func(m *Manager) { m.extractor = e }
}

// WithBatchSize bounds how many chunks go to the embedding provider per call.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func NewManager(s store.DocumentStore, embedder types.Embedder, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		extractor: extract.New(),
		chunker:   processor.New(),
		embedder:  embedder,
		batchSize: 64,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IngestOption adjusts a single Ingest call.
type IngestOption func(*models.Document)

// WithTitle overrides the document title, which defaults to the file name.
func WithTitle(title string) IngestOption {
	return func(d *models.Document) {
		if t := strings.TrimSpace(title); t != "" {
			d.Title = t
		}
	}
}

// Ingest extracts raw and indexes it. With a nil documentID a new document
// is created; otherwise that document's text and chunks are replaced.
func (m *Manager) Ingest(ctx context.Context, documentID *uuid.UUID, raw extract.RawContent, opts ...IngestOption) (*Result, error) {
	text, sourceType, err := m.extractor.Extract(ctx, raw)
	if err != nil {
		return nil, err
	}

	doc := models.Document{Title: raw.Filename, SourceType: sourceType}
	if documentID != nil {
		current, err := m.store.GetDocument(ctx, *documentID)
		if err != nil {
			return nil, err
		}
		doc = *current
		doc.SourceType = sourceType
	}
	for _, opt := range opts {
		opt(&doc)
	}
	return m.index(ctx, doc, text)
}

// UpdateText replaces the text of an existing document and re-indexes it.
// An empty title keeps the current one.
func (m *Manager) UpdateText(ctx context.Context, id uuid.UUID, title, text string) (*Result, error) {
	current, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := *current
	if t := strings.TrimSpace(title); t != "" {
		doc.Title = t
	}
	return m.index(ctx, doc, text)
}

func (m *Manager) index(ctx context.Context, doc models.Document, text string) (*Result, error) {
	start := time.Now()

	clean, chunks := m.chunker.Split(text)
	if clean == "" {
		return nil, fmt.Errorf("%q: %w", doc.Title, apperr.ErrEmptyDocument)
	}
	doc.FinalText = clean

	inputs, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return nil, apperr.Reindex(err)
	}

	saved, err := m.store.ReplaceDocument(ctx, doc, inputs)
	if err != nil {
		return nil, apperr.Reindex(err)
	}

	m.logger.Info().
		Str("document", saved.ID.String()).
		Str("title", saved.Title).
		Int("chunks", len(inputs)).
		Dur("duration", time.Since(start)).
		Msg("document indexed")

	return &Result{
		DocumentID: saved.ID,
		Title:      saved.Title,
		SourceType: saved.SourceType,
		ChunkCount: len(inputs),
	}, nil
}

func (m *Manager) embedChunks(ctx context.Context, chunks []string) ([]models.ChunkInput, error) {
	inputs := make([]models.ChunkInput, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.batchSize {
		end := start + m.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		vectors, err := m.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		for i, v := range vectors {
			inputs = append(inputs, models.ChunkInput{Content: chunks[start+i], Embedding: v})
		}
	}
	return inputs, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return m.store.GetDocument(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]models.Document, error) {
	docs, err := m.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	m.logger.Info().Str("document", id.String()).Msg("document deleted")
	return nil
}

// Supports reports whether filename has a registered extractor.
func (m *Manager) Supports(filename string) bool {
	return m.extractor.Supports(filename)
}
