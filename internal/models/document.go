package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is an ingested source. FinalText is the cleaned text every chunk
// is derived from; chunks are never edited on their own.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	FinalText  string    `json:"final_text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentChunk is one embedded window of a document's FinalText.
// ChunkIndex values for a document always form the range 0..n-1.
type DocumentChunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ChunkInput is a chunk waiting to be written. The store assigns ids and
// indices from slice order.
type ChunkInput struct {
	Content   string
	Embedding []float32
}

// ChunkMatch is a document index hit, denormalized with its document title.
type ChunkMatch struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ChunkIndex    int       `json:"chunk_index"`
	Content       string    `json:"content"`
	Distance      float64   `json:"distance"`
}
