// Package store persists chat logs, FAQs, documents and escalations, and
// exposes the two similarity indices (FAQ variants, document chunks).
//
// Compound writes that must be atomic are single methods on the interface:
// callers never see a transaction handle. Owned children (FAQ variants,
// document chunks) are deleted explicitly with their parent.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/campusconnect/internal/models"
)

type ChatStore interface {
	CreateSession(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error)
	// EnsureSession returns the session with id, creating it when missing.
	EnsureSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error)
	SaveMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.ChatMessage, error)
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
	Messages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error)
	// LastMessage returns apperr.ErrNotFound when the session has no message with role.
	LastMessage(ctx context.Context, sessionID uuid.UUID, role models.Role) (*models.ChatMessage, error)
}

type FAQStore interface {
	// CreateFAQ inserts the answer and its variants in one transaction.
	CreateFAQ(ctx context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant) (*models.FAQAnswer, error)
	// UpdateFAQ rewrites the answer; with replaceVariants the owned variants
	// are deleted and variants inserted in the same transaction.
	UpdateFAQ(ctx context.Context, faq models.FAQAnswer, variants []models.FAQQuestionVariant, replaceVariants bool) (*models.FAQAnswer, error)
	AddFAQQuestion(ctx context.Context, faqID int64, variant models.FAQQuestionVariant) (*models.FAQQuestionVariant, error)
	GetFAQ(ctx context.Context, id int64) (*models.FAQAnswer, error)
	FindFAQByQuestion(ctx context.Context, canonical string) (*models.FAQAnswer, error)
	ListFAQs(ctx context.Context) ([]models.FAQAnswer, error)
	DeleteFAQ(ctx context.Context, id int64) error
	// SearchFAQ returns up to k variants joined to their answers, nearest first.
	SearchFAQ(ctx context.Context, query []float32, k int) ([]models.FAQMatch, error)
}

type DocumentStore interface {
	// ReplaceDocument creates doc when doc.ID is zero, otherwise updates it,
	// and swaps its whole chunk set for chunks (indices 0..n-1) atomically.
	ReplaceDocument(ctx context.Context, doc models.Document, chunks []models.ChunkInput) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	Chunks(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error)
	// SearchChunks returns up to k chunks with their document title, nearest first.
	SearchChunks(ctx context.Context, query []float32, k int) ([]models.ChunkMatch, error)
}

type EscalationStore interface {
	CreateEscalation(ctx context.Context, e models.Escalation) (*models.Escalation, error)
	GetEscalation(ctx context.Context, id int64) (*models.Escalation, error)
	// ListEscalations filters by status unless status is empty; newest first.
	ListEscalations(ctx context.Context, status models.EscalationStatus) ([]models.Escalation, error)
	LatestEscalation(ctx context.Context, sessionID uuid.UUID) (*models.Escalation, error)
	// ResolveEscalation moves an open escalation to resolved and appends the
	// admin message to its session in one transaction.
	ResolveEscalation(ctx context.Context, id int64, answer string, at time.Time) (*models.Escalation, error)
	// PromoteEscalation re-checks the escalation under lock, creates the FAQ
	// and its single variant, and flips the status, all in one transaction.
	PromoteEscalation(ctx context.Context, id int64, embedding []float32) (*models.FAQAnswer, error)
}

type Store interface {
	ChatStore
	FAQStore
	DocumentStore
	EscalationStore
	Close()
}
