package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

type ChatSession struct {
	ID        uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is an entry in a session's append-only log. Messages are
// ordered by CreatedAt, then by ID (insertion order).
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is a session listing row.
type SessionSummary struct {
	SessionID     uuid.UUID `json:"session_id"`
	FirstQuestion *string   `json:"first_question"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionHistory is a full session transcript plus the status of the most
// recent escalation raised from it.
type SessionHistory struct {
	SessionID        uuid.UUID         `json:"session_id"`
	Messages         []ChatMessage     `json:"messages"`
	EscalationStatus *EscalationStatus `json:"escalation_status"`
}
