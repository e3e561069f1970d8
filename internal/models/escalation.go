package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type EscalationStatus string

// Escalations move open -> resolved -> promoted and never go back.
const (
	EscalationOpen     EscalationStatus = "open"
	EscalationResolved EscalationStatus = "resolved"
	EscalationPromoted EscalationStatus = "promoted"
)

func (s EscalationStatus) Valid() bool {
	switch s {
	case EscalationOpen, EscalationResolved, EscalationPromoted:
		return true
	}
	return false
}

type Escalation struct {
	ID          int64            `json:"id"`
	SessionID   *uuid.UUID       `json:"session_id"`
	Question    string           `json:"question"`
	BotAnswer   *string          `json:"bot_answer"`
	AdminAnswer *string          `json:"admin_answer"`
	Confidence  float64          `json:"confidence"`
	Status      EscalationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at"`
}

// HasAdminAnswer reports whether a non-blank admin answer is recorded.
func (e *Escalation) HasAdminAnswer() bool {
	return e.AdminAnswer != nil && strings.TrimSpace(*e.AdminAnswer) != ""
}
