package models

import "github.com/google/uuid"

type Source string

const (
	SourceFAQ        Source = "faq"
	SourceDocuments  Source = "documents+llm"
	SourceEscalation Source = "escalation"
)

// AnswerResult is what the answer pipeline returns for one question.
type AnswerResult struct {
	SessionID    uuid.UUID `json:"session_id"`
	Answer       string    `json:"answer"`
	Source       Source    `json:"source"`
	Confidence   float64   `json:"confidence"`
	Escalated    bool      `json:"escalated"`
	EscalationID *int64    `json:"escalation_id,omitempty"`
	Language     string    `json:"language,omitempty"`
}
