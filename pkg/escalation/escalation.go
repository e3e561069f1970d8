// Package escalation runs the admin side of questions the assistant could
// not answer: reply, promote into the FAQ index, or raise one by hand.
package escalation

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
	"github.com/xhad/campusconnect/pkg/store"
)

// Transcript gives access to the last exchange of a session.
type Transcript interface {
	LastExchange(ctx context.Context, sessionID uuid.UUID) (question string, answer *string, err error)
}

type Manager struct {
	store    store.EscalationStore
	chat     Transcript
	embedder types.Embedder
	logger   zerolog.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now for resolution timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(s store.EscalationStore, chat Transcript, embedder types.Embedder, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		chat:     chat,
		embedder: embedder,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Get(ctx context.Context, id int64) (*models.Escalation, error) {
	return m.store.GetEscalation(ctx, id)
}

// List returns escalations newest first. An empty status lists all.
func (m *Manager) List(ctx context.Context, status models.EscalationStatus) ([]models.Escalation, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, apperr.ErrEmptyInput)
	}
	out, err := m.store.ListEscalations(ctx, status)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Escalation{}
	}
	return out, nil
}

// Resolve records the admin answer on an open escalation and appends it to
// the originating session as an admin message.
func (m *Manager) Resolve(ctx context.Context, id int64, answer string) (*models.Escalation, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("admin answer: %w", apperr.ErrMissingAnswer)
	}

	e, err := m.store.ResolveEscalation(ctx, id, answer, m.now().UTC())
	if err != nil {
		return nil, err
	}
	m.logger.Info().Int64("escalation_id", id).Msg("escalation resolved")
	return e, nil
}

// Promote turns a resolved escalation into an FAQ entry whose only variant
// is the original question. The embedding is computed before the store
// re-checks the status under lock, so a provider failure changes nothing.
func (m *Manager) Promote(ctx context.Context, id int64) (*models.FAQAnswer, error) {
	e, err := m.store.GetEscalation(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EscalationResolved {
		return nil, fmt.Errorf("escalation %d is %s: %w", id, e.Status, apperr.ErrInvalidTransition)
	}
	if !e.HasAdminAnswer() {
		return nil, fmt.Errorf("escalation %d: %w", id, apperr.ErrMissingAnswer)
	}

	vector, err := m.embedder.Embed(ctx, e.Question)
	if err != nil {
		return nil, fmt.Errorf("embed escalated question: %w", err)
	}

	faq, err := m.store.PromoteEscalation(ctx, id, vector)
	if err != nil {
		return nil, err
	}
	m.logger.Info().
		Int64("escalation_id", id).
		Int64("faq_id", faq.ID).
		Msg("escalation promoted to faq")
	return faq, nil
}

// CreateManual escalates the newest question of a session on the user's
// request, carrying the newest assistant reply along if there is one.
func (m *Manager) CreateManual(ctx context.Context, sessionID uuid.UUID) (*models.Escalation, error) {
	question, answer, err := m.chat.LastExchange(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	e, err := m.store.CreateEscalation(ctx, models.Escalation{
		SessionID:  &sessionID,
		Question:   question,
		BotAnswer:  answer,
		Confidence: 0,
		Status:     models.EscalationOpen,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().
		Int64("escalation_id", e.ID).
		Str("session", sessionID.String()).
		Msg("manual escalation")
	return e, nil
}
