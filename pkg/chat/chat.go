// Package chat owns session bookkeeping and the append-only message log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/store"
)

// Sessions is the slice of the store chat needs.
type Sessions interface {
	store.ChatStore
	LatestEscalation(ctx context.Context, sessionID uuid.UUID) (*models.Escalation, error)
}

type Service struct {
	store Sessions
}

func NewService(s Sessions) *Service {
	return &Service{store: s}
}

func (s *Service) NewSession(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id: %w", apperr.ErrEmptyInput)
	}
	return s.store.CreateSession(ctx, userID)
}

// EnsureSession creates the session on first use; a nil id gets a new one.
func (s *Service) EnsureSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return s.store.EnsureSession(ctx, id)
}

func (s *Service) SaveMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string) (*models.ChatMessage, error) {
	switch role {
	case models.RoleUser, models.RoleAssistant, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return s.store.SaveMessage(ctx, sessionID, role, content)
}

// Recent returns the last limit messages, oldest first.
func (s *Service) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	return s.store.RecentMessages(ctx, sessionID, limit)
}

func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	return s.store.ListSessions(ctx, userID)
}

// History is the full transcript plus the status of the newest escalation
// raised from the session, if any.
func (s *Service) History(ctx context.Context, sessionID uuid.UUID) (*models.SessionHistory, error) {
	msgs, err := s.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	h := &models.SessionHistory{SessionID: sessionID, Messages: msgs}
	if h.Messages == nil {
		h.Messages = []models.ChatMessage{}
	}

	esc, err := s.store.LatestEscalation(ctx, sessionID)
	switch {
	case err == nil:
		status := esc.Status
		h.EscalationStatus = &status
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return h, nil
}

// LastExchange returns the newest user question and, when present, the
// newest assistant reply of a session.
func (s *Service) LastExchange(ctx context.Context, sessionID uuid.UUID) (question string, answer *string, err error) {
	user, err := s.store.LastMessage(ctx, sessionID, models.RoleUser)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil, fmt.Errorf("session %s has no question: %w", sessionID, apperr.ErrEmptyInput)
	}
	if err != nil {
		return "", nil, err
	}

	bot, err := s.store.LastMessage(ctx, sessionID, models.RoleAssistant)
	switch {
	case err == nil:
		answer = &bot.Content
	case !errors.Is(err, apperr.ErrNotFound):
		return "", nil, err
	}
	return strings.TrimSpace(user.Content), answer, nil
}
