package chat_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/apperr"
	"github.com/xhad/campusconnect/pkg/chat"
	"github.com/xhad/campusconnect/pkg/store"
)

func TestHistory(t *testing.T) {
	st := store.NewMemory()
	svc := chat.NewService(st)
	ctx := context.Background()

	sess, err := svc.NewSession(ctx, uuid.New())
	require.NoError(t, err)

	h, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
	assert.NotNil(t, h.Messages)
	assert.Nil(t, h.EscalationStatus)

	_, err = svc.SaveMessage(ctx, sess.ID, models.RoleUser, "Is there a gym?")
	require.NoError(t, err)
	_, err = svc.SaveMessage(ctx, sess.ID, models.RoleAssistant, "forwarded")
	require.NoError(t, err)
	_, err = st.CreateEscalation(ctx, models.Escalation{SessionID: &sess.ID, Question: "Is there a gym?"})
	require.NoError(t, err)

	h, err = svc.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, models.RoleUser, h.Messages[0].Role)
	require.NotNil(t, h.EscalationStatus)
	assert.Equal(t, models.EscalationOpen, *h.EscalationStatus)
}

func TestNewSessionRequiresUser(t *testing.T) {
	svc := chat.NewService(store.NewMemory())
	_, err := svc.NewSession(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
}

func TestEnsureSession(t *testing.T) {
	svc := chat.NewService(store.NewMemory())
	ctx := context.Background()

	s, err := svc.EnsureSession(ctx, uuid.Nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID)

	again, err := svc.EnsureSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
}

func TestSaveMessageRejectsUnknownRole(t *testing.T) {
	svc := chat.NewService(store.NewMemory())
	ctx := context.Background()
	s, err := svc.EnsureSession(ctx, uuid.New())
	require.NoError(t, err)

	_, err = svc.SaveMessage(ctx, s.ID, models.Role("bot"), "x")
	assert.Error(t, err)
}

func TestLastExchange(t *testing.T) {
	svc := chat.NewService(store.NewMemory())
	ctx := context.Background()
	s, err := svc.EnsureSession(ctx, uuid.New())
	require.NoError(t, err)

	_, _, err = svc.LastExchange(ctx, s.ID)
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)

	_, err = svc.SaveMessage(ctx, s.ID, models.RoleUser, "first")
	require.NoError(t, err)
	q, a, err := svc.LastExchange(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", q)
	assert.Nil(t, a)

	_, err = svc.SaveMessage(ctx, s.ID, models.RoleAssistant, "reply")
	require.NoError(t, err)
	_, err = svc.SaveMessage(ctx, s.ID, models.RoleUser, "second")
	require.NoError(t, err)

	q, a, err = svc.LastExchange(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", q)
	require.NotNil(t, a)
	assert.Equal(t, "reply", *a)
}
