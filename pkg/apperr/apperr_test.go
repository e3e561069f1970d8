package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/campusconnect/pkg/apperr"
)

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := apperr.Upstream("embed", cause)

	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "embed")
	assert.True(t, apperr.Retryable(err))

	// wrapping twice does not stack the sentinel
	again := apperr.Upstream("pipeline", err)
	assert.Equal(t, err, again)

	assert.NoError(t, apperr.Upstream("noop", nil))
}

func TestReindexWrapsCause(t *testing.T) {
	cause := apperr.Upstream("embed chunk 3", errors.New("timeout"))
	err := apperr.Reindex(cause)

	assert.ErrorIs(t, err, apperr.ErrReindexFailed)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"empty input", fmt.Errorf("question: %w", apperr.ErrEmptyInput), http.StatusBadRequest},
		{"empty document", apperr.ErrEmptyDocument, http.StatusBadRequest},
		{"missing answer", apperr.ErrMissingAnswer, http.StatusBadRequest},
		{"unsupported format", apperr.ErrUnsupportedFormat, http.StatusBadRequest},
		{"not found", apperr.ErrNotFound, http.StatusNotFound},
		{"invalid transition", apperr.ErrInvalidTransition, http.StatusConflict},
		{"duplicate faq", apperr.ErrDuplicateFAQ, http.StatusConflict},
		{"duplicate question", apperr.ErrDuplicateQuestion, http.StatusConflict},
		{"rate limited", apperr.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream", apperr.Upstream("generate", errors.New("502")), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}
