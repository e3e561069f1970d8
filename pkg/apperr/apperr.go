// Package apperr defines the error taxonomy shared by the answer pipeline,
// escalation lifecycle and ingestion. Callers test with errors.Is; only the
// transport layer turns these into status codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream model provider unavailable")
	ErrEmptyInput          = errors.New("empty input")
	ErrEmptyDocument       = errors.New("empty document")
	ErrInvalidTransition   = errors.New("invalid escalation transition")
	ErrMissingAnswer       = errors.New("escalation has no admin answer")
	ErrDuplicateFAQ        = errors.New("faq with this canonical question already exists")
	ErrDuplicateQuestion   = errors.New("question already exists for this faq")
	ErrReindexFailed       = errors.New("reindex did not take effect")
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedFormat   = errors.New("unsupported document format")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// Upstream marks err as a provider failure. Both ErrUpstreamUnavailable and
// the original cause stay reachable through errors.Is / errors.As.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// Reindex wraps a failure during chunk replacement.
func Reindex(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrReindexFailed, err)
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps an error from the core to a transport status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyInput),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrMissingAnswer),
		errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateFAQ),
		errors.Is(err, ErrDuplicateQuestion):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrReindexFailed):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
