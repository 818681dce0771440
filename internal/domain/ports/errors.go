package ports

import (
	"context"
	"errors"
)

// Failure kinds reported by external collaborators.
var (
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrSearchTimeout        = errors.New("search timeout")
	ErrSearchUnavailable    = errors.New("search unavailable")
	ErrRateLimited          = errors.New("completion rate limited")
	ErrCompletionTimeout    = errors.New("completion timeout")
	ErrInvalidResponse      = errors.New("invalid completion response")
	ErrDocumentNotFound     = errors.New("document not found")
)

// IsTimeout reports whether err is any kind of deadline failure.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrSearchTimeout) ||
		errors.Is(err, ErrCompletionTimeout)
}
