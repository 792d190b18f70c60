// Package common defines shared constants and sentinel errors used across
// client and server layers of zelebiz. Callers should use errors.Is to
// match these values.
package common

import (
	"context"
	"errors"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Local persistence failed; the operation was aborted.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// A persisted record could not be decoded.
	ErrSerialization = errors.New("serialization error")

	// Retryable remote failures.
	ErrNetworkTimeout = errors.New("network timeout")
	ErrServerError    = errors.New("server error")

	// Non-retryable remote failures.
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// IsRetryable reports whether err is a transient remote failure that a
// later attempt may succeed on.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNetworkTimeout), errors.Is(err, ErrServerError):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
