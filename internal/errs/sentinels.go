// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinels across repo/service/client layers.
var (
	// ErrInvalidInput indicates a rejected action: empty/oversized body, empty secret, bad vote value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the caller's token hash does not own the subject,
	// or a moderator credential failed verification.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates a posting token outside its period or past expiresAt.
	ErrTokenExpired = errors.New("posting token expired")

	// ErrIssuanceFailed indicates the token issuance endpoint answered non-2xx or garbage.
	ErrIssuanceFailed = errors.New("token issuance failed")

	// ErrTimeout indicates the caller's deadline elapsed before the operation completed.
	ErrTimeout = errors.New("timeout")

	// ErrStorageConflict indicates the storage state changed underneath the call
	// (e.g. concurrent delete of an already-deleted item).
	ErrStorageConflict = errors.New("storage conflict")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates temporary lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., moderator name taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Kind is a coarse classification of an error, stable across transports.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindTokenExpired
	KindIssuanceFailed
	KindTimeout
	KindStorageConflict
	KindNotFound
	KindRateLimited
	KindAlreadyExists
)

var kindNames = [...]string{
	KindInternal:        "internal",
	KindInvalidInput:    "invalid_input",
	KindUnauthorized:    "unauthorized",
	KindTokenExpired:    "token_expired",
	KindIssuanceFailed:  "issuance_failed",
	KindTimeout:         "timeout",
	KindStorageConflict: "storage_conflict",
	KindNotFound:        "not_found",
	KindRateLimited:     "rate_limited",
	KindAlreadyExists:   "already_exists",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindOf classifies err. Context deadline errors count as timeouts.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, ErrIssuanceFailed):
		return KindIssuanceFailed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrStorageConflict):
		return KindStorageConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	default:
		return KindInternal
	}
}

// Retryable reports whether a caller may retry with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindIssuanceFailed, KindTimeout:
		return true
	default:
		return false
	}
}

// FromContext rewrites context deadline errors as ErrTimeout and leaves others untouched.
func FromContext(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
