package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class buckets failures by how the caller should react.
type Class int

const (
	// ClassTransient failures (network hiccup, 5xx) are retried with backoff.
	ClassTransient Class = iota
	// ClassQuota failures (rate limit, oracle quota) are never retried and
	// surface as "unavailable" rather than fatal.
	ClassQuota
	// ClassValidation failures are rejected before any side effect.
	ClassValidation
	// ClassAuth failures escalate the worker to its error state immediately.
	ClassAuth
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassQuota:
		return "quota"
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

type classified struct {
	class Class
	err   error
}

func (e *classified) Error() string { return fmt.Sprintf("%s: %v", e.class, e.err) }
func (e *classified) Unwrap() error { return e.err }

// Quota marks err as a quota/rate-limit failure.
func Quota(err error) error { return &classified{class: ClassQuota, err: err} }

// Validation marks err as a pre-side-effect validation failure.
func Validation(err error) error { return &classified{class: ClassValidation, err: err} }

// Auth marks err as an authentication failure.
func Auth(err error) error { return &classified{class: ClassAuth, err: err} }

// Transient marks err as retryable.
func Transient(err error) error { return &classified{class: ClassTransient, err: err} }

// Classify returns the failure class of err. Unmarked errors default to
// transient, except context cancellation which is never retried.
func Classify(err error) Class {
	var ce *classified
	if errors.As(err, &ce) {
		return ce.class
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	return ClassTransient
}

// Retryable reports whether err should be retried at all.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Classify(err) == ClassTransient
}
