package types

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds, not a class hierarchy: each kind carries exactly the fields
// its HTTP mapping needs. Handlers use errors.As to pick the status code.

// ValidationError rejects a malformed request field. Maps to 422.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError signals a missing entity. Maps to 404.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ConflictError signals a content-hash dedup collision on create. Maps to
// 409 and carries the id of the surviving row.
type ConflictError struct {
	ExistingID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate content collapses to existing memory %d", e.ExistingID)
}

// GateRefusedError is a rate-limit or quota refusal. Maps to 429 with a
// Retry-After hint when one is available.
type GateRefusedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *GateRefusedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("gate refused: %s (retry after %s)", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("gate refused: %s", e.Reason)
}

// RetryAfterSeconds returns the hint rounded up to whole seconds.
func (e *GateRefusedError) RetryAfterSeconds() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int64(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// UnavailableError wraps a persistence-layer failure. Maps to 503.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// AuthError signals missing credentials (401) or a cross-tenant access
// attempt (403 when Forbidden is set).
type AuthError struct {
	Forbidden bool
	Reason    string
}

func (e *AuthError) Error() string { return e.Reason }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
