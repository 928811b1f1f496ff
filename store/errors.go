package store

import (
	"errors"
	"fmt"
)

// Kind classifies a storage failure independently of the engine that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindUniqueViolation
	KindNotFound
	KindForeignKeyViolation
	KindConnectionFailure
)

func (k Kind) String() string {
	switch k {
	case KindUniqueViolation:
		return "unique_violation"
	case KindNotFound:
		return "not_found"
	case KindForeignKeyViolation:
		return "foreign_key_violation"
	case KindConnectionFailure:
		return "connection_failure"
	default:
		return "unknown"
	}
}

// Constraint names shared by every backend.
const (
	ConstraintSessionToken = "session_token"
	ConstraintClientID     = "client_id"
	ConstraintLikePair     = "like_pair"
	ConstraintLikedTarget  = "liked_participant"
	ConstraintLiker        = "liker"
)

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("record not found")

// Error is a classified storage error.
type Error struct {
	Kind       Kind
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("store %s (%s): %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match classified not-found errors.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// NotFound builds a classified not-found error.
func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf("%s: %w", what, ErrNotFound)}
}

// NotFoundOn builds a not-found error naming the reference that was missing.
func NotFoundOn(constraint, what string) error {
	return &Error{Kind: KindNotFound, Constraint: constraint, Err: fmt.Errorf("%s: %w", what, ErrNotFound)}
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

// ConstraintOf returns the violated constraint recorded on err, if any.
func ConstraintOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Constraint
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return KindOf(err) == KindUniqueViolation
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsForeignKeyViolation(err error) bool {
	return KindOf(err) == KindForeignKeyViolation
}

func IsConnectionFailure(err error) bool {
	return KindOf(err) == KindConnectionFailure
}
