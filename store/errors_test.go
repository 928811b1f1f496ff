package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	unique := &Error{Kind: KindUniqueViolation, Constraint: ConstraintLikePair, Err: errors.New("dup")}
	wrapped := fmt.Errorf("insert like: %w", unique)

	assert.Equal(t, KindUniqueViolation, KindOf(wrapped))
	assert.True(t, IsUniqueViolation(wrapped))
	assert.Equal(t, ConstraintLikePair, ConstraintOf(wrapped))
	assert.False(t, IsNotFound(wrapped))

	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, "", ConstraintOf(errors.New("boom")))
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("participant 7"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.Contains(t, err.Error(), "participant 7")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unique_violation", KindUniqueViolation.String())
	assert.Equal(t, "connection_failure", KindConnectionFailure.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestNotFoundOnCarriesConstraint(t *testing.T) {
	err := fmt.Errorf("add like: %w", NotFoundOn(ConstraintLiker, "liker c-1"))

	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, ConstraintLiker, ConstraintOf(err))
}
