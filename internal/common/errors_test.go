package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Unauthorized("invalid credentials")

	assert.ErrorIs(t, err, ErrorUnauthorized)
	assert.NotErrorIs(t, err, ErrorForbidden)
	assert.Equal(t, "invalid credentials", err.Error())
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("login: %w", Conflict("username already taken"))

	assert.ErrorIs(t, err, ErrorConflict)
	assert.Equal(t, ErrorConflict, KindOf(err))
	assert.Equal(t, "username already taken", PublicMessage(err))
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	assert.ErrorIs(t, err, ErrorInternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", err.Error())
	assert.Equal(t, "internal server error", PublicMessage(err))
}

func TestWithCause(t *testing.T) {
	cause := errors.New("smtp down")
	err := WithCause(BadRequest("failed to process password reset"), cause)

	assert.ErrorIs(t, err, ErrorBadRequest)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to process password reset", PublicMessage(err))

	plain := errors.New("plain")
	assert.Same(t, plain, WithCause(plain, cause))
}

func TestKindOf_UnknownIsInternal(t *testing.T) {
	assert.Equal(t, ErrorInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("boom")))
}

func TestError_MessageFallsBackToKind(t *testing.T) {
	err := &Error{Kind: ErrorNotFound}
	assert.Equal(t, "not found", err.Error())
}

func TestKindOf_InternalWrappingNotFound(t *testing.T) {
	err := Internal(fmt.Errorf("lookup: %w", ErrorNotFound))
	assert.Equal(t, ErrorInternal, KindOf(err))
	assert.Equal(t, ErrorNotFound, KindOf(fmt.Errorf("db: %w", ErrorNotFound)))
}
