package shared_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditstudy/internal/shared"
)

// timeoutError satisfies net.Error with Timeout() == true
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return false }

type resetError struct{}

func (e *resetError) Error() string   { return "connection reset" }
func (e *resetError) Timeout() bool   { return false }
func (e *resetError) Temporary() bool { return true }

func TestWrap(t *testing.T) {
	base := errors.New("original")

	assert.Nil(t, shared.Wrap(nil, "ctx"))
	assert.Same(t, base, shared.Wrap(base, ""))

	wrapped := shared.Wrap(base, "fetch post t3_abc")
	require.Error(t, wrapped)
	assert.Equal(t, "fetch post t3_abc: original", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)

	assert.Nil(t, shared.Wrapf(nil, "pass %d", 3))
	wf := shared.Wrapf(base, "pass %d of %d", 3, 120)
	assert.Equal(t, "pass 3 of 120: original", wf.Error())
	assert.ErrorIs(t, wf, base)
}

func TestValidationf(t *testing.T) {
	err := shared.Validationf("sample size must be positive, got %d", -1)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "validation failed: sample size must be positive, got -1", err.Error())
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.Kind
	}{
		{"nil", nil, shared.KindUnknown},
		{"plain", errors.New("boom"), shared.KindUnknown},
		{"not found", shared.ErrNotFound, shared.KindNotFound},
		{"wrapped validation", fmt.Errorf("plan: %w", shared.ErrValidation), shared.KindValidation},
		{"unauthorized", shared.ErrUnauthorized, shared.KindUnauthorized},
		{"conflict", shared.ErrConflict, shared.KindConflict},
		{"rate limited", shared.ErrRateLimited, shared.KindRateLimited},
		{"dependency", shared.Wrap(shared.ErrDependencyFailure, "reddit"), shared.KindDependencyFailure},
		{"internal", shared.ErrInternal, shared.KindInternal},
		{"canceled", context.Canceled, shared.KindCanceled},
		{"deadline", context.DeadlineExceeded, shared.KindTimeout},
		{"sentinel timeout", shared.ErrTimeout, shared.KindTimeout},
		{"net timeout", shared.Wrap(&timeoutError{}, "dial"), shared.KindTimeout},
		{"net non-timeout", &resetError{}, shared.KindUnknown},
		{"canceled beats timeout", errors.Join(context.DeadlineExceeded, context.Canceled), shared.KindCanceled},
		{"timeout beats not found", errors.Join(shared.ErrNotFound, shared.ErrTimeout), shared.KindTimeout},
		{"not found beats dependency", errors.Join(shared.ErrDependencyFailure, shared.ErrNotFound), shared.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.KindOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotFound", shared.KindNotFound.String())
	assert.Equal(t, "RateLimited", shared.KindRateLimited.String())
	assert.Equal(t, "Canceled", shared.KindCanceled.String())
	assert.Equal(t, "Unknown", shared.KindUnknown.String())
	assert.Equal(t, "Unknown", shared.Kind(99).String())
}

func TestSentinelOf(t *testing.T) {
	assert.Equal(t, shared.ErrNotFound, shared.SentinelOf(shared.KindNotFound))
	assert.Equal(t, shared.ErrTimeout, shared.SentinelOf(shared.KindTimeout))
	assert.Equal(t, shared.ErrRateLimited, shared.SentinelOf(shared.KindRateLimited))
	assert.Nil(t, shared.SentinelOf(shared.KindUnknown))
	assert.Nil(t, shared.SentinelOf(shared.KindCanceled))
}

func TestMarkKind(t *testing.T) {
	t.Run("preserves original", func(t *testing.T) {
		marked := shared.MarkKind(sql.ErrNoRows, shared.KindNotFound)
		assert.True(t, shared.IsNotFound(marked))
		assert.ErrorIs(t, marked, sql.ErrNoRows)
	})

	t.Run("nil error yields sentinel", func(t *testing.T) {
		assert.Equal(t, shared.ErrConflict, shared.MarkKind(nil, shared.KindConflict))
		assert.Nil(t, shared.MarkKind(nil, shared.KindUnknown))
	})

	t.Run("idempotent", func(t *testing.T) {
		once := shared.MarkKind(errors.New("503"), shared.KindDependencyFailure)
		twice := shared.MarkKind(once, shared.KindDependencyFailure)
		assert.Same(t, once, twice)
	})

	t.Run("unknown and canceled leave error alone", func(t *testing.T) {
		base := errors.New("x")
		assert.Same(t, base, shared.MarkKind(base, shared.KindUnknown))
		assert.Same(t, base, shared.MarkKind(base, shared.KindCanceled))
	})

	t.Run("timeout", func(t *testing.T) {
		marked := shared.MarkKind(errors.New("slow"), shared.KindTimeout)
		assert.True(t, shared.IsTimeout(marked))
	})
}

func TestPredicates(t *testing.T) {
	joined := errors.Join(shared.ErrRateLimited, shared.ErrDependencyFailure)

	assert.True(t, shared.IsRateLimited(joined))
	assert.True(t, shared.IsDependencyFailure(joined))
	assert.False(t, shared.IsConflict(joined))
	assert.True(t, shared.IsConflict(shared.Wrap(shared.ErrConflict, "study running")))
	assert.True(t, shared.IsValidation(shared.Validationf("bad")))
	assert.False(t, shared.IsCanceled(nil))
	assert.False(t, shared.IsTimeout(nil))
	assert.False(t, shared.IsTimeout(context.Canceled))
	assert.True(t, shared.IsCanceled(shared.Wrap(context.Canceled, "shutdown")))
}
