package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "message only", err: Validation("bad input"), want: "bad input"},
		{name: "with cause", err: Wrap(errors.New("dial tcp"), ErrCodeUnavailable, "driver unreachable"), want: "driver unreachable: dial tcp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := fmt.Errorf("outer: %w", Wrap(cause, ErrCodeInternal, "inner"))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInternal, GetCode(err))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "unused"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "unused %d", 1))
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFoundf("job %s", "x"), check: IsNotFound},
		{name: "conflict", err: Conflict("terminal"), check: IsConflict},
		{name: "validation", err: Validationf("field %q", "owner"), check: IsValidation},
		{name: "unavailable", err: Wrap(errors.New("x"), ErrCodeUnavailable, "down"), check: IsUnavailable},
		{name: "timeout", err: Wrap(errors.New("x"), ErrCodeTimeout, "slow"), check: IsTimeout},
		{name: "canceled", err: Wrap(errors.New("x"), ErrCodeCanceled, "stop"), check: IsCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetField(t *testing.T) {
	err := ValidationField("cookies", "cookies are empty")
	require.True(t, IsValidation(err))
	assert.Equal(t, "cookies", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Equal(t, ErrCodeInternal, GetCode(Internal("x")))
}
