// pkg/errors/errors_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test error creation, wrapping, path lists and code lookup

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    errors.ErrorCode
		message string
		wantStr string
	}{
		{
			name:    "busy_error",
			code:    errors.ErrBusy,
			message: "a switch is already in progress",
			wantStr: "[BUSY] a switch is already in progress",
		},
		{
			name:    "validation_error",
			code:    errors.ErrValidation,
			message: "dependency cycle",
			wantStr: "[VALIDATION] dependency cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.code, tt.message)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.NotNil(t, err.Details)
			assert.Equal(t, tt.wantStr, err.Error())
		})
	}
}

func TestWrap(t *testing.T) {
	baseErr := stderrors.New("permission denied")

	t.Run("wrap_non_nil_error", func(t *testing.T) {
		err := errors.Wrapf(baseErr, errors.ErrWrite, "write %s", "/tmp/x")
		assert.Equal(t, errors.ErrWrite, err.Code)
		assert.Equal(t, "[WRITE_ERROR] write /tmp/x: permission denied", err.Error())
		assert.ErrorIs(t, err, baseErr)
	})

	t.Run("wrap_nil_error_returns_nil", func(t *testing.T) {
		assert.Nil(t, errors.Wrap(nil, errors.ErrInternal, "internal"))
	})
}

func TestIsComparesCodes(t *testing.T) {
	err := fmt.Errorf("apply: %w", errors.New(errors.ErrBusy, "in flight"))

	assert.True(t, stderrors.Is(err, errors.Busy))
	assert.False(t, stderrors.Is(err, errors.RollbackIncomplete))
	assert.True(t, errors.IsErrorCode(err, errors.ErrBusy))
	assert.Equal(t, errors.ErrBusy, errors.GetErrorCode(err))
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("plain")))
}

func TestWithPaths(t *testing.T) {
	err := errors.New(errors.ErrRollbackIncomplete, "rollback incomplete").
		WithPaths("/b", "/a").
		WithPaths("/a", "/c")

	require.Equal(t, []string{"/a", "/b", "/c"}, err.Paths)
	assert.Equal(t, []string{"/a", "/b", "/c"}, errors.GetErrorPaths(fmt.Errorf("wrapped: %w", err)))
	assert.Nil(t, errors.GetErrorPaths(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.ErrRead, "read failed").WithDetail("path", "/etc/x")
	assert.Equal(t, "/etc/x", err.Details["path"])
}
