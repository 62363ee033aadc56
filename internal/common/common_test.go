package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "duplicate", err: fmt.Errorf("add category: %w", ErrDuplicateName), want: "a category with that name already exists"},
		{name: "category missing", err: ErrCategoryNotFound, want: "the selected category does not exist"},
		{name: "persistence", err: fmt.Errorf("%w: disk full", ErrPersistence), want: "the ledger could not be saved; nothing was changed"},
		{
			name: "conflict",
			err:  fmt.Errorf("%w: %w", ErrPersistence, ErrConflict),
			want: "the ledger was changed by another session; nothing was changed, run the command again",
		},
		{name: "other", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.err))
		})
	}
}

func TestUserError(t *testing.T) {
	err := NewUserError("could not add category", ErrDuplicateName)
	assert.Equal(t, "could not add category: duplicate category name", err.Error())
	assert.ErrorIs(t, err, ErrDuplicateName)

	bare := NewUserError("nothing to do", nil)
	assert.Equal(t, "nothing to do", bare.Error())
}

func TestWithRetry(t *testing.T) {
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("down")
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("fatal"), Retryable: false}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return errors.New("down") }, RetryOptions{MaxAttempts: 5, InitialDelay: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	logger.Info("saved ledger", "namespace", "alice")
	assert.Contains(t, buf.String(), `"namespace":"alice"`)

	_, err = NewLogger(&buf, slog.LevelInfo, "xml")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
