// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOperationTimeouts(t *testing.T) {
	cfg := DefaultOperationTimeouts()

	require.NotNil(t, cfg)
	assert.Equal(t, DefaultTimeout, cfg.Default)
	assert.Equal(t, DefaultLongTimeout, cfg.Submit)
	assert.Equal(t, DefaultTimeout, cfg.Status)
	assert.Equal(t, DefaultTimeout, cfg.Cancel)
	assert.Equal(t, DefaultLongTimeout, cfg.FetchOutput)
	assert.Equal(t, DefaultLongTimeout, cfg.StorageCopy)
}

func TestWithTimeout(t *testing.T) {
	cfg := &OperationTimeouts{
		Default:     10 * time.Second,
		Status:      5 * time.Second,
		Submit:      20 * time.Second,
		StorageCopy: 0,
	}

	t.Run("default operation", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), OpDefault, cfg)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(10*time.Second), deadline, time.Second)
	})

	t.Run("status operation", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), OpStatus, cfg)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
	})

	t.Run("submit operation", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), OpSubmit, cfg)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(20*time.Second), deadline, time.Second)
	})

	t.Run("zero timeout means no deadline", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), OpStorageCopy, cfg)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})

	t.Run("nil config falls back to defaults", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), OpSubmit, nil)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultLongTimeout), deadline, time.Second)
	})
}

func TestWithDeadline(t *testing.T) {
	t.Run("no existing deadline", func(t *testing.T) {
		deadline := time.Now().Add(time.Minute)
		ctx, cancel := WithDeadline(context.Background(), deadline)
		defer cancel()
		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, deadline, got)
	})

	t.Run("existing sooner deadline is kept", func(t *testing.T) {
		sooner := time.Now().Add(time.Second)
		ctx, cancel := context.WithDeadline(context.Background(), sooner)
		defer cancel()

		later := time.Now().Add(time.Minute)
		ctx2, cancel2 := WithDeadline(ctx, later)
		defer cancel2()

		got, ok := ctx2.Deadline()
		require.True(t, ok)
		assert.Equal(t, sooner, got)
	})
}

func TestEnsureTimeout(t *testing.T) {
	t.Run("adds timeout when missing", func(t *testing.T) {
		ctx, cancel := EnsureTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	t.Run("leaves existing deadline alone", func(t *testing.T) {
		existing, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ctx, cancel2 := EnsureTimeout(existing, 5*time.Second)
		defer cancel2()
		assert.Equal(t, existing, ctx)
	})

	t.Run("zero default falls back to DefaultTimeout", func(t *testing.T) {
		ctx, cancel := EnsureTimeout(context.Background(), 0)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)
	})
}

func TestIsContextError(t *testing.T) {
	assert.False(t, IsContextError(nil))
	assert.True(t, IsContextError(context.Canceled))
	assert.True(t, IsContextError(context.DeadlineExceeded))
	assert.False(t, IsContextError(errors.New("ce unreachable")))
}

func TestOpError(t *testing.T) {
	t.Run("deadline exceeded", func(t *testing.T) {
		err := &OpError{Operation: "ceadapter.submit", Timeout: 30 * time.Second, Err: context.DeadlineExceeded}
		assert.Contains(t, err.Error(), "ceadapter.submit")
		assert.Contains(t, err.Error(), "timed out")
		assert.Equal(t, context.DeadlineExceeded, err.Unwrap())
	})

	t.Run("canceled", func(t *testing.T) {
		err := &OpError{Operation: "ceadapter.submit", Err: context.Canceled}
		assert.Contains(t, err.Error(), "was canceled")
	})

	t.Run("other context error", func(t *testing.T) {
		err := &OpError{Operation: "ceadapter.submit", Err: errors.New("boom")}
		assert.Contains(t, err.Error(), "context error")
	})
}

func TestWrapOpError(t *testing.T) {
	t.Run("wraps context error", func(t *testing.T) {
		wrapped := WrapOpError(context.DeadlineExceeded, "ceadapter.status", 5*time.Second)
		var opErr *OpError
		require.ErrorAs(t, wrapped, &opErr)
		assert.Equal(t, "ceadapter.status", opErr.Operation)
	})

	t.Run("passes through non-context error", func(t *testing.T) {
		plain := errors.New("ce unreachable")
		assert.Equal(t, plain, WrapOpError(plain, "ceadapter.status", 5*time.Second))
	})
}
