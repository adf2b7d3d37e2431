// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package retry provides bounded-retry policies for the operations that
// dominate the controller's runtime: external command invocations
// (CeAdapter, StorageAdapter, CredentialManager) and Catalog calls against
// a database session that may need to reconnect. Every retry policy here
// retries a plain func() error rather than an HTTP round trip — the
// controller has no HTTP surface of its own.
package retry

import (
	"context"
	"math/rand"
	"time"

	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

// Policy decides whether a failed attempt should be retried and how long
// to wait before the next one.
type Policy interface {
	// ShouldRetry reports whether attempt (0-based, the attempt that just
	// failed) should be followed by another.
	ShouldRetry(err error, attempt int) bool

	// WaitTime returns the delay before the next attempt.
	WaitTime(attempt int) time.Duration

	// MaxAttempts returns the total number of attempts the policy allows.
	MaxAttempts() int
}

// FixedDelay retries up to maxAttempts times with a constant delay between
// attempts, jittered by up to 10%. Every retry budget in this controller
// (submission, CE status/fetch, catalog reconnect) is fixed-delay, not
// exponential.
type FixedDelay struct {
	maxAttempts int
	delay       time.Duration
	jitter      bool
	// retryable, when set, filters which errors are retried; nil means
	// "retry everything up to maxAttempts" (used by command retries,
	// where any non-nil error is worth another attempt).
	retryable func(error) bool
}

// NewFixedDelay creates a fixed-delay retry policy.
func NewFixedDelay(maxAttempts int, delay time.Duration) *FixedDelay {
	return &FixedDelay{maxAttempts: maxAttempts, delay: delay, jitter: true}
}

// WithRetryable restricts retries to errors matching fn.
func (f *FixedDelay) WithRetryable(fn func(error) bool) *FixedDelay {
	f.retryable = fn
	return f
}

// WithoutJitter disables the randomized jitter on WaitTime.
func (f *FixedDelay) WithoutJitter() *FixedDelay {
	f.jitter = false
	return f
}

func (f *FixedDelay) ShouldRetry(err error, attempt int) bool {
	if attempt+1 >= f.maxAttempts {
		return false
	}
	if err == nil {
		return false
	}
	if f.retryable != nil {
		return f.retryable(err)
	}
	return true
}

func (f *FixedDelay) WaitTime(attempt int) time.Duration {
	if !f.jitter {
		return f.delay
	}
	jitterAmount := time.Duration(rand.Float64() * float64(f.delay) * 0.1)
	return f.delay + jitterAmount
}

func (f *FixedDelay) MaxAttempts() int {
	return f.maxAttempts
}

// RetryableOnKind builds a retryable predicate that matches PadmeErrors of
// the given kinds (Transient and Timeout, typically).
func RetryableOnKind(kinds ...perrors.Kind) func(error) bool {
	set := make(map[perrors.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(err error) bool {
		return set[perrors.KindOf(err)]
	}
}

// Do runs fn, retrying per policy until it succeeds, the policy gives up,
// or ctx is done. It returns the last error if all attempts fail.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(lastErr, attempt) {
			return lastErr
		}
		wait := policy.WaitTime(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
