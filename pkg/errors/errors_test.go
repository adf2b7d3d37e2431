// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

func TestKindOfDefaultsToPermanent(t *testing.T) {
	require.Equal(t, perrors.Permanent, perrors.KindOf(nil))
	require.Equal(t, perrors.Permanent, perrors.KindOf(context.Canceled))
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := perrors.New(perrors.Transient, "ceadapter.status", "CE unreachable")
	wrapped := &wrapper{err: base}
	require.Equal(t, perrors.Transient, perrors.KindOf(wrapped))
}

func TestRetryable(t *testing.T) {
	require.True(t, perrors.New(perrors.Transient, "op", "x").Retryable())
	require.True(t, perrors.New(perrors.Timeout, "op", "x").Retryable())
	require.False(t, perrors.New(perrors.Permanent, "op", "x").Retryable())
	require.False(t, perrors.New(perrors.Unavailable, "op", "x").Retryable())
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := perrors.New(perrors.Conflict, "catalog.createProduction", "name exists")
	b := perrors.New(perrors.Conflict, "other.op", "different message")
	require.True(t, a.Is(b))

	c := perrors.New(perrors.Permanent, "catalog.createProduction", "name exists")
	require.False(t, a.Is(c))
}

func TestClassifyCommandDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	pe := perrors.ClassifyCommand("ceadapter.submit", ctx.Err())
	require.Equal(t, perrors.Timeout, pe.Kind)
}

func TestClassifyCatalogConflict(t *testing.T) {
	pe := perrors.ClassifyCatalog("catalog.createProduction", context.Canceled, true)
	require.Equal(t, perrors.Conflict, pe.Kind)
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }
