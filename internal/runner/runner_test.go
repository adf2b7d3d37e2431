// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

func TestExecRunSuccess(t *testing.T) {
	r := NewExec(nil, nil)
	result, err := r.Run(context.Background(), pctx.OpStatus, "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
	assert.NotEmpty(t, result.CorrelationID)
}

func TestExecRunNonZeroExit(t *testing.T) {
	r := NewExec(nil, nil)
	_, err := r.Run(context.Background(), pctx.OpStatus, "sh", "-c", "exit 7")
	require.Error(t, err)
	assert.Equal(t, perrors.Transient, perrors.KindOf(err))
}

func TestExecRunMissingBinary(t *testing.T) {
	r := NewExec(nil, nil)
	_, err := r.Run(context.Background(), pctx.OpStatus, "padme-no-such-binary-xyz")
	require.Error(t, err)
	assert.Equal(t, perrors.Permanent, perrors.KindOf(err))
}

func TestExecRunTimeout(t *testing.T) {
	timeouts := &pctx.OperationTimeouts{Status: 10 * time.Millisecond}
	r := NewExec(timeouts, nil)
	_, err := r.Run(context.Background(), pctx.OpStatus, "sleep", "1")
	require.Error(t, err)
	assert.Equal(t, perrors.Timeout, perrors.KindOf(err))
}

func TestCommandLabel(t *testing.T) {
	assert.Equal(t, "ls", commandLabel("ls", nil))
	assert.Equal(t, "ls -la /tmp", commandLabel("ls", []string{"-la", "/tmp"}))
}
