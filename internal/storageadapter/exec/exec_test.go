// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package exec

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
)

type scriptedCall struct {
	result runner.Result
	err    error
}

type scriptedRunner struct {
	queues map[string][]scriptedCall
	calls  map[string]int
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{queues: map[string][]scriptedCall{}, calls: map[string]int{}}
}

func (s *scriptedRunner) push(tool string, result runner.Result, err error) {
	s.queues[tool] = append(s.queues[tool], scriptedCall{result: result, err: err})
}

func (s *scriptedRunner) Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (runner.Result, error) {
	i := s.calls[name]
	s.calls[name]++
	q := s.queues[name]
	if len(q) == 0 {
		return runner.Result{}, nil
	}
	if i >= len(q) {
		i = len(q) - 1
	}
	return q[i].result, q[i].err
}

func TestStatExistsWhenCommandSucceeds(t *testing.T) {
	r := newScriptedRunner()
	r.push("gfal-stat", runner.Result{ExitCode: 0}, nil)
	a := New(ToolPaths{Stat: "gfal-stat"}, r, RetryBudget{})

	exists, err := a.Stat(context.Background(), "srm://se/dst")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStatMissingWhenCommandExitsNonZero(t *testing.T) {
	r := newScriptedRunner()
	r.push("gfal-stat", runner.Result{ExitCode: 1}, &exec.ExitError{})
	a := New(ToolPaths{Stat: "gfal-stat"}, r, RetryBudget{})

	exists, err := a.Stat(context.Background(), "srm://se/missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCopyRenamesIncumbentBeforeCopying(t *testing.T) {
	r := newScriptedRunner()
	// Copy's own dst stat, then ResolveCollision's probe of dst.00.
	r.push("gfal-stat", runner.Result{ExitCode: 0}, nil)
	r.push("gfal-stat", runner.Result{ExitCode: 1}, &exec.ExitError{})
	a := New(ToolPaths{Stat: "gfal-stat", Move: "gfal-rename", Copy: "gfal-copy"}, r, RetryBudget{})

	err := a.Copy(context.Background(), "file:///src/out.root", "srm://se/dst/out.root")
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls["gfal-rename"])
	assert.Equal(t, 1, r.calls["gfal-copy"])
}

func TestCopySkipsRenameWhenDestAbsent(t *testing.T) {
	r := newScriptedRunner()
	r.push("gfal-stat", runner.Result{ExitCode: 1}, &exec.ExitError{})
	a := New(ToolPaths{Stat: "gfal-stat", Move: "gfal-rename", Copy: "gfal-copy"}, r, RetryBudget{})

	err := a.Copy(context.Background(), "file:///src/out.root", "srm://se/dst/out.root")
	require.NoError(t, err)
	assert.Equal(t, 0, r.calls["gfal-rename"])
	assert.Equal(t, 1, r.calls["gfal-copy"])
}

func TestMkdirInvokesToolWithDashP(t *testing.T) {
	r := newScriptedRunner()
	r.push("gfal-mkdir", runner.Result{ExitCode: 0}, nil)
	a := New(ToolPaths{Mkdir: "gfal-mkdir"}, r, RetryBudget{})

	require.NoError(t, a.Mkdir(context.Background(), "srm://se/dst"))
	assert.Equal(t, 1, r.calls["gfal-mkdir"])
}
