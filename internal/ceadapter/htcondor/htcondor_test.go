// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package htcondor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
)

type scriptedRunner struct {
	byTool map[string][]runner.Result
	errs   map[string]error
	calls  map[string]int
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{byTool: map[string][]runner.Result{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *scriptedRunner) Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (runner.Result, error) {
	i := s.calls[name]
	s.calls[name]++
	results := s.byTool[name]
	if i >= len(results) {
		i = len(results) - 1
	}
	return results[i], s.errs[name]
}

func TestSubmitParsesTerseOutput(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_submit"] = []runner.Result{{Stdout: "14158503.0 - 14158503.0\n"}}
	a := New("schedd01", ToolPaths{Submit: "condor_submit"}, r, RetryBudget{})

	id, err := a.Submit(context.Background(), "/tmp/job00000")
	require.NoError(t, err)
	assert.Equal(t, "14158503.0", id)
}

func TestStatusMapsRunningJob(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_q"] = []runner.Result{{Stdout: "ClusterId = 14158503\nJobStatus = 2\nOwner = \"padme01\"\nLastRemoteHost = \"wn042\"\n"}}
	a := New("schedd01", ToolPaths{Query: "condor_q"}, r, RetryBudget{})

	report, err := a.Status(context.Background(), "14158503.0")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusReallyRunning, report.Status)
	assert.Equal(t, "wn042", report.WorkerNode)
}

func TestStatusCompletedSuccessVsFailure(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_q"] = []runner.Result{
		{Stdout: "ClusterId = 1\nJobStatus = 4\nExitStatus = 0\n"},
		{Stdout: "ClusterId = 2\nJobStatus = 4\nExitStatus = 1\n"},
	}
	a := New("schedd01", ToolPaths{Query: "condor_q"}, r, RetryBudget{})

	report, err := a.Status(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusDoneOk, report.Status)

	report, err = a.Status(context.Background(), "2.0")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusDoneFailed, report.Status)
}

func TestStatusEmptyQueueFallsBackToHistory(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_q"] = []runner.Result{{Stdout: ""}}
	r.byTool["condor_history"] = []runner.Result{{Stdout: "ClusterId = 1\nJobStatus = 4\nExitStatus = 1\n"}}
	a := New("schedd01", ToolPaths{Query: "condor_q", History: "condor_history"}, r, RetryBudget{})

	report, err := a.Status(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusDoneFailed, report.Status)
}

func TestStatusEmptyEverywhereMapsToCancelled(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_q"] = []runner.Result{{Stdout: ""}}
	r.byTool["condor_history"] = []runner.Result{{Stdout: ""}}
	a := New("schedd01", ToolPaths{Query: "condor_q", History: "condor_history"}, r, RetryBudget{})

	report, err := a.Status(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusCancelled, report.Status)
}

func TestCancelInvokesCondorRm(t *testing.T) {
	r := newScriptedRunner()
	r.byTool["condor_rm"] = []runner.Result{{}}
	a := New("schedd01", ToolPaths{Remove: "condor_rm"}, r, RetryBudget{})

	require.NoError(t, a.Cancel(context.Background(), "1.0"))
	assert.Equal(t, 1, r.calls["condor_rm"])
}
