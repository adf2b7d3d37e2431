// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

type scriptedRunner struct {
	responses []runner.Result
	errs      []error
	calls     int
}

func (s *scriptedRunner) Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (runner.Result, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func TestSubmitParsesLastLine(t *testing.T) {
	r := &scriptedRunner{responses: []runner.Result{{Stdout: "submitting...\nce://host:9619/14158503\n"}}}
	a := New("ce01.padme.lnf.infn.it", ToolPaths{Submit: "ce-submit"}, r, RetryBudget{SubmissionMax: 5})

	id, err := a.Submit(context.Background(), "/tmp/job00000")
	require.NoError(t, err)
	assert.Equal(t, "ce://host:9619/14158503", id)
}

func TestSubmitRetriesTransientThenSucceeds(t *testing.T) {
	transientErr := perrors.New(perrors.Transient, "ceadapter.submit", "gateway busy")
	r := &scriptedRunner{
		responses: []runner.Result{{}, {}, {Stdout: "ce://host/99\n"}},
		errs:      []error{transientErr, transientErr, nil},
	}
	a := New("ce01", ToolPaths{Submit: "ce-submit"}, r, RetryBudget{SubmissionMax: 5, SubmissionDelay: time.Millisecond})

	id, err := a.Submit(context.Background(), "/tmp/job00000")
	require.NoError(t, err)
	assert.Equal(t, "ce://host/99", id)
	assert.Equal(t, 3, r.calls)
}

func TestStatusEmptyOutputMapsToCancelled(t *testing.T) {
	r := &scriptedRunner{responses: []runner.Result{{Stdout: ""}}}
	a := New("ce01", ToolPaths{Status: "ce-status"}, r, RetryBudget{RetriesMax: 3})

	report, err := a.Status(context.Background(), "ce://host/99")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusCancelled, report.Status)
}

func TestStatusUnrecognizedLexemeMapsToUndef(t *testing.T) {
	r := &scriptedRunner{responses: []runner.Result{{Stdout: "Status: SOME-NEW-LEXEME\n"}}}
	a := New("ce01", ToolPaths{Status: "ce-status"}, r, RetryBudget{RetriesMax: 3})

	report, err := a.Status(context.Background(), "ce://host/99")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusUndef, report.Status)
}

func TestStatusParsesKnownFields(t *testing.T) {
	r := &scriptedRunner{responses: []runner.Result{{Stdout: "Status: RUNNING\nWorkerNode: wn042.ce.infn.it\nLocalUser: padme01\nExitCode: 0\n"}}}
	a := New("ce01", ToolPaths{Status: "ce-status"}, r, RetryBudget{RetriesMax: 3})

	report, err := a.Status(context.Background(), "ce://host/99")
	require.NoError(t, err)
	assert.Equal(t, ceadapter.StatusRunning, report.Status)
	assert.Equal(t, "wn042.ce.infn.it", report.WorkerNode)
	require.NotNil(t, report.ExitCode)
	assert.Equal(t, 0, *report.ExitCode)
}

func TestCancelAndPurgeAndFetchOutput(t *testing.T) {
	r := &scriptedRunner{responses: []runner.Result{{}, {}, {}}}
	a := New("ce01", ToolPaths{Cancel: "ce-cancel", Purge: "ce-purge", FetchOutput: "ce-fetch-output"}, r, RetryBudget{})

	require.NoError(t, a.Cancel(context.Background(), "id"))
	require.NoError(t, a.Purge(context.Background(), "id"))
	require.NoError(t, a.FetchOutput(context.Background(), "id", "/tmp/dest"))
}
