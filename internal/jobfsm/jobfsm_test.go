// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package jobfsm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/catalog/memcat"
	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/pkg/logging"
)

type fakeCe struct {
	endpoint string

	submitErr   error
	submitID    string
	submitCalls int

	statuses   []ceadapter.StatusReport
	statusIdx  int
	statusErrs []error

	fetchErr    error
	fetchCalls  int
	purgeCalls  int
	cancelCalls int

	stderr     string
	omitStderr bool
}

func (f *fakeCe) Submit(ctx context.Context, jobWorkingDir string) (string, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeCe) Status(ctx context.Context, ceJobID string) (ceadapter.StatusReport, error) {
	i := f.statusIdx
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	var err error
	if i < len(f.statusErrs) {
		err = f.statusErrs[i]
	}
	f.statusIdx++
	return f.statuses[i], err
}

func (f *fakeCe) FetchOutput(ctx context.Context, ceJobID, destDir string) error {
	f.fetchCalls++
	if f.fetchErr != nil {
		return f.fetchErr
	}
	if err := writeSandbox(destDir, "Job running on node wn01 as user padme01 in dir /x\nRecoInfo - Processed Events   10\n", f.stderr); err != nil {
		return err
	}
	if f.omitStderr {
		return os.Remove(filepath.Join(destDir, stderrFile))
	}
	return nil
}

func (f *fakeCe) Purge(ctx context.Context, ceJobID string) error  { f.purgeCalls++; return nil }
func (f *fakeCe) Cancel(ctx context.Context, ceJobID string) error { f.cancelCalls++; return nil }
func (f *fakeCe) Endpoint() string                                 { return f.endpoint }

func writeSandbox(dir, stdout, stderr string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, stdoutFile), []byte(stdout), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, stderrFile), []byte(stderr), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, scriptFile), []byte("#!/bin/sh\n"), 0o755)
}

func newTestJob(t *testing.T, cat catalog.Catalog) (*catalog.Job, string) {
	t.Helper()
	id, err := cat.CreateJob(context.Background(), &catalog.Job{ProductionID: 1, Name: "job00000"})
	require.NoError(t, err)
	job, err := cat.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job, filepath.Join(t.TempDir())
}

func testLogger() logging.Logger { return logging.NewLogger(logging.DefaultConfig()) }

func TestUpdateSubmitsCreatedJob(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{submitID: "cluster1.0"}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenActive, tok)
	assert.Equal(t, 1, ce.submitCalls)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobActive, got.Status)
}

func TestUpdateRetriesSubmitFailureWithinBudget(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{submitErr: assertErr("transient ce failure")}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenCreated, tok)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobCreated, got.Status)

	subs, err := cat.ListSubmissions(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, catalog.SubSubmitFailed, subs[0].Status)
}

func TestUpdateClosesFailedWhenBudgetExhausted(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{submitErr: assertErr("always fails")}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 1, true)
	require.NoError(t, err)

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenFailed, tok)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobFailed, got.Status)
}

func TestUpdateFinalizesDoneOkSuccessfully(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusDoneOk, ExitCode: intPtr(0)},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)

	require.Equal(t, TokenActive, fsm.Update(context.Background()))
	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenSuccessful, tok)
	assert.Equal(t, 1, ce.purgeCalls)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobSuccessful, got.Status)
	assert.Equal(t, int64(10), got.NEvents)

	subs, err := cat.ListSubmissions(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, catalog.SubDoneOk, subs[0].Status)
}

func TestUpdateFallsThroughOnNonZeroExitCode(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusDoneOk, ExitCode: intPtr(7)},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)

	require.Equal(t, TokenActive, fsm.Update(context.Background()))
	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenCreated, tok)

	subs, err := cat.ListSubmissions(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, catalog.SubDoneOkNonZeroRc, subs[0].Status)
}

func TestUpdateFallsThroughOnRuntimeProblemDespiteZeroExitCode(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusDoneOk, ExitCode: intPtr(0)},
		},
		stderr: "Error in <TNetXNGFile::Open>: [ERROR] Unable to open file\n",
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)

	require.Equal(t, TokenActive, fsm.Update(context.Background()))
	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenCreated, tok)

	subs, err := cat.ListSubmissions(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, catalog.SubDoneOkRuntimeProblem, subs[0].Status)
}

func TestUpdateClosesFailedOnQuitDuringFallThrough(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusCancelled},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)
	require.Equal(t, TokenActive, fsm.Update(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, quitSentinel), []byte{}, 0o644))

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenFailed, tok)
}

func TestUpdateClosesFailedWhenCancelledResubmissionDisabled(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusCancelled},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, false)
	require.NoError(t, err)
	require.Equal(t, TokenActive, fsm.Update(context.Background()))

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenFailed, tok)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobFailed, got.Status)
}

func TestUpdateFetchOutputMissingFileReturnsOutputProblem(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID:   "cluster1.0",
		omitStderr: true,
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusDoneOk, ExitCode: intPtr(0)},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)
	require.Equal(t, TokenActive, fsm.Update(context.Background()))

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenCreated, tok)

	subs, err := cat.ListSubmissions(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, catalog.SubDoneOkOutputProblem, subs[0].Status)
}

func TestUpdateMapsUnknownToUndefWithoutMutatingCoarseStatus(t *testing.T) {
	cat := memcat.New()
	job, dir := newTestJob(t, cat)
	ce := &fakeCe{
		submitID: "cluster1.0",
		statuses: []ceadapter.StatusReport{
			{Status: ceadapter.StatusUnknown},
		},
	}

	fsm, err := New(context.Background(), cat, ce, nil, testLogger(), job, dir, "", 5, true)
	require.NoError(t, err)
	require.Equal(t, TokenActive, fsm.Update(context.Background()))

	tok := fsm.Update(context.Background())
	assert.Equal(t, TokenUndef, tok)

	got, err := cat.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobActive, got.Status)
}

func intPtr(n int) *int { return &n }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
