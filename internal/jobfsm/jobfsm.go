// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package jobfsm implements the per-job state machine the Controller
// drives once per sweep: submit, observe, finalize, and resubmit a
// single Job within its resubmission budget. One FSM instance owns
// exactly one Job and is never shared across goroutines; the Controller
// serializes each FSM's Update calls against itself by construction (one
// FSM per worker-pool slot at a time).
package jobfsm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/outputparser"
	"github.com/padme-exp/prodctl/internal/storageadapter"
	"github.com/padme-exp/prodctl/pkg/logging"
)

// sandbox file names expected inside a retrieved submit_NNN directory.
const (
	stdoutFile = "job.out"
	stderrFile = "job.err"
	scriptFile = "job.sh"
)

// quitSentinel is the per-job cancellation file name (see controller for
// the analogous production-level sentinel handled by the Controller).
const quitSentinel = "quit"

// Token is the aggregation category an Update call reports back to the
// Controller's per-sweep counters.
type Token int

const (
	TokenCreated Token = iota
	TokenActive
	TokenSuccessful
	TokenFailed
	TokenUndef
)

func (t Token) String() string {
	switch t {
	case TokenCreated:
		return "Created"
	case TokenActive:
		return "Active"
	case TokenSuccessful:
		return "Successful"
	case TokenFailed:
		return "Failed"
	case TokenUndef:
		return "Undef"
	default:
		return "Unknown"
	}
}

// FSM is the per-job state machine. jobDir is the absolute on-disk
// working directory for the job (<prodDir>/jobNNNNN); storageBaseURI is
// where finalize copies produced files, already joined from the
// Production's storage URI and storage directory.
type FSM struct {
	catalog       catalog.Catalog
	ce            ceadapter.CeAdapter
	storage       storageadapter.StorageAdapter
	logger        logging.Logger
	jobID         int64
	jobName       string
	jobDir        string
	storageBaseURI string
	resubmitMax   int
	resubmitCancelled bool

	quit          bool
	status        catalog.JobStatus
	resubmissions int
	current       *catalog.JobSubmission
}

// New constructs an FSM for job, loading its existing submission history
// from cat so resubmissions/current reflect prior controller runs.
// resubmitCancelled controls whether a job whose last submission was
// Cancelled is resubmitted on fall-through or closed Failed outright.
func New(ctx context.Context, cat catalog.Catalog, ce ceadapter.CeAdapter, storage storageadapter.StorageAdapter, logger logging.Logger, job *catalog.Job, jobDir, storageBaseURI string, resubmitMax int, resubmitCancelled bool) (*FSM, error) {
	subs, err := cat.ListSubmissions(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	f := &FSM{
		catalog:           cat,
		ce:                ce,
		storage:           storage,
		logger:            logger.With("job", job.Name),
		jobID:             job.ID,
		jobName:           job.Name,
		jobDir:            jobDir,
		storageBaseURI:    storageBaseURI,
		resubmitMax:       resubmitMax,
		resubmitCancelled: resubmitCancelled,
		status:            job.Status,
		resubmissions:     len(subs),
	}
	if len(subs) > 0 {
		f.current = subs[len(subs)-1]
	}
	return f, nil
}

// Update runs one sweep's worth of transition logic for the job and
// returns the aggregation token the Controller should count it under.
// It never panics; any unexpected failure is logged and reported as
// TokenUndef so one poisoned job cannot stall the sweep.
func (f *FSM) Update(ctx context.Context) (tok Token) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("job update panicked", "job", f.jobName, "recover", r)
			tok = TokenUndef
		}
	}()

	f.checkQuit()

	switch f.status {
	case catalog.JobCreated:
		return f.handleCreated(ctx)
	case catalog.JobActive:
		return f.handleActive(ctx)
	default:
		return f.handleTerminal()
	}
}

func (f *FSM) checkQuit() {
	if f.quit {
		return
	}
	if _, err := os.Stat(filepath.Join(f.jobDir, quitSentinel)); err == nil {
		f.quit = true
	}
}

func (f *FSM) handleTerminal() Token {
	if f.status == catalog.JobSuccessful {
		f.logger.Info("job terminal", "status", "Successful")
		return TokenSuccessful
	}
	f.logger.Info("job terminal", "status", "Failed")
	return TokenFailed
}

func (f *FSM) handleCreated(ctx context.Context) Token {
	if f.quit || f.resubmissions >= f.resubmitMax {
		f.closeFailed(ctx, "quit or resubmission budget exhausted before submit")
		return TokenFailed
	}

	index := f.resubmissions
	subID, err := f.catalog.CreateJobSubmission(ctx, f.jobID, index)
	if err != nil {
		f.logger.Error("could not create submission row", "err", err)
		return TokenUndef
	}
	f.resubmissions++

	ceJobID, err := f.ce.Submit(ctx, f.jobDir)
	if err != nil {
		if cerr := f.catalog.CloseJobSubmission(ctx, subID, catalog.SubSubmitFailed, err.Error(), nil); cerr != nil {
			f.logger.Error("could not record submit failure", "err", cerr)
		}
		if f.resubmissions >= f.resubmitMax {
			f.closeFailed(ctx, "submission budget exhausted after repeated submit failures")
			return TokenFailed
		}
		f.logger.Warn("submit failed, will retry next sweep", "err", err)
		return TokenCreated
	}

	if err := f.catalog.SetJobSubmitted(ctx, subID, ceJobID); err != nil {
		f.logger.Error("could not record submitted ce job id", "err", err)
		return TokenUndef
	}
	if err := f.catalog.SetJobSubmitStatus(ctx, subID, catalog.SubRegistered); err != nil {
		f.logger.Error("could not record registered status", "err", err)
	}
	if err := f.catalog.SetJobStatus(ctx, f.jobID, catalog.JobActive); err != nil {
		f.logger.Error("could not transition job to active", "err", err)
		return TokenUndef
	}

	f.status = catalog.JobActive
	f.current = &catalog.JobSubmission{
		ID: subID, JobID: f.jobID, SubmitIndex: index,
		CeJobID: ceJobID, Status: catalog.SubRegistered,
	}
	f.logger.Info("job submitted", "ce_job_id", ceJobID)
	return TokenActive
}

func (f *FSM) handleActive(ctx context.Context) Token {
	if f.current == nil {
		f.logger.Error("active job has no current submission")
		return TokenUndef
	}

	report, err := f.ce.Status(ctx, f.current.CeJobID)
	if err != nil {
		f.logger.Warn("status query failed, treating as undef for this sweep", "err", err)
		return TokenUndef
	}

	switch report.Status {
	case ceadapter.StatusRegistered, ceadapter.StatusPending, ceadapter.StatusIdle,
		ceadapter.StatusRunning, ceadapter.StatusReallyRunning, ceadapter.StatusHeld,
		ceadapter.StatusRemoving, ceadapter.StatusTransferringOutput, ceadapter.StatusSuspended:
		f.applyRunningReport(ctx, report)
		if f.quit {
			f.bestEffortCancel(ctx)
		}
		return TokenActive

	case ceadapter.StatusUnknown, ceadapter.StatusUndef:
		f.updateFineStatus(ctx, mapUnrecognized(report.Status))
		if f.quit {
			f.bestEffortCancel(ctx)
		}
		return TokenUndef

	case ceadapter.StatusDoneOk:
		return f.finalizeAndClose(ctx, report, catalog.SubDoneOk, catalog.SubDoneOkOutputProblem, catalog.SubDoneOkNonZeroRc)

	case ceadapter.StatusDoneFailed:
		return f.finalizeAndClose(ctx, report, catalog.SubDoneFailed, catalog.SubDoneFailedOutputProblem, 0)

	case ceadapter.StatusCancelled:
		return f.finalizeAndClose(ctx, report, catalog.SubCancelled, catalog.SubCancelledOutputProblem, 0)

	case ceadapter.StatusAborted:
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, catalog.SubAborted, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close aborted submission", "err", err)
		}
		return f.fallThrough(ctx, catalog.SubAborted)

	default:
		f.updateFineStatus(ctx, catalog.SubUndef)
		return TokenUndef
	}
}

func (f *FSM) applyRunningReport(ctx context.Context, report ceadapter.StatusReport) {
	newStatus := mapRunning(report.Status)
	if newStatus != f.current.Status {
		if err := f.catalog.SetJobSubmitStatus(ctx, f.current.ID, newStatus); err != nil {
			f.logger.Error("could not update fine status", "err", err)
		}
		f.current.Status = newStatus
	}
	if report.Status == ceadapter.StatusRunning || report.Status == ceadapter.StatusReallyRunning {
		if report.WorkerNode != "" && report.WorkerNode != f.current.WorkerNode {
			if err := f.catalog.SetJobWorkerNode(ctx, f.current.ID, report.WorkerNode); err != nil {
				f.logger.Error("could not record worker node", "err", err)
			}
			f.current.WorkerNode = report.WorkerNode
		}
		if report.LocalUser != "" && report.LocalUser != f.current.WnUser {
			if err := f.catalog.SetJobWnUser(ctx, f.current.ID, report.LocalUser); err != nil {
				f.logger.Error("could not record local user", "err", err)
			}
			f.current.WnUser = report.LocalUser
		}
	}
}

func (f *FSM) updateFineStatus(ctx context.Context, status catalog.SubmissionStatus) {
	if f.current.Status == status {
		return
	}
	if err := f.catalog.SetJobSubmitStatus(ctx, f.current.ID, status); err != nil {
		f.logger.Error("could not update fine status", "err", err)
	}
	f.current.Status = status
}

func (f *FSM) bestEffortCancel(ctx context.Context) {
	if err := f.ce.Cancel(ctx, f.current.CeJobID); err != nil {
		f.logger.Warn("best-effort cancel failed", "err", err)
	}
}

// finalizeAndClose drives the six-step finalization sequence for a CE
// terminal status and closes the current submission with okStatus,
// outputProblemStatus, or nonZeroRcStatus depending on the outcome.
// nonZeroRcStatus is only meaningful for DoneOk (zero value unused
// elsewhere).
func (f *FSM) finalizeAndClose(ctx context.Context, report ceadapter.StatusReport, okStatus, outputProblemStatus, nonZeroRcStatus catalog.SubmissionStatus) Token {
	ok, runtimeProblem := f.finalize(ctx, report)

	var closedStatus catalog.SubmissionStatus
	switch {
	case !ok:
		closedStatus = outputProblemStatus
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, closedStatus, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close submission with output-problem status", "err", err)
		}
	case okStatus == catalog.SubDoneOk && report.ExitCode != nil && *report.ExitCode != 0:
		closedStatus = nonZeroRcStatus
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, closedStatus, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close submission with nonzero-rc status", "err", err)
		}
	case okStatus == catalog.SubDoneOk && runtimeProblem:
		closedStatus = catalog.SubDoneOkRuntimeProblem
		f.logger.Warn("stderr matched runtime-problem pattern despite zero exit code")
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, closedStatus, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close submission with runtime-problem status", "err", err)
		}
	case okStatus == catalog.SubDoneOk:
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, okStatus, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close successful submission", "err", err)
		}
		if err := f.ce.Purge(ctx, f.current.CeJobID); err != nil {
			f.logger.Warn("purge failed", "err", err)
		}
		if err := f.catalog.CloseJob(ctx, f.jobID, catalog.JobSuccessful); err != nil {
			f.logger.Error("could not close job as successful", "err", err)
			return TokenUndef
		}
		f.status = catalog.JobSuccessful
		return TokenSuccessful
	default:
		closedStatus = okStatus
		if err := f.catalog.CloseJobSubmission(ctx, f.current.ID, closedStatus, report.Description, report.ExitCode); err != nil {
			f.logger.Error("could not close submission", "err", err)
		}
		if err := f.ce.Purge(ctx, f.current.CeJobID); err != nil {
			f.logger.Warn("purge failed", "err", err)
		}
	}

	return f.fallThrough(ctx, closedStatus)
}

// fallThrough implements the shared "fall-through" behavior: the job
// becomes resubmittable (coarse status back to Created) unless quit is
// set or lastStatus is a Cancelled variant with resubmitCancelled
// false, in either of which cases it closes as Failed instead.
func (f *FSM) fallThrough(ctx context.Context, lastStatus catalog.SubmissionStatus) Token {
	if f.quit {
		f.closeFailed(ctx, "quit flag set at fall-through")
		return TokenFailed
	}
	if !f.resubmitCancelled && (lastStatus == catalog.SubCancelled || lastStatus == catalog.SubCancelledOutputProblem) {
		f.closeFailed(ctx, "last submission was cancelled and resubmission of cancelled jobs is disabled")
		return TokenFailed
	}
	if err := f.catalog.SetJobStatus(ctx, f.jobID, catalog.JobCreated); err != nil {
		f.logger.Error("could not reset job to created for resubmission", "err", err)
		return TokenUndef
	}
	f.status = catalog.JobCreated
	return TokenCreated
}

func (f *FSM) closeFailed(ctx context.Context, reason string) {
	if err := f.catalog.CloseJob(ctx, f.jobID, catalog.JobFailed); err != nil {
		f.logger.Error("could not close job as failed", "err", err, "reason", reason)
		return
	}
	f.status = catalog.JobFailed
	f.logger.Warn("job closed failed", "reason", reason)
}

// finalize implements the six-step finalization: fetch the CE-side
// sandbox, rename it into submit_NNN, verify the three expected files
// are present, parse stdout/stderr, record extracted facts and produced
// files, and archive produced files via the StorageAdapter. It returns
// ok true iff every expected file was present and the retrieval itself
// succeeded, and runtimeProblem true if stderr matched the xrootd
// open-failure pattern regardless of the job's reported exit code.
func (f *FSM) finalize(ctx context.Context, report ceadapter.StatusReport) (ok, runtimeProblem bool) {
	retrieveDir := filepath.Join(f.jobDir, "retrieve")
	finalDir := filepath.Join(f.jobDir, fmt.Sprintf("submit_%03d", f.current.SubmitIndex))

	if err := os.MkdirAll(retrieveDir, 0o755); err != nil {
		f.logger.Error("could not create retrieval directory", "err", err)
		return false, false
	}
	if err := f.ce.FetchOutput(ctx, f.current.CeJobID, retrieveDir); err != nil {
		f.logger.Error("fetch output failed", "err", err)
		return false, false
	}
	if err := os.Rename(retrieveDir, finalDir); err != nil {
		f.logger.Error("could not rename retrieval directory", "err", err)
		return false, false
	}

	stdoutPath := filepath.Join(finalDir, stdoutFile)
	stderrPath := filepath.Join(finalDir, stderrFile)
	scriptPath := filepath.Join(finalDir, scriptFile)
	for _, p := range []string{stdoutPath, stderrPath, scriptPath} {
		if _, err := os.Stat(p); err != nil {
			f.logger.Warn("expected sandbox file missing", "path", p)
			return false, false
		}
	}

	stdout, err := os.Open(stdoutPath)
	if err != nil {
		f.logger.Error("could not open stdout for parsing", "err", err)
		return false, false
	}
	summary := outputparser.Parse(stdout)
	stdout.Close()

	stderr, err := os.Open(stderrPath)
	if err == nil {
		runtimeProblem = outputparser.ScanStderr(stderr)
		stderr.Close()
	}
	summary.RuntimeProblem = runtimeProblem

	f.recordSummary(ctx, summary)
	f.archiveFiles(ctx, finalDir, summary.Files)

	return true, runtimeProblem
}

func (f *FSM) recordSummary(ctx context.Context, s outputparser.Summary) {
	if s.WorkerNode != "" {
		if err := f.catalog.SetJobWorkerNode(ctx, f.current.ID, s.WorkerNode); err != nil {
			f.logger.Error("could not record worker node", "err", err)
		}
	}
	if s.WnUser != "" {
		if err := f.catalog.SetJobWnUser(ctx, f.current.ID, s.WnUser); err != nil {
			f.logger.Error("could not record wn user", "err", err)
		}
	}
	if s.WnDir != "" {
		if err := f.catalog.SetJobWnDir(ctx, f.current.ID, s.WnDir); err != nil {
			f.logger.Error("could not record wn dir", "err", err)
		}
	}
	if s.HasProcessedEvents {
		if err := f.catalog.SetJobNEvents(ctx, f.jobID, s.ProcessedEvents); err != nil {
			f.logger.Error("could not record event count", "err", err)
		}
	}
	if len(s.Files) > 0 {
		if err := f.catalog.SetJobNFiles(ctx, f.jobID, len(s.Files)); err != nil {
			f.logger.Error("could not record file count", "err", err)
		}
	}
}

func (f *FSM) archiveFiles(ctx context.Context, finalDir string, files []outputparser.FileRecord) {
	for i, file := range files {
		record := &catalog.OutputFile{
			JobID: f.jobID, Name: file.Name, Type: file.Type,
			Sequence: i, Bytes: file.Size, Adler32: file.Adler32,
		}
		if _, err := f.catalog.CreateJobFile(ctx, record); err != nil {
			f.logger.Error("could not record output file", "name", file.Name, "err", err)
		}

		if f.storage == nil || f.storageBaseURI == "" {
			continue
		}
		src := filepath.Join(finalDir, file.Name)
		dst := f.storageBaseURI + "/" + file.Name
		if err := f.storage.Copy(ctx, src, dst); err != nil {
			f.logger.Error("could not archive output file", "name", file.Name, "err", err)
		}
	}
}

// mapRunning returns the fine SubmissionStatus for a normalized CE
// status in the "still progressing" set.
func mapRunning(s ceadapter.Status) catalog.SubmissionStatus {
	switch s {
	case ceadapter.StatusRegistered:
		return catalog.SubRegistered
	case ceadapter.StatusPending:
		return catalog.SubPending
	case ceadapter.StatusIdle:
		return catalog.SubIdle
	case ceadapter.StatusRunning:
		return catalog.SubRunning
	case ceadapter.StatusReallyRunning:
		return catalog.SubReallyRunning
	case ceadapter.StatusHeld:
		return catalog.SubHeld
	case ceadapter.StatusRemoving:
		return catalog.SubRemoving
	case ceadapter.StatusTransferringOutput:
		return catalog.SubTransferringOutput
	case ceadapter.StatusSuspended:
		return catalog.SubSuspended
	default:
		return catalog.SubUndef
	}
}

func mapUnrecognized(s ceadapter.Status) catalog.SubmissionStatus {
	if s == ceadapter.StatusUnknown {
		return catalog.SubUnknown
	}
	return catalog.SubUndef
}

// Status returns the FSM's current coarse job status, for inspection by
// the Controller's aggregation and logging.
func (f *FSM) Status() catalog.JobStatus { return f.status }

// JobName returns the job's catalog name.
func (f *FSM) JobName() string { return f.jobName }

// Resubmissions returns the number of Submissions created so far.
func (f *FSM) Resubmissions() int { return f.resubmissions }

// SetQuit forces the FSM's quit flag, for a production-level quit
// sentinel that applies to every job regardless of its own per-job
// sentinel file.
func (f *FSM) SetQuit() { f.quit = true }
