// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package htcondor

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
	"github.com/padme-exp/prodctl/pkg/retry"
)

// jobStatus is HTCondor's own JobStatus ClassAd attribute: 1=Idle,
// 2=Running, 3=Removed, 4=Completed, 5=Held, 6=Transferring output,
// 7=Suspended.
const (
	condorIdle         = 1
	condorRunning      = 2
	condorRemoved      = 3
	condorCompleted    = 4
	condorHeld         = 5
	condorTransferring = 6
	condorSuspended    = 7
)

// ToolPaths names the condor_* binaries this adapter invokes.
type ToolPaths struct {
	Submit         string
	Query          string
	Remove         string
	TransferData   string
	History        string
}

// RetryBudget bounds submission and status-query retries.
type RetryBudget struct {
	SubmissionMax   int
	SubmissionDelay time.Duration
	RetriesMax      int
	RetriesDelay    time.Duration
}

// Adapter is the CeAdapter implementation talking directly to HTCondor.
type Adapter struct {
	endpoint string
	tools    ToolPaths
	runner   runner.CommandRunner
	budget   RetryBudget
}

// New returns an Adapter targeting the schedd named by endpoint.
func New(endpoint string, tools ToolPaths, r runner.CommandRunner, budget RetryBudget) *Adapter {
	return &Adapter{endpoint: endpoint, tools: tools, runner: r, budget: budget}
}

func (a *Adapter) Endpoint() string { return a.endpoint }

func (a *Adapter) Submit(ctx context.Context, jobWorkingDir string) (string, error) {
	var ceJobID string
	submissionMax := a.budget.SubmissionMax
	if submissionMax <= 0 {
		submissionMax = 5
	}
	delay := a.budget.SubmissionDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	policy := retry.NewFixedDelay(submissionMax, delay).
		WithRetryable(retry.RetryableOnKind(perrors.Transient, perrors.Timeout))

	descriptor := filepath.Join(jobWorkingDir, "condor.sub")
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result, err := a.runner.Run(ctx, pctx.OpSubmit, a.tools.Submit, "-pool", a.endpoint, "-terse", descriptor)
		if err != nil {
			return err
		}
		id, err := parseTerseClusterID(result.Stdout)
		if err != nil {
			return perrors.Wrap(perrors.Permanent, "ceadapter.submit", "could not parse condor_submit -terse output", err)
		}
		ceJobID = id
		return nil
	})
	return ceJobID, err
}

// parseTerseClusterID extracts the leading "<cluster>.<proc>" token that
// `condor_submit -terse` prints on success, e.g. "14158503.0 - 14158503.0".
func parseTerseClusterID(stdout string) (string, error) {
	line := strings.TrimSpace(stdout)
	if line == "" {
		return "", errEmptyOutput
	}
	return strings.Fields(line)[0], nil
}

func (a *Adapter) Status(ctx context.Context, ceJobID string) (ceadapter.StatusReport, error) {
	var report ceadapter.StatusReport
	retriesMax := a.budget.RetriesMax
	if retriesMax <= 0 {
		retriesMax = 3
	}
	delay := a.budget.RetriesDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	policy := retry.NewFixedDelay(retriesMax, delay).
		WithRetryable(retry.RetryableOnKind(perrors.Transient, perrors.Timeout))

	clusterID := clusterIDOf(ceJobID)
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result, err := a.runner.Run(ctx, pctx.OpStatus, a.tools.Query, "-pool", a.endpoint, "-long", clusterID)
		if err != nil {
			return err
		}
		ads, parseErr := ReadClassAds(strings.NewReader(result.Stdout))
		if parseErr != nil {
			return perrors.Wrap(perrors.Permanent, "ceadapter.status", "could not parse condor_q -long output", parseErr)
		}
		if len(ads) == 0 {
			// condor_q erases completed/removed jobs quickly; fall back
			// to condor_history before giving up.
			histResult, histErr := a.runner.Run(ctx, pctx.OpStatus, a.tools.History, "-long", clusterID)
			if histErr == nil {
				if histAds, e := ReadClassAds(strings.NewReader(histResult.Stdout)); e == nil && len(histAds) > 0 {
					report = reportFromAd(histAds[0])
					return nil
				}
			}
			report = ceadapter.StatusReport{Status: ceadapter.StatusCancelled}
			return nil
		}
		report = reportFromAd(ads[0])
		return nil
	})
	return report, err
}

func reportFromAd(ad ClassAd) ceadapter.StatusReport {
	report := ceadapter.StatusReport{
		WorkerNode: ad.String("LastRemoteHost"),
		LocalUser:  ad.String("Owner"),
	}
	if exit, ok := ad.Int("ExitStatus"); ok {
		report.ExitCode = &exit
	}

	status, _ := ad.Int("JobStatus")
	switch status {
	case condorIdle:
		report.Status = ceadapter.StatusIdle
	case condorRunning:
		report.Status = ceadapter.StatusReallyRunning
	case condorRemoved:
		report.Status = ceadapter.StatusCancelled
	case condorCompleted:
		if report.ExitCode != nil && *report.ExitCode == 0 {
			report.Status = ceadapter.StatusDoneOk
		} else {
			report.Status = ceadapter.StatusDoneFailed
		}
	case condorHeld:
		report.Status = ceadapter.StatusHeld
	case condorTransferring:
		report.Status = ceadapter.StatusTransferringOutput
	case condorSuspended:
		report.Status = ceadapter.StatusSuspended
	default:
		report.Status = ceadapter.StatusUndef
	}
	return report
}

func (a *Adapter) FetchOutput(ctx context.Context, ceJobID, destDir string) error {
	_, err := a.runner.Run(ctx, pctx.OpFetchOutput, a.tools.TransferData, "-pool", a.endpoint, clusterIDOf(ceJobID), "-output-dir", destDir)
	return err
}

func (a *Adapter) Purge(ctx context.Context, ceJobID string) error {
	// HTCondor reclaims queue slots itself once a job leaves the queue;
	// nothing to purge beyond the transfer already performed.
	return nil
}

func (a *Adapter) Cancel(ctx context.Context, ceJobID string) error {
	_, err := a.runner.Run(ctx, pctx.OpCancel, a.tools.Remove, "-pool", a.endpoint, clusterIDOf(ceJobID))
	return err
}

func clusterIDOf(ceJobID string) string {
	return ceJobID
}

var errEmptyOutput = emptyOutputError{}

type emptyOutputError struct{}

func (emptyOutputError) Error() string { return "htcondor: condor_submit produced no output" }

var _ ceadapter.CeAdapter = (*Adapter)(nil)
