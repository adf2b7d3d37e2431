// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements ceadapter.CeAdapter by shelling out to
// glite/Condor-style CLI tools (one submit/status/cancel/fetch-output/
// purge binary each, resolved from config.ToolPaths). It is the
// adapter for CE flavors that expose a command-line front end rather
// than a native protocol library.
package cli

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
	"github.com/padme-exp/prodctl/pkg/retry"
)

var errEmptyOutput = errors.New("ceadapter/cli: submit tool produced no output")

// ToolPaths names the binaries this adapter invokes.
type ToolPaths struct {
	Submit      string
	Status      string
	Cancel      string
	FetchOutput string
	Purge       string
}

// RetryBudget bounds submission and status-query retries.
type RetryBudget struct {
	SubmissionMax   int
	SubmissionDelay time.Duration
	RetriesMax      int
	RetriesDelay    time.Duration
}

// Adapter is the CLI-backed CeAdapter.
type Adapter struct {
	endpoint string
	tools    ToolPaths
	runner   runner.CommandRunner
	budget   RetryBudget
}

// New returns an Adapter targeting endpoint (host:port or site name,
// used only for logging and round-robin bookkeeping).
func New(endpoint string, tools ToolPaths, r runner.CommandRunner, budget RetryBudget) *Adapter {
	return &Adapter{endpoint: endpoint, tools: tools, runner: r, budget: budget}
}

func (a *Adapter) Endpoint() string { return a.endpoint }

func (a *Adapter) Submit(ctx context.Context, jobWorkingDir string) (string, error) {
	var ceJobID string
	policy := retry.NewFixedDelay(maxInt(a.budget.SubmissionMax, 1), timeOrDefault(a.budget.SubmissionDelay, 30*time.Second)).
		WithRetryable(retry.RetryableOnKind(perrors.Transient, perrors.Timeout))

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result, err := a.runner.Run(ctx, pctx.OpSubmit, a.tools.Submit, "-d", jobWorkingDir, "-e", a.endpoint)
		if err != nil {
			return err
		}
		id, err := parseSubmitOutput(result.Stdout)
		if err != nil {
			return perrors.Wrap(perrors.Permanent, "ceadapter.submit", "could not parse CE job id", err)
		}
		ceJobID = id
		return nil
	})
	return ceJobID, err
}

func (a *Adapter) Status(ctx context.Context, ceJobID string) (ceadapter.StatusReport, error) {
	var report ceadapter.StatusReport
	policy := retry.NewFixedDelay(maxInt(a.budget.RetriesMax, 1), timeOrDefault(a.budget.RetriesDelay, 10*time.Second)).
		WithRetryable(retry.RetryableOnKind(perrors.Transient, perrors.Timeout))

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result, err := a.runner.Run(ctx, pctx.OpStatus, a.tools.Status, ceJobID)
		if err != nil {
			return err
		}
		report = parseStatusOutput(result.Stdout)
		return nil
	})
	return report, err
}

func (a *Adapter) FetchOutput(ctx context.Context, ceJobID, destDir string) error {
	_, err := a.runner.Run(ctx, pctx.OpFetchOutput, a.tools.FetchOutput, ceJobID, "-o", destDir)
	return err
}

func (a *Adapter) Purge(ctx context.Context, ceJobID string) error {
	_, err := a.runner.Run(ctx, pctx.OpPurge, a.tools.Purge, ceJobID)
	return err
}

func (a *Adapter) Cancel(ctx context.Context, ceJobID string) error {
	_, err := a.runner.Run(ctx, pctx.OpCancel, a.tools.Cancel, ceJobID)
	return err
}

// parseSubmitOutput extracts the CE-assigned identifier from the
// submit tool's stdout: the last non-blank line, trimmed.
func parseSubmitOutput(stdout string) (string, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line, nil
		}
	}
	return "", errEmptyOutput
}

// parseStatusOutput maps the CLI status tool's "key: value" stdout into
// a StatusReport, with unrecognized status lexemes mapped to Undef. An
// empty result (no "Status:" line at all) maps to Cancelled, matching
// CE flavors where removal erases the record.
func parseStatusOutput(stdout string) ceadapter.StatusReport {
	fields := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if len(fields) == 0 {
		return ceadapter.StatusReport{Status: ceadapter.StatusCancelled}
	}

	report := ceadapter.StatusReport{
		Status:      normalizeStatus(fields["Status"]),
		WorkerNode:  fields["WorkerNode"],
		LocalUser:   fields["LocalUser"],
		Description: fields["Description"],
	}
	if raw, ok := fields["ExitCode"]; ok {
		if code, err := strconv.Atoi(raw); err == nil {
			report.ExitCode = &code
		}
	}
	return report
}

var statusLexemes = map[string]ceadapter.Status{
	"REGISTERED":          ceadapter.StatusRegistered,
	"PENDING":             ceadapter.StatusPending,
	"IDLE":                ceadapter.StatusIdle,
	"RUNNING":             ceadapter.StatusRunning,
	"REALLY-RUNNING":      ceadapter.StatusReallyRunning,
	"HELD":                ceadapter.StatusHeld,
	"DONE-OK":             ceadapter.StatusDoneOk,
	"DONE-FAILED":         ceadapter.StatusDoneFailed,
	"CANCELLED":           ceadapter.StatusCancelled,
	"ABORTED":             ceadapter.StatusAborted,
	"REMOVING":            ceadapter.StatusRemoving,
	"TRANSFERRING-OUTPUT": ceadapter.StatusTransferringOutput,
	"SUSPENDED":           ceadapter.StatusSuspended,
}

func normalizeStatus(native string) ceadapter.Status {
	if s, ok := statusLexemes[strings.ToUpper(strings.TrimSpace(native))]; ok {
		return s
	}
	return ceadapter.StatusUndef
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func timeOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

var _ ceadapter.CeAdapter = (*Adapter)(nil)
