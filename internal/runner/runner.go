// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package runner wraps external command execution for the adapters
// (CeAdapter, StorageAdapter, CredentialManager) that drive CLI-based
// grid middleware. It centralizes context-bounded exec.Command,
// stdout/stderr capture and exit-code classification so individual
// adapters don't each reimplement os/exec plumbing.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
	"github.com/padme-exp/prodctl/pkg/logging"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	Duration      time.Duration
	CorrelationID string
}

// CommandRunner executes external commands on behalf of an adapter,
// bounding each call with the timeout configured for its OperationType
// and classifying failures into the controller's error taxonomy.
type CommandRunner interface {
	// Run executes name with args, waiting up to the timeout configured
	// for op. A non-zero exit code is returned as a classified error;
	// Result is still populated so callers can inspect stderr for
	// diagnostics even on failure.
	Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (Result, error)
}

// Exec is the CommandRunner backed by os/exec. Each call is tagged with
// a fresh correlation id so a command's submit-time log line and its
// eventual status/fetch-output log lines can be grepped together even
// though they happen in different sweeps.
type Exec struct {
	Timeouts *pctx.OperationTimeouts
	Logger   logging.Logger
}

// NewExec returns an Exec runner using timeouts, or the package defaults
// when timeouts is nil, logging to log if non-nil.
func NewExec(timeouts *pctx.OperationTimeouts, log logging.Logger) *Exec {
	if timeouts == nil {
		timeouts = pctx.DefaultOperationTimeouts()
	}
	return &Exec{Timeouts: timeouts, Logger: log}
}

func (e *Exec) Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (Result, error) {
	runCtx, cancel := pctx.WithTimeout(ctx, op, e.Timeouts)
	defer cancel()

	correlationID := uuid.New().String()
	if e.Logger != nil {
		e.Logger.Debug("running external command", "correlation_id", correlationID, "command", commandLabel(name, args))
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		Duration:      time.Since(start),
		CorrelationID: correlationID,
	}

	if err == nil {
		result.ExitCode = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if e.Logger != nil {
		e.Logger.Debug("external command failed", "correlation_id", correlationID, "exit_code", result.ExitCode, "stderr", result.Stderr)
	}

	// A process killed because runCtx expired reports an *exec.ExitError;
	// classify it by the context error so a timeout is a Timeout.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return result, perrors.ClassifyCommand(commandLabel(name, args), err)
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

func commandLabel(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
