// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package ceadapter hides the protocol spoken to a remote Computing
// Element behind a narrow interface. A single adapter instance targets
// one CE endpoint; JobFSM never talks to the CE directly. Two
// implementations are provided: cli (wraps arbitrary glite/Condor-style
// CLI submit/status/cancel tools) and htcondor (talks to HTCondor
// directly via condor_submit/condor_q/condor_rm and parses ClassAds).
package ceadapter

import "context"

// Status is the normalized CE status every adapter implementation must
// map its native lexemes onto. The mapping is a total function: an
// unrecognized native value always becomes Undef, never an error.
type Status string

const (
	StatusRegistered         Status = "Registered"
	StatusPending            Status = "Pending"
	StatusIdle               Status = "Idle"
	StatusRunning            Status = "Running"
	StatusReallyRunning      Status = "ReallyRunning"
	StatusHeld               Status = "Held"
	StatusDoneOk             Status = "DoneOk"
	StatusDoneFailed         Status = "DoneFailed"
	StatusCancelled          Status = "Cancelled"
	StatusAborted            Status = "Aborted"
	StatusRemoving           Status = "Removing"
	StatusTransferringOutput Status = "TransferringOutput"
	StatusSuspended          Status = "Suspended"
	StatusUnknown            Status = "Unknown"
	StatusUndef              Status = "Undef"
)

// StatusReport is the result of a status query.
type StatusReport struct {
	Status     Status
	ExitCode   *int
	WorkerNode string
	LocalUser  string
	Description string
}

// CeAdapter is the capability JobFSM drives for one CE endpoint.
// Methods never panic or raise a process-level failure; failures are
// returned as *perrors.PadmeError with a Kind the caller dispatches on.
type CeAdapter interface {
	// Submit invokes the CE's submit command against the descriptor in
	// jobWorkingDir and returns the CE-assigned job identifier. Retries
	// transient failures up to the adapter's configured submission
	// budget.
	Submit(ctx context.Context, jobWorkingDir string) (ceJobID string, err error)

	// Status queries the CE for ceJobID's current state. An empty result
	// (the CE has already erased the record) maps to Cancelled for CE
	// flavors where removal is destructive.
	Status(ctx context.Context, ceJobID string) (StatusReport, error)

	// FetchOutput downloads the CE-side sandbox for ceJobID into destDir.
	FetchOutput(ctx context.Context, ceJobID, destDir string) error

	// Purge best-effort releases CE-side resources for ceJobID.
	Purge(ctx context.Context, ceJobID string) error

	// Cancel best-effort requests remote cancellation of ceJobID.
	Cancel(ctx context.Context, ceJobID string) error

	// Endpoint identifies the CE this adapter targets, for logging and
	// round-robin assignment bookkeeping.
	Endpoint() string
}
