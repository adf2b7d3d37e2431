// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "time"

// JobStatus is the coarse status stored on a Job row.
type JobStatus int

const (
	JobCreated JobStatus = iota
	JobActive
	JobSuccessful
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobCreated:
		return "Created"
	case JobActive:
		return "Active"
	case JobSuccessful:
		return "Successful"
	case JobFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a terminal coarse status.
func (s JobStatus) Terminal() bool {
	return s == JobSuccessful || s == JobFailed
}

// SubmissionStatus is the fine-grained status code stored on a
// JobSubmission row. The numeric values are part of the external
// reporting contract and must not be renumbered.
type SubmissionStatus int

const (
	SubUnsubmitted         SubmissionStatus = 0
	SubRegistered          SubmissionStatus = 1
	SubPending             SubmissionStatus = 2
	SubIdle                SubmissionStatus = 3
	SubRunning             SubmissionStatus = 4
	SubReallyRunning       SubmissionStatus = 5
	SubHeld                SubmissionStatus = 6
	SubDoneOk              SubmissionStatus = 7
	SubDoneFailed          SubmissionStatus = 8
	SubCancelled           SubmissionStatus = 9
	SubAborted             SubmissionStatus = 10
	SubUnknown             SubmissionStatus = 11
	SubUndef               SubmissionStatus = 12
	SubRemoving            SubmissionStatus = 13
	SubTransferringOutput  SubmissionStatus = 14
	SubSuspended           SubmissionStatus = 15
	SubSubmitFailed        SubmissionStatus = 100
	SubDoneOkOutputProblem SubmissionStatus = 107
	SubDoneFailedOutputProblem SubmissionStatus = 108
	SubCancelledOutputProblem  SubmissionStatus = 109
	SubDoneOkNonZeroRc     SubmissionStatus = 207
	SubDoneOkRuntimeProblem SubmissionStatus = 307
)

// Terminal is the closed set of fine statuses that end a Submission's
// lifecycle ("effective last" submission's fine status).
var terminalSubmissionStatuses = map[SubmissionStatus]bool{
	SubDoneOk:                  true,
	SubDoneFailed:              true,
	SubCancelled:               true,
	SubAborted:                 true,
	SubSubmitFailed:            true,
	SubDoneOkOutputProblem:     true,
	SubDoneFailedOutputProblem: true,
	SubCancelledOutputProblem:  true,
	SubDoneOkNonZeroRc:         true,
	SubDoneOkRuntimeProblem:    true,
}

// Terminal reports whether s ends a Submission's lifecycle.
func (s SubmissionStatus) Terminal() bool {
	return terminalSubmissionStatuses[s]
}

// Production is the immutable-identity-plus-mutable-rollup row described
// here. Flavor-specific fields (macro, run name, files-per-job, ...) live
// on the kind-specific row the front-ends populate through JobFactory and
// are not modeled here; the Controller only ever touches the base row.
type Production struct {
	ID             int64
	Name           string
	Description    string
	User           string
	EventsRequested int64
	Version        string
	CeList         []string
	StorageURI     string
	StorageDir     string
	WorkingDir     string
	CredentialName string
	NJobs          int
	NJobsOk        int
	NJobsFail      int
	NEvents        int64
	CreatedAt      time.Time
	ClosedAt       *time.Time
}

// Open reports whether the production has not yet been closed.
func (p *Production) Open() bool { return p.ClosedAt == nil }

// Job is a single unit of work belonging to a Production.
type Job struct {
	ID          int64
	ProductionID int64
	Name        string
	WorkingDir  string
	Config      string
	InputFiles  []string
	SeedA       *int64
	SeedB       *int64
	Status      JobStatus
	NFiles      int
	NEvents     int64
	CreatedAt   time.Time
}

// JobSubmission is one attempt to run a Job on a CE.
type JobSubmission struct {
	ID          int64
	JobID       int64
	SubmitIndex int
	CeJobID     string
	Status      SubmissionStatus
	WorkerNode  string
	WnUser      string
	WnDir       string
	Description string
	ExitCode    *int
	TimeSubmit  *time.Time
	TimeComplete *time.Time
	RunStart    *time.Time
	RunEnd      *time.Time
}

// OutputFile is a produced artifact recorded during finalization.
type OutputFile struct {
	ID       int64
	JobID    int64
	Name     string
	Type     string
	Sequence int
	NEvents  int64
	Bytes    int64
	Adler32  string
}
