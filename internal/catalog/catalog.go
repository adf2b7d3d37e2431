// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package catalog defines the narrow CRUD interface the controller uses
// as its durable store, plus the row types it reads and writes. Two
// implementations are provided: memcat (in-memory, for tests and the
// in-process dry-run mode) and pg (database/sql over
// github.com/jackc/pgx/v5/stdlib for production use).
package catalog

import (
	"context"
	"time"
)

// Catalog is the interface every component of the controller depends on
// for durable state. Every method transparently reconnects on a broken
// session up to a fixed attempt budget before returning an error with
// Kind Unavailable; callers never see reconnection.
type Catalog interface {
	// CreateProduction inserts the base production row and returns its id.
	// Fails with Conflict if name already exists.
	CreateProduction(ctx context.Context, p *Production) (int64, error)

	ProductionExists(ctx context.Context, name string) (bool, error)
	GetProductionID(ctx context.Context, name string) (int64, error)
	GetProductionInfo(ctx context.Context, id int64) (*Production, error)
	ListJobIDs(ctx context.Context, productionID int64) ([]int64, error)

	// RenameProduction renames a production's catalog row in place, used
	// by the rename-with-collision-suffix delete recipe.
	RenameProduction(ctx context.Context, productionID int64, newName string) error

	// ListProductionIDs returns every production's id, for commands that
	// sweep the whole catalog (e.g. report-jobs).
	ListProductionIDs(ctx context.Context) ([]int64, error)

	CreateJob(ctx context.Context, j *Job) (int64, error)
	GetJob(ctx context.Context, jobID int64) (*Job, error)

	// CreateJobSubmission inserts a submission row at status Unsubmitted.
	// The caller supplies index; the Catalog trusts it is the next
	// contiguous value for this Job.
	CreateJobSubmission(ctx context.Context, jobID int64, index int) (int64, error)
	SetJobSubmitted(ctx context.Context, subID int64, ceJobID string) error

	SetJobSubmitStatus(ctx context.Context, subID int64, status SubmissionStatus) error
	SetJobWorkerNode(ctx context.Context, subID int64, node string) error
	SetJobWnUser(ctx context.Context, subID int64, user string) error
	SetJobWnDir(ctx context.Context, subID int64, dir string) error
	SetJobTimeStart(ctx context.Context, subID int64, when *time.Time) error
	SetJobTimeEnd(ctx context.Context, subID int64, when *time.Time) error
	SetRunTimeStart(ctx context.Context, subID int64, when *time.Time) error
	SetRunTimeEnd(ctx context.Context, subID int64, when *time.Time) error
	SetJobNFiles(ctx context.Context, jobID int64, n int) error
	SetJobNEvents(ctx context.Context, jobID int64, n int64) error

	// CloseJob writes the terminal coarse status. The job row has no
	// completion timestamp; only submissions record time_complete.
	CloseJob(ctx context.Context, jobID int64, terminal JobStatus) error
	SetJobStatus(ctx context.Context, jobID int64, status JobStatus) error

	// CloseJobSubmission stamps time_complete and the final fine status.
	CloseJobSubmission(ctx context.Context, subID int64, final SubmissionStatus, description string, exitCode *int) error

	GetLatestSubmission(ctx context.Context, jobID int64) (*JobSubmission, error)
	ListSubmissions(ctx context.Context, jobID int64) ([]*JobSubmission, error)

	SetProdJobNumbers(ctx context.Context, productionID int64, ok, fail int) error
	SetProdNEvents(ctx context.Context, productionID int64, n int64) error
	GetProdTotalEvents(ctx context.Context, productionID int64) (int64, error)
	CloseProduction(ctx context.Context, productionID int64, ok, fail int, events int64) error

	CreateJobFile(ctx context.Context, f *OutputFile) (int64, error)
}
