// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package pg is the production Catalog implementation: database/sql over
// github.com/jackc/pgx/v5/stdlib. Every exported method wraps its query
// in a bounded reconnect loop so the rest of the controller never
// observes a broken session, only a (possibly eventual) Unavailable.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/padme-exp/prodctl/internal/catalog"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

//go:embed schema.sql
var schemaFS embed.FS

// Config names the connection parameters and reconnect budget.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	ReconnectMax   int
	ReconnectDelay time.Duration
}

// Catalog is the pg-backed catalog.Catalog implementation.
type Catalog struct {
	db             *sql.DB
	reconnectMax   int
	reconnectDelay time.Duration
}

// Open connects to the database named by cfg and ensures the schema
// exists. The caller is responsible for calling Close.
func Open(ctx context.Context, cfg Config) (*Catalog, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, perrors.Wrap(perrors.Unavailable, "catalog.open", "failed to open connection", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, perrors.Wrap(perrors.Unavailable, "catalog.open", "failed to reach catalog", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, perrors.Wrap(perrors.Unavailable, "catalog.open", "failed to apply schema", err)
	}

	max := cfg.ReconnectMax
	if max <= 0 {
		max = 100
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}

	return &Catalog{db: db, reconnectMax: max, reconnectDelay: delay}, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error { return c.db.Close() }

// withRetry runs fn, retrying on a broken session up to reconnectMax
// times with reconnectDelay between attempts. fn's own error is returned
// unchanged when it is not a connectivity failure (e.g. a unique
// violation surfaces immediately as Conflict).
func (c *Catalog) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.reconnectMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			return perrors.ClassifyCatalog(op, err, true)
		}
		if !isConnectivityError(err) {
			return err
		}
		lastErr = err
		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return perrors.ClassifyCatalog(op, lastErr, false)
}

func isConnectivityError(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var padmeErr *perrors.PadmeError
	if errors.Is(err, sql.ErrNoRows) || errors.As(err, &padmeErr) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx is the SQLSTATE class for connection exceptions.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (c *Catalog) CreateProduction(ctx context.Context, p *catalog.Production) (int64, error) {
	var id int64
	err := c.withRetry(ctx, "catalog.createProduction", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			INSERT INTO productions
				(name, description, user_name, events_requested, version, ce_list,
				 storage_uri, storage_dir, working_dir, credential_name, n_jobs)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id`,
			p.Name, p.Description, p.User, p.EventsRequested, p.Version,
			strings.Join(p.CeList, ","), p.StorageURI, p.StorageDir, p.WorkingDir,
			p.CredentialName, p.NJobs,
		).Scan(&id)
	})
	return id, err
}

func (c *Catalog) ProductionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.withRetry(ctx, "catalog.productionExists", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM productions WHERE name=$1)`, name).Scan(&exists)
	})
	return exists, err
}

func (c *Catalog) GetProductionID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.withRetry(ctx, "catalog.getProductionId", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `SELECT id FROM productions WHERE name=$1`, name).Scan(&id)
	})
	return id, err
}

func (c *Catalog) RenameProduction(ctx context.Context, productionID int64, newName string) error {
	return c.withRetry(ctx, "catalog.renameProduction", func(ctx context.Context) error {
		res, err := c.db.ExecContext(ctx, `UPDATE productions SET name=$1 WHERE id=$2`, newName, productionID)
		if err != nil {
			if isUniqueViolation(err) {
				return perrors.New(perrors.Conflict, "catalog.renameProduction", "production name already exists")
			}
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return perrors.New(perrors.Permanent, "catalog.renameProduction", "no such production")
		}
		return nil
	})
}

func (c *Catalog) ListProductionIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := c.withRetry(ctx, "catalog.listProductionIds", func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `SELECT id FROM productions ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		ids = nil
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (c *Catalog) GetProductionInfo(ctx context.Context, id int64) (*catalog.Production, error) {
	p := &catalog.Production{ID: id}
	var ceList string
	err := c.withRetry(ctx, "catalog.getProductionInfo", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			SELECT name, description, user_name, events_requested, version, ce_list,
			       storage_uri, storage_dir, working_dir, credential_name,
			       n_jobs, n_jobs_ok, n_jobs_fail, n_events, created_at, closed_at
			FROM productions WHERE id=$1`, id,
		).Scan(&p.Name, &p.Description, &p.User, &p.EventsRequested, &p.Version, &ceList,
			&p.StorageURI, &p.StorageDir, &p.WorkingDir, &p.CredentialName,
			&p.NJobs, &p.NJobsOk, &p.NJobsFail, &p.NEvents, &p.CreatedAt, &p.ClosedAt)
	})
	if err != nil {
		return nil, err
	}
	if ceList != "" {
		p.CeList = strings.Split(ceList, ",")
	}
	return p, nil
}

func (c *Catalog) ListJobIDs(ctx context.Context, productionID int64) ([]int64, error) {
	var ids []int64
	err := c.withRetry(ctx, "catalog.listJobIds", func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `SELECT id FROM jobs WHERE production_id=$1 ORDER BY id`, productionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		ids = nil
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (c *Catalog) CreateJob(ctx context.Context, j *catalog.Job) (int64, error) {
	var id int64
	inputFiles := strings.Join(j.InputFiles, ",")
	err := c.withRetry(ctx, "catalog.createJob", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			INSERT INTO jobs (production_id, name, working_dir, config, input_files, seed_a, seed_b, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,0)
			RETURNING id`,
			j.ProductionID, j.Name, j.WorkingDir, j.Config, inputFiles, j.SeedA, j.SeedB,
		).Scan(&id)
	})
	return id, err
}

func (c *Catalog) GetJob(ctx context.Context, jobID int64) (*catalog.Job, error) {
	j := &catalog.Job{ID: jobID}
	var inputFiles string
	var status int
	err := c.withRetry(ctx, "catalog.getJob", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			SELECT production_id, name, working_dir, config, input_files, seed_a, seed_b,
			       status, n_files, n_events, created_at
			FROM jobs WHERE id=$1`, jobID,
		).Scan(&j.ProductionID, &j.Name, &j.WorkingDir, &j.Config, &inputFiles, &j.SeedA, &j.SeedB,
			&status, &j.NFiles, &j.NEvents, &j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	if inputFiles != "" {
		j.InputFiles = strings.Split(inputFiles, ",")
	}
	j.Status = catalog.JobStatus(status)
	return j, nil
}

func (c *Catalog) CreateJobSubmission(ctx context.Context, jobID int64, index int) (int64, error) {
	var id int64
	err := c.withRetry(ctx, "catalog.createJobSubmission", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			INSERT INTO job_submissions (job_id, submit_index, status)
			VALUES ($1,$2,0)
			RETURNING id`, jobID, index,
		).Scan(&id)
	})
	return id, err
}

func (c *Catalog) SetJobSubmitted(ctx context.Context, subID int64, ceJobID string) error {
	return c.withRetry(ctx, "catalog.setJobSubmitted", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `
			UPDATE job_submissions SET ce_job_id=$1, status=1, time_submit=now() WHERE id=$2`,
			ceJobID, subID)
		return err
	})
}

func (c *Catalog) SetJobSubmitStatus(ctx context.Context, subID int64, status catalog.SubmissionStatus) error {
	return c.withRetry(ctx, "catalog.setJobSubmitStatus", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET status=$1 WHERE id=$2`, int(status), subID)
		return err
	})
}

func (c *Catalog) SetJobWorkerNode(ctx context.Context, subID int64, node string) error {
	return c.withRetry(ctx, "catalog.setJobWorkerNode", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET worker_node=$1 WHERE id=$2`, node, subID)
		return err
	})
}

func (c *Catalog) SetJobWnUser(ctx context.Context, subID int64, user string) error {
	return c.withRetry(ctx, "catalog.setJobWnUser", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET wn_user=$1 WHERE id=$2`, user, subID)
		return err
	})
}

func (c *Catalog) SetJobWnDir(ctx context.Context, subID int64, dir string) error {
	return c.withRetry(ctx, "catalog.setJobWnDir", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET wn_dir=$1 WHERE id=$2`, dir, subID)
		return err
	})
}

func (c *Catalog) SetJobTimeStart(ctx context.Context, subID int64, when *time.Time) error {
	return c.withRetry(ctx, "catalog.setJobTimeStart", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET time_submit=$1 WHERE id=$2`, when, subID)
		return err
	})
}

func (c *Catalog) SetJobTimeEnd(ctx context.Context, subID int64, when *time.Time) error {
	return c.withRetry(ctx, "catalog.setJobTimeEnd", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET time_complete=$1 WHERE id=$2`, when, subID)
		return err
	})
}

func (c *Catalog) SetRunTimeStart(ctx context.Context, subID int64, when *time.Time) error {
	return c.withRetry(ctx, "catalog.setRunTimeStart", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET run_start=$1 WHERE id=$2`, when, subID)
		return err
	})
}

func (c *Catalog) SetRunTimeEnd(ctx context.Context, subID int64, when *time.Time) error {
	return c.withRetry(ctx, "catalog.setRunTimeEnd", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE job_submissions SET run_end=$1 WHERE id=$2`, when, subID)
		return err
	})
}

func (c *Catalog) SetJobNFiles(ctx context.Context, jobID int64, n int) error {
	return c.withRetry(ctx, "catalog.setJobNFiles", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE jobs SET n_files=$1 WHERE id=$2`, n, jobID)
		return err
	})
}

func (c *Catalog) SetJobNEvents(ctx context.Context, jobID int64, n int64) error {
	return c.withRetry(ctx, "catalog.setJobNEvents", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE jobs SET n_events=$1 WHERE id=$2`, n, jobID)
		return err
	})
}

func (c *Catalog) CloseJob(ctx context.Context, jobID int64, terminal catalog.JobStatus) error {
	return c.withRetry(ctx, "catalog.closeJob", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE jobs SET status=$1 WHERE id=$2`, int(terminal), jobID)
		return err
	})
}

func (c *Catalog) SetJobStatus(ctx context.Context, jobID int64, status catalog.JobStatus) error {
	return c.withRetry(ctx, "catalog.setJobStatus", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE jobs SET status=$1 WHERE id=$2`, int(status), jobID)
		return err
	})
}

func (c *Catalog) CloseJobSubmission(ctx context.Context, subID int64, final catalog.SubmissionStatus, description string, exitCode *int) error {
	return c.withRetry(ctx, "catalog.closeJobSubmission", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `
			UPDATE job_submissions SET status=$1, description=$2, exit_code=$3, time_complete=now()
			WHERE id=$4`, int(final), description, exitCode, subID)
		return err
	})
}

func (c *Catalog) GetLatestSubmission(ctx context.Context, jobID int64) (*catalog.JobSubmission, error) {
	var s catalog.JobSubmission
	var status int
	found := false
	err := c.withRetry(ctx, "catalog.getLatestSubmission", func(ctx context.Context) error {
		row := c.db.QueryRowContext(ctx, `
			SELECT id, job_id, submit_index, ce_job_id, status, worker_node, wn_user, wn_dir,
			       description, exit_code, time_submit, time_complete, run_start, run_end
			FROM job_submissions WHERE job_id=$1 ORDER BY submit_index DESC LIMIT 1`, jobID)
		err := row.Scan(&s.ID, &s.JobID, &s.SubmitIndex, &s.CeJobID, &status, &s.WorkerNode, &s.WnUser,
			&s.WnDir, &s.Description, &s.ExitCode, &s.TimeSubmit, &s.TimeComplete, &s.RunStart, &s.RunEnd)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	s.Status = catalog.SubmissionStatus(status)
	return &s, nil
}

func (c *Catalog) ListSubmissions(ctx context.Context, jobID int64) ([]*catalog.JobSubmission, error) {
	var out []*catalog.JobSubmission
	err := c.withRetry(ctx, "catalog.listSubmissions", func(ctx context.Context) error {
		rows, err := c.db.QueryContext(ctx, `
			SELECT id, job_id, submit_index, ce_job_id, status, worker_node, wn_user, wn_dir,
			       description, exit_code, time_submit, time_complete, run_start, run_end
			FROM job_submissions WHERE job_id=$1 ORDER BY submit_index`, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var s catalog.JobSubmission
			var status int
			if err := rows.Scan(&s.ID, &s.JobID, &s.SubmitIndex, &s.CeJobID, &status, &s.WorkerNode,
				&s.WnUser, &s.WnDir, &s.Description, &s.ExitCode, &s.TimeSubmit, &s.TimeComplete,
				&s.RunStart, &s.RunEnd); err != nil {
				return err
			}
			s.Status = catalog.SubmissionStatus(status)
			out = append(out, &s)
		}
		return rows.Err()
	})
	return out, err
}

func (c *Catalog) SetProdJobNumbers(ctx context.Context, productionID int64, ok, fail int) error {
	return c.withRetry(ctx, "catalog.setProdJobNumbers", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE productions SET n_jobs_ok=$1, n_jobs_fail=$2 WHERE id=$3`, ok, fail, productionID)
		return err
	})
}

func (c *Catalog) SetProdNEvents(ctx context.Context, productionID int64, n int64) error {
	return c.withRetry(ctx, "catalog.setProdNEvents", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `UPDATE productions SET n_events=$1 WHERE id=$2`, n, productionID)
		return err
	})
}

func (c *Catalog) GetProdTotalEvents(ctx context.Context, productionID int64) (int64, error) {
	var total int64
	err := c.withRetry(ctx, "catalog.getProdTotalEvents", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(n_events),0) FROM jobs WHERE production_id=$1 AND status=2`, productionID,
		).Scan(&total)
	})
	return total, err
}

func (c *Catalog) CloseProduction(ctx context.Context, productionID int64, ok, fail int, events int64) error {
	return c.withRetry(ctx, "catalog.closeProduction", func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `
			UPDATE productions SET n_jobs_ok=$1, n_jobs_fail=$2, n_events=$3, closed_at=now() WHERE id=$4`,
			ok, fail, events, productionID)
		return err
	})
}

func (c *Catalog) CreateJobFile(ctx context.Context, f *catalog.OutputFile) (int64, error) {
	var id int64
	err := c.withRetry(ctx, "catalog.createJobFile", func(ctx context.Context) error {
		return c.db.QueryRowContext(ctx, `
			INSERT INTO output_files (job_id, name, type, sequence, n_events, bytes, adler32)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id`,
			f.JobID, f.Name, f.Type, f.Sequence, f.NEvents, f.Bytes, f.Adler32,
		).Scan(&id)
	})
	return id, err
}

var _ catalog.Catalog = (*Catalog)(nil)
