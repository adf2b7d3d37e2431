// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package memcat is an in-memory Catalog used by controller and JobFSM
// tests, and by the front-end dry-run mode. It enforces the same
// invariants the pg implementation relies on the database's unique
// constraints for (production-name uniqueness, contiguous submit
// indices) so property tests exercise real invariant-checking code.
package memcat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/padme-exp/prodctl/internal/catalog"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

// Catalog is the in-memory catalog.Catalog implementation.
type Catalog struct {
	mu sync.Mutex

	nextProdID int64
	nextJobID  int64
	nextSubID  int64
	nextFileID int64

	productions map[int64]*catalog.Production
	namesToID   map[string]int64
	jobs        map[int64]*catalog.Job
	jobsByProd  map[int64][]int64
	submissions map[int64]*catalog.JobSubmission
	subsByJob   map[int64][]int64
	files       map[int64]*catalog.OutputFile
}

// New returns an empty in-memory Catalog.
func New() *Catalog {
	return &Catalog{
		productions: make(map[int64]*catalog.Production),
		namesToID:   make(map[string]int64),
		jobs:        make(map[int64]*catalog.Job),
		jobsByProd:  make(map[int64][]int64),
		submissions: make(map[int64]*catalog.JobSubmission),
		subsByJob:   make(map[int64][]int64),
		files:       make(map[int64]*catalog.OutputFile),
	}
}

func (c *Catalog) CreateProduction(ctx context.Context, p *catalog.Production) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.namesToID[p.Name]; exists {
		return 0, perrors.New(perrors.Conflict, "catalog.createProduction", "production name already exists")
	}

	c.nextProdID++
	id := c.nextProdID
	copy := *p
	copy.ID = id
	if copy.CreatedAt.IsZero() {
		copy.CreatedAt = time.Now().UTC()
	}
	c.productions[id] = &copy
	c.namesToID[p.Name] = id
	return id, nil
}

func (c *Catalog) ProductionExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.namesToID[name]
	return ok, nil
}

func (c *Catalog) GetProductionID(ctx context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.namesToID[name]
	if !ok {
		return 0, perrors.New(perrors.Permanent, "catalog.getProductionId", "no such production")
	}
	return id, nil
}

func (c *Catalog) RenameProduction(ctx context.Context, productionID int64, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.productions[productionID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.renameProduction", "no such production")
	}
	if _, exists := c.namesToID[newName]; exists {
		return perrors.New(perrors.Conflict, "catalog.renameProduction", "production name already exists")
	}
	delete(c.namesToID, p.Name)
	p.Name = newName
	c.namesToID[newName] = productionID
	return nil
}

func (c *Catalog) ListProductionIDs(ctx context.Context) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.productions))
	for id := range c.productions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *Catalog) GetProductionInfo(ctx context.Context, id int64) (*catalog.Production, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.productions[id]
	if !ok {
		return nil, perrors.New(perrors.Permanent, "catalog.getProductionInfo", "no such production")
	}
	copy := *p
	return &copy, nil
}

func (c *Catalog) ListJobIDs(ctx context.Context, productionID int64) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := append([]int64(nil), c.jobsByProd[productionID]...)
	return ids, nil
}

func (c *Catalog) CreateJob(ctx context.Context, j *catalog.Job) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextJobID++
	id := c.nextJobID
	copy := *j
	copy.ID = id
	copy.Status = catalog.JobCreated
	if copy.CreatedAt.IsZero() {
		copy.CreatedAt = time.Now().UTC()
	}
	c.jobs[id] = &copy
	c.jobsByProd[j.ProductionID] = append(c.jobsByProd[j.ProductionID], id)
	return id, nil
}

func (c *Catalog) GetJob(ctx context.Context, jobID int64) (*catalog.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return nil, perrors.New(perrors.Permanent, "catalog.getJob", "no such job")
	}
	copy := *j
	return &copy, nil
}

func (c *Catalog) CreateJobSubmission(ctx context.Context, jobID int64, index int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.subsByJob[jobID]
	if len(existing) != index {
		return 0, perrors.New(perrors.Permanent, "catalog.createJobSubmission", "submit_index is not contiguous")
	}

	c.nextSubID++
	id := c.nextSubID
	c.submissions[id] = &catalog.JobSubmission{
		ID:          id,
		JobID:       jobID,
		SubmitIndex: index,
		Status:      catalog.SubUnsubmitted,
	}
	c.subsByJob[jobID] = append(c.subsByJob[jobID], id)
	return id, nil
}

func (c *Catalog) mustSub(subID int64) (*catalog.JobSubmission, error) {
	s, ok := c.submissions[subID]
	if !ok {
		return nil, perrors.New(perrors.Permanent, "catalog.submission", "no such submission")
	}
	return s, nil
}

func (c *Catalog) SetJobSubmitted(ctx context.Context, subID int64, ceJobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.CeJobID = ceJobID
	s.Status = catalog.SubRegistered
	now := time.Now().UTC()
	s.TimeSubmit = &now
	return nil
}

func (c *Catalog) SetJobSubmitStatus(ctx context.Context, subID int64, status catalog.SubmissionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.Status = status
	return nil
}

func (c *Catalog) SetJobWorkerNode(ctx context.Context, subID int64, node string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.WorkerNode = node
	return nil
}

func (c *Catalog) SetJobWnUser(ctx context.Context, subID int64, user string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.WnUser = user
	return nil
}

func (c *Catalog) SetJobWnDir(ctx context.Context, subID int64, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.WnDir = dir
	return nil
}

func (c *Catalog) SetJobTimeStart(ctx context.Context, subID int64, when *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.TimeSubmit = when
	return nil
}

func (c *Catalog) SetJobTimeEnd(ctx context.Context, subID int64, when *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.TimeComplete = when
	return nil
}

func (c *Catalog) SetRunTimeStart(ctx context.Context, subID int64, when *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.RunStart = when
	return nil
}

func (c *Catalog) SetRunTimeEnd(ctx context.Context, subID int64, when *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.RunEnd = when
	return nil
}

func (c *Catalog) SetJobNFiles(ctx context.Context, jobID int64, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.setJobNFiles", "no such job")
	}
	j.NFiles = n
	return nil
}

func (c *Catalog) SetJobNEvents(ctx context.Context, jobID int64, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.setJobNEvents", "no such job")
	}
	j.NEvents = n
	return nil
}

func (c *Catalog) CloseJob(ctx context.Context, jobID int64, terminal catalog.JobStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.closeJob", "no such job")
	}
	j.Status = terminal
	return nil
}

func (c *Catalog) SetJobStatus(ctx context.Context, jobID int64, status catalog.JobStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.setJobStatus", "no such job")
	}
	j.Status = status
	return nil
}

func (c *Catalog) CloseJobSubmission(ctx context.Context, subID int64, final catalog.SubmissionStatus, description string, exitCode *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.mustSub(subID)
	if err != nil {
		return err
	}
	s.Status = final
	s.Description = description
	s.ExitCode = exitCode
	now := time.Now().UTC()
	s.TimeComplete = &now
	return nil
}

func (c *Catalog) GetLatestSubmission(ctx context.Context, jobID int64) (*catalog.JobSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.subsByJob[jobID]
	if len(ids) == 0 {
		return nil, nil
	}
	s := c.submissions[ids[len(ids)-1]]
	copy := *s
	return &copy, nil
}

func (c *Catalog) ListSubmissions(ctx context.Context, jobID int64) ([]*catalog.JobSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.subsByJob[jobID]
	out := make([]*catalog.JobSubmission, 0, len(ids))
	for _, id := range ids {
		copy := *c.submissions[id]
		out = append(out, &copy)
	}
	return out, nil
}

func (c *Catalog) SetProdJobNumbers(ctx context.Context, productionID int64, ok, fail int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, exists := c.productions[productionID]
	if !exists {
		return perrors.New(perrors.Permanent, "catalog.setProdJobNumbers", "no such production")
	}
	p.NJobsOk = ok
	p.NJobsFail = fail
	return nil
}

func (c *Catalog) SetProdNEvents(ctx context.Context, productionID int64, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.productions[productionID]
	if !ok {
		return perrors.New(perrors.Permanent, "catalog.setProdNEvents", "no such production")
	}
	p.NEvents = n
	return nil
}

func (c *Catalog) GetProdTotalEvents(ctx context.Context, productionID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, jobID := range c.jobsByProd[productionID] {
		j := c.jobs[jobID]
		if j.Status == catalog.JobSuccessful {
			total += j.NEvents
		}
	}
	return total, nil
}

func (c *Catalog) CloseProduction(ctx context.Context, productionID int64, ok, fail int, events int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, exists := c.productions[productionID]
	if !exists {
		return perrors.New(perrors.Permanent, "catalog.closeProduction", "no such production")
	}
	p.NJobsOk = ok
	p.NJobsFail = fail
	p.NEvents = events
	now := time.Now().UTC()
	p.ClosedAt = &now
	return nil
}

func (c *Catalog) CreateJobFile(ctx context.Context, f *catalog.OutputFile) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.files {
		if existing.JobID == f.JobID && existing.Name == f.Name {
			return 0, perrors.New(perrors.Conflict, "catalog.createJobFile", "file already recorded for job")
		}
	}
	c.nextFileID++
	id := c.nextFileID
	copy := *f
	copy.ID = id
	c.files[id] = &copy
	return id, nil
}

var _ catalog.Catalog = (*Catalog)(nil)
