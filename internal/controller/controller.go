// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package controller runs the per-production sweep loop: once per
// cadence it ensures the delegated credential is fresh, lets every job
// of the production advance one step, rolls up coarse counters into the
// Production row, and sleeps with jitter before the next pass. It never
// talks to a CE or the filesystem directly; all of that is delegated to
// the JobFSMs it owns.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/credential"
	"github.com/padme-exp/prodctl/internal/jobfsm"
	"github.com/padme-exp/prodctl/internal/storageadapter"
	"github.com/padme-exp/prodctl/pkg/logging"
	"github.com/padme-exp/prodctl/pkg/metrics"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

const quitSentinel = "quit"

// SweepEvent is the coarse per-sweep snapshot a Controller reports to an
// optional StatusPublisher after every sweep. It mirrors the rollup
// counters persisted to the catalog, not the fine per-job detail a
// catalog query would return.
type SweepEvent struct {
	ProductionID int64
	Created      int
	Active       int
	Successful   int
	Failed       int
	Undef        int
	Quit         bool
}

// StatusPublisher receives one SweepEvent per completed sweep. It exists
// so a live status-stream layer (see pkg/statusstream) can sit on top of
// the sweep loop without the Controller importing anything about HTTP or
// websockets itself; a Controller built with a nil publisher simply
// never calls it.
type StatusPublisher interface {
	PublishSweep(event SweepEvent)
}

// Cadence bundles the sweep-timing knobs a Controller is constructed
// with; normally sourced from config.Config.
type Cadence struct {
	SweepDelay              time.Duration
	SweepJitter             time.Duration
	QuitDelay               time.Duration
	RenewalThreshold        time.Duration
	UndefEscalatorThreshold int
	WorkerPoolSize          int
}

// worker pairs one job's FSM with the CE endpoint assigned to it at
// construction; the assignment never changes for the lifetime of the
// Controller.
type worker struct {
	fsm *jobfsm.FSM
	ce  ceadapter.CeAdapter
}

// Controller owns one production's worth of JobFSMs and drives them
// through repeated sweeps until the production drains or the process is
// asked to stop.
type Controller struct {
	catalog    catalog.Catalog
	credential credential.Manager
	logger     logging.Logger
	clock      pclock.Clock
	random     pclock.Random
	cadence    Cadence
	collector  metrics.Collector
	publisher  StatusPublisher

	productionID int64
	prodDir      string

	workers []*worker

	quit             bool
	consecutiveUndef int
	lastOk, lastFail int
}

// New constructs a Controller for productionID, assigning each of the
// production's jobs one CE from ces in round-robin order starting at a
// random offset, so load spreads evenly across CE endpoints without
// every production favoring the same one first.
func New(
	ctx context.Context,
	cat catalog.Catalog,
	ces []ceadapter.CeAdapter,
	cred credential.Manager,
	storage storageadapter.StorageAdapter,
	logger logging.Logger,
	clock pclock.Clock,
	random pclock.Random,
	productionID int64,
	prodDir string,
	storageBaseURI string,
	resubmitMax int,
	resubmitCancelled bool,
	cadence Cadence,
	collector metrics.Collector,
	publisher StatusPublisher,
) (*Controller, error) {
	if len(ces) == 0 {
		return nil, fmt.Errorf("controller: at least one CeAdapter is required")
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	jobIDs, err := cat.ListJobIDs(ctx, productionID)
	if err != nil {
		return nil, fmt.Errorf("controller: list jobs: %w", err)
	}

	c := &Controller{
		catalog:      cat,
		credential:   cred,
		logger:       logger,
		clock:        clock,
		random:       random,
		cadence:      cadence,
		collector:    collector,
		publisher:    publisher,
		productionID: productionID,
		prodDir:      prodDir,
	}

	offset := random.Intn(len(ces))
	for i, jobID := range jobIDs {
		job, err := cat.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("controller: get job %d: %w", jobID, err)
		}
		ce := ces[(offset+i)%len(ces)]
		jobDir := filepath.Join(prodDir, job.Name)

		fsm, err := jobfsm.New(ctx, cat, ce, storage, logger.With("job", job.Name), job, jobDir, storageBaseURI, resubmitMax, resubmitCancelled)
		if err != nil {
			return nil, fmt.Errorf("controller: build fsm for job %s: %w", job.Name, err)
		}
		c.workers = append(c.workers, &worker{fsm: fsm, ce: ce})
	}

	return c, nil
}

// Run drives the sweep loop until the production drains (every job is
// terminal) or ctx is cancelled. On normal drain it closes the
// production with final rollup counters and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if c.credential != nil {
			if _, err := c.credential.EnsureValid(ctx, c.cadence.RenewalThreshold); err != nil {
				c.logger.Warn("credential renewal failed, continuing with current credential", "err", err)
			}
		}

		c.checkProdQuit()

		sweepStart := c.clock.Now()
		counts, err := c.sweep(ctx)
		if err != nil {
			return err
		}
		c.collector.RecordSweep(c.clock.Now().Sub(sweepStart))
		c.collector.RecordJobCounts(counts.created, counts.active, counts.ok, counts.fail, counts.undef)
		if c.publisher != nil {
			c.publisher.PublishSweep(SweepEvent{
				ProductionID: c.productionID,
				Created:      counts.created,
				Active:       counts.active,
				Successful:   counts.ok,
				Failed:       counts.fail,
				Undef:        counts.undef,
				Quit:         c.quit,
			})
		}

		if counts.ok != c.lastOk || counts.fail != c.lastFail {
			if err := c.catalog.SetProdJobNumbers(ctx, c.productionID, counts.ok, counts.fail); err != nil {
				c.logger.Warn("persisting job rollup failed", "err", err)
			} else {
				c.lastOk, c.lastFail = counts.ok, counts.fail
			}
			total, err := c.catalog.GetProdTotalEvents(ctx, c.productionID)
			if err != nil {
				c.logger.Warn("computing total events failed", "err", err)
			} else if err := c.catalog.SetProdNEvents(ctx, c.productionID, total); err != nil {
				c.logger.Warn("persisting total events failed", "err", err)
			}
		}

		c.logger.Info("sweep complete",
			"production", c.productionID,
			"created", counts.created, "active", counts.active,
			"successful", counts.ok, "failed", counts.fail, "undef", counts.undef,
			"quit", c.quit)

		if counts.created+counts.active+counts.undef == 0 {
			return c.shutdown(ctx)
		}

		if counts.undef > 0 {
			c.consecutiveUndef++
			if c.consecutiveUndef >= c.cadence.UndefEscalatorThreshold {
				c.logger.Warn("undef escalator threshold reached, quitting production", "threshold", c.cadence.UndefEscalatorThreshold)
				c.quitProduction()
			}
		} else {
			c.consecutiveUndef = 0
		}

		delay := c.cadence.SweepDelay
		if c.quit {
			delay = c.cadence.QuitDelay
		}
		c.clock.Sleep(delay + c.random.Uniform(c.cadence.SweepJitter+time.Second))
	}
}

type sweepCounts struct {
	created, active, ok, fail, undef int
}

// sweep advances every JobFSM once, bounded by WorkerPoolSize concurrent
// updates, and aggregates the resulting tokens. Each FSM is only ever
// driven by one goroutine at a time across the Controller's lifetime, so
// concurrent sweeps never race a single job against itself.
func (c *Controller) sweep(ctx context.Context) (sweepCounts, error) {
	poolSize := c.cadence.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}

	tokens := make([]jobfsm.Token, len(c.workers))
	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup

	for i, w := range c.workers {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, w *worker) {
			defer wg.Done()
			defer func() { <-sem }()
			tokens[i] = w.fsm.Update(ctx)
		}(i, w)
	}
	wg.Wait()

	var counts sweepCounts
	for _, tok := range tokens {
		switch tok {
		case jobfsm.TokenCreated:
			counts.created++
		case jobfsm.TokenActive:
			counts.active++
		case jobfsm.TokenSuccessful:
			counts.ok++
		case jobfsm.TokenFailed:
			counts.fail++
		default:
			counts.undef++
		}
	}
	return counts, nil
}

// checkProdQuit looks for the production-level quit sentinel and, if
// present, propagates it to every job regardless of that job's own
// sentinel.
func (c *Controller) checkProdQuit() {
	if c.quit {
		return
	}
	if _, err := os.Stat(filepath.Join(c.prodDir, quitSentinel)); err == nil {
		c.quitProduction()
	}
}

func (c *Controller) quitProduction() {
	c.quit = true
	for _, w := range c.workers {
		w.fsm.SetQuit()
	}
}

func (c *Controller) shutdown(ctx context.Context) error {
	total, err := c.catalog.GetProdTotalEvents(ctx, c.productionID)
	if err != nil {
		c.logger.Warn("final total-events computation failed", "err", err)
	}
	if err := c.catalog.CloseProduction(ctx, c.productionID, c.lastOk, c.lastFail, total); err != nil {
		return fmt.Errorf("controller: close production: %w", err)
	}
	c.logger.Info("production closed", "production", c.productionID, "ok", c.lastOk, "fail", c.lastFail, "events", total)
	return nil
}
