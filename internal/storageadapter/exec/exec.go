// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package exec implements storageadapter.StorageAdapter by shelling out
// to gfal-* (or equivalent) CLI tools via a runner.CommandRunner. It is
// the production adapter used against grid storage elements reachable
// only through SRM/GridFTP-style command-line tooling.
package exec

import (
	"context"
	"time"

	"github.com/padme-exp/prodctl/internal/runner"
	"github.com/padme-exp/prodctl/internal/storageadapter"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
	"github.com/padme-exp/prodctl/pkg/retry"
)

// ToolPaths names the gfal-* (or equivalent) binaries this adapter
// invokes. Any entry may be left blank if that operation is never used.
type ToolPaths struct {
	Mkdir string
	Stat  string
	Move  string
	Copy  string
}

// RetryBudget bounds retries of the underlying copy/rename/stat calls.
type RetryBudget struct {
	RetriesMax   int
	RetriesDelay time.Duration
}

// Adapter is the StorageAdapter implementation driving CLI storage tools.
type Adapter struct {
	tools  ToolPaths
	runner runner.CommandRunner
	budget RetryBudget
}

// New returns an Adapter invoking tools through r.
func New(tools ToolPaths, r runner.CommandRunner, budget RetryBudget) *Adapter {
	return &Adapter{tools: tools, runner: r, budget: budget}
}

func (a *Adapter) policy() *retry.FixedDelay {
	retriesMax := a.budget.RetriesMax
	if retriesMax <= 0 {
		retriesMax = 3
	}
	delay := a.budget.RetriesDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return retry.NewFixedDelay(retriesMax, delay).
		WithRetryable(retry.RetryableOnKind(perrors.Transient, perrors.Timeout))
}

func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	return retry.Do(ctx, a.policy(), func(ctx context.Context) error {
		_, err := a.runner.Run(ctx, pctx.OpStorageCopy, a.tools.Mkdir, "-p", path)
		return err
	})
}

// Stat reports whether uri exists. A nonzero exit from the stat tool is
// treated as "does not exist" rather than an error, matching gfal-stat's
// own convention of failing when the target is absent.
func (a *Adapter) Stat(ctx context.Context, uri string) (bool, error) {
	var exists bool
	err := retry.Do(ctx, a.policy(), func(ctx context.Context) error {
		result, err := a.runner.Run(ctx, pctx.OpStorageStat, a.tools.Stat, uri)
		if err != nil {
			if result.ExitCode != 0 {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (a *Adapter) Rename(ctx context.Context, uri, uri2 string) error {
	return retry.Do(ctx, a.policy(), func(ctx context.Context) error {
		_, err := a.runner.Run(ctx, pctx.OpStorageRename, a.tools.Move, uri, uri2)
		return err
	})
}

// Copy copies srcURI to dstURI, first renaming any incumbent at dstURI
// out of the way using the `.NN` collision-avoidance recipe.
func (a *Adapter) Copy(ctx context.Context, srcURI, dstURI string) error {
	exists, err := a.Stat(ctx, dstURI)
	if err != nil {
		return err
	}
	if exists {
		collided, err := storageadapter.ResolveCollision(ctx, dstURI, a.Stat)
		if err != nil {
			return err
		}
		if err := a.Rename(ctx, dstURI, collided); err != nil {
			return err
		}
	}
	return retry.Do(ctx, a.policy(), func(ctx context.Context) error {
		_, err := a.runner.Run(ctx, pctx.OpStorageCopy, a.tools.Copy, srcURI, dstURI)
		return err
	})
}

var _ storageadapter.StorageAdapter = (*Adapter)(nil)
