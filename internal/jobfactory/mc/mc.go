// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package mc builds simulation productions: one job per event range,
// each seeded with its own (seed1, seed2) pair, grounded on how
// PadmeMCProd/PadmeMCDB lay out a Monte Carlo production's jobs.
package mc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/jobfactory"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

// maxSeedValue matches the 32-bit unsigned range PadmeMCProd draws its
// random seed pairs from.
const maxSeedValue = 1 << 32

// Spec describes one simulation production request.
type Spec struct {
	Name            string
	Description     string
	User            string
	EventsRequested int64
	Version         string
	NJobs           int
	CeList          []string
	StorageURI      string
	StorageDir      string
	CredentialName  string
	CredentialFile  string // path to the long-lived credential to copy into each job

	// MacroPath is the G4 macro template copied verbatim into every job
	// as job.mac.
	MacroPath string

	// PayloadScript is the simulation payload run by every job.
	PayloadScript []byte

	// SeedList optionally supplies "<seed1>,<seed2>" pairs read from an
	// external list file; when shorter than NJobs, New returns an error
	// matching the source's own precondition check. Nil means generate
	// automatically.
	SeedList []string

	// ProdDir is the on-disk production root (prod/<version>/<name>).
	ProdDir string
}

// Factory builds a Spec's jobs and Production row.
type Factory struct {
	cat    catalog.Catalog
	random pclock.Random
	spec   Spec
}

// New constructs a Factory for spec. random supplies seed pairs when
// spec.SeedList is empty.
func New(cat catalog.Catalog, random pclock.Random, spec Spec) (*Factory, error) {
	if spec.NJobs <= 0 {
		return nil, fmt.Errorf("mc: number of jobs must be positive, got %d", spec.NJobs)
	}
	if len(spec.SeedList) > 0 && len(spec.SeedList) < spec.NJobs {
		return nil, fmt.Errorf("mc: seed list has %d pairs but %d are required", len(spec.SeedList), spec.NJobs)
	}
	return &Factory{cat: cat, random: random, spec: spec}, nil
}

// CreateProduction inserts the Production row, then one Job row (and
// on-disk job directory) per unit of simulated work.
func (f *Factory) CreateProduction(ctx context.Context) (int64, error) {
	macro, err := readFileOrEmpty(f.spec.MacroPath)
	if err != nil {
		return 0, fmt.Errorf("mc: read macro %s: %w", f.spec.MacroPath, err)
	}

	prodID, err := f.cat.CreateProduction(ctx, &catalog.Production{
		Name:            f.spec.Name,
		Description:     f.spec.Description,
		User:            f.spec.User,
		EventsRequested: f.spec.EventsRequested,
		Version:         f.spec.Version,
		CeList:          f.spec.CeList,
		StorageURI:      f.spec.StorageURI,
		StorageDir:      f.spec.StorageDir,
		WorkingDir:      f.spec.ProdDir,
		CredentialName:  f.spec.CredentialName,
		NJobs:           f.spec.NJobs,
	})
	if err != nil {
		return 0, fmt.Errorf("mc: create production: %w", err)
	}

	seeds := f.spec.SeedList
	for i := 0; i < f.spec.NJobs; i++ {
		name := jobfactory.JobName(i)
		jobDir := filepath.Join(f.spec.ProdDir, name)

		var seedA, seedB int64
		if i < len(seeds) {
			seedA, seedB, err = parseSeedPair(seeds[i])
			if err != nil {
				return 0, fmt.Errorf("mc: job %s: %w", name, err)
			}
		} else {
			seedA = int64(f.random.Intn(maxSeedValue))
			seedB = int64(f.random.Intn(maxSeedValue))
		}

		plan := jobfactory.JobPlan{Name: name, SeedA: &seedA, SeedB: &seedB}
		if err := jobfactory.Materialize(jobDir, f.spec.PayloadScript, macro, nil, f.spec.CredentialFile); err != nil {
			return 0, err
		}
		if _, err := jobfactory.RegisterJob(ctx, f.cat, prodID, plan, jobDir, macro); err != nil {
			return 0, fmt.Errorf("mc: register job %s: %w", name, err)
		}
	}

	return prodID, nil
}

func parseSeedPair(pair string) (int64, int64, error) {
	var a, b int64
	if _, err := fmt.Sscanf(pair, "%d,%d", &a, &b); err != nil {
		return 0, 0, fmt.Errorf("ill-formed seed pair %q: %w", pair, err)
	}
	return a, b, nil
}

func readFileOrEmpty(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b []byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		b = append(b, scanner.Bytes()...)
		b = append(b, '\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return string(b), nil
}

var _ jobfactory.Factory = (*Factory)(nil)
