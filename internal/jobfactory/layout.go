// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package jobfactory builds the on-disk job tree and Catalog rows a
// Production's jobs need before the Controller ever looks at them. Two
// flavors are provided (mc, reco); both share the directory layout in
// this file so the Controller and JobFSM never have to know which
// flavor produced a given job.
package jobfactory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/padme-exp/prodctl/internal/catalog"
)

const (
	ScriptName     = "job.sh"
	ConfigName     = "job.mac"
	ListName       = "job.list"
	CredentialName = "job.proxy"
)

// Factory is implemented by each production flavor's constructor-bound
// builder; its Spec type is flavor-specific and baked in at
// construction rather than threaded through this interface, since MC
// and Reco productions share almost no configuration fields.
type Factory interface {
	CreateProduction(ctx context.Context) (productionID int64, err error)
}

// JobPlan is one job's worth of material for Materialize: a name, the
// input-file list (empty for MC) and a seed pair (nil for Reco). It
// carries no expected event count; the count comes only from the
// finished job's own output.
type JobPlan struct {
	Name       string
	InputFiles []string
	SeedA      *int64
	SeedB      *int64
}

// Materialize lays down one job's directory: the payload script, an
// optional macro/config file, an optional input-file list, and a 0600
// copy of the production's long-lived credential. It mirrors the
// directory structure the payload originally built by hand (job.py,
// job.mac/job.list, job.proxy) one file at a time.
func Materialize(jobDir string, payloadScript []byte, config string, inputFiles []string, credentialSrc string) error {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("jobfactory: create job dir %s: %w", jobDir, err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, ScriptName), payloadScript, 0o755); err != nil {
		return fmt.Errorf("jobfactory: write %s: %w", ScriptName, err)
	}
	if config != "" {
		if err := os.WriteFile(filepath.Join(jobDir, ConfigName), []byte(config), 0o644); err != nil {
			return fmt.Errorf("jobfactory: write %s: %w", ConfigName, err)
		}
	}
	if len(inputFiles) > 0 {
		listing := strings.Join(inputFiles, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(jobDir, ListName), []byte(listing), 0o644); err != nil {
			return fmt.Errorf("jobfactory: write %s: %w", ListName, err)
		}
	}
	if credentialSrc != "" {
		if err := copyCredential(credentialSrc, filepath.Join(jobDir, CredentialName)); err != nil {
			return fmt.Errorf("jobfactory: copy credential into job dir: %w", err)
		}
	}
	return nil
}

func copyCredential(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RegisterJob creates the Catalog Job row for plan and returns its id.
// Flavor factories call this once per JobPlan after Materialize has
// written the job's directory.
func RegisterJob(ctx context.Context, cat catalog.Catalog, productionID int64, plan JobPlan, jobDir, config string) (int64, error) {
	return cat.CreateJob(ctx, &catalog.Job{
		ProductionID: productionID,
		Name:         plan.Name,
		WorkingDir:   jobDir,
		Config:       config,
		InputFiles:   plan.InputFiles,
		SeedA:        plan.SeedA,
		SeedB:        plan.SeedB,
	})
}

// JobName renders the "job%05d" convention both flavors use.
func JobName(index int) string {
	return fmt.Sprintf("job%05d", index)
}
