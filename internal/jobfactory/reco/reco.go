// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package reco builds reconstruction productions: raw input files for a
// run are chunked into groups of filesPerJob and one job is created per
// chunk, grounded on how PadmeRecoProd lays out a reconstruction
// production's jobs.
package reco

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/jobfactory"
)

const (
	DefaultFilesPerJob = 10
	MaxFilesPerJob     = 1000
)

// Spec describes one reconstruction production request.
type Spec struct {
	RunName        string
	Year           string
	Name           string
	Version        string
	Description    string
	FilesPerJob    int
	CeList         []string
	StorageURI     string
	StorageDir     string
	CredentialName string
	CredentialFile string

	// PayloadScript is the reconstruction payload run by every job.
	PayloadScript []byte

	// InputFiles is the run's full sorted, deduplicated raw-file list,
	// already resolved to their source URIs.
	InputFiles []string

	ProdDir string
}

// Factory builds a Spec's jobs and Production row.
type Factory struct {
	cat  catalog.Catalog
	spec Spec
}

// New constructs a Factory for spec, applying the default/max
// filesPerJob bounds.
func New(cat catalog.Catalog, spec Spec) (*Factory, error) {
	if spec.FilesPerJob <= 0 {
		spec.FilesPerJob = DefaultFilesPerJob
	}
	if spec.FilesPerJob > MaxFilesPerJob {
		return nil, fmt.Errorf("reco: files per job %d exceeds maximum of %d", spec.FilesPerJob, MaxFilesPerJob)
	}
	if len(spec.InputFiles) == 0 {
		return nil, fmt.Errorf("reco: run %s has no input files to reconstruct", spec.RunName)
	}
	return &Factory{cat: cat, spec: spec}, nil
}

// CreateProduction inserts the Production row, then one Job row (and
// on-disk job directory) per chunk of filesPerJob raw input files.
func (f *Factory) CreateProduction(ctx context.Context) (int64, error) {
	chunks := chunk(f.spec.InputFiles, f.spec.FilesPerJob)

	prodID, err := f.cat.CreateProduction(ctx, &catalog.Production{
		Name:           f.spec.Name,
		Description:    f.spec.Description,
		Version:        f.spec.Version,
		CeList:         f.spec.CeList,
		StorageURI:     f.spec.StorageURI,
		StorageDir:     f.spec.StorageDir,
		WorkingDir:     f.spec.ProdDir,
		CredentialName: f.spec.CredentialName,
		NJobs:          len(chunks),
	})
	if err != nil {
		return 0, fmt.Errorf("reco: create production: %w", err)
	}

	for i, files := range chunks {
		name := jobfactory.JobName(i)
		jobDir := filepath.Join(f.spec.ProdDir, name)
		plan := jobfactory.JobPlan{Name: name, InputFiles: files}

		if err := jobfactory.Materialize(jobDir, f.spec.PayloadScript, "", files, f.spec.CredentialFile); err != nil {
			return 0, err
		}
		if _, err := jobfactory.RegisterJob(ctx, f.cat, prodID, plan, jobDir, ""); err != nil {
			return 0, fmt.Errorf("reco: register job %s: %w", name, err)
		}
	}

	return prodID, nil
}

// chunk splits files into groups of at most size, preserving order.
func chunk(files []string, size int) [][]string {
	var chunks [][]string
	for len(files) > 0 {
		n := size
		if n > len(files) {
			n = len(files)
		}
		chunks = append(chunks, files[:n])
		files = files[n:]
	}
	return chunks
}

var _ jobfactory.Factory = (*Factory)(nil)
