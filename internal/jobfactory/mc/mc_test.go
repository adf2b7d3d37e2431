// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package mc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/catalog/memcat"
	"github.com/padme-exp/prodctl/internal/jobfactory"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

func TestCreateProductionWritesOneJobDirPerJob(t *testing.T) {
	cat := memcat.New()
	prodDir := t.TempDir()
	random := pclock.NewFake(time.Now())
	random.SetSequence(111, 222)

	f, err := New(cat, random, Spec{
		Name: "mc1", NJobs: 2, Version: "v1",
		PayloadScript: []byte("#!/bin/sh\necho hi\n"),
		ProdDir:       prodDir,
	})
	require.NoError(t, err)

	prodID, err := f.CreateProduction(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"job00000", "job00001"} {
		info, err := os.Stat(filepath.Join(prodDir, name, jobfactory.ScriptName))
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}

	ids, err := cat.ListJobIDs(context.Background(), prodID)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	job, err := cat.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	require.NotNil(t, job.SeedA)
	require.NotNil(t, job.SeedB)
}

func TestNewRejectsShortSeedList(t *testing.T) {
	cat := memcat.New()
	random := pclock.NewFake(time.Now())

	_, err := New(cat, random, Spec{Name: "mc1", NJobs: 3, SeedList: []string{"1,2"}})
	assert.Error(t, err)
}

func TestCreateProductionUsesSuppliedSeedPairs(t *testing.T) {
	cat := memcat.New()
	prodDir := t.TempDir()
	random := pclock.NewFake(time.Now())

	f, err := New(cat, random, Spec{
		Name: "mc2", NJobs: 1, ProdDir: prodDir,
		PayloadScript: []byte("#!/bin/sh\n"),
		SeedList:      []string{"111,222"},
	})
	require.NoError(t, err)

	prodID, err := f.CreateProduction(context.Background())
	require.NoError(t, err)

	ids, err := cat.ListJobIDs(context.Background(), prodID)
	require.NoError(t, err)
	job, err := cat.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(111), *job.SeedA)
	assert.Equal(t, int64(222), *job.SeedB)
}
