// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

type fakeRunner struct {
	calls int
	args  []string
}

func (f *fakeRunner) Run(ctx context.Context, op pctx.OperationType, name string, args ...string) (runner.Result, error) {
	f.calls++
	f.args = args
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			os.WriteFile(args[i+1], []byte("fetched"), 0600)
		}
	}
	return runner.Result{ExitCode: 0}, nil
}

func TestIssueFetchesFromStore(t *testing.T) {
	dir := t.TempDir()
	delegated := filepath.Join(dir, "name.voms")
	r := &fakeRunner{}
	clock := pclock.NewFake(time.Now())

	m := New(r, clock, "myproxy-logon", delegated, time.Hour, StoreCoordinates{
		Server: "myproxy.padme.lnf.infn.it", Port: 7512, Name: "mc2026a",
	})

	require.NoError(t, m.Issue(context.Background()))
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, r.args, "myproxy.padme.lnf.infn.it")
	assert.Contains(t, r.args, "7512")

	content, err := os.ReadFile(delegated)
	require.NoError(t, err)
	assert.Equal(t, "fetched", string(content))
}

func TestPortStringDefault(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	m := New(r, pclock.NewFake(time.Now()), "myproxy-logon", filepath.Join(dir, "name.voms"), time.Hour, StoreCoordinates{})
	require.NoError(t, m.Issue(context.Background()))
	assert.Contains(t, r.args, "7512")
}
