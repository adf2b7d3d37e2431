// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package local implements credential.Manager by re-issuing the
// delegated credential from a long-lived credential file using an
// external proxy-init binary (voms-proxy-init and equivalents), writing
// the result atomically so CeAdapter/StorageAdapter readers never
// observe a half-written file.
package local

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	pctx "github.com/padme-exp/prodctl/pkg/context"

	"github.com/padme-exp/prodctl/internal/runner"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

// Manager is the local-reissuance credential.Manager.
type Manager struct {
	runner         runner.CommandRunner
	clock          pclock.Clock
	proxyInitPath  string
	longLivedPath  string
	delegatedPath  string
	validity       time.Duration

	mu       sync.Mutex
	issuedAt time.Time
}

// New returns a Manager that re-issues delegatedPath from longLivedPath
// using proxyInitPath, each delegated credential valid for validity.
func New(r runner.CommandRunner, clock pclock.Clock, proxyInitPath, longLivedPath, delegatedPath string, validity time.Duration) *Manager {
	return &Manager{
		runner:        r,
		clock:         clock,
		proxyInitPath: proxyInitPath,
		longLivedPath: longLivedPath,
		delegatedPath: delegatedPath,
		validity:      validity,
	}
}

func (m *Manager) TimeLeft(ctx context.Context) (time.Duration, error) {
	m.mu.Lock()
	issuedAt := m.issuedAt
	m.mu.Unlock()

	if issuedAt.IsZero() {
		return 0, nil
	}
	left := m.validity - m.clock.Now().Sub(issuedAt)
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (m *Manager) EnsureValid(ctx context.Context, threshold time.Duration) (bool, error) {
	left, err := m.TimeLeft(ctx)
	if err != nil {
		return false, err
	}
	if left >= threshold {
		return false, nil
	}
	if err := m.Issue(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) Issue(ctx context.Context) error {
	tmp := m.delegatedPath + ".tmp"
	_, err := m.runner.Run(ctx, pctx.OpCredentialIssue, m.proxyInitPath,
		"-cert", m.longLivedPath, "-out", tmp, "-valid", validityArg(m.validity))
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Chmod(tmp, 0600); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, m.delegatedPath); err != nil {
		os.Remove(tmp)
		return err
	}

	m.mu.Lock()
	m.issuedAt = m.clock.Now()
	m.mu.Unlock()
	return nil
}

func (m *Manager) Locator() string {
	return m.delegatedPath
}

// validityArg renders a duration as the "HH:MM" format voms-proxy-init
// and myproxy-logon expect for -valid.
func validityArg(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
