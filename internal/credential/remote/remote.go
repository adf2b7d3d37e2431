// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements credential.Manager by fetching the
// delegated credential from a network credential store (myproxy-logon
// and equivalents) rather than re-issuing it from a local long-lived
// credential file. Per-CE delegation list bookkeeping that some CE
// protocol versions require is kept internal to the adapter that needs
// it and is not exposed on credential.Manager.
package remote

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/padme-exp/prodctl/internal/runner"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

// StoreCoordinates names the network credential store to fetch from.
type StoreCoordinates struct {
	Server     string
	Port       int
	Name       string
	Passphrase string
}

// Manager is the remote-fetch credential.Manager.
type Manager struct {
	runner        runner.CommandRunner
	clock         pclock.Clock
	logonPath     string
	delegatedPath string
	validity      time.Duration
	store         StoreCoordinates

	mu       sync.Mutex
	issuedAt time.Time
}

// New returns a Manager that fetches delegatedPath from store using
// logonPath (myproxy-logon or equivalent), each fetch valid for validity.
func New(r runner.CommandRunner, clock pclock.Clock, logonPath, delegatedPath string, validity time.Duration, store StoreCoordinates) *Manager {
	return &Manager{
		runner:        r,
		clock:         clock,
		logonPath:     logonPath,
		delegatedPath: delegatedPath,
		validity:      validity,
		store:         store,
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
	_, err := m.runner.Run(ctx, pctx.OpCredentialIssue, m.logonPath,
		"-s", m.store.Server,
		"-p", portString(m.store.Port),
		"-l", m.store.Name,
		"-o", tmp,
	)
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

func portString(p int) string {
	if p == 0 {
		return "7512"
	}
	return strconv.Itoa(p)
}
