// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package credential abstracts the two-tier credential model: a
// long-lived credential issued externally (lifetime in weeks) and a
// short-lived delegated credential (lifetime in hours) derived from it,
// used by CeAdapter and StorageAdapter for outbound calls.
package credential

import (
	"context"
	"time"
)

// Manager is the capability the Controller drives once per sweep.
// Issuance failures are not fatal to a sweep: CeAdapter/StorageAdapter
// calls that depend on a fresh credential will fail and be retried in a
// later sweep once issuance succeeds.
type Manager interface {
	// TimeLeft returns the remaining validity of the current delegated
	// credential, or zero if none has been issued yet.
	TimeLeft(ctx context.Context) (time.Duration, error)

	// EnsureValid issues a new delegated credential if TimeLeft is below
	// threshold. Returns whether a new credential was issued.
	EnsureValid(ctx context.Context, threshold time.Duration) (issued bool, err error)

	// Issue unconditionally refreshes the delegated credential.
	Issue(ctx context.Context) error

	// Locator returns the filesystem path (or store handle) the issued
	// delegated credential can currently be read from, for adapters that
	// need to pass it to an external binary.
	Locator() string
}
