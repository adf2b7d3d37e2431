// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package storageadapter abstracts archival storage operations
// (mkdir/stat/rename/copy). Two implementations are provided: exec
// (shells out to gfal-* or equivalent CLI tools via CommandRunner) and
// local (a filesystem-backed implementation used by tests and the
// single-site deployment mode).
package storageadapter

import (
	"context"
	"fmt"

	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

// StorageAdapter is the capability JobFSM's finalize step drives to copy
// retrieved output into archival storage.
type StorageAdapter interface {
	// Mkdir creates path and any missing parents; idempotent.
	Mkdir(ctx context.Context, path string) error

	// Stat reports whether uri exists.
	Stat(ctx context.Context, uri string) (exists bool, err error)

	// Rename moves uri to uri2.
	Rename(ctx context.Context, uri, uri2 string) error

	// Copy copies srcURI to dstURI. If dstURI already exists, Copy first
	// renames the incumbent out of the way using the `.NN` collision-
	// avoidance recipe (see ResolveCollision) before copying.
	Copy(ctx context.Context, srcURI, dstURI string) error
}

// MaxCollisionSuffix bounds the `.00`..`.99` rename attempts tried
// before a collision is Permanent.
const MaxCollisionSuffix = 100

// ResolveCollision returns the destination name dst should be renamed to
// before a new file may occupy its place: dst.00, or dst.01 if dst.00 is
// also taken (as reported by exists), and so on up to MaxCollisionSuffix
// suffixes. It never touches storage itself; callers drive exists.
func ResolveCollision(ctx context.Context, dst string, exists func(ctx context.Context, uri string) (bool, error)) (string, error) {
	for n := 0; n < MaxCollisionSuffix; n++ {
		candidate := suffixed(dst, n)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", perrors.New(perrors.Permanent, "storageadapter.resolvecollision",
		fmt.Sprintf("exhausted %d collision suffixes for %s", MaxCollisionSuffix, dst))
}

func suffixed(dst string, n int) string {
	return fmt.Sprintf("%s.%02d", dst, n)
}
