// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package local implements storageadapter.StorageAdapter directly against
// a local (or NFS-mounted) filesystem path, bypassing any CLI tooling.
// It backs the single-site deployment mode and the test suite, where
// URIs are plain filesystem paths rather than srm:// or gsiftp:// URLs.
package local

import (
	"context"
	"io"
	"os"

	"github.com/padme-exp/prodctl/internal/storageadapter"
	perrors "github.com/padme-exp/prodctl/pkg/errors"
)

// Adapter is the StorageAdapter implementation backed by os/io.
type Adapter struct{}

// New returns a filesystem-backed Adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return perrors.Wrap(classify(err), "storageadapter.mkdir", "could not create directory", err)
	}
	return nil
}

func (a *Adapter) Stat(ctx context.Context, uri string) (bool, error) {
	_, err := os.Stat(uri)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, perrors.Wrap(classify(err), "storageadapter.stat", "could not stat path", err)
}

func (a *Adapter) Rename(ctx context.Context, uri, uri2 string) error {
	if err := os.Rename(uri, uri2); err != nil {
		return perrors.Wrap(classify(err), "storageadapter.rename", "could not rename path", err)
	}
	return nil
}

// Copy copies srcURI to dstURI, first renaming any incumbent at dstURI
// out of the way using the `.NN` collision-avoidance recipe shared with
// the exec adapter.
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
	return a.copyFile(srcURI, dstURI)
}

func (a *Adapter) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return perrors.Wrap(classify(err), "storageadapter.copy", "could not open source", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return perrors.Wrap(classify(err), "storageadapter.copy", "could not create destination", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return perrors.Wrap(perrors.Transient, "storageadapter.copy", "copy failed partway", err)
	}
	return out.Close()
}

// classify maps a filesystem error to a Kind: ENOENT on the source or an
// unwritable destination is Permanent, anything else (disk full mid-copy,
// transient NFS hiccup) is Transient.
func classify(err error) perrors.Kind {
	if os.IsNotExist(err) || os.IsPermission(err) {
		return perrors.Permanent
	}
	return perrors.Transient
}

var _ storageadapter.StorageAdapter = (*Adapter)(nil)
