// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile provides mutual exclusion between controller
// processes for the same production via a PID file under the
// production directory, mirroring the "<name>.pid" lock the original
// daemon held with python-daemon's PIDLockFile. Its only contract is
// exclusion: acquiring twice for the same path must fail on the second
// attempt, whether daemonized or run in the foreground.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock holds an acquired PID lockfile; Release removes it.
type Lock struct {
	path string
	file *os.File
}

// Acquire creates path exclusively and writes the current process's PID
// into it. It fails if path already exists and names a process that is
// still alive; a file left behind by a crashed process (dead PID) is
// reclaimed automatically.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
		}
		if stale, staleErr := isStale(path); staleErr == nil && stale {
			if rmErr := os.Remove(path); rmErr != nil {
				return nil, fmt.Errorf("lockfile: remove stale lock %s: %w", path, rmErr)
			}
			return Acquire(path)
		}
		return nil, fmt.Errorf("lockfile: %s is held by another process", path)
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("lockfile: write pid to %s: %w", path, err)
	}
	return &Lock{path: path, file: f}, nil
}

// Release closes and removes the lockfile. It is safe to call once;
// calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.file.Close()
	err := os.Remove(l.path)
	l.file = nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: remove %s: %w", l.path, err)
	}
	return nil
}

// isStale reports whether the PID recorded in path no longer names a
// running process. A malformed or unreadable lockfile is never treated
// as stale, so a corrupted file can't be used to bypass exclusion.
func isStale(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true, nil
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes liveness
	// without actually signaling the process.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return true, nil
	}
	return false, nil
}
