// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMkdirCreatesNestedDirs(t *testing.T) {
	a := New()
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, a.Mkdir(context.Background(), dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStatReportsExistence(t *testing.T) {
	a := New()
	dir := t.TempDir()
	present := filepath.Join(dir, "present.root")
	writeFile(t, present, "data")

	exists, err := a.Stat(context.Background(), present)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = a.Stat(context.Background(), filepath.Join(dir, "absent.root"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCopyWithoutCollision(t *testing.T) {
	a := New()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.root")
	dst := filepath.Join(dir, "dst.root")
	writeFile(t, src, "payload")

	require.NoError(t, a.Copy(context.Background(), src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

// TestCopyCollisionIdempotence verifies the `.NN` collision-avoidance law:
// after K repeated copy(src, dst) calls, the archive holds dst plus
// dst.00..dst.(K-2), exactly K named copies, none overwritten.
func TestCopyCollisionIdempotence(t *testing.T) {
	a := New()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.root")
	dst := filepath.Join(dir, "dst.root")
	writeFile(t, src, "v0")

	const repetitions = 4
	for i := 0; i < repetitions; i++ {
		writeFile(t, src, "v"+string(rune('0'+i)))
		require.NoError(t, a.Copy(context.Background(), src, dst))
	}

	names := []string{dst, dst + ".00", dst + ".01", dst + ".02"}
	for _, name := range names {
		_, err := os.Stat(name)
		require.NoErrorf(t, err, "expected %s to exist", name)
	}

	// dst always holds the most recent copy; earlier copies are preserved
	// under the .NN suffixes in the order they were displaced.
	newest, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v3", string(newest))

	oldest, err := os.ReadFile(dst + ".00")
	require.NoError(t, err)
	assert.Equal(t, "v0", string(oldest))

	middle, err := os.ReadFile(dst + ".02")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(middle))
}

func TestRenameMovesFile(t *testing.T) {
	a := New()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.root")
	dst := filepath.Join(dir, "b.root")
	writeFile(t, src, "x")

	require.NoError(t, a.Rename(context.Background(), src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst)
	require.NoError(t, err)
}
