package packaging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyTreeDepthBound(t *testing.T) {
	// One real directory level more than the bound allows.
	src := t.TempDir()
	dir := src
	for i := 0; i <= maxCopyDepth; i++ {
		dir = filepath.Join(dir, "d")
		require.NoError(t, os.Mkdir(dir, 0o755))
	}

	err := copyTree(src, filepath.Join(t.TempDir(), "dst"), maxCopyDepth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum directory depth")
}

func TestCopyTreeWithinDepthBound(t *testing.T) {
	src := t.TempDir()
	dir := src
	for i := 0; i < maxCopyDepth-1; i++ {
		dir = filepath.Join(dir, "d")
		require.NoError(t, os.Mkdir(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaf.txt"), []byte("hi"), 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, copyTree(src, dst, maxCopyDepth))

	rel, err := filepath.Rel(src, filepath.Join(dir, "leaf.txt"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dst, rel))
}

func TestCopyTreeSymlinkCycle(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644))
	// A symlink back to the root makes the tree infinitely deep. Whether
	// the kernel's link-resolution limit or the depth bound fires first,
	// the copy must fail rather than recurse forever.
	require.NoError(t, os.Symlink(src, filepath.Join(src, "loop")))

	err := copyTree(src, filepath.Join(t.TempDir(), "dst"), maxCopyDepth)
	require.Error(t, err)
}

func TestCopyFilePreservesMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(src, []byte("KEY"), 0o600))

	dst := filepath.Join(t.TempDir(), "key-copy")
	require.NoError(t, copyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(data))
}
