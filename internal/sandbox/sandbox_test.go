package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinBase(t *testing.T) {
	base := t.TempDir()

	resolved, err := ValidatePath(base, "subdir/file.txt")
	require.NoError(t, err)

	realBase, _ := filepath.EvalSymlinks(base)
	assert.Equal(t, filepath.Join(realBase, "subdir/file.txt"), resolved)
}

func TestValidatePathRejectsEscape(t *testing.T) {
	base := t.TempDir()

	for _, target := range []string{"../escape.txt", "subdir/../../escape.txt"} {
		_, err := ValidatePath(base, target)
		require.Error(t, err, target)
		assert.Contains(t, err.Error(), "outside the base directory")
	}
}

func TestValidatePathSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not reliable on Windows")
	}

	base := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(base, "escape-link")))
	_, err := ValidatePath(base, "escape-link/file.txt")
	require.Error(t, err, "symlink pointing outside must be rejected")

	realDir := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	require.NoError(t, os.Symlink(realDir, filepath.Join(base, "link")))

	resolved, err := ValidatePath(base, "link/file.txt")
	require.NoError(t, err, "internal symlinks are allowed")
	realBase, _ := filepath.EvalSymlinks(base)
	assert.Equal(t, filepath.Join(realBase, "real", "file.txt"), resolved)
}

func TestSafeWrite(t *testing.T) {
	base := t.TempDir()

	require.NoError(t, SafeWrite(base, "sub/a.txt", []byte("one"), 0o644))
	realBase, _ := filepath.EvalSymlinks(base)
	data, err := os.ReadFile(filepath.Join(realBase, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	// Overwrite is atomic from the reader's perspective.
	require.NoError(t, SafeWrite(base, "sub/a.txt", []byte("two"), 0o644))
	data, err = os.ReadFile(filepath.Join(realBase, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	// No stray temp files remain.
	entries, err := os.ReadDir(filepath.Join(realBase, "sub"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.Error(t, SafeWrite(base, "../escape.txt", []byte("x"), 0o644))
}

func TestSafeRemoveAll(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, SafeWrite(base, "dir/nested/file.txt", []byte("x"), 0o644))

	require.NoError(t, SafeRemoveAll(base, "dir"))
	realBase, _ := filepath.EvalSymlinks(base)
	_, err := os.Stat(filepath.Join(realBase, "dir"))
	assert.True(t, os.IsNotExist(err))

	require.Error(t, SafeRemoveAll(base, "."), "base directory itself is protected")
	require.Error(t, SafeRemoveAll(base, "../sibling"))
}

func TestSafeMkdirAll(t *testing.T) {
	base := t.TempDir()

	require.NoError(t, SafeMkdirAll(base, "a/b/c", 0o755))
	realBase, _ := filepath.EvalSymlinks(base)
	info, err := os.Stat(filepath.Join(realBase, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.Error(t, SafeMkdirAll(base, "../evil", 0o755))
}

func TestSafeRemove(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, SafeWrite(base, "f.txt", []byte("x"), 0o644))
	require.NoError(t, SafeRemove(base, "f.txt"))

	require.Error(t, SafeRemove(base, "f.txt"), "removing a missing file errors")
	require.Error(t, SafeRemove(base, "../other"))
}
