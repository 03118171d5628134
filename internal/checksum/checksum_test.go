package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestComputeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	writeFile(t, path, "v1")

	sum, err := Compute(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sum, "sha256:"))

	again, err := Compute(path)
	require.NoError(t, err)
	assert.Equal(t, sum, again)

	writeFile(t, path, "v2")
	changed, err := Compute(path)
	require.NoError(t, err)
	assert.NotEqual(t, sum, changed)
}

func TestComputeDirectoryStableAcrossCopies(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	for _, root := range []string{a, b} {
		writeFile(t, filepath.Join(root, "rules", "go.md"), "use gofmt")
		writeFile(t, filepath.Join(root, "rules", "py.md"), "use black")
		writeFile(t, filepath.Join(root, "README.md"), "docs")
	}

	sumA, err := Compute(a)
	require.NoError(t, err)
	sumB, err := Compute(b)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB, "content-identical trees must fingerprint identically")
}

func TestComputeDirectorySensitivity(t *testing.T) {
	base := func(t *testing.T) string {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.md"), "alpha")
		writeFile(t, filepath.Join(root, "sub", "b.md"), "beta")
		return root
	}

	root := base(t)
	orig, err := Compute(root)
	require.NoError(t, err)

	t.Run("byte change", func(t *testing.T) {
		root := base(t)
		writeFile(t, filepath.Join(root, "a.md"), "alphA")
		sum, err := Compute(root)
		require.NoError(t, err)
		assert.NotEqual(t, orig, sum)
	})

	t.Run("rename", func(t *testing.T) {
		root := base(t)
		require.NoError(t, os.Rename(filepath.Join(root, "a.md"), filepath.Join(root, "c.md")))
		sum, err := Compute(root)
		require.NoError(t, err)
		assert.NotEqual(t, orig, sum)
	})

	t.Run("added file", func(t *testing.T) {
		root := base(t)
		writeFile(t, filepath.Join(root, "extra.md"), "gamma")
		sum, err := Compute(root)
		require.NoError(t, err)
		assert.NotEqual(t, orig, sum)
	})

	t.Run("removed file", func(t *testing.T) {
		root := base(t)
		require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.md")))
		sum, err := Compute(root)
		require.NoError(t, err)
		assert.NotEqual(t, orig, sum)
	})
}

func TestComputeIgnoresGitMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "alpha")

	before, err := Compute(root)
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, ".git", "objects", "xx"), "blob")

	after, err := Compute(root)
	require.NoError(t, err)
	assert.Equal(t, before, after, "changes under .git must not affect the fingerprint")
}

func TestComputeMissingPath(t *testing.T) {
	_, err := Compute(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestString(t *testing.T) {
	sum := String("hello")
	assert.True(t, strings.HasPrefix(sum, "sha256:"))
	assert.Equal(t, sum, String("hello"))
	assert.NotEqual(t, sum, String("hello!"))

	// A file with identical bytes hashes the same as the string form.
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, "hello")
	fileSum, err := Compute(path)
	require.NoError(t, err)
	assert.Equal(t, sum, fileSum)
}
