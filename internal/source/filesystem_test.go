package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemResolveRelativeRoot(t *testing.T) {
	fs := &Filesystem{Root: "../shared", Sub: "assets", Symlink: false}

	resolved, err := fs.Resolve(context.Background(), "/home/user/project")
	require.NoError(t, err)
	defer resolved.Close()

	assert.Equal(t, filepath.Join("/home/user/project", "../shared", "assets"), resolved.Path)
	assert.Equal(t, "filesystem:../shared", resolved.Display)
	assert.False(t, resolved.Symlink)
	assert.Nil(t, resolved.Git)
}

func TestFilesystemResolveAbsoluteRoot(t *testing.T) {
	dir := t.TempDir()
	fs := &Filesystem{Root: dir, Symlink: true}

	resolved, err := fs.Resolve(context.Background(), "/elsewhere")
	require.NoError(t, err)
	defer resolved.Close()

	assert.Equal(t, dir, resolved.Path)
	assert.True(t, resolved.Symlink)
}

func TestFilesystemDocumentRoundTrip(t *testing.T) {
	fs := &Filesystem{Root: "../shared", Sub: "AGENTS.md", Symlink: true}

	doc := fs.Document()
	assert.Equal(t, "filesystem", doc["type"])

	parsed, err := NewRegistry().Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, fs, parsed)
}

func TestGitDocumentRoundTrip(t *testing.T) {
	git := &Git{Repo: "https://github.com/example/repo.git", Ref: "v1.2", Shallow: false, Sub: "skills"}

	parsed, err := NewRegistry().Parse(git.Document())
	require.NoError(t, err)
	assert.Equal(t, git, parsed)
}

func TestResolvedCloseIdempotent(t *testing.T) {
	calls := 0
	r := &Resolved{cleanup: func() error { calls++; return nil }}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, calls)

	// No cleanup registered is fine too.
	require.NoError(t, (&Resolved{}).Close())
}

func TestPathNotFoundError(t *testing.T) {
	err := &PathNotFoundError{Path: "/tmp/missing"}
	assert.Equal(t, "source path not found: /tmp/missing", err.Error())
}
