package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/aps/internal/lock"
)

// initLocalRepo builds a real repository with one commit on main and
// returns its path, for clone tests without network access.
func initLocalRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.invalid",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.invalid",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "rules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "rules", "go.md"), []byte("# Go rules\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return repo
}

func TestGitResolveLocalRepo(t *testing.T) {
	repo := initLocalRepo(t)

	g := &Git{Repo: repo, Ref: "main", Shallow: true}
	resolved, err := g.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)

	require.NotNil(t, resolved.Git)
	assert.Equal(t, "main", resolved.Git.ResolvedRef)
	assert.Len(t, resolved.Git.Commit, 40)
	assert.False(t, resolved.Symlink)

	data, err := os.ReadFile(filepath.Join(resolved.Path, "rules", "go.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Go rules\n", string(data))

	clonePath := resolved.Path
	require.NoError(t, resolved.Close())
	_, err = os.Stat(clonePath)
	assert.True(t, os.IsNotExist(err), "Close must release the temporary clone")
}

func TestGitResolveAutoRef(t *testing.T) {
	repo := initLocalRepo(t)

	g := &Git{Repo: repo, Ref: RefAuto, Shallow: true}
	resolved, err := g.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer resolved.Close()

	assert.Equal(t, "main", resolved.Git.ResolvedRef)
}

func TestGitResolveSubPath(t *testing.T) {
	repo := initLocalRepo(t)

	g := &Git{Repo: repo, Ref: "main", Shallow: true, Sub: "rules"}
	resolved, err := g.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer resolved.Close()

	data, err := os.ReadFile(filepath.Join(resolved.Path, "go.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Go rules\n", string(data))
}

func TestGitResolveBadRef(t *testing.T) {
	repo := initLocalRepo(t)

	g := &Git{Repo: repo, Ref: "does-not-exist", Shallow: true}
	_, err := g.Resolve(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestGitRevParseErrorIncludesStderr(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	// rev-parse in a directory with no repository fails with a
	// diagnostic on stderr; the error must carry it.
	_, err := gitRevParse(context.Background(), t.TempDir(), "HEAD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestGitLsRemoteErrorIncludesStderr(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	missing := filepath.Join(t.TempDir(), "no-such-repo")
	_, err := gitLsRemote(context.Background(), missing, "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-repo")
	assert.Contains(t, err.Error(), "fatal")
}

func TestGitRemoteChanged(t *testing.T) {
	repo := initLocalRepo(t)
	g := &Git{Repo: repo, Ref: "main", Shallow: true}

	resolved, err := g.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	commit := resolved.Git.Commit
	require.NoError(t, resolved.Close())

	// Probe with no locked state cannot tell.
	_, known, err := g.RemoteChanged(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, known)

	changed, known, err := g.RemoteChanged(context.Background(), &lock.Entry{Commit: commit})
	require.NoError(t, err)
	assert.True(t, known)
	assert.False(t, changed)

	changed, known, err = g.RemoteChanged(context.Background(), &lock.Entry{Commit: "0000000000000000000000000000000000000000"})
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, changed)
}
