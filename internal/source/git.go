package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bianoble/aps/internal/lock"
	"github.com/bianoble/aps/internal/logging"
)

// RefAuto is the sentinel ref meaning "try the primary branch name,
// then fall back to the secondary default".
const RefAuto = "auto"

var autoBranches = []string{"main", "master"}

// Git is a git repository source. Resolution clones into a temporary
// directory whose lifetime is tied to the returned Resolved; link-based
// installs are never permitted because the clone is ephemeral.
type Git struct {
	// Repo is the repository URL (SSH or HTTPS).
	Repo string

	// Ref is a branch, tag, or RefAuto.
	Ref string

	// Shallow requests a depth-1 clone.
	Shallow bool

	// Sub is an optional path within the repository.
	Sub string
}

// ParseGit builds a Git source from its document form.
func ParseGit(doc map[string]any) (Adapter, error) {
	repo, err := stringField(doc, "repo")
	if err != nil {
		return nil, fmt.Errorf("parsing git source: %w", err)
	}
	if repo == "" {
		// "url" is accepted as an alias for "repo".
		repo, err = stringField(doc, "url")
		if err != nil {
			return nil, fmt.Errorf("parsing git source: %w", err)
		}
	}
	if repo == "" {
		return nil, fmt.Errorf("parsing git source: 'repo' is required")
	}

	ref, err := stringField(doc, "ref")
	if err != nil {
		return nil, fmt.Errorf("parsing git source: %w", err)
	}
	if ref == "" {
		ref = RefAuto
	}

	shallow, err := boolField(doc, "shallow", true)
	if err != nil {
		return nil, fmt.Errorf("parsing git source: %w", err)
	}

	sub, err := stringField(doc, "path")
	if err != nil {
		return nil, fmt.Errorf("parsing git source: %w", err)
	}

	return &Git{Repo: repo, Ref: ref, Shallow: shallow, Sub: sub}, nil
}

func (g *Git) Type() string { return "git" }

func (g *Git) DisplayName() string { return g.Repo }

func (g *Git) Path() string {
	if g.Sub == "" {
		return "."
	}
	return g.Sub
}

// SupportsSymlink is always false: the clone is removed after install,
// so links into it would dangle.
func (g *Git) SupportsSymlink() bool { return false }

func (g *Git) Resolve(ctx context.Context, baseDir string) (*Resolved, error) {
	log := logging.GetLogger("source.git")
	log.Info().Str("repo", g.Repo).Str("ref", g.Ref).Msg("fetching from git")

	tmpDir, err := os.MkdirTemp("", "aps-git-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for clone: %w", err)
	}

	resolvedRef, err := g.clone(ctx, tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}

	commit, err := gitRevParse(ctx, tmpDir, "HEAD")
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("resolving commit for %s: %w", g.Repo, err)
	}
	log.Debug().Str("ref", resolvedRef).Str("commit", commit).Msg("clone resolved")

	path := tmpDir
	if sub := g.Path(); sub != "." {
		path = filepath.Join(tmpDir, sub)
	}

	return &Resolved{
		Path:    path,
		Display: g.DisplayName(),
		Git:     &GitInfo{ResolvedRef: resolvedRef, Commit: commit},
		Symlink: false,
		cleanup: func() error { return os.RemoveAll(tmpDir) },
	}, nil
}

// clone materializes the repository into dest and returns the ref that
// was actually checked out.
func (g *Git) clone(ctx context.Context, dest string) (string, error) {
	refs := []string{g.Ref}
	if g.Ref == RefAuto {
		refs = autoBranches
	}

	var lastErr error
	for _, ref := range refs {
		if err := gitClone(ctx, g.Repo, ref, dest, g.Shallow); err != nil {
			lastErr = err
			// A failed clone may leave a partial checkout behind.
			_ = os.RemoveAll(dest)
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return "", fmt.Errorf("recreating clone dir: %w", err)
			}
			continue
		}
		return ref, nil
	}

	return "", fmt.Errorf("cloning %s (tried %v): %w", g.Repo, refs, lastErr)
}

// RemoteChanged probes the remote tip with ls-remote and compares it to
// the locked commit, avoiding a full clone when nothing moved.
func (g *Git) RemoteChanged(ctx context.Context, locked *lock.Entry) (bool, bool, error) {
	if locked == nil || locked.Commit == "" {
		return false, false, nil
	}

	refs := []string{g.Ref}
	if g.Ref == RefAuto {
		refs = autoBranches
	}

	for _, ref := range refs {
		commit, err := gitLsRemote(ctx, g.Repo, ref)
		if err != nil {
			continue
		}
		if commit == "" {
			continue
		}
		return commit != locked.Commit, true, nil
	}

	return false, false, nil
}

func (g *Git) Document() map[string]any {
	doc := map[string]any{
		"type":    "git",
		"repo":    g.Repo,
		"ref":     g.Ref,
		"shallow": g.Shallow,
	}
	if g.Sub != "" {
		doc["path"] = g.Sub
	}
	return doc
}

func gitClone(ctx context.Context, repo, ref, dest string, shallow bool) error {
	args := []string{"clone"}
	if shallow {
		args = append(args, "--depth", "1")
	}
	args = append(args, "--branch", ref, "--single-branch", repo, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone of %s at %s failed: %s: %w", repo, ref, strings.TrimSpace(string(output)), err)
	}
	return nil
}

func gitRevParse(ctx context.Context, repoDir, rev string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "rev-parse", rev)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s in %s failed: %w", rev, repoDir, withStderr(err))
	}
	return strings.TrimSpace(string(output)), nil
}

func gitLsRemote(ctx context.Context, repo, ref string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-remote", repo, ref)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git ls-remote %s %s failed: %w", repo, ref, withStderr(err))
	}
	fields := strings.Fields(strings.TrimSpace(string(output)))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// withStderr folds the captured stderr of a failed git invocation into
// the error, since Output keeps it off the error message.
func withStderr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(exitErr.Stderr)), err)
	}
	return err
}
