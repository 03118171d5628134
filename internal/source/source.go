// Package source resolves heterogeneous manifest sources into local
// content. Each source variant implements Adapter and is discovered
// through a Registry keyed by a type discriminator, so new variants can
// be added without touching the install engine.
package source

import (
	"context"
	"fmt"

	"github.com/bianoble/aps/internal/lock"
)

// Adapter is the capability set every source variant provides.
type Adapter interface {
	// Type is the registry discriminator ("filesystem", "git", ...).
	Type() string

	// DisplayName is the human-readable identity recorded in the
	// lockfile and shown in status output.
	DisplayName() string

	// Path is the sub-path within the source, "." when unset.
	Path() string

	// SupportsSymlink reports whether a link-based install is
	// permitted, as opposed to copying.
	SupportsSymlink() bool

	// Resolve materializes the source into a local path. The returned
	// Resolved owns any temporary resources; the caller must Close it
	// once the install step has finished reading.
	Resolve(ctx context.Context, baseDir string) (*Resolved, error)

	// Document returns the generic key/value form of this source,
	// including its "type" discriminator, for manifest round-tripping.
	Document() map[string]any
}

// RemoteProber is implemented by sources that can check for upstream
// changes without fetching content.
type RemoteProber interface {
	// RemoteChanged compares the upstream state against a locked
	// entry. known is false when the probe cannot tell.
	RemoteChanged(ctx context.Context, locked *lock.Entry) (changed bool, known bool, err error)
}

// GitInfo carries git-specific resolution results.
type GitInfo struct {
	ResolvedRef string
	Commit      string
}

// Resolved is a source materialized to a local path. It owns any
// backing temporary resource (such as a cloned working tree); the
// content under Path is only valid until Close is called.
type Resolved struct {
	// Path is the absolute local path to the content.
	Path string

	// Display mirrors the adapter's DisplayName.
	Display string

	// Git is set for git sources after resolution.
	Git *GitInfo

	// Symlink reports whether a link-based install is allowed for
	// this resolution. Always false for cloned content.
	Symlink bool

	cleanup func() error
}

// OnClose registers the release function invoked by Close, replacing
// any previously registered one.
func (r *Resolved) OnClose(fn func() error) {
	r.cleanup = fn
}

// Close releases any temporary resources backing the resolved content.
// Idempotent. Must not be called before the consumer is done reading
// from Path.
func (r *Resolved) Close() error {
	if r.cleanup == nil {
		return nil
	}
	fn := r.cleanup
	r.cleanup = nil
	return fn()
}

// PathNotFoundError reports a resolved source path that does not exist.
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("source path not found: %s", e.Path)
}
