// Package aps is the public Go library API for embedding aps in other
// programs.
//
// aps syncs agent assets (rule files, skill bundles, agent instruction
// files) from shared sources into a repository, driven by a manifest
// and made idempotent by a lockfile of content fingerprints.
//
// # Basic Usage
//
//	client, err := aps.New(aps.Options{ManifestPath: "aps.yaml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Sync everything the manifest declares
//	result, err := client.Pull(ctx, aps.PullOptions{Yes: true})
//
//	// Inspect sync state without touching anything
//	report, err := client.Status(ctx)
package aps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bianoble/aps/internal/catalog"
	"github.com/bianoble/aps/internal/install"
	"github.com/bianoble/aps/internal/lock"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/settings"
	"github.com/bianoble/aps/internal/source"
)

// Options configures a Client.
type Options struct {
	// ManifestPath locates the manifest. Empty means discover aps.yaml
	// or aps.toml by walking up from the working directory.
	ManifestPath string

	// Confirm decides whether a conflicting destination may be
	// overwritten. Defaults to refusing with a
	// ConfirmationRequiredError, the safe choice for embedding.
	Confirm func(dest string) (bool, error)

	// Output receives progress lines. Defaults to io.Discard.
	Output io.Writer

	// Registry parses source descriptors. Defaults to the built-in
	// registry (filesystem and git). Supply your own to add custom
	// source types.
	Registry *source.Registry
}

// PullOptions configures a Pull.
type PullOptions struct {
	DryRun bool
	Yes    bool
	Strict bool
	Only   []string
}

// PullResult is the outcome of one Pull run.
type PullResult struct {
	// Results holds the per-entry outcomes, in manifest order.
	Results []install.Result

	// LockfileSaved reports whether the run wrote the lockfile.
	LockfileSaved bool
}

// EntryStatus describes one manifest entry's sync state.
type EntryStatus struct {
	ID        string
	Installed bool
	// Missing is set when the lockfile records the entry but its
	// destination no longer exists.
	Missing  bool
	Dest     string
	Checksum string
}

// StatusReport compares the manifest, lockfile, and filesystem.
type StatusReport struct {
	Entries []EntryStatus

	// Orphaned lists lockfile ids with no matching manifest entry.
	Orphaned []string
}

// Client is the embedding entry point. Construct with New; the zero
// value is not usable.
type Client struct {
	manifestFile string
	baseDir      string
	registry     *source.Registry
	confirm      install.ConfirmFunc
	out          io.Writer
}

// New locates the manifest and returns a client bound to it.
func New(opts Options) (*Client, error) {
	path, err := manifest.Discover(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = source.NewRegistry()
	}

	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	confirm := install.ConfirmFunc(opts.Confirm)
	if confirm == nil {
		confirm = func(dest string) (bool, error) {
			return false, &install.ConfirmationRequiredError{Dest: dest}
		}
	}

	return &Client{
		manifestFile: path,
		baseDir:      manifest.Dir(path),
		registry:     reg,
		confirm:      confirm,
		out:          out,
	}, nil
}

// ManifestPath returns the manifest the client is bound to.
func (c *Client) ManifestPath() string { return c.manifestFile }

func (c *Client) loadManifest() (*manifest.Manifest, error) {
	return manifest.Load(c.manifestFile, c.registry)
}

func (c *Client) lockfilePath() string {
	return filepath.Join(c.baseDir, lock.DefaultName)
}

func (c *Client) loadLockfile() (*lock.Lockfile, error) {
	lf, err := lock.Load(c.lockfilePath())
	if errors.Is(err, lock.ErrNotFound) {
		return lock.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return lf, nil
}

// Pull reconciles every manifest entry and saves the lockfile once at
// the end when anything changed. Dry runs never write.
func (c *Client) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	lf, err := c.loadLockfile()
	if err != nil {
		return nil, err
	}

	installer := install.New(c.baseDir, lf)
	installer.Confirm = c.confirm
	installer.Out = c.out

	results, err := installer.All(ctx, m.Entries, install.Options{
		DryRun: opts.DryRun,
		Yes:    opts.Yes,
		Strict: opts.Strict,
		Only:   opts.Only,
	})
	if err != nil {
		return &PullResult{Results: results}, err
	}

	out := &PullResult{Results: results}
	if opts.DryRun {
		return out, nil
	}

	changed := false
	for _, r := range results {
		if r.Locked != nil {
			lf.Upsert(r.ID, *r.Locked)
			changed = true
		}
	}
	if changed {
		if err := lf.Save(c.lockfilePath()); err != nil {
			return out, fmt.Errorf("saving lockfile: %w", err)
		}
		out.LockfileSaved = true
	}
	return out, nil
}

// Validate loads the manifest and checks that every source resolves to
// an existing path. Strict mode fails on the first problem; otherwise
// problems come back as warning strings.
func (c *Client) Validate(ctx context.Context, strict bool) ([]string, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, e := range m.Entries {
		w, err := c.validateEntry(ctx, e, strict)
		if err != nil {
			return warnings, err
		}
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

func (c *Client) validateEntry(ctx context.Context, e manifest.Entry, strict bool) ([]string, error) {
	var warnings []string
	for _, src := range e.AllSources() {
		resolved, err := src.Resolve(ctx, c.baseDir)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("entry '%s': %w", e.ID, err)
			}
			return append(warnings, fmt.Sprintf("%s: %v", e.ID, err)), nil
		}

		w, err := c.validateResolved(e, resolved.Path, strict)
		closeErr := resolved.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

func (c *Client) validateResolved(e manifest.Entry, path string, strict bool) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		notFound := &source.PathNotFoundError{Path: path}
		if strict {
			return nil, fmt.Errorf("entry '%s': %w", e.ID, notFound)
		}
		return []string{fmt.Sprintf("%s: %v", e.ID, notFound)}, nil
	}

	switch {
	case e.Kind.IsSkillRoot():
		skillWarnings, err := install.ValidateSkillRoot(path, strict)
		if err != nil {
			return nil, fmt.Errorf("entry '%s': %w", e.ID, err)
		}
		warnings := make([]string, 0, len(skillWarnings))
		for _, w := range skillWarnings {
			warnings = append(warnings, e.ID+": "+w)
		}
		return warnings, nil

	case e.Kind.IsComposed():
		if _, err := settings.ReadFragment(path); err != nil {
			if strict {
				return nil, fmt.Errorf("entry '%s': %w", e.ID, err)
			}
			return []string{fmt.Sprintf("%s: %v", e.ID, err)}, nil
		}
	}
	return nil, nil
}

// Status compares the manifest against the lockfile and filesystem
// without mutating anything.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	lf, err := c.loadLockfile()
	if err != nil {
		return nil, err
	}

	report := &StatusReport{}
	known := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		known[e.ID] = true
		status := EntryStatus{ID: e.ID}
		if locked, ok := lf.Get(e.ID); ok {
			status.Dest = locked.Dest
			status.Checksum = locked.Checksum
			if _, err := os.Stat(filepath.Join(c.baseDir, locked.Dest)); err == nil {
				status.Installed = true
			} else {
				status.Missing = true
			}
		}
		report.Entries = append(report.Entries, status)
	}

	for _, id := range lf.IDs() {
		if !known[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	return report, nil
}

// GenerateCatalog enumerates the manifest's individual assets and
// writes the catalog next to the manifest.
func (c *Client) GenerateCatalog(ctx context.Context) (*catalog.Catalog, error) {
	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Generate(ctx, m.Entries, c.baseDir)
	if err != nil {
		return nil, err
	}
	if err := cat.Save(catalog.PathForManifest(c.manifestFile)); err != nil {
		return nil, err
	}
	return cat, nil
}
