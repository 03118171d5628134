// Package install reconciles manifest entries against the filesystem.
// Each entry runs through an independent state machine: resolve the
// source, fingerprint it, skip when the lockfile already records that
// fingerprint, otherwise back up any conflicting destination content
// and apply the entry by kind.
package install

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/bianoble/aps/internal/backup"
	"github.com/bianoble/aps/internal/checksum"
	"github.com/bianoble/aps/internal/lock"
	"github.com/bianoble/aps/internal/logging"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/sandbox"
	"github.com/bianoble/aps/internal/settings"
	"github.com/bianoble/aps/internal/source"
)

// SkillMarker is the file every immediate child of a skill-root must
// contain.
const SkillMarker = "SKILL.md"

// Options configures a reconciliation run.
type Options struct {
	// DryRun reports intended changes without mutating anything.
	DryRun bool

	// Yes authorizes overwriting conflicting destinations without
	// prompting.
	Yes bool

	// Strict turns validation warnings (such as a missing skill
	// marker) into hard errors.
	Strict bool

	// Only restricts the run to the listed entry ids. Empty means all.
	Only []string
}

// Result is the per-entry outcome reported to the caller.
type Result struct {
	ID              string
	Installed       bool
	SkippedNoChange bool
	BackedUp        bool
	Cancelled       bool

	// BackupPath is set when a backup was created.
	BackupPath string

	// Locked is the entry to upsert into the lock store after a
	// successful non-dry-run install; nil otherwise.
	Locked *lock.Entry

	// Warnings collected during validation in non-strict mode.
	Warnings []string
}

// ConfirmationRequiredError reports a conflicting destination in a
// non-interactive run without explicit authorization.
type ConfirmationRequiredError struct {
	Dest string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("destination %s has existing content — confirmation required (re-run with --yes, or interactively)", e.Dest)
}

// SkillMarkerError reports a skill bundle missing its marker file, in
// strict mode.
type SkillMarkerError struct {
	Skill string
}

func (e *SkillMarkerError) Error() string {
	return fmt.Sprintf("skill '%s' is missing %s", e.Skill, SkillMarker)
}

// EntryNotFoundError reports an Only filter id that matches no entry.
type EntryNotFoundError struct {
	ID string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("no manifest entry with id '%s'", e.ID)
}

// ConfirmFunc asks the user whether to overwrite a conflicting
// destination.
type ConfirmFunc func(dest string) (bool, error)

// Installer runs the per-entry state machine. The lock store is read
// for idempotency checks only; callers upsert the returned Locked
// entries and save once at the end of a run.
type Installer struct {
	// BaseDir is the manifest directory; destinations and relative
	// source roots resolve against it.
	BaseDir string

	// Lock is the loaded lock store, consulted read-only.
	Lock *lock.Lockfile

	// Confirm is the conflict prompt. Defaults to an interactive
	// stdin prompt when stdin is a terminal and a
	// ConfirmationRequiredError otherwise.
	Confirm ConfirmFunc

	// Out receives user-facing progress lines. Defaults to stdout.
	Out io.Writer
}

// New returns an installer with the default prompt and output.
func New(baseDir string, lf *lock.Lockfile) *Installer {
	return &Installer{BaseDir: baseDir, Lock: lf}
}

func (in *Installer) out() io.Writer {
	if in.Out != nil {
		return in.Out
	}
	return os.Stdout
}

func (in *Installer) confirm(dest string) (bool, error) {
	if in.Confirm != nil {
		return in.Confirm(dest)
	}
	return promptOnTerminal(dest)
}

// promptOnTerminal asks on stdin when it is a terminal; otherwise the
// run is non-interactive and overwriting requires explicit --yes.
func promptOnTerminal(dest string) (bool, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false, &ConfirmationRequiredError{Dest: dest}
	}

	fmt.Fprintf(os.Stderr, "Overwrite existing content at %s? [y/N] ", dest)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// All reconciles the given entries sequentially, in manifest order,
// honoring the Only allow-list. The first hard error aborts the run;
// filesystem changes already applied for earlier entries stay durable.
func (in *Installer) All(ctx context.Context, entries []manifest.Entry, opts Options) ([]Result, error) {
	selected, err := filterEntries(entries, opts.Only)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(selected))
	for _, e := range selected {
		result, err := in.Entry(ctx, e, opts)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func filterEntries(entries []manifest.Entry, only []string) ([]manifest.Entry, error) {
	if len(only) == 0 {
		return entries, nil
	}

	byID := make(map[string]bool, len(entries))
	for _, e := range entries {
		byID[e.ID] = true
	}
	for _, id := range only {
		if !byID[id] {
			return nil, &EntryNotFoundError{ID: id}
		}
	}

	allowed := make(map[string]bool, len(only))
	for _, id := range only {
		allowed[id] = true
	}

	var selected []manifest.Entry
	for _, e := range entries {
		if allowed[e.ID] {
			selected = append(selected, e)
		}
	}
	return selected, nil
}

// Entry runs the state machine for one manifest entry.
func (in *Installer) Entry(ctx context.Context, e manifest.Entry, opts Options) (Result, error) {
	if e.Kind.IsComposed() {
		return in.composedEntry(ctx, e, opts)
	}

	log := logging.GetLogger("install")
	log.Info().Str("id", e.ID).Msg("processing entry")

	result := Result{ID: e.ID}

	resolved, err := e.Source.Resolve(ctx, in.BaseDir)
	if err != nil {
		return result, err
	}
	// The resolved source may own a temporary clone; it must stay
	// alive until the apply step has finished reading from it.
	defer resolved.Close()

	if _, err := os.Stat(resolved.Path); err != nil {
		if os.IsNotExist(err) {
			return result, &source.PathNotFoundError{Path: resolved.Path}
		}
		return result, fmt.Errorf("stat source %s: %w", resolved.Path, err)
	}

	sum, err := checksum.Compute(resolved.Path)
	if err != nil {
		return result, err
	}
	log.Debug().Str("id", e.ID).Str("checksum", sum).Msg("source fingerprinted")

	if in.Lock.ChecksumMatches(e.ID, sum) {
		log.Info().Str("id", e.ID).Msg("up to date, skipping")
		result.SkippedNoChange = true
		return result, nil
	}

	destRel := e.Destination()
	destAbs, err := sandbox.ValidatePath(in.BaseDir, destRel)
	if err != nil {
		return result, fmt.Errorf("entry '%s': %w", e.ID, err)
	}

	// Skill validation runs before any mutation, dry-run included, so
	// a strict failure leaves both destination and backup area
	// untouched.
	if e.Kind.IsSkillRoot() {
		warnings, err := ValidateSkillRoot(resolved.Path, opts.Strict)
		if err != nil {
			return result, err
		}
		result.Warnings = warnings
	}

	proceed, err := in.gate(e.ID, destRel, destAbs, opts, &result)
	if err != nil || !proceed {
		return result, err
	}

	if opts.DryRun {
		fmt.Fprintf(in.out(), "[dry-run] would install %s to %s\n", e.ID, destRel)
		return result, nil
	}

	if err := in.apply(e, resolved.Path, destRel); err != nil {
		return result, err
	}
	fmt.Fprintf(in.out(), "installed %s to %s\n", e.ID, destRel)

	locked := &lock.Entry{
		Source:   resolved.Display,
		Dest:     destRel,
		Checksum: sum,
	}
	if resolved.Git != nil {
		locked.Ref = resolved.Git.ResolvedRef
		locked.Commit = resolved.Git.Commit
	}

	result.Installed = true
	result.Locked = locked
	return result, nil
}

// gate applies the managed-destination rule and the conflict prompt,
// reporting whether the install may proceed. Content this entry
// already installed at the same destination is managed: a fingerprint
// mismatch alone triggers the apply, with no conflict prompt or
// backup. The conflict path protects content aps does not own. A
// declined overwrite is not an error.
func (in *Installer) gate(id, destRel, destAbs string, opts Options, result *Result) (bool, error) {
	log := logging.GetLogger("install")

	if prev, ok := in.Lock.Get(id); ok && prev.Dest == destRel {
		return true, nil
	}
	if !backup.HasConflict(destAbs) {
		return true, nil
	}

	log.Info().Str("id", id).Str("dest", destAbs).Msg("conflict detected")

	if opts.DryRun {
		fmt.Fprintf(in.out(), "[dry-run] would back up and overwrite %s\n", destRel)
		return false, nil
	}

	authorized := opts.Yes
	if !authorized {
		var err error
		authorized, err = in.confirm(destRel)
		if err != nil {
			return false, err
		}
	}
	if !authorized {
		log.Info().Str("id", id).Str("dest", destRel).Msg("overwrite declined")
		result.Cancelled = true
		return false, nil
	}

	backupPath, err := backup.Create(in.BaseDir, destAbs)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(in.out(), "created backup at %s\n", backupPath)
	result.BackedUp = true
	result.BackupPath = backupPath
	return true, nil
}

// composedEntry installs a settings entry whose content is composed
// from every fragment source rather than copied from one. The
// fingerprint covers the composed output, so reordering fragments
// with the same merged result stays a no-op.
func (in *Installer) composedEntry(ctx context.Context, e manifest.Entry, opts Options) (Result, error) {
	log := logging.GetLogger("install")
	log.Info().Str("id", e.ID).Msg("processing settings entry")

	result := Result{ID: e.ID}

	var fragments []settings.Fragment
	var displays []string
	for _, src := range e.AllSources() {
		resolved, err := src.Resolve(ctx, in.BaseDir)
		if err != nil {
			return result, err
		}
		if _, err := os.Stat(resolved.Path); err != nil {
			_ = resolved.Close()
			if os.IsNotExist(err) {
				return result, &source.PathNotFoundError{Path: resolved.Path}
			}
			return result, fmt.Errorf("stat source %s: %w", resolved.Path, err)
		}
		frag, err := settings.ReadFragment(resolved.Path)
		closeErr := resolved.Close()
		if err != nil {
			return result, err
		}
		if closeErr != nil {
			return result, closeErr
		}
		fragments = append(fragments, frag)
		if len(displays) == 0 || displays[len(displays)-1] != resolved.Display {
			displays = append(displays, resolved.Display)
		}
	}

	content, err := settings.Compose(fragments)
	if err != nil {
		return result, err
	}
	sum := checksum.String(content)
	log.Debug().Str("id", e.ID).Str("checksum", sum).Msg("composed content fingerprinted")

	if in.Lock.ChecksumMatches(e.ID, sum) {
		log.Info().Str("id", e.ID).Msg("up to date, skipping")
		result.SkippedNoChange = true
		return result, nil
	}

	destRel := e.Destination()
	destAbs, err := sandbox.ValidatePath(in.BaseDir, destRel)
	if err != nil {
		return result, fmt.Errorf("entry '%s': %w", e.ID, err)
	}

	proceed, err := in.gate(e.ID, destRel, destAbs, opts, &result)
	if err != nil || !proceed {
		return result, err
	}

	if opts.DryRun {
		fmt.Fprintf(in.out(), "[dry-run] would install %s to %s\n", e.ID, destRel)
		return result, nil
	}

	if err := sandbox.SafeWrite(in.BaseDir, destRel, []byte(content), 0o644); err != nil {
		return result, err
	}
	fmt.Fprintf(in.out(), "installed %s to %s\n", e.ID, destRel)

	result.Installed = true
	result.Locked = &lock.Entry{
		Source:   strings.Join(displays, ", "),
		Dest:     destRel,
		Checksum: sum,
	}
	return result, nil
}

// apply installs the resolved content per the entry's kind.
func (in *Installer) apply(e manifest.Entry, srcPath, destRel string) error {
	switch {
	case e.Kind.IsSingleFile():
		info, err := os.Stat(srcPath)
		if err != nil {
			return fmt.Errorf("stat source %s: %w", srcPath, err)
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return fmt.Errorf("reading source %s: %w", srcPath, err)
		}
		return sandbox.SafeWrite(in.BaseDir, destRel, data, info.Mode().Perm())

	case e.Kind.IsSkillRoot():
		return in.installSkillRoot(srcPath, destRel)

	default:
		return in.installDirectory(srcPath, destRel, e.Include)
	}
}

// installDirectory replaces the destination wholesale with a deep copy
// of the source tree, filtering immediate children by include
// prefixes.
func (in *Installer) installDirectory(srcPath, destRel string, include []string) error {
	if err := sandbox.SafeRemoveAll(in.BaseDir, destRel); err != nil {
		return err
	}
	if err := sandbox.SafeMkdirAll(in.BaseDir, destRel, 0o755); err != nil {
		return err
	}
	destAbs, err := sandbox.ValidatePath(in.BaseDir, destRel)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", srcPath, err)
	}

	for _, entry := range entries {
		if !includeMatch(entry.Name(), include) {
			continue
		}
		src := filepath.Join(srcPath, entry.Name())
		dst := filepath.Join(destAbs, entry.Name())
		if entry.IsDir() {
			if err := copyTree(src, dst); err != nil {
				return err
			}
		} else {
			if err := copyFile(src, dst); err != nil {
				return err
			}
		}
	}

	return nil
}

// installSkillRoot replaces the destination and deep-copies each
// immediate child directory as an independent skill bundle.
func (in *Installer) installSkillRoot(srcPath, destRel string) error {
	if err := sandbox.SafeRemoveAll(in.BaseDir, destRel); err != nil {
		return err
	}
	if err := sandbox.SafeMkdirAll(in.BaseDir, destRel, 0o755); err != nil {
		return err
	}
	destAbs, err := sandbox.ValidatePath(in.BaseDir, destRel)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		return fmt.Errorf("reading skills directory %s: %w", srcPath, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := copyTree(filepath.Join(srcPath, entry.Name()), filepath.Join(destAbs, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSkillRoot checks every immediate child directory for the
// skill marker. Missing markers are warnings, or hard errors under
// strict.
func ValidateSkillRoot(srcPath string, strict bool) ([]string, error) {
	entries, err := os.ReadDir(srcPath)
	if err != nil {
		return nil, fmt.Errorf("reading skills directory %s: %w", srcPath, err)
	}

	var warnings []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		marker := filepath.Join(srcPath, entry.Name(), SkillMarker)
		if _, err := os.Stat(marker); os.IsNotExist(err) {
			if strict {
				return nil, &SkillMarkerError{Skill: entry.Name()}
			}
			warnings = append(warnings, fmt.Sprintf("skill '%s' is missing %s", entry.Name(), SkillMarker))
		}
	}

	return warnings, nil
}

func includeMatch(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// copyTree deep-copies a directory tree.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", src, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyFile copies file content and permissions, so installed scripts
// keep their executable bit.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
