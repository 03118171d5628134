// Package sandbox confines filesystem mutations to the manifest base
// directory. Every destination the installer touches is validated and
// symlink-resolved here first, so a manifest cannot write outside the
// repository it lives in.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePath checks that target is safely contained in baseDir.
// Symlinks are resolved for the longest existing prefix, so paths that
// do not exist yet can still be validated. Returns the resolved
// absolute path.
func ValidatePath(baseDir, target string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolving base directory: %w", err)
	}
	realBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("resolving base directory symlinks: %w", err)
	}

	candidate := target
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(realBase, target)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExistingPath(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving target path: %w", err)
	}

	// Trailing separator so "base2" does not pass as inside "base".
	basePrefix := realBase + string(filepath.Separator)
	if resolved != realBase && !strings.HasPrefix(resolved, basePrefix) {
		return "", fmt.Errorf("path '%s' resolves to '%s' which is outside the base directory '%s'", target, resolved, realBase)
	}

	return resolved, nil
}

// resolveExistingPath resolves symlinks for the longest existing prefix
// of path and reattaches the non-existing suffix.
func resolveExistingPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if dir == path {
		return path, nil
	}

	resolvedDir, err := resolveExistingPath(dir)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedDir, base), nil
}

// SafeWrite writes content to a path inside baseDir via a temp file and
// rename, so the destination is never observed half-written.
func SafeWrite(baseDir, relPath string, content []byte, perm os.FileMode) error {
	resolved, err := ValidatePath(baseDir, relPath)
	if err != nil {
		return err
	}
	if _, err := ValidatePath(baseDir, filepath.Dir(relPath)); err != nil {
		return fmt.Errorf("parent directory escapes base directory: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Temp file in the destination directory keeps the rename on one
	// filesystem.
	tmp, err := os.CreateTemp(dir, ".aps-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, resolved); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", resolved, err)
	}

	success = true
	return nil
}

// SafeRemove removes a single file inside baseDir.
func SafeRemove(baseDir, relPath string) error {
	resolved, err := ValidatePath(baseDir, relPath)
	if err != nil {
		return err
	}
	return os.Remove(resolved)
}

// SafeRemoveAll removes a file or directory tree inside baseDir.
// Removing the base directory itself is refused.
func SafeRemoveAll(baseDir, relPath string) error {
	resolved, err := ValidatePath(baseDir, relPath)
	if err != nil {
		return err
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolving base directory: %w", err)
	}
	if realBase, evalErr := filepath.EvalSymlinks(absBase); evalErr == nil && resolved == realBase {
		return fmt.Errorf("refusing to remove base directory '%s'", baseDir)
	}
	return os.RemoveAll(resolved)
}

// SafeMkdirAll creates a directory chain inside baseDir.
func SafeMkdirAll(baseDir, relPath string, perm os.FileMode) error {
	resolved, err := ValidatePath(baseDir, relPath)
	if err != nil {
		return err
	}
	return os.MkdirAll(resolved, perm)
}
