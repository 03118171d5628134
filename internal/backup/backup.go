// Package backup preserves destination content before the installer
// overwrites it. Backups are deep copies under a dedicated directory in
// the manifest base dir, so the original can be recovered even after
// the install replaces or removes it.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bianoble/aps/internal/logging"
)

// Dir is the backup area created beneath the manifest base directory.
const Dir = ".aps-backups"

// HasConflict reports whether installing to dest would overwrite
// existing content. A file counts as a conflict; a directory counts
// only when it is non-empty, since an empty directory is assumed to be
// leftover from a prior partial install.
func HasConflict(dest string) bool {
	info, err := os.Stat(dest)
	if err != nil {
		return false
	}

	if !info.IsDir() {
		return true
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Create copies the existing file or directory at dest into the backup
// area under baseDir and returns the backup's location. The backup area
// is created lazily. The original is never removed here; deletion is
// the install step's job, and only after this call succeeds.
func Create(baseDir, dest string) (string, error) {
	log := logging.GetLogger("backup")

	root := filepath.Join(baseDir, Dir)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", fmt.Errorf("creating backup directory %s: %w", root, err)
		}
		log.Debug().Str("path", root).Msg("created backup directory")
	}

	backupPath := uniquePath(filepath.Join(root, backupName(baseDir, dest, time.Now())))

	info, err := os.Stat(dest)
	if err != nil {
		return "", fmt.Errorf("stat %s for backup: %w", dest, err)
	}

	if info.IsDir() {
		if err := copyDir(dest, backupPath); err != nil {
			return "", err
		}
		log.Info().Str("dest", dest).Str("backup", backupPath).Msg("backed up directory")
	} else {
		if err := copyFile(dest, backupPath); err != nil {
			return "", err
		}
		log.Info().Str("dest", dest).Str("backup", backupPath).Msg("backed up file")
	}

	return backupPath, nil
}

// backupName flattens the destination's base-relative path into a
// single component and appends a minute-granularity timestamp.
func backupName(baseDir, dest string, now time.Time) string {
	rel, err := filepath.Rel(baseDir, dest)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = dest
	}
	flattened := strings.NewReplacer("/", "-", "\\", "-").Replace(filepath.ToSlash(rel))
	flattened = strings.Trim(flattened, "-")
	return flattened + "-" + now.Format("2006-01-02-1504")
}

// uniquePath appends a numeric suffix when path is already taken, so a
// second backup of the same destination within the timestamp's minute
// does not merge into the first.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", path, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// copyDir deep-copies a directory tree. Copies, never links, so the
// backup stays valid if the source is mutated or removed afterwards.
func copyDir(src, dst string) error {
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
			if err := copyDir(srcPath, dstPath); err != nil {
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

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s for backup: %w", src, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s for backup: %w", src, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing backup %s: %w", dst, err)
	}
	return nil
}
