// Package checksum computes deterministic content fingerprints for
// files, directory trees, and in-memory content. Fingerprints are used
// by the installer to decide whether an entry's source has changed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Algorithm tags the digest scheme used in fingerprint strings.
const Algorithm = "sha256"

// pathSeparator is folded between a relative path and the file content
// it names. NUL is not a legal path character on any supported OS, so
// it cannot collide with path bytes.
const pathSeparator = 0x00

// Compute returns the fingerprint of a file or directory tree as
// "sha256:<hex>".
//
// For a file the digest covers the raw bytes. For a directory it covers
// every file transitively, excluding .git directories, folded in
// lexicographic order of slash-separated relative paths so the result
// is independent of filesystem traversal order.
func Compute(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s for checksum: %w", path, err)
	}

	h := sha256.New()

	if !info.IsDir() {
		if err := hashFileInto(h, path); err != nil {
			return "", err
		}
		return encode(h), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walking %s for checksum: %w", p, walkErr)
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(path, p)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(files)

	for _, rel := range files {
		h.Write([]byte(rel))
		h.Write([]byte{pathSeparator})
		if err := hashFileInto(h, filepath.Join(path, filepath.FromSlash(rel))); err != nil {
			return "", err
		}
	}

	return encode(h), nil
}

// String fingerprints in-memory content with the same algorithm as
// Compute, with no path component. Used for composed or generated
// content that never exists on disk.
func String(content string) string {
	h := sha256.Sum256([]byte(content))
	return Algorithm + ":" + hex.EncodeToString(h[:])
}

func hashFileInto(h hash.Hash, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s for checksum: %w", path, err)
	}
	h.Write(data)
	return nil
}

func encode(h hash.Hash) string {
	return Algorithm + ":" + hex.EncodeToString(h.Sum(nil))
}
