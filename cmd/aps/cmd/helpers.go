package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bianoble/aps/internal/lock"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/source"
)

// discoverManifest locates and loads the manifest, honoring the
// --manifest override. Returns the parsed manifest and its path.
func discoverManifest() (*manifest.Manifest, string, error) {
	path, err := manifest.Discover(manifestPath)
	if err != nil {
		return nil, "", err
	}
	m, err := manifest.Load(path, source.NewRegistry())
	if err != nil {
		return nil, "", err
	}
	return m, path, nil
}

// lockfilePath returns the lockfile location next to the manifest.
func lockfilePath(manifestFile string) string {
	return filepath.Join(manifest.Dir(manifestFile), lock.DefaultName)
}

// loadLockfile reads the lockfile next to the manifest. A missing
// lockfile is a first run and yields an empty one.
func loadLockfile(manifestFile string) (*lock.Lockfile, error) {
	lf, err := lock.Load(lockfilePath(manifestFile))
	if errors.Is(err, lock.ErrNotFound) {
		return lock.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return lf, nil
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only at raised verbosity.
func detail(format string, args ...any) {
	if verbosity > 0 && !quiet {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// warn prints a warning line to stderr.
func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
