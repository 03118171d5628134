package source

import (
	"context"
	"fmt"
	"path/filepath"
)

// Filesystem is a local filesystem source. Content is referenced in
// place, so link-based installs are permitted and no temporary
// resources are ever created.
type Filesystem struct {
	// Root is the source root, absolute or relative to the manifest
	// base directory.
	Root string

	// Sub is an optional path within Root; "." means the root itself.
	Sub string

	// Symlink allows link-based installs for this source.
	Symlink bool
}

// ParseFilesystem builds a Filesystem source from its document form.
func ParseFilesystem(doc map[string]any) (Adapter, error) {
	root, err := stringField(doc, "root")
	if err != nil {
		return nil, fmt.Errorf("parsing filesystem source: %w", err)
	}
	if root == "" {
		return nil, fmt.Errorf("parsing filesystem source: 'root' is required")
	}
	sub, err := stringField(doc, "path")
	if err != nil {
		return nil, fmt.Errorf("parsing filesystem source: %w", err)
	}
	symlink, err := boolField(doc, "symlink", true)
	if err != nil {
		return nil, fmt.Errorf("parsing filesystem source: %w", err)
	}
	return &Filesystem{Root: root, Sub: sub, Symlink: symlink}, nil
}

func (f *Filesystem) Type() string { return "filesystem" }

func (f *Filesystem) DisplayName() string {
	return "filesystem:" + f.Root
}

func (f *Filesystem) Path() string {
	if f.Sub == "" {
		return "."
	}
	return f.Sub
}

func (f *Filesystem) SupportsSymlink() bool { return f.Symlink }

func (f *Filesystem) Resolve(ctx context.Context, baseDir string) (*Resolved, error) {
	root := f.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}

	path := root
	if sub := f.Path(); sub != "." {
		path = filepath.Join(root, sub)
	}

	return &Resolved{
		Path:    path,
		Display: f.DisplayName(),
		Symlink: f.Symlink,
	}, nil
}

func (f *Filesystem) Document() map[string]any {
	doc := map[string]any{
		"type":    "filesystem",
		"root":    f.Root,
		"symlink": f.Symlink,
	}
	if f.Sub != "" {
		doc["path"] = f.Sub
	}
	return doc
}
