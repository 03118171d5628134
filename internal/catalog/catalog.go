// Package catalog enumerates the individual assets a manifest syncs
// and answers lookup and search queries over them. The catalog is a
// read-only view: generating or querying it never touches installed
// state.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/aps/internal/logging"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/sandbox"
	"github.com/bianoble/aps/internal/source"
)

// DefaultName is the catalog filename next to the manifest.
const DefaultName = "aps.catalog.yaml"

// Version is the catalog format version this build reads and writes.
const Version = 1

// Entry is one individual asset. A manifest entry expands into one
// catalog entry per file or skill bundle it syncs.
type Entry struct {
	// ID is "<manifest entry id>:<asset name>".
	ID string `yaml:"id"`

	// ManifestEntryID names the manifest entry this asset came from.
	ManifestEntryID string `yaml:"manifest_entry_id"`

	// Name is the asset's file or bundle name.
	Name string `yaml:"name"`

	Kind manifest.Kind `yaml:"kind"`

	// SourcePath is the path to the asset within the resolved source.
	SourcePath string `yaml:"source_path"`

	// SourceDescription is the human-readable source identity, such as
	// "repo @ ref" or a filesystem path.
	SourceDescription string `yaml:"source_description"`

	// Category groups assets for listing, derived from the kind.
	Category string `yaml:"category"`

	// Tags are free-form labels. Generation leaves them empty; users
	// may add them by editing the catalog file.
	Tags []string `yaml:"tags,omitempty"`

	// Description is optional free text, user-editable.
	Description string `yaml:"description,omitempty"`
}

// Catalog is the enumerated asset listing persisted as YAML.
type Catalog struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// New returns an empty catalog at the current version.
func New() *Catalog {
	return &Catalog{Version: Version}
}

// PathForManifest returns the catalog path next to the given manifest.
func PathForManifest(manifestPath string) string {
	return filepath.Join(filepath.Dir(manifestPath), DefaultName)
}

// ErrNotFound reports a missing catalog file.
var ErrNotFound = fmt.Errorf("catalog not found")

// Load reads a catalog from disk. A missing file is ErrNotFound.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if c.Version == 0 {
		c.Version = Version
	}
	if c.Version != Version {
		return nil, fmt.Errorf("catalog %s has unsupported version %d", path, c.Version)
	}

	log := logging.GetLogger("catalog")
	log.Debug().Int("entries", len(c.Entries)).Msg("catalog loaded")
	return &c, nil
}

// Save writes the catalog as YAML, atomically.
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if err := sandbox.SafeWrite(filepath.Dir(path), filepath.Base(path), data, 0o644); err != nil {
		return err
	}
	log := logging.GetLogger("catalog")
	log.Info().Str("path", path).Int("entries", len(c.Entries)).Msg("catalog saved")
	return nil
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Generate enumerates every individual asset the manifest entries sync.
// Asset granularity follows the kind: one entry for a single file, one
// per rule file, one per skill bundle directory.
func Generate(ctx context.Context, entries []manifest.Entry, baseDir string) (*Catalog, error) {
	log := logging.GetLogger("catalog")
	c := New()

	for _, e := range entries {
		assets, err := enumerate(ctx, e, baseDir)
		if err != nil {
			return nil, err
		}
		c.Entries = append(c.Entries, assets...)
	}

	log.Info().Int("assets", len(c.Entries)).Int("manifest_entries", len(entries)).Msg("catalog generated")
	return c, nil
}

func enumerate(ctx context.Context, e manifest.Entry, baseDir string) ([]Entry, error) {
	if e.Kind.IsComposed() {
		return enumerateFragments(ctx, e, baseDir)
	}

	resolved, err := e.Source.Resolve(ctx, baseDir)
	if err != nil {
		return nil, err
	}
	defer resolved.Close()

	if _, err := os.Stat(resolved.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, &source.PathNotFoundError{Path: resolved.Path}
		}
		return nil, fmt.Errorf("stat source %s: %w", resolved.Path, err)
	}

	desc := resolved.Display
	category := categoryFor(e.Kind)

	if e.Kind.IsSingleFile() {
		name := filepath.Base(resolved.Path)
		return []Entry{{
			ID:                e.ID + ":" + name,
			ManifestEntryID:   e.ID,
			Name:              name,
			Kind:              e.Kind,
			SourcePath:        resolved.Path,
			SourceDescription: desc,
			Category:          category,
		}}, nil
	}

	names, err := listChildren(resolved.Path, e.Include, e.Kind.IsSkillRoot())
	if err != nil {
		return nil, err
	}

	assets := make([]Entry, 0, len(names))
	for _, name := range names {
		assets = append(assets, Entry{
			ID:                e.ID + ":" + name,
			ManifestEntryID:   e.ID,
			Name:              name,
			Kind:              e.Kind,
			SourcePath:        filepath.Join(resolved.Path, name),
			SourceDescription: desc,
			Category:          category,
		})
	}
	return assets, nil
}

// enumerateFragments lists one asset per fragment file of a composed
// entry.
func enumerateFragments(ctx context.Context, e manifest.Entry, baseDir string) ([]Entry, error) {
	var assets []Entry
	for _, src := range e.AllSources() {
		resolved, err := src.Resolve(ctx, baseDir)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(resolved.Path); err != nil {
			_ = resolved.Close()
			if os.IsNotExist(err) {
				return nil, &source.PathNotFoundError{Path: resolved.Path}
			}
			return nil, fmt.Errorf("stat source %s: %w", resolved.Path, err)
		}

		name := filepath.Base(resolved.Path)
		assets = append(assets, Entry{
			ID:                e.ID + ":" + name,
			ManifestEntryID:   e.ID,
			Name:              name,
			Kind:              e.Kind,
			SourcePath:        resolved.Path,
			SourceDescription: resolved.Display,
			Category:          categoryFor(e.Kind),
		})
		if err := resolved.Close(); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

// listChildren returns sorted immediate children of dir, directories or
// files only, filtered by include prefixes.
func listChildren(dir string, include []string, wantDirs bool) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() != wantDirs {
			continue
		}
		if !prefixMatch(de.Name(), include) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)
	return names, nil
}

func prefixMatch(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func categoryFor(kind manifest.Kind) string {
	switch kind {
	case manifest.KindAgentsMD:
		return "instructions"
	case manifest.KindCursorRules:
		return "rules"
	case manifest.KindCursorSkillsRoot, manifest.KindAgentSkill:
		return "skills"
	case manifest.KindClaudeSettings:
		return "settings"
	default:
		return "uncategorized"
	}
}
