package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/aps/internal/source"
)

// ValidationError holds manifest validation failures. All failures are
// reported together before any reconciliation runs.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// rawEntry is the on-disk entry shape shared by YAML and TOML. The
// source document stays generic until the registry parses it.
type rawEntry struct {
	ID      string           `yaml:"id" toml:"id"`
	Kind    string           `yaml:"kind" toml:"kind"`
	Source  map[string]any   `yaml:"source" toml:"source"`
	Sources []map[string]any `yaml:"sources,omitempty" toml:"sources,omitempty"`
	Dest    string           `yaml:"dest,omitempty" toml:"dest,omitempty"`
	Include []string         `yaml:"include,omitempty" toml:"include,omitempty"`
}

type rawManifest struct {
	Entries []rawEntry `yaml:"entries" toml:"entries"`
}

// Load reads and validates a manifest, dispatching on file extension
// (.toml is TOML, everything else YAML). Source descriptors are parsed
// through the supplied registry.
func Load(path string, registry *source.Registry) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var raw rawManifest
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	m, err := fromRaw(raw, registry)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

func fromRaw(raw rawManifest, registry *source.Registry) (*Manifest, error) {
	var errs []string
	seen := make(map[string]bool)
	m := &Manifest{}

	for i, re := range raw.Entries {
		prefix := fmt.Sprintf("entry[%d]", i)
		if re.ID != "" {
			prefix = fmt.Sprintf("entry '%s'", re.ID)
		}

		if re.ID == "" {
			errs = append(errs, prefix+": 'id' is required")
		} else if seen[re.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate entry id '%s'", prefix, re.ID))
		} else {
			seen[re.ID] = true
		}

		kind := Kind(re.Kind)
		if !kind.Valid() {
			errs = append(errs, fmt.Sprintf("%s: invalid kind '%s' — valid kinds: %v", prefix, re.Kind, Kinds))
		}

		if re.Source != nil && len(re.Sources) > 0 {
			errs = append(errs, prefix+": use 'source' or 'sources', not both")
			continue
		}
		docs := re.Sources
		if re.Source != nil {
			docs = []map[string]any{re.Source}
		}
		if len(docs) == 0 {
			errs = append(errs, prefix+": 'source' is required")
			continue
		}
		if len(docs) > 1 && !kind.IsComposed() {
			errs = append(errs, fmt.Sprintf("%s: kind '%s' takes a single source", prefix, re.Kind))
			continue
		}

		adapters := make([]source.Adapter, 0, len(docs))
		parseFailed := false
		for _, doc := range docs {
			adapter, err := registry.Parse(doc)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
				parseFailed = true
				break
			}
			adapters = append(adapters, adapter)
		}
		if parseFailed {
			continue
		}

		m.Entries = append(m.Entries, Entry{
			ID:      re.ID,
			Kind:    kind,
			Source:  adapters[0],
			Sources: adapters,
			Dest:    re.Dest,
			Include: re.Include,
		})
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return m, nil
}

// Discover finds the manifest: an explicit override wins, otherwise
// walk up from the working directory until a manifest, a .git
// directory, or the filesystem root is reached.
func Discover(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("manifest %s: %w", override, err)
		}
		return override, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	current := cwd
	for {
		for _, name := range []string{DefaultName, "aps.toml"} {
			candidate := filepath.Join(current, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		// A .git directory marks the repository boundary.
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no manifest found — run 'aps init' to create one, or pass --manifest")
}

// Dir returns the directory containing the manifest, the base for
// resolving relative paths and destinations.
func Dir(manifestPath string) string {
	dir := filepath.Dir(manifestPath)
	if dir == "" {
		return "."
	}
	return dir
}
