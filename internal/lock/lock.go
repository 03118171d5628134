// Package lock persists the last-installed state per manifest entry.
// The lockfile is the basis for idempotency: an entry whose source
// fingerprint matches its locked fingerprint is skipped entirely.
package lock

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Version is the only supported lockfile format version.
const Version = 1

// DefaultName is the lockfile name next to the manifest.
const DefaultName = "aps.lock"

// ErrNotFound reports a missing lockfile. Callers recover by treating
// the run as having no prior state; any other load failure is hard.
var ErrNotFound = errors.New("lockfile not found")

// ParseError reports a lockfile that exists but cannot be understood.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed lockfile %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Entry records what is currently installed for one manifest entry.
type Entry struct {
	Source   string `yaml:"source"`
	Dest     string `yaml:"dest"`
	Checksum string `yaml:"checksum"`
	Ref      string `yaml:"ref,omitempty"`
	Commit   string `yaml:"commit,omitempty"`
}

// Lockfile is an insertion-ordered mapping from entry id to Entry. The
// persisted form keys entries by id and round-trips losslessly,
// preserving order.
type Lockfile struct {
	order   []string
	entries map[string]Entry
}

// New returns an empty lockfile.
func New() *Lockfile {
	return &Lockfile{entries: make(map[string]Entry)}
}

// Get returns the locked entry for id, if any.
func (lf *Lockfile) Get(id string) (Entry, bool) {
	e, ok := lf.entries[id]
	return e, ok
}

// IDs returns entry ids in insertion order.
func (lf *Lockfile) IDs() []string {
	out := make([]string, len(lf.order))
	copy(out, lf.order)
	return out
}

// Len returns the number of locked entries.
func (lf *Lockfile) Len() int { return len(lf.order) }

// ChecksumMatches reports whether an entry exists for id with exactly
// the given fingerprint. This is the single authoritative idempotency
// check.
func (lf *Lockfile) ChecksumMatches(id, checksum string) bool {
	e, ok := lf.entries[id]
	return ok && e.Checksum == checksum
}

// Upsert inserts or replaces the entry for id in memory. Persisting is
// a separate, explicit Save.
func (lf *Lockfile) Upsert(id string, e Entry) {
	if _, ok := lf.entries[id]; !ok {
		lf.order = append(lf.order, id)
	}
	lf.entries[id] = e
}

// document is the persisted lockfile shape.
type document struct {
	Version int       `yaml:"version"`
	Entries yaml.Node `yaml:"entries"`
}

// Load reads a lockfile. A missing file returns ErrNotFound; a file
// that exists but does not parse returns a *ParseError.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if doc.Version != Version {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("unsupported version %d — only version %d is supported", doc.Version, Version)}
	}

	lf := New()
	if doc.Entries.Kind == 0 || doc.Entries.Tag == "!!null" {
		return lf, nil
	}
	if doc.Entries.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: errors.New("'entries' must be a mapping keyed by entry id")}
	}

	// Mapping nodes hold alternating key/value children in document
	// order, which is how insertion order survives a round-trip.
	for i := 0; i+1 < len(doc.Entries.Content); i += 2 {
		id := doc.Entries.Content[i].Value
		var e Entry
		if err := doc.Entries.Content[i+1].Decode(&e); err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("entry '%s': %w", id, err)}
		}
		if _, dup := lf.entries[id]; dup {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("duplicate entry id '%s'", id)}
		}
		lf.Upsert(id, e)
	}

	return lf, nil
}

// Save serializes the full mapping and writes it atomically via temp
// file and rename, so an interrupted run leaves the previous lockfile
// intact. Callers invoke this once, after all entries in a run have
// been processed.
func (lf *Lockfile) Save(path string) error {
	entriesNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, id := range lf.order {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: id}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(lf.entries[id]); err != nil {
			return fmt.Errorf("marshaling lockfile entry '%s': %w", id, err)
		}
		entriesNode.Content = append(entriesNode.Content, keyNode, valueNode)
	}

	doc := document{Version: Version, Entries: *entriesNode}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling lockfile: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp lockfile %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp lockfile to %s: %w", path, err)
	}

	return nil
}
