// Package settings composes agent permission fragments into a single
// settings document. Fragments are YAML files carrying allow and deny
// lists; composition unions them, strips denied permissions from the
// allow list, and renders deterministic sorted JSON.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Fragment is one permission fragment file.
type Fragment struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// ReadFragment parses a fragment file.
func ReadFragment(path string) (Fragment, error) {
	var f Fragment
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("reading settings fragment %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing settings fragment %s: %w", path, err)
	}
	return f, nil
}

type permissions struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny,omitempty"`
}

type document struct {
	Permissions permissions `json:"permissions"`
}

// Compose merges fragments into the rendered settings document,
// terminated by a newline. A permission denied by any fragment is
// removed from the allow list. Output order is sorted, so composition
// is stable regardless of fragment order.
func Compose(fragments []Fragment) (string, error) {
	allow := make(map[string]bool)
	deny := make(map[string]bool)
	for _, f := range fragments {
		for _, p := range f.Allow {
			allow[p] = true
		}
		for _, p := range f.Deny {
			deny[p] = true
		}
	}
	for p := range deny {
		delete(allow, p)
	}

	doc := document{Permissions: permissions{
		Allow: sorted(allow),
		Deny:  sorted(deny),
	}}
	if doc.Permissions.Allow == nil {
		// An empty allow list still renders as a list, not null.
		doc.Permissions.Allow = []string{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rendering settings: %w", err)
	}
	return string(data) + "\n", nil
}

func sorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
