// Package manifest models the declarative list of assets to sync and
// loads it from YAML or TOML. Source descriptors inside entries are
// parsed through a source.Registry, so the manifest schema does not
// know the concrete source variants.
package manifest

import (
	"github.com/bianoble/aps/internal/source"
)

// DefaultName is the manifest filename discovered by walking up from
// the working directory.
const DefaultName = "aps.yaml"

// Kind classifies an asset and implies its default destination and
// install strategy.
type Kind string

const (
	// KindAgentsMD is a single AGENTS.md file.
	KindAgentsMD Kind = "agents_md"
	// KindCursorRules is a directory of rule files.
	KindCursorRules Kind = "cursor_rules"
	// KindCursorSkillsRoot is a directory whose immediate children are
	// independent skill bundles.
	KindCursorSkillsRoot Kind = "cursor_skills_root"
	// KindAgentSkill is a skill-root installed for Claude-style agents.
	KindAgentSkill Kind = "agent_skill"
	// KindClaudeSettings is a settings file composed from one or more
	// permission fragment sources.
	KindClaudeSettings Kind = "claude_settings"
)

// Kinds lists every valid kind, for error messages.
var Kinds = []Kind{KindAgentsMD, KindCursorRules, KindCursorSkillsRoot, KindAgentSkill, KindClaudeSettings}

// Valid reports whether k names a known asset kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAgentsMD, KindCursorRules, KindCursorSkillsRoot, KindAgentSkill, KindClaudeSettings:
		return true
	}
	return false
}

// DefaultDest returns the destination used when an entry has no
// explicit override.
func (k Kind) DefaultDest() string {
	switch k {
	case KindCursorRules:
		return ".cursor/rules"
	case KindCursorSkillsRoot:
		return ".cursor/skills"
	case KindAgentSkill:
		return ".claude/skills"
	case KindClaudeSettings:
		return ".claude/settings.json"
	default:
		return "AGENTS.md"
	}
}

// IsSkillRoot reports whether the kind installs per-child skill
// bundles with marker validation.
func (k Kind) IsSkillRoot() bool {
	return k == KindCursorSkillsRoot || k == KindAgentSkill
}

// IsSingleFile reports whether the kind copies one source file as-is.
func (k Kind) IsSingleFile() bool {
	return k == KindAgentsMD
}

// IsComposed reports whether the kind merges every source into one
// generated file instead of copying content.
func (k Kind) IsComposed() bool {
	return k == KindClaudeSettings
}

// Entry is one declared asset-sync unit. Immutable for the duration of
// a run.
type Entry struct {
	// ID uniquely identifies the entry within a manifest.
	ID string

	// Kind selects the install strategy and default destination.
	Kind Kind

	// Source resolves the entry's content. Always the first element of
	// Sources.
	Source source.Adapter

	// Sources holds every source adapter. Composed kinds may carry
	// several; every other kind has exactly one.
	Sources []source.Adapter

	// Dest overrides the kind's default destination when non-empty.
	Dest string

	// Include restricts directory installs to top-level children whose
	// names match any of these prefixes. Empty means everything.
	Include []string
}

// AllSources returns the entry's source adapters. Entries built by
// hand with only Source set still yield a one-element slice.
func (e *Entry) AllSources() []source.Adapter {
	if len(e.Sources) > 0 {
		return e.Sources
	}
	return []source.Adapter{e.Source}
}

// Destination returns the explicit override or the kind's default.
func (e *Entry) Destination() string {
	if e.Dest != "" {
		return e.Dest
	}
	return e.Kind.DefaultDest()
}

// Manifest is the parsed, ordered entry list.
type Manifest struct {
	Entries []Entry
}
