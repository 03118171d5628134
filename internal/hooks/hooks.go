// Package hooks validates editor hook configuration installed next to
// synced assets: the config file must exist, parse, carry a hooks
// section, and every script it references must be present. Findings
// are warnings by default and hard errors in strict mode, the same
// discipline skill markers follow.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/aps/internal/logging"
)

// Kind selects the hook dialect being validated.
type Kind string

const (
	// KindCursor validates .cursor/hooks with a hooks.json config.
	KindCursor Kind = "cursor"
	// KindClaude validates .claude/hooks with a settings.json config.
	KindClaude Kind = "claude"
)

// ConfigName returns the config filename for the dialect.
func (k Kind) ConfigName() string {
	if k == KindClaude {
		return "settings.json"
	}
	return "hooks.json"
}

// scriptPrefixes are the command substrings that mark a path as a
// managed hook script, per dialect. Both slash styles appear in
// configs written on Windows.
func (k Kind) scriptPrefixes() []string {
	if k == KindClaude {
		return []string{
			".claude/hooks/", "./.claude/hooks/",
			"$CLAUDE_PROJECT_DIR/.claude/hooks/", "${CLAUDE_PROJECT_DIR}/.claude/hooks/",
			`.claude\hooks\`, `.\.claude\hooks\`,
			`$CLAUDE_PROJECT_DIR\.claude\hooks\`, `${CLAUDE_PROJECT_DIR}\.claude\hooks\`,
		}
	}
	return []string{
		".cursor/hooks/", "./.cursor/hooks/",
		"hooks/", "./hooks/",
		`.cursor\hooks\`, `.\.cursor\hooks\`,
		`hooks\`, `.\hooks\`,
	}
}

// MissingConfigError reports an absent hook config file.
type MissingConfigError struct {
	Path string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("hooks config not found: %s", e.Path)
}

// InvalidConfigError reports an unparseable hook config.
type InvalidConfigError struct {
	Path string
	Err  error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid hooks config %s: %v", e.Path, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// MissingSectionError reports a config without a top-level hooks
// section.
type MissingSectionError struct {
	Path string
}

func (e *MissingSectionError) Error() string {
	return fmt.Sprintf("hooks config %s has no 'hooks' section", e.Path)
}

// ScriptNotFoundError reports a referenced hook script that does not
// exist.
type ScriptNotFoundError struct {
	Path string
}

func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("hook script not found: %s", e.Path)
}

// Validate checks the hook installation under hooksDir. In non-strict
// mode every finding becomes a warning string; in strict mode the
// first finding is returned as an error.
func Validate(kind Kind, hooksDir string, strict bool) ([]string, error) {
	log := logging.GetLogger("hooks")
	var warnings []string

	fail := func(err error) error {
		if strict {
			return err
		}
		log.Warn().Str("dir", hooksDir).Msg(err.Error())
		warnings = append(warnings, err.Error())
		return nil
	}

	configPath := filepath.Join(hooksDir, kind.ConfigName())
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return warnings, fail(&MissingConfigError{Path: configPath})
		}
		return warnings, fmt.Errorf("reading hooks config %s: %w", configPath, err)
	}

	// YAML is a JSON superset, so the generic document decoding used
	// for manifests covers hook configs too.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return warnings, fail(&InvalidConfigError{Path: configPath, Err: err})
	}

	section, ok := doc["hooks"]
	if !ok {
		return warnings, fail(&MissingSectionError{Path: configPath})
	}

	for _, script := range scriptPaths(collectCommands(section), kind) {
		scriptPath := filepath.Join(hooksDir, script)
		if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
			if err := fail(&ScriptNotFoundError{Path: scriptPath}); err != nil {
				return warnings, err
			}
		}
	}

	return warnings, nil
}

// collectCommands walks the hooks section recursively and gathers
// every string value under a "command" key.
func collectCommands(value any) []string {
	var commands []string
	var walk func(any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			for key, val := range node {
				if key == "command" {
					if cmd, ok := val.(string); ok {
						commands = append(commands, cmd)
						continue
					}
				}
				walk(val)
			}
		case []any:
			for _, item := range node {
				walk(item)
			}
		}
	}
	walk(value)
	return commands
}

// scriptPaths extracts the hook-relative script paths referenced by
// the given commands, deduplicated and sorted.
func scriptPaths(commands []string, kind Kind) []string {
	prefixes := kind.scriptPrefixes()
	seen := make(map[string]bool)

	for _, command := range commands {
		for _, token := range strings.Fields(command) {
			token = trimToken(token)
			for _, prefix := range prefixes {
				if rel := relativeAfter(token, prefix); rel != "" {
					seen[rel] = true
				}
			}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// relativeAfter returns the path portion of token following prefix,
// stripped of shell punctuation, or "" when the prefix is absent.
func relativeAfter(token, prefix string) string {
	i := strings.Index(token, prefix)
	if i < 0 {
		return ""
	}
	return trimToken(token[i+len(prefix):])
}

func trimToken(token string) string {
	return strings.Trim(token, `"';(),`)
}
