package manifest

import (
	"fmt"
	"os"
)

// Format selects the manifest serialization for Init.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

const exampleYAML = `# aps manifest — declares which agent assets to sync into this repo.
entries:
  - id: my-agents
    kind: agents_md
    source:
      type: filesystem
      root: ../shared-assets
      path: AGENTS.md
      symlink: true
# Composed settings merge several permission fragments into one file:
#  - id: claude-settings
#    kind: claude_settings
#    sources:
#      - {type: filesystem, root: ../shared-assets, path: permissions/base.yaml}
#      - {type: filesystem, root: ../shared-assets, path: permissions/strict.yaml}
`

const exampleTOML = `# aps manifest — declares which agent assets to sync into this repo.
[[entries]]
id = "my-agents"
kind = "agents_md"

[entries.source]
type = "filesystem"
root = "../shared-assets"
path = "AGENTS.md"
symlink = true
`

// Init writes a starter manifest at path. Refuses to overwrite an
// existing file.
func Init(path string, format Format) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("manifest already exists at %s", path)
	}

	content := exampleYAML
	if format == FormatTOML {
		content = exampleTOML
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
