package hooks

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const cursorHooks = `{
  "hooks": {
    "beforeSubmit": [
      {"command": "sh .cursor/hooks/lint.sh --fix"},
      {"command": "python3 ./hooks/format.py"}
    ],
    "afterApply": {"command": "hooks/notify.sh"}
  }
}`

func TestValidateCursorHooksAllScriptsPresent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hooks.json"), cursorHooks)
	writeFile(t, filepath.Join(dir, "lint.sh"), "#!/bin/sh")
	writeFile(t, filepath.Join(dir, "format.py"), "pass")
	writeFile(t, filepath.Join(dir, "notify.sh"), "#!/bin/sh")

	warnings, err := Validate(KindCursor, dir, true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidateMissingScriptWarnsByDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hooks.json"), cursorHooks)
	writeFile(t, filepath.Join(dir, "lint.sh"), "#!/bin/sh")
	writeFile(t, filepath.Join(dir, "notify.sh"), "#!/bin/sh")

	warnings, err := Validate(KindCursor, dir, false)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "format.py")
}

func TestValidateMissingScriptFailsStrict(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hooks.json"), cursorHooks)

	_, err := Validate(KindCursor, dir, true)
	require.Error(t, err)
	var notFound *ScriptNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestValidateMissingConfig(t *testing.T) {
	dir := t.TempDir()

	warnings, err := Validate(KindCursor, dir, false)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "hooks.json")

	_, err = Validate(KindCursor, dir, true)
	var missing *MissingConfigError
	require.True(t, errors.As(err, &missing))
}

func TestValidateMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hooks.json"), `{"hooks": [unclosed`)

	warnings, err := Validate(KindCursor, dir, false)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	_, err = Validate(KindCursor, dir, true)
	var invalid *InvalidConfigError
	require.True(t, errors.As(err, &invalid))
}

func TestValidateMissingHooksSection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hooks.json"), `{"version": 1}`)

	_, err := Validate(KindCursor, dir, true)
	var missing *MissingSectionError
	require.True(t, errors.As(err, &missing))
}

func TestValidateClaudeDialect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "settings.json"), `{
  "hooks": {
    "PostToolUse": [
      {"matcher": "Edit", "hooks": [{"command": "$CLAUDE_PROJECT_DIR/.claude/hooks/check.sh"}]}
    ]
  }
}`)
	writeFile(t, filepath.Join(dir, "check.sh"), "#!/bin/sh")

	warnings, err := Validate(KindClaude, dir, true)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Cursor-style prefixes are not recognized by the claude dialect.
	writeFile(t, filepath.Join(dir, "settings.json"), `{
  "hooks": {"PostToolUse": [{"command": "sh .cursor/hooks/ghost.sh"}]}
}`)
	warnings, err = Validate(KindClaude, dir, false)
	require.NoError(t, err)
	assert.Empty(t, warnings, "unrecognized command paths are not validated")
}

func TestScriptPathsDeduplicatesAndTrims(t *testing.T) {
	commands := []string{
		`sh ".cursor/hooks/lint.sh";`,
		"sh .cursor/hooks/lint.sh && echo done",
		"(hooks/run.sh)",
	}
	paths := scriptPaths(commands, KindCursor)
	assert.Equal(t, []string{"lint.sh", "run.sh"}, paths)
}
