package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasConflict(t *testing.T) {
	base := t.TempDir()

	assert.False(t, HasConflict(filepath.Join(base, "missing")))

	file := filepath.Join(base, "AGENTS.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.True(t, HasConflict(file))

	empty := filepath.Join(base, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))
	assert.False(t, HasConflict(empty), "empty directory is not a conflict")

	full := filepath.Join(base, "full")
	require.NoError(t, os.Mkdir(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, "f"), []byte("x"), 0o644))
	assert.True(t, HasConflict(full))
}

func TestCreateFileBackup(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, ".cursor", "AGENTS.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("original"), 0o644))

	backupPath, err := Create(base, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	// Original untouched.
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	// Backup lives under the backup area with a flattened name.
	assert.Equal(t, filepath.Join(base, Dir), filepath.Dir(backupPath))
	assert.True(t, strings.HasPrefix(filepath.Base(backupPath), ".cursor-AGENTS.md-"))
}

func TestCreateDirectoryBackupIsDeepCopy(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "rules")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "nested", "b.md"), []byte("b"), 0o644))

	backupPath, err := Create(base, dest)
	require.NoError(t, err)

	// Mutating and removing the original leaves the backup intact.
	require.NoError(t, os.RemoveAll(dest))

	data, err := os.ReadFile(filepath.Join(backupPath, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	data, err = os.ReadFile(filepath.Join(backupPath, "nested", "b.md"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestCreateLazyBackupArea(t *testing.T) {
	base := t.TempDir()

	_, err := os.Stat(filepath.Join(base, Dir))
	assert.True(t, os.IsNotExist(err), "backup area must not exist before the first backup")

	dest := filepath.Join(base, "f.md")
	require.NoError(t, os.WriteFile(dest, []byte("x"), 0o644))
	_, err = Create(base, dest)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, Dir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMissingDest(t *testing.T) {
	base := t.TempDir()
	_, err := Create(base, filepath.Join(base, "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCreatePreservesFileMode(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "hooks")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "check.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "notes.md"), []byte("n"), 0o644))

	backupPath, err := Create(base, dest)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(backupPath, "check.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(backupPath, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestCreateSameDestTwiceKeepsBothBackups(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "AGENTS.md")
	require.NoError(t, os.WriteFile(dest, []byte("first"), 0o644))

	first, err := Create(base, dest)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dest, []byte("second"), 0o644))
	second, err := Create(base, dest)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "backups within the same minute must not collide")

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestBackupName(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 7, 0, 0, time.UTC)
	name := backupName("/repo", "/repo/.cursor/rules", now)
	assert.Equal(t, ".cursor-rules-2026-08-29-1407", name)
}
