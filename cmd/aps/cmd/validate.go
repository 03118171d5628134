package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/hooks"
	"github.com/bianoble/aps/internal/install"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/settings"
	"github.com/bianoble/aps/internal/source"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest and check sources are reachable",
	Long: `Loads the manifest, resolves every entry's source, and reports
unreachable paths, skill bundles missing their marker file, and broken
hook configurations. Problems are warnings unless --strict is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, path, err := discoverManifest()
		if err != nil {
			return err
		}
		info("Validating manifest at %s", path)
		info("  Schema validation passed")

		baseDir := manifest.Dir(path)
		var warnings int

		info("")
		info("Validating entries:")
		for _, e := range m.Entries {
			entryWarnings, err := validateEntry(cmd, e, baseDir)
			if err != nil {
				return err
			}
			warnings += entryWarnings
		}

		hookWarnings, err := validateHooks(baseDir)
		if err != nil {
			return err
		}
		warnings += hookWarnings

		info("")
		if warnings == 0 {
			info("Manifest is valid. All %d entries validated successfully.", len(m.Entries))
			return nil
		}
		info("Manifest is valid with %d warning(s).", warnings)
		return nil
	},
}

func validateEntry(cmd *cobra.Command, e manifest.Entry, baseDir string) (int, error) {
	warnings := 0
	var displays []string

	for _, src := range e.AllSources() {
		resolved, err := src.Resolve(cmd.Context(), baseDir)
		if err != nil {
			if validateStrict {
				return 0, fmt.Errorf("entry '%s': %w", e.ID, err)
			}
			warn("%s: %v", e.ID, err)
			return 1, nil
		}

		entryWarnings, err := validateResolved(e, resolved.Path)
		closeErr := resolved.Close()
		if err != nil {
			if validateStrict {
				return 0, fmt.Errorf("entry '%s': %w", e.ID, err)
			}
			info("  [WARN] %s - %v", e.ID, err)
			return 1, nil
		}
		if closeErr != nil {
			return 0, closeErr
		}
		for _, w := range entryWarnings {
			info("  [WARN] %s - %s", e.ID, w)
		}
		warnings += len(entryWarnings)
		displays = append(displays, resolved.Display)
	}

	info("  [OK] %s (%s)", e.ID, strings.Join(displays, ", "))
	return warnings, nil
}

// validateResolved checks one resolved source path per the entry's
// kind: existence for everything, marker files for skill roots, and
// fragment parsability for composed settings.
func validateResolved(e manifest.Entry, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &source.PathNotFoundError{Path: path}
	}

	switch {
	case e.Kind.IsSkillRoot():
		return install.ValidateSkillRoot(path, validateStrict)
	case e.Kind.IsComposed():
		if _, err := settings.ReadFragment(path); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// validateHooks checks hook installations that exist under the base
// directory. Absent hook directories are not a finding.
func validateHooks(baseDir string) (int, error) {
	dirs := []struct {
		kind hooks.Kind
		rel  string
	}{
		{hooks.KindCursor, filepath.Join(".cursor", "hooks")},
		{hooks.KindClaude, filepath.Join(".claude", "hooks")},
	}

	warnings := 0
	for _, d := range dirs {
		hooksDir := filepath.Join(baseDir, d.rel)
		if _, err := os.Stat(hooksDir); os.IsNotExist(err) {
			continue
		}
		found, err := hooks.Validate(d.kind, hooksDir, validateStrict)
		if err != nil {
			return 0, err
		}
		for _, w := range found {
			info("  [WARN] hooks - %s", w)
		}
		warnings += len(found)
	}
	return warnings, nil
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "treat warnings as errors")
	rootCmd.AddCommand(validateCmd)
}
