package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/install"
	"github.com/bianoble/aps/internal/manifest"
)

var (
	pullOnly   []string
	pullYes    bool
	pullDryRun bool
	pullStrict bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Sync manifest entries into the repository",
	Long: `Resolves each manifest entry's source, fingerprints its content, and
installs entries whose fingerprint differs from the lockfile. Content
already present at a destination aps does not manage is backed up before
being overwritten, after confirmation. The lockfile is written once, at
the end of a successful run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, path, err := discoverManifest()
		if err != nil {
			return err
		}
		info("Using manifest: %s", path)

		lf, err := loadLockfile(path)
		if err != nil {
			return err
		}

		installer := install.New(manifest.Dir(path), lf)
		opts := install.Options{
			DryRun: pullDryRun,
			Yes:    pullYes,
			Strict: pullStrict,
			Only:   pullOnly,
		}

		results, err := installer.All(cmd.Context(), m.Entries, opts)
		for _, r := range results {
			switch {
			case r.SkippedNoChange:
				detail("%s: up to date", r.ID)
			case r.Cancelled:
				info("%s: skipped (overwrite declined)", r.ID)
			case r.Installed:
				info("%s: installed", r.ID)
			}
			for _, w := range r.Warnings {
				warn("%s: %s", r.ID, w)
			}
		}
		if err != nil {
			return err
		}

		if pullDryRun {
			info("Dry run — nothing written.")
			return nil
		}

		changed := false
		for _, r := range results {
			if r.Locked != nil {
				lf.Upsert(r.ID, *r.Locked)
				changed = true
			}
		}
		if changed {
			if err := lf.Save(lockfilePath(path)); err != nil {
				return fmt.Errorf("saving lockfile: %w", err)
			}
		}

		installed, skipped, cancelled := 0, 0, 0
		for _, r := range results {
			switch {
			case r.Installed:
				installed++
			case r.SkippedNoChange:
				skipped++
			case r.Cancelled:
				cancelled++
			}
		}
		info("")
		info("Pull complete: %d installed, %d up to date, %d cancelled.",
			installed, skipped, cancelled)
		return nil
	},
}

func init() {
	pullCmd.Flags().StringSliceVar(&pullOnly, "only", nil, "restrict the run to the given entry ids")
	pullCmd.Flags().BoolVar(&pullYes, "yes", false, "overwrite conflicting destinations without prompting")
	pullCmd.Flags().BoolVar(&pullDryRun, "dry-run", false, "report intended changes without writing anything")
	pullCmd.Flags().BoolVar(&pullStrict, "strict", false, "treat validation warnings as errors")
	rootCmd.AddCommand(pullCmd)
}
