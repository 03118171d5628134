package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/lock"
	"github.com/bianoble/aps/internal/manifest"
	"github.com/bianoble/aps/internal/source"
)

var statusRemote bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the sync state of every manifest entry",
	Long: `Compares the manifest against the lockfile and the filesystem: which
entries are installed, which have never been pulled, and which lockfile
records no longer match a manifest entry. With --remote, sources that
support it are also probed for upstream changes without fetching
content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, path, err := discoverManifest()
		if err != nil {
			return err
		}
		lf, err := loadLockfile(path)
		if err != nil {
			return err
		}
		baseDir := manifest.Dir(path)

		info("Manifest: %s (%d entries)", path, len(m.Entries))
		info("")

		known := make(map[string]bool, len(m.Entries))
		for _, e := range m.Entries {
			known[e.ID] = true
			locked, ok := lf.Get(e.ID)
			if !ok {
				info("  [ ] %s: not installed", e.ID)
				continue
			}

			destAbs := filepath.Join(baseDir, locked.Dest)
			if _, err := os.Stat(destAbs); os.IsNotExist(err) {
				info("  [!] %s: locked but missing at %s", e.ID, locked.Dest)
				continue
			}

			line := "installed at " + locked.Dest
			if locked.Commit != "" {
				line += " (" + locked.Ref + " @ " + shortCommit(locked.Commit) + ")"
			}
			info("  [x] %s: %s", e.ID, line)
			detail("checksum %s", locked.Checksum)

			if statusRemote {
				reportRemote(cmd, e, &locked)
			}
		}

		for _, id := range lf.IDs() {
			if !known[id] {
				info("  [?] %s: in lockfile but not in manifest", id)
			}
		}
		return nil
	},
}

// reportRemote probes the entry's source for upstream changes when the
// source supports it. Probe failures are warnings; status never fails
// the run over the network.
func reportRemote(cmd *cobra.Command, e manifest.Entry, locked *lock.Entry) {
	prober, ok := e.Source.(source.RemoteProber)
	if !ok {
		return
	}
	changed, knownState, err := prober.RemoteChanged(cmd.Context(), locked)
	switch {
	case err != nil:
		warn("%s: remote probe failed: %v", e.ID, err)
	case !knownState:
		detail("%s: remote state unknown", e.ID)
	case changed:
		info("      ^ upstream has new commits")
	default:
		detail("%s: up to date with upstream", e.ID)
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

func init() {
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "probe git sources for upstream changes")
	rootCmd.AddCommand(statusCmd)
}
