package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/logging"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	manifestPath string
	verbosity    int
	quiet        bool
)

var rootCmd = &cobra.Command{
	Use:   "aps",
	Short: "Manifest-driven synchronization of agent assets",
	Long: `aps syncs agent assets (rule files, skill bundles, agent instruction
files) from shared sources into a repository. A manifest declares what to
sync, a lockfile records content fingerprints so unchanged assets are
skipped, and any pre-existing content is backed up before it is
overwritten.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aps %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "path to the manifest (default: discover aps.yaml or aps.toml upward)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output (errors only)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
