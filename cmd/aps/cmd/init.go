package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/manifest"
)

var initFormat string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter manifest in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		var format manifest.Format
		var name string
		switch initFormat {
		case "yaml":
			format, name = manifest.FormatYAML, "aps.yaml"
		case "toml":
			format, name = manifest.FormatTOML, "aps.toml"
		default:
			return fmt.Errorf("unknown format '%s' (expected yaml or toml)", initFormat)
		}

		if err := manifest.Init(name, format); err != nil {
			return err
		}
		info("Created %s. Edit it to declare your assets, then run 'aps pull'.", name)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initFormat, "format", "yaml", "manifest format (yaml or toml)")
	rootCmd.AddCommand(initCmd)
}
