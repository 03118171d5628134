package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bianoble/aps/internal/catalog"
	"github.com/bianoble/aps/internal/manifest"
)

var (
	catalogCategory string
	catalogTag      string
	searchLimit     int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the individual assets the manifest syncs",
}

var catalogGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Enumerate manifest assets into aps.catalog.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, path, err := discoverManifest()
		if err != nil {
			return err
		}

		c, err := catalog.Generate(cmd.Context(), m.Entries, manifest.Dir(path))
		if err != nil {
			return err
		}

		catalogPath := catalog.PathForManifest(path)
		if err := c.Save(catalogPath); err != nil {
			return err
		}
		info("Generated catalog with %d asset(s) at %s", len(c.Entries), catalogPath)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog assets, grouped by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadCatalogSearch()
		if err != nil {
			return err
		}

		assets := s.All()
		if catalogCategory != "" {
			assets = s.ByCategory(catalogCategory)
		} else if catalogTag != "" {
			assets = s.ByTag(catalogTag)
		}
		if len(assets) == 0 {
			info("No assets found in catalog.")
			return nil
		}

		info("Found %d asset(s) in catalog:", len(assets))
		for _, category := range s.Categories() {
			var shown bool
			for _, a := range assets {
				if !strings.EqualFold(a.Category, category) {
					continue
				}
				if !shown {
					info("")
					info("%s:", strings.ToUpper(category))
					shown = true
				}
				info("  %s - %s", a.ID, a.Name)
				if len(a.Tags) > 0 {
					detail("tags: %s", strings.Join(a.Tags, ", "))
				}
			}
		}
		return nil
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search catalog assets by name, tag, or description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadCatalogSearch()
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		results := s.Query(query, searchLimit)
		if len(results) == 0 {
			info("No results found for: %q", query)
			return nil
		}

		info("Search results for %q:", query)
		info("")
		for i, r := range results {
			info("  %d. %s (score: %.0f)", i+1, r.Entry.Name, r.Score)
			info("     ID: %s", r.Entry.ID)
			if r.Reason != "" {
				detail("%s", r.Reason)
			}
		}
		return nil
	},
}

var catalogInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show one catalog asset in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadCatalogSearch()
		if err != nil {
			return err
		}

		entry, ok := s.GetByID(args[0])
		if !ok {
			return fmt.Errorf("no catalog asset with id '%s'", args[0])
		}

		info("Asset: %s", entry.Name)
		info("  ID:       %s", entry.ID)
		info("  Entry:    %s", entry.ManifestEntryID)
		info("  Kind:     %s", entry.Kind)
		info("  Category: %s", entry.Category)
		info("  Source:   %s", entry.SourceDescription)
		info("  Path:     %s", entry.SourcePath)
		if len(entry.Tags) > 0 {
			info("  Tags:     %s", strings.Join(entry.Tags, ", "))
		}
		if entry.Description != "" {
			info("")
			info("  %s", entry.Description)
		}
		return nil
	},
}

// loadCatalogSearch loads the catalog next to the manifest and indexes
// it for querying.
func loadCatalogSearch() (*catalog.Search, error) {
	_, path, err := discoverManifest()
	if err != nil {
		return nil, err
	}

	c, err := catalog.Load(catalog.PathForManifest(path))
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w (run 'aps catalog generate' first)", err)
	}
	if err != nil {
		return nil, err
	}
	return catalog.NewSearch(c), nil
}

func init() {
	catalogListCmd.Flags().StringVar(&catalogCategory, "category", "", "only assets in this category")
	catalogListCmd.Flags().StringVar(&catalogTag, "tag", "", "only assets carrying this tag")
	catalogSearchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results to show")

	catalogCmd.AddCommand(catalogGenerateCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogInfoCmd)
	rootCmd.AddCommand(catalogCmd)
}
