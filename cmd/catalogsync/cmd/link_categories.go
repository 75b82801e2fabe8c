package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/catalogsync/backend/internal/domain"
)

var linkReport string

var linkCategoriesCmd = &cobra.Command{
	Use:   "link-categories",
	Short: "Link synced products to their source categories",
	Long: `Attach every product carrying metadata.external_category to the synced
category with the same handle. Products already linked are left alone.

Examples:
  catalogsync link-categories
  catalogsync link-categories --dry-run --report links.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if cmd.Flags().Changed("dry-run") {
			cfg.Sync.DryRun = dryRun
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.service.LinkCategories(ctx)
		if err != nil {
			return err
		}

		if linkReport != "" {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(linkReport, data, 0o644); err != nil {
				return fmt.Errorf("write link report: %w", err)
			}
		}

		fmt.Printf("linked=%d already_linked=%d dry_run_would_link=%d category_missing=%d link_failed=%d\n",
			report.Count(domain.LinkLinked),
			report.Count(domain.LinkAlreadyLinked),
			report.Count(domain.LinkDryRunWouldLink),
			report.Count(domain.LinkCategoryMissing),
			report.Count(domain.LinkFailed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCategoriesCmd)
	linkCategoriesCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report links without writing them")
	linkCategoriesCmd.Flags().StringVar(&linkReport, "report", "", "write the per-product link report as JSON to this path")
}
