package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/orchestrator"
)

func newCrawlCmd() *cobra.Command {
	var (
		all  bool
		seed bool
	)
	cmd := &cobra.Command{
		Use:   "crawl [slug...]",
		Short: "Crawl organizations by slug",
		Long: `Runs the feeds and publications page of each named organization (or every
active organization with --all) and prints the per-run result. Failures inside a
run are reported in its errors list; an unknown or inactive slug fails the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass one or more slugs or --all")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if seed {
				if _, err := a.Orchestrator.InitializeOrganizations(ctx); err != nil {
					return err
				}
			}

			var results []orchestrator.Result
			if all {
				results, err = a.Orchestrator.CrawlAll(ctx)
				if err != nil {
					return err
				}
			} else {
				for _, slug := range args {
					res, err := a.Orchestrator.CrawlOrganization(ctx, slug)
					if err != nil {
						return fmt.Errorf("crawl %s: %w", slug, err)
					}
					results = append(results, res)
				}
			}
			a.Logger.Info("crawl command finished", zap.Int("organizations", len(results)))
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "crawl every active organization")
	cmd.Flags().BoolVar(&seed, "seed", true, "upsert the configured organizations before crawling")
	return cmd
}
