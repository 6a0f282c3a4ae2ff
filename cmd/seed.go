package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured organizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			orgs, err := a.Orchestrator.InitializeOrganizations(cmd.Context())
			if err != nil {
				return err
			}
			for _, org := range orgs {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tactive=%t\n", org.Slug, org.ID, org.IsActive); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			return nil
		},
	}
}
