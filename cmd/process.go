package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type processedDocument struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

func newProcessCmd() *cobra.Command {
	var pending int
	cmd := &cobra.Command{
		Use:   "process [documentID...]",
		Short: "Fetch and chunk documents",
		Long: `Processes the named documents, or up to --pending N pending documents oldest
first. A document that fails to fetch is marked failed and reported; it is not retried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pending > 0) == (len(args) > 0) {
				return errors.New("pass one or more document IDs or --pending N")
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if pending > 0 {
				res, err := a.Orchestrator.ProcessPending(ctx, pending)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := make([]processedDocument, 0, len(args))
			failed := 0
			for _, id := range args {
				n, err := a.Orchestrator.ProcessDocument(ctx, id)
				row := processedDocument{DocumentID: id, Chunks: n}
				if err != nil {
					row.Error = err.Error()
					failed++
				}
				out = append(out, row)
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pending, "pending", 0, "process up to N pending documents")
	return cmd
}
