package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSourcesCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the PDFs present in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			services, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			sources, err := services.Documents.ListSources(ctx)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents indexed. Run `ragctl ingest` first.")
				return nil
			}
			for _, source := range sources {
				fmt.Fprintln(cmd.OutOrStdout(), source)
			}
			return nil
		},
	}
}
