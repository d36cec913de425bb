package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

func newIngestCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the index from the documents directory",
		Long: `Extracts every PDF in the documents directory, splits the pages into
chunks, embeds them and atomically replaces the persisted index. Unreadable
PDFs are skipped and reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			services, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := services.Builder.Rebuild(ctx, "cli")
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			if err != nil {
				return fmt.Errorf("rebuild index: %w", err)
			}
			return nil
		},
	}
}

func printRun(w io.Writer, run *domain.IngestRun) {
	for _, file := range run.Files {
		switch file.Status {
		case domain.FileSkipped:
			fmt.Fprintf(w, "  skipped  %s: %s\n", file.Source, file.Error)
		case domain.FileEmpty:
			fmt.Fprintf(w, "  empty    %s\n", file.Source)
		default:
			fmt.Fprintf(w, "  indexed  %s (%d pages, %d chunks)\n", file.Source, file.Pages, file.Chunks)
		}
	}
	if run.Status == domain.IngestSucceeded {
		fmt.Fprintf(w, "Indexed %d chunks from %d PDF(s) into %s\n", run.Chunks, run.FilesTotal-run.FilesSkipped, run.Generation)
	}
}
