package cli

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/pdf-rag-assistant/internal/adapters/mcp"
)

func newMCPCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the document tools over MCP stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout exposing two tools:
ask_documents answers a question from the indexed PDFs and list_sources
lists the indexed file names. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			services, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := mcpadapter.NewServer(services.Answerer, services.Documents, services.Version)
			return mcpadapter.ServeStdio(ctx, srv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
