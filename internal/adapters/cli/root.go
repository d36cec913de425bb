package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

// Services is what the commands run against. Builder is only needed by
// ingest; the others by the question-answering commands.
type Services struct {
	Builder   ports.IndexBuilder
	Answerer  ports.QuestionAnswerer
	Sessions  ports.SessionAsker
	Documents ports.DocumentUploader

	DefaultTopK int
	LogLevel    string
	Version     string
}

// Opener builds the services lazily so that --help and argument errors never
// touch Ollama or the index.
type Opener func(ctx context.Context) (*Services, func(), error)

func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Ask questions answered only from your PDF documents",
		Long: `ragctl indexes a directory of PDFs and answers questions strictly from
their text, citing the source file, page and chunk for every answer.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newIngestCommand(open),
		newAskCommand(open),
		newChatCommand(open),
		newSourcesCommand(open),
		newMCPCommand(open),
	)
	return root
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
