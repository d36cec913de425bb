package cli

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-rag-assistant/internal/adapters/tui"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
)

func newChatCommand(open Opener) *cobra.Command {
	var (
		topK      int
		sources   []string
		noSources bool
		logFile   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			services, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if topK <= 0 {
				topK = services.DefaultTopK
			}
			restoreLogs, err := redirectLogs(logFile, services.LogLevel)
			if err != nil {
				return err
			}
			defer restoreLogs()

			sessionID := services.Sessions.Create()
			defer func() { _ = services.Sessions.Delete(sessionID) }()

			model := tui.New(ctx, services.Sessions, sessionID, tui.Settings{
				TopK:        topK,
				ShowSources: !noSources,
				Sources:     sources,
			})
			program := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("run chat: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "initial top-k (cycle with ctrl+k)")
	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "restrict retrieval to these PDF file names")
	cmd.Flags().BoolVar(&noSources, "no-sources", false, "start with citations hidden (toggle with ctrl+s)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs here while the chat is open (default: discard)")
	return cmd
}

// Log lines on stderr would tear the chat screen, so they go to a file or
// nowhere until the program exits.
func redirectLogs(path, level string) (func(), error) {
	prev := slog.Default()
	if path == "" {
		slog.SetDefault(logging.New(logging.Options{Level: "off"}))
		return func() { slog.SetDefault(prev) }, nil
	}
	logger, closeFn, err := logging.OpenFile(path, "ragctl", level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return func() {
		slog.SetDefault(prev)
		_ = closeFn()
	}, nil
}
