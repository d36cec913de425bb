package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/pdf-rag-assistant/internal/adapters/cli"
	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(logging.Options{Service: "ragctl", Level: cfg.LogLevel, Output: os.Stderr}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Services, func(), error) {
		app, err := bootstrap.New(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		return &cli.Services{
			Builder:     app.Builder,
			Answerer:    app.Answerer,
			Sessions:    app.Sessions,
			Documents:   app.Documents,
			DefaultTopK: cfg.RAGTopK,
			LogLevel:    cfg.LogLevel,
			Version:     version,
		}, app.Close, nil
	})
	root.Version = version

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
