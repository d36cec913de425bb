package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/pdf-rag-assistant/internal/adapters/http"
	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/metrics"
)

const service = "api"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	app.Executor.SetObserver(httpMetrics.Upstream)
	go followIndex(ctx, app, httpMetrics)

	router := httpadapter.NewRouter(cfg, app.Answerer, app.Sessions, app.Documents, app.Catalog).
		WithMetrics(httpMetrics, service).
		Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.OllamaTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}

// followIndex swaps in new index generations as workers publish them. The
// poll covers deployments without NATS and missed notifications.
func followIndex(ctx context.Context, app *bootstrap.App, m *metrics.HTTPServerMetrics) {
	reload := func(trigger string) {
		err := app.Index.Reload(ctx)
		m.RecordIndexReload(service, err)
		if err != nil {
			slog.Warn("index_reload_failed", "trigger", trigger, "error", err)
		}
	}

	if app.Queue != nil {
		go func() {
			err := app.Queue.SubscribeIndexRebuilt(ctx, func(_ context.Context, generation string) error {
				reload("event:" + generation)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("index_subscription_failed", "error", err)
			}
		}()
	}

	if app.Config.IndexReloadPollSeconds <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(app.Config.IndexReloadPollSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := app.Store.Current()
			if err != nil {
				slog.Warn("index_poll_failed", "error", err)
				continue
			}
			if current != "" && current != app.Index.Index().Meta().Generation {
				reload("poll")
			}
		}
	}
}
