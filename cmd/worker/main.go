package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/watcher"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/metrics"
)

const service = "worker"

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

	workerMetrics := metrics.NewWorkerMetrics(service)
	app.Executor.SetObserver(workerMetrics.Upstream)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	rebuild := func(ctx context.Context, trigger string) error {
		rebuildCtx, cancel := context.WithTimeout(ctx, cfg.RebuildTimeout())
		defer cancel()

		workerMetrics.StartRebuild()
		start := time.Now()
		run, err := app.Builder.Rebuild(rebuildCtx, trigger)

		var (
			chunks   int
			statuses []string
		)
		if run != nil {
			chunks = run.Chunks
			for _, file := range run.Files {
				statuses = append(statuses, string(file.Status))
			}
		}
		workerMetrics.FinishRebuild(service, time.Since(start), chunks, statuses, err)

		if domain.IsKind(err, domain.ErrRebuildInProgress) || domain.IsKind(err, domain.ErrNoInput) {
			slog.Warn("index_rebuild_not_run", "trigger", trigger, "error", err)
			return nil
		}
		return err
	}

	if cfg.WatchDocs {
		w := watcher.New(app.Storage.BasePath(), time.Duration(cfg.WatchDebounceMillis)*time.Millisecond, func(ctx context.Context, paths []string) {
			reason := "watch:" + strings.Join(paths, ",")
			if app.Queue != nil {
				if err := app.Queue.PublishRebuildRequested(ctx, reason); err != nil {
					slog.Error("rebuild_request_failed", "reason", reason, "error", err)
				}
				return
			}
			if err := rebuild(ctx, reason); err != nil {
				slog.Error("index_rebuild_failed", "trigger", reason, "error", err)
			}
		})
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("docs_watcher_failed", "error", err)
			}
		}()
	}

	if app.Queue == nil {
		slog.Info("worker_standalone", "docs", app.Storage.BasePath(), "watch", cfg.WatchDocs)
		if err := rebuild(ctx, "startup"); err != nil {
			slog.Error("index_rebuild_failed", "trigger", "startup", "error", err)
		}
		<-ctx.Done()
		return
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSRebuildSubject, "group", cfg.NATSWorkerGroup)
	err = app.Queue.SubscribeRebuildRequested(ctx, rebuild)
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func startMetricsServer(port string, m *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	return server
}
