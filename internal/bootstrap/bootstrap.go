package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/vectorindex"
)

type App struct {
	Config config.Config

	Store    *vectorindex.Store
	Index    *vectorindex.Handle
	Storage  *localfs.Storage
	Executor *resilience.Executor

	// Nil when NATS_URL or POSTGRES_DSN are unset.
	Queue   ports.IndexEventQueue
	Catalog ports.IngestCatalog

	Builder   *usecase.IndexBuildUseCase
	Answerer  *usecase.AnswerUseCase
	Sessions  *usecase.SessionService
	Documents *usecase.DocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resiliencePolicy(cfg))

	storage, err := localfs.New(cfg.DocsPath)
	if err != nil {
		return nil, fmt.Errorf("init document storage: %w", err)
	}

	store, err := vectorindex.NewStore(cfg.IndexPath, cfg.OllamaEmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init index store: %w", err)
	}
	handle, err := vectorindex.OpenHandle(ctx, store, cfg.OllamaEmbedModel)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	var (
		db      *sql.DB
		catalog ports.IngestCatalog
	)
	if cfg.PostgresDSN != "" {
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewCatalogRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		catalog = repo
	}

	var (
		natsQueue *nats.Queue
		queue     ports.IndexEventQueue
	)
	if cfg.NATSURL != "" {
		natsQueue, err = nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
			RebuildRequested: cfg.NATSRebuildSubject,
			IndexRebuilt:     cfg.NATSRebuiltSubject,
			WorkerGroup:      cfg.NATSWorkerGroup,
		}, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue = natsQueue
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:  cfg.OllamaTimeout(),
		Executor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedBatchSize)
	completer := ollama.NewCompleter(ollamaClient)

	extractor := pdftext.NewExtractor(int64(cfg.MaxPDFMB) << 20)
	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	retriever := usecase.NewRetriever(embedder, handle, usecase.RetrieverConfig{
		DefaultTopK:       cfg.RAGTopK,
		MinFetchK:         cfg.RAGMinFetchK,
		MMRFetchK:         cfg.RAGMMRFetchK,
		MMRLambda:         cfg.RAGMMRLambda,
		DistanceThreshold: cfg.RAGDistanceThreshold,
	})
	classifier := usecase.NewFollowUpClassifier(cfg.FollowUpMaxTokens, cfg.FollowUpMarkers)
	answerer := usecase.NewAnswerUseCase(retriever, completer, classifier)

	return &App{
		Config: cfg,

		Store:    store,
		Index:    handle,
		Storage:  storage,
		Executor: executor,
		Queue:    queue,
		Catalog:  catalog,

		Builder:   usecase.NewIndexBuildUseCase(storage, extractor, splitter, embedder, store, catalog, queue),
		Answerer:  answerer,
		Sessions:  usecase.NewSessionService(answerer, usecase.SessionConfig{HistoryMessages: cfg.SessionHistoryMessages, IdleTTL: cfg.SessionIdleTTL()}),
		Documents: usecase.NewDocumentUseCase(storage, queue, handle),

		closeFn: func() {
			if natsQueue != nil {
				natsQueue.Close()
			}
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	out := resilience.DefaultPolicy()
	out.Retry.MaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.Retry.InitialBackoff = time.Duration(cfg.ResilienceRetryInitialMillis) * time.Millisecond
	out.Retry.MaxBackoff = time.Duration(cfg.ResilienceRetryMaxMillis) * time.Millisecond
	out.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	out.Breaker.OpenTimeout = time.Duration(cfg.ResilienceBreakerOpenSeconds) * time.Second
	return out
}
