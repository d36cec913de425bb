package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

const pdfExt = ".pdf"

type IndexBuildUseCase struct {
	storage   ports.DocumentStorage
	extractor ports.PDFExtractor
	splitter  ports.Splitter
	embedder  ports.Embedder
	writer    ports.IndexWriter
	catalog   ports.IngestCatalog
	queue     ports.IndexEventQueue
	now       func() time.Time

	mu sync.Mutex
}

// NewIndexBuildUseCase wires a full rebuild pipeline. catalog and queue are
// optional and may be nil.
func NewIndexBuildUseCase(
	storage ports.DocumentStorage,
	extractor ports.PDFExtractor,
	splitter ports.Splitter,
	embedder ports.Embedder,
	writer ports.IndexWriter,
	catalog ports.IngestCatalog,
	queue ports.IndexEventQueue,
) *IndexBuildUseCase {
	return &IndexBuildUseCase{
		storage:   storage,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		writer:    writer,
		catalog:   catalog,
		queue:     queue,
		now:       time.Now,
	}
}

// Rebuild replaces the persisted index with one built from every PDF in the
// documents directory. Only one rebuild runs per process; the index writer
// guards the storage location across processes.
func (uc *IndexBuildUseCase) Rebuild(ctx context.Context, trigger string) (*domain.IngestRun, error) {
	if !uc.mu.TryLock() {
		return nil, domain.WrapError(domain.ErrRebuildInProgress, "rebuild index", errors.New("rebuild already running in this process"))
	}
	defer uc.mu.Unlock()

	run := &domain.IngestRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    domain.IngestRunning,
		StartedAt: uc.now().UTC(),
	}
	uc.startRun(ctx, run)

	err := uc.build(ctx, run)
	finished := uc.now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = domain.IngestFailed
		run.Error = err.Error()
	} else {
		run.Status = domain.IngestSucceeded
	}
	uc.finishRun(ctx, run)

	if err != nil {
		return run, err
	}

	slog.Info("index_rebuilt",
		"run_id", run.ID,
		"generation", run.Generation,
		"files", run.FilesTotal,
		"skipped", run.FilesSkipped,
		"chunks", run.Chunks,
	)

	if uc.queue != nil {
		if err := uc.queue.PublishIndexRebuilt(ctx, run.Generation); err != nil {
			slog.Warn("index_rebuilt_publish_failed", "generation", run.Generation, "error", err)
		}
	}
	return run, nil
}

func (uc *IndexBuildUseCase) build(ctx context.Context, run *domain.IngestRun) error {
	keys, err := uc.storage.List(ctx, pdfExt)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	run.FilesTotal = len(keys)
	if len(keys) == 0 {
		return domain.WrapError(domain.ErrNoInput, "rebuild index", errors.New("no pdf files in documents directory"))
	}

	var chunks []domain.Chunk
	readable := 0
	for _, key := range keys {
		file, fileChunks := uc.ingestFile(ctx, key)
		if err := ctx.Err(); err != nil {
			return err
		}
		uc.recordFile(ctx, run, file)
		if file.Status == domain.FileSkipped {
			run.FilesSkipped++
			continue
		}
		readable++
		run.Pages += file.Pages
		chunks = append(chunks, fileChunks...)
	}
	if readable == 0 {
		return domain.WrapError(domain.ErrNoInput, "rebuild index", errors.New("no readable pdf files"))
	}
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrNoInput, "rebuild index", errors.New("documents contain no extractable text"))
	}
	run.Chunks = len(chunks)

	entries, err := uc.embed(ctx, chunks)
	if err != nil {
		return err
	}

	generation, err := uc.writer.Write(ctx, entries)
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	run.Generation = generation
	return nil
}

// ingestFile extracts and splits one PDF. Chunk numbering is per source and
// a source is always a single file, so splitting per file keeps ChunkID dense.
func (uc *IndexBuildUseCase) ingestFile(ctx context.Context, key string) (domain.IngestFile, []domain.Chunk) {
	file := domain.IngestFile{Source: key}

	docs, err := uc.extractor.Extract(ctx, uc.storage.Path(key))
	if err != nil {
		slog.Warn("pdf_extract_failed", "source", key, "error", err)
		file.Status = domain.FileSkipped
		file.Error = err.Error()
		return file, nil
	}

	chunks := SplitDocuments(uc.splitter, docs)
	file.Pages = len(docs)
	file.Chunks = len(chunks)
	if len(chunks) == 0 {
		slog.Info("pdf_without_text", "source", key, "pages", len(docs))
		file.Status = domain.FileEmpty
		return file, nil
	}
	file.Status = domain.FileIndexed
	return file, chunks
}

func (uc *IndexBuildUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
	}
	return entries, nil
}

// Catalog writes are best effort: the index is the source of truth.
func (uc *IndexBuildUseCase) startRun(ctx context.Context, run *domain.IngestRun) {
	if uc.catalog == nil {
		return
	}
	if err := uc.catalog.StartRun(ctx, run); err != nil {
		slog.Warn("ingest_catalog_start_failed", "run_id", run.ID, "error", err)
	}
}

func (uc *IndexBuildUseCase) recordFile(ctx context.Context, run *domain.IngestRun, file domain.IngestFile) {
	run.Files = append(run.Files, file)
	if uc.catalog == nil {
		return
	}
	if err := uc.catalog.RecordFile(ctx, run.ID, file); err != nil {
		slog.Warn("ingest_catalog_file_failed", "run_id", run.ID, "source", file.Source, "error", err)
	}
}

func (uc *IndexBuildUseCase) finishRun(ctx context.Context, run *domain.IngestRun) {
	if uc.catalog == nil {
		return
	}
	if err := uc.catalog.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("ingest_catalog_finish_failed", "run_id", run.ID, "error", err)
	}
}
