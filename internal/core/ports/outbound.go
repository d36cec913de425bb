package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// DocumentStorage holds the source PDFs.
type DocumentStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	List(ctx context.Context, ext string) ([]string, error)
	Path(key string) string
}

// PDFExtractor returns one Document per page of the PDF at path.
type PDFExtractor interface {
	Extract(ctx context.Context, path string) ([]domain.Document, error)
}

// Splitter splits text into overlapping bounded pieces.
type Splitter interface {
	Split(text string) []string
}

// Embedder builds vectors for chunks and query text. Index build and query
// time must use the same model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer runs one deterministic completion for a composed prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// VectorIndex is the read side of the persisted index. A query takes one
// Snapshot and runs every search against it, so a concurrent reload never
// mixes two generations in one answer.
type VectorIndex interface {
	Snapshot() IndexSnapshot
}

// IndexSnapshot is one immutable generation of the index.
type IndexSnapshot interface {
	SimilaritySearch(query []float32, k int) ([]domain.ScoredChunk, error)
	MaxMarginalRelevance(query []float32, k, fetchK int, lambda float64) ([]domain.Chunk, error)
}

// IndexWriter replaces the persisted index in full.
type IndexWriter interface {
	Write(ctx context.Context, entries []domain.IndexEntry) (string, error)
}

// IngestCatalog records rebuild runs and per-file outcomes.
type IngestCatalog interface {
	StartRun(ctx context.Context, run *domain.IngestRun) error
	RecordFile(ctx context.Context, runID string, file domain.IngestFile) error
	FinishRun(ctx context.Context, run *domain.IngestRun) error
	LatestRun(ctx context.Context) (*domain.IngestRun, error)
}

// IndexEventQueue carries rebuild requests to workers and rebuilt
// notifications back to query processes.
type IndexEventQueue interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
	SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexRebuilt(ctx context.Context, generation string) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, string) error) error
}
