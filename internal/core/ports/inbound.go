package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// QuestionAnswerer is the session-facing contract: answer one question from
// the corpus given a caller-formatted history window.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, k int, filter domain.SourceFilter, history string) (*domain.Answer, error)
}

// IndexBuilder rebuilds the persisted index from the documents directory.
type IndexBuilder interface {
	Rebuild(ctx context.Context, trigger string) (*domain.IngestRun, error)
}

// SessionAsker owns in-memory conversation history per session.
type SessionAsker interface {
	Create() string
	Ask(ctx context.Context, sessionID, question string, settings domain.AskSettings) (*domain.Reply, error)
	History(sessionID string) ([]domain.Turn, error)
	Clear(sessionID string) error
	Delete(sessionID string) error
}

// DocumentUploader stores an uploaded PDF and requests a rebuild.
type DocumentUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (string, error)
	RequestRebuild(ctx context.Context, reason string) error
	ListSources(ctx context.Context) ([]string, error)
}
