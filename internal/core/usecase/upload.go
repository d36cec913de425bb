package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type sourceLister interface {
	Sources() []string
}

type DocumentUseCase struct {
	storage ports.DocumentStorage
	queue   ports.IndexEventQueue
	index   sourceLister
}

func NewDocumentUseCase(
	storage ports.DocumentStorage,
	queue ports.IndexEventQueue,
	index sourceLister,
) *DocumentUseCase {
	return &DocumentUseCase{
		storage: storage,
		queue:   queue,
		index:   index,
	}
}

// Upload stores a PDF under its sanitized basename, replacing any file with the
// same name, and asks the workers for a rebuild when a queue is configured.
func (uc *DocumentUseCase) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	key := sanitizeFilename(filename)
	if !strings.EqualFold(filepath.Ext(key), ".pdf") {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("%q is not a .pdf file", filename))
	}

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}

	if err := uc.RequestRebuild(ctx, "upload:"+key); err != nil {
		if !domain.IsKind(err, domain.ErrRebuildUnsupported) {
			return "", err
		}
		slog.Warn("document_stored_without_rebuild", "source", key)
	}
	return key, nil
}

func (uc *DocumentUseCase) RequestRebuild(ctx context.Context, reason string) error {
	if uc.queue == nil {
		return domain.WrapError(domain.ErrRebuildUnsupported, "request rebuild", errors.New("no event queue configured"))
	}
	if err := uc.queue.PublishRebuildRequested(ctx, reason); err != nil {
		return fmt.Errorf("publish rebuild request: %w", err)
	}
	return nil
}

// ListSources returns the sources present in the served index, which may lag
// behind the documents directory until the next rebuild.
func (uc *DocumentUseCase) ListSources(_ context.Context) ([]string, error) {
	if uc.index == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "list sources", errors.New("index not loaded"))
	}
	sources := uc.index.Sources()
	if sources == nil {
		sources = []string{}
	}
	return sources, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "document.pdf"
	}
	return base
}
