package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

const defaultMaxFileBytes = 256 << 20

// Extractor returns the plain text of each PDF page.
type Extractor struct {
	maxFileBytes int64
}

func NewExtractor(maxFileBytes int64) *Extractor {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Extractor{maxFileBytes: maxFileBytes}
}

// Extract reads the whole file and returns one Document per non-null page.
// Source is the file's basename and Page is 0-based.
func (e *Extractor) Extract(ctx context.Context, path string) (docs []domain.Document, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}
	if info.Size() > e.maxFileBytes {
		return nil, fmt.Errorf("pdf %s is %d bytes, limit is %d", filepath.Base(path), info.Size(), e.maxFileBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parse pdf %s: %v", filepath.Base(path), r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	source := filepath.Base(path)
	numPages := reader.NumPage()
	docs = make([]domain.Document, 0, numPages)
	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		docs = append(docs, domain.Document{
			Source: source,
			Page:   i,
			Text:   text,
		})
	}
	return docs, nil
}
