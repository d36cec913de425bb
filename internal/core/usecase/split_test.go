package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// wordSplitter emits one piece per whitespace-separated word.
type wordSplitter struct{}

func (wordSplitter) Split(text string) []string {
	return strings.Fields(text)
}

func TestSplitDocumentsNumbersChunksDenselyPerSource(t *testing.T) {
	docs := []domain.Document{
		{Source: "a.pdf", Page: 0, Text: "one two"},
		{Source: "b.pdf", Page: 0, Text: "alpha"},
		{Source: "a.pdf", Page: 1, Text: "three"},
		{Source: "a.pdf", Page: 2, Text: "   "},
		{Source: "b.pdf", Page: 1, Text: "beta gamma"},
	}

	chunks := SplitDocuments(wordSplitter{}, docs)

	want := []domain.Chunk{
		{Source: "a.pdf", Page: 0, ChunkID: 0, Text: "one"},
		{Source: "a.pdf", Page: 0, ChunkID: 1, Text: "two"},
		{Source: "b.pdf", Page: 0, ChunkID: 0, Text: "alpha"},
		{Source: "a.pdf", Page: 1, ChunkID: 2, Text: "three"},
		{Source: "b.pdf", Page: 1, ChunkID: 1, Text: "beta"},
		{Source: "b.pdf", Page: 1, ChunkID: 2, Text: "gamma"},
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d = %+v, want %+v", i, chunks[i], want[i])
		}
	}
}

func TestSplitDocumentsIDsAreIndependentOfOtherSources(t *testing.T) {
	alone := SplitDocuments(wordSplitter{}, []domain.Document{{Source: "b.pdf", Text: "x y"}})
	mixed := SplitDocuments(wordSplitter{}, []domain.Document{
		{Source: "a.pdf", Text: "p q r s"},
		{Source: "b.pdf", Text: "x y"},
	})

	var fromMixed []int
	for _, chunk := range mixed {
		if chunk.Source == "b.pdf" {
			fromMixed = append(fromMixed, chunk.ChunkID)
		}
	}
	if len(fromMixed) != len(alone) {
		t.Fatalf("expected %d chunks for b.pdf, got %d", len(alone), len(fromMixed))
	}
	for i, chunk := range alone {
		if chunk.ChunkID != i || fromMixed[i] != i {
			t.Fatalf("expected chunk_id %d, got alone=%d mixed=%d", i, chunk.ChunkID, fromMixed[i])
		}
	}
}

func TestSplitDocumentsWithoutTextProducesNothing(t *testing.T) {
	chunks := SplitDocuments(wordSplitter{}, []domain.Document{{Source: "scan.pdf", Text: ""}})
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %+v", chunks)
	}
}
