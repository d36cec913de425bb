package chunking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func numberedWords(n int) string {
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	return strings.Join(words, " ")
}

func sharedBoundary(prev, next string) int {
	best := 0
	for l := 1; l <= len(prev) && l <= len(next); l++ {
		if prev[len(prev)-l:] == next[:l] {
			best = l
		}
	}
	return best
}

func TestNewSplitterNormalizesConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.ChunkSize != 1000 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults: size=%d overlap=%d", s.ChunkSize, s.Overlap)
	}

	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap clamped to 25, got %d", s.Overlap)
	}
}

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 150)
	chunks := s.Split("  Operational risk is the risk of loss from failed processes.\n")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "Operational risk is the risk of loss from failed processes." {
		t.Fatalf("unexpected chunk: %q", chunks[0])
	}
}

func TestSplitBlankTextReturnsNothing(t *testing.T) {
	s := NewSplitter(100, 10)
	if chunks := s.Split(" \n\n\t "); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s := NewSplitter(60, 15)
	text := numberedWords(40) + "\n\n" + numberedWords(25) + "\n" + numberedWords(30)

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > 60 {
			t.Fatalf("chunk %d has %d runes, exceeds 60: %q", i, n, chunk)
		}
	}
}

func TestSplitOverlapDoesNotExceedConfigured(t *testing.T) {
	s := NewSplitter(50, 10)
	chunks := s.Split(numberedWords(120))
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	sawOverlap := false
	for i := 1; i < len(chunks); i++ {
		shared := sharedBoundary(chunks[i-1], chunks[i])
		if shared > 10 {
			t.Fatalf("chunks %d/%d share %d chars, overlap is 10", i-1, i, shared)
		}
		if shared > 0 {
			sawOverlap = true
		}
	}
	if !sawOverlap {
		t.Fatalf("expected consecutive chunks to carry some overlap")
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(40, 0)
	first := "Credit risk is counterparty default."
	second := "Market risk is price movement."

	chunks := s.Split(first + "\n\n" + second)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != first || chunks[1] != second {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestSplitFallsBackToCharactersWithoutSeparators(t *testing.T) {
	s := NewSplitter(10, 2)
	chunks := s.Split(strings.Repeat("x", 35))
	if len(chunks) < 4 {
		t.Fatalf("expected hard split into at least 4 chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 10 {
			t.Fatalf("chunk exceeds size: %q", chunk)
		}
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	s := NewSplitter(12, 0)
	chunks := s.Split("риск риск риск риск")
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 12 {
			t.Fatalf("chunk exceeds 12 runes: %q", chunk)
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
}
