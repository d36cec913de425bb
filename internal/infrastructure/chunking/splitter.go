package chunking

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraph break, line break, space,
// and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter recursively splits text on the first separator present until every
// piece fits ChunkSize, then merges neighbouring pieces back up to ChunkSize
// while carrying at most Overlap characters into the next chunk.
// Lengths are measured in runes.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	separators := s.Separators
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return s.split(text, separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	out := make([]string, 0)
	pending := make([]string, 0)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = pending[:0]
		}
		if len(remaining) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				out = append(out, trimmed)
			}
			continue
		}
		out = append(out, s.split(piece, remaining)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge joins small pieces into chunks no longer than ChunkSize. After a chunk
// is emitted, pieces are dropped from the front until at most Overlap
// characters remain, and those start the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	out := make([]string, 0, len(pieces)/2+1)
	window := make([]string, 0, len(pieces))
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.ChunkSize && len(window) > 0 {
			if chunk := joinTrimmed(window); chunk != "" {
				out = append(out, chunk)
			}
			for total > s.Overlap || (total+n > s.ChunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if chunk := joinTrimmed(window); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

// splitKeepSeparator splits text on sep and re-attaches sep to the start of
// every following piece. An empty sep splits into single runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
