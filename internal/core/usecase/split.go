package usecase

import (
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

// SplitDocuments turns extracted pages into chunks. ChunkID is assigned only
// after every chunk has been produced, densely from 0 per source, in split order.
func SplitDocuments(splitter ports.Splitter, docs []domain.Document) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		for _, piece := range splitter.Split(doc.Text) {
			chunks = append(chunks, domain.Chunk{
				Source: doc.Source,
				Page:   doc.Page,
				Text:   piece,
			})
		}
	}

	next := make(map[string]int)
	for i := range chunks {
		source := chunks[i].Source
		chunks[i].ChunkID = next[source]
		next[source]++
	}
	return chunks
}
