package domain

import "fmt"

// UnknownPage marks a chunk whose page metadata was not recorded.
const UnknownPage = -1

// Document is one extracted page of a source PDF. Page is 0-based.
type Document struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a bounded slice of a document's text and the unit of retrieval.
// ChunkID is dense and zero-based per source.
type Chunk struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

// PageLabel returns the 1-based page number or "?" when the page is unknown.
func (c Chunk) PageLabel() string {
	if c.Page < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", c.Page+1)
}

// Citation formats the stable reference shown next to grounded answers.
func (c Chunk) Citation() string {
	return fmt.Sprintf("%s - page %s - chunk#%d", c.Source, c.PageLabel(), c.ChunkID)
}

// ScoredChunk pairs a chunk with its distance to a query vector.
// Smaller distance means more similar.
type ScoredChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// IndexEntry is a chunk with its embedding as persisted in the index.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}
