// Package vectorindex holds the persisted chunk index: an immutable in-memory
// search structure, its on-disk generations, and a reloadable read handle.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

// Meta describes the generation an Index was loaded from.
type Meta struct {
	Generation string
	EmbedModel string
	Dimensions int
	BuiltAt    time.Time
}

// Index is an immutable set of chunks with unit-normalized vectors.
// Distances are squared Euclidean between unit vectors, so 0 is identical and
// 4 is opposite. It is safe for any number of concurrent readers.
type Index struct {
	meta    Meta
	chunks  []domain.Chunk
	vectors [][]float32
}

func Empty() *Index {
	return &Index{}
}

// New validates entries and copies their vectors in normalized form.
func New(meta Meta, entries []domain.IndexEntry) (*Index, error) {
	ix := &Index{
		meta:    meta,
		chunks:  make([]domain.Chunk, 0, len(entries)),
		vectors: make([][]float32, 0, len(entries)),
	}
	for i, entry := range entries {
		if len(entry.Vector) == 0 {
			return nil, fmt.Errorf("entry %d has empty vector", i)
		}
		if ix.meta.Dimensions == 0 {
			ix.meta.Dimensions = len(entry.Vector)
		}
		if len(entry.Vector) != ix.meta.Dimensions {
			return nil, fmt.Errorf("vector dimension mismatch at entry %d: got %d, expected %d", i, len(entry.Vector), ix.meta.Dimensions)
		}
		ix.chunks = append(ix.chunks, entry.Chunk)
		ix.vectors = append(ix.vectors, normalized(entry.Vector))
	}
	return ix, nil
}

func (ix *Index) Meta() Meta {
	return ix.meta
}

func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Sources returns the distinct source names in the index, sorted.
func (ix *Index) Sources() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, chunk := range ix.chunks {
		if _, ok := seen[chunk.Source]; ok {
			continue
		}
		seen[chunk.Source] = struct{}{}
		out = append(out, chunk.Source)
	}
	sort.Strings(out)
	return out
}

// SimilaritySearch returns the k nearest chunks by ascending distance.
// Ties keep index order.
func (ix *Index) SimilaritySearch(query []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	ranked, err := ix.rank(query)
	if err != nil {
		return nil, err
	}
	if k > len(ranked) {
		k = len(ranked)
	}

	out := make([]domain.ScoredChunk, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, domain.ScoredChunk{Chunk: ix.chunks[r.pos], Distance: r.distance})
	}
	return out, nil
}

// MaxMarginalRelevance picks k chunks out of the fetchK nearest, trading
// query similarity against similarity to already selected chunks.
// lambda=1 is pure relevance, lambda=0 pure diversity.
func (ix *Index) MaxMarginalRelevance(query []float32, k, fetchK int, lambda float64) ([]domain.Chunk, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	ranked, err := ix.rank(query)
	if err != nil {
		return nil, err
	}
	if fetchK < k {
		fetchK = k
	}
	if fetchK > len(ranked) {
		fetchK = len(ranked)
	}
	candidates := ranked[:fetchK]
	if k > len(candidates) {
		k = len(candidates)
	}

	q := normalized(query)
	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = dot(q, ix.vectors[c.pos])
	}

	selected := make([]int, 0, k)
	taken := make([]bool, len(candidates))
	// Candidates are distance-sorted, so the first is the most similar.
	selected = append(selected, 0)
	taken[0] = true

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if taken[i] {
				continue
			}
			redundancy := math.Inf(-1)
			for _, j := range selected {
				if sim := dot(ix.vectors[candidates[i].pos], ix.vectors[candidates[j].pos]); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*querySim[i] - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		taken[best] = true
	}

	out := make([]domain.Chunk, 0, len(selected))
	for _, i := range selected {
		out = append(out, ix.chunks[candidates[i].pos])
	}
	return out, nil
}

type rankedPos struct {
	pos      int
	distance float64
}

func (ix *Index) rank(query []float32) ([]rankedPos, error) {
	if len(query) != ix.meta.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.meta.Dimensions)
	}
	q := normalized(query)
	ranked := make([]rankedPos, len(ix.vectors))
	for i, vec := range ix.vectors {
		ranked[i] = rankedPos{pos: i, distance: squaredL2(q, vec)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})
	return ranked, nil
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func squaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}
