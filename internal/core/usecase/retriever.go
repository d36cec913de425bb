package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

type RetrieverConfig struct {
	DefaultTopK int
	MinFetchK   int
	MMRFetchK   int
	MMRLambda   float64
	// DistanceThreshold depends on the embedding model and the index metric
	// (squared L2 on unit vectors). Recalibrate when the model changes.
	DistanceThreshold float64
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultTopK:       5,
		MinFetchK:         10,
		MMRFetchK:         50,
		MMRLambda:         0.5,
		DistanceThreshold: 1.2,
	}
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	def := DefaultRetrieverConfig()
	if out.DefaultTopK <= 0 {
		out.DefaultTopK = def.DefaultTopK
	}
	if out.MinFetchK <= 0 {
		out.MinFetchK = def.MinFetchK
	}
	if out.MMRFetchK <= 0 {
		out.MMRFetchK = def.MMRFetchK
	}
	if out.MMRLambda < 0 || out.MMRLambda > 1 {
		out.MMRLambda = def.MMRLambda
	}
	if out.DistanceThreshold <= 0 {
		out.DistanceThreshold = def.DistanceThreshold
	}
	return out
}

type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	cfg      RetrieverConfig
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, cfg RetrieverConfig) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		cfg:      cfg.normalize(),
	}
}

func (r *Retriever) Config() RetrieverConfig {
	return r.cfg
}

// Retrieve selects the chunks used to ground an answer. Every path that finds
// nothing usable returns domain.NotGrounded; errors are reserved for failing
// collaborators.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter domain.SourceFilter) (domain.Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return domain.NotGrounded(domain.OutcomeEmptyInput), nil
	}
	if k <= 0 {
		k = r.cfg.DefaultTopK
	}
	fetchK := max(r.cfg.MinFetchK, 3*k)

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.Retrieval{}, fmt.Errorf("embed query: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Retrieval{}, err
	}
	index := r.index.Snapshot()

	candidates, err := index.SimilaritySearch(queryVector, fetchK)
	if err != nil {
		return domain.Retrieval{}, fmt.Errorf("similarity search: %w", err)
	}
	if len(candidates) == 0 {
		return domain.NotGrounded(domain.OutcomeEmptyIndex), nil
	}

	if filter.Active() {
		candidates = filterCandidates(candidates, filter)
		if len(candidates) == 0 {
			return domain.NotGrounded(domain.OutcomeFilteredOut), nil
		}
	}

	if minDistance(candidates) > r.cfg.DistanceThreshold {
		return domain.NotGrounded(domain.OutcomeOffTopic), nil
	}

	var selected []domain.Chunk
	if filter.Active() {
		selected = topChunks(candidates, k)
	} else {
		mmrFetchK := max(r.cfg.MMRFetchK, fetchK)
		selected, err = index.MaxMarginalRelevance(queryVector, k, mmrFetchK, r.cfg.MMRLambda)
		if err != nil {
			return domain.Retrieval{}, fmt.Errorf("mmr search: %w", err)
		}
	}
	if len(selected) == 0 {
		return domain.NotGrounded(domain.OutcomeNoSelection), nil
	}

	return domain.Retrieval{
		Chunks:    selected,
		Citations: citations(selected),
		Context:   formatContext(selected),
		Outcome:   domain.OutcomeGrounded,
	}, nil
}

func filterCandidates(candidates []domain.ScoredChunk, filter domain.SourceFilter) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(candidates))
	for _, candidate := range candidates {
		if filter.Allows(candidate.Chunk.Source) {
			out = append(out, candidate)
		}
	}
	return out
}

func minDistance(candidates []domain.ScoredChunk) float64 {
	best := candidates[0].Distance
	for _, candidate := range candidates[1:] {
		if candidate.Distance < best {
			best = candidate.Distance
		}
	}
	return best
}

// topChunks expects candidates sorted by ascending distance.
func topChunks(candidates []domain.ScoredChunk, k int) []domain.Chunk {
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.Chunk, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, candidate.Chunk)
	}
	return out
}

func formatContext(chunks []domain.Chunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("[%s p.%s]\n%s", chunk.Source, chunk.PageLabel(), chunk.Text))
	}
	return strings.Join(blocks, "\n\n")
}

func citations(chunks []domain.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		citation := chunk.Citation()
		if _, ok := seen[citation]; ok {
			continue
		}
		seen[citation] = struct{}{}
		out = append(out, citation)
	}
	return out
}
