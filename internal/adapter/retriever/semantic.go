package retriever

import (
	"fmt"

	"finsight/internal/domain"
	"finsight/internal/port"
)

// SemanticRetriever embeds the query and runs nearest-neighbor search.
// Scores are cosine similarity clamped to [0,1], so all retrieval paths
// share the higher-is-better convention.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
}

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
	}
}

func (r *SemanticRetriever) Search(query string, k int, filters domain.Metadata) ([]domain.SearchResult, error) {
	embeddings, err := r.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	hits, err := r.index.Query(embeddings[0], k, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, domain.SearchResult{
			DocumentID: hit.ID,
			Score:      clamp01(hit.Score),
			RankSource: domain.RankSemantic,
		})
	}
	return results, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
