package port

import "finsight/internal/domain"

// Searcher runs one retrieval path and returns top-k results.
type Searcher interface {
	Search(query string, k int, filters domain.Metadata) ([]domain.SearchResult, error)
}
