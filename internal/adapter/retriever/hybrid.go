package retriever

import (
	"sort"

	"finsight/internal/domain"
	"finsight/internal/port"
)

// HybridRetriever runs the semantic and lexical paths with the same k
// and merges by document id. A document found by both paths gets the
// weighted sum of its path scores and RankSource "both"; a document
// found by one path keeps that path's raw score. Output is sorted by
// combined score descending, ties broken ascending by document id, then
// truncated to k, so identical inputs produce identical output.
type HybridRetriever struct {
	semantic       port.Searcher
	lexical        port.Searcher
	semanticWeight float64
	lexicalWeight  float64
}

func NewHybridRetriever(semantic, lexical port.Searcher, semanticWeight, lexicalWeight float64) *HybridRetriever {
	if semanticWeight <= 0 || lexicalWeight <= 0 {
		semanticWeight = 0.7
		lexicalWeight = 0.3
	}
	return &HybridRetriever{
		semantic:       semantic,
		lexical:        lexical,
		semanticWeight: semanticWeight,
		lexicalWeight:  lexicalWeight,
	}
}

// Search returns merged results plus a degraded flag that is set when
// one path failed and the other carried the query alone.
func (r *HybridRetriever) Search(query string, k int, filters domain.Metadata) ([]domain.SearchResult, bool, error) {
	semResults, semErr := r.semantic.Search(query, k, filters)
	lexResults, lexErr := r.lexical.Search(query, k, filters)

	if semErr != nil && lexErr != nil {
		return nil, false, semErr
	}
	if semErr != nil {
		return lexResults, true, nil
	}
	if lexErr != nil {
		return semResults, true, nil
	}

	type merged struct {
		semantic float64
		lexical  float64
		inSem    bool
		inLex    bool
	}
	byID := make(map[string]*merged)

	for _, res := range semResults {
		byID[res.DocumentID] = &merged{semantic: res.Score, inSem: true}
	}
	for _, res := range lexResults {
		if m, ok := byID[res.DocumentID]; ok {
			m.lexical = res.Score
			m.inLex = true
			continue
		}
		byID[res.DocumentID] = &merged{lexical: res.Score, inLex: true}
	}

	results := make([]domain.SearchResult, 0, len(byID))
	for id, m := range byID {
		var score float64
		var source domain.RankSource
		switch {
		case m.inSem && m.inLex:
			score = r.semanticWeight*m.semantic + r.lexicalWeight*m.lexical
			source = domain.RankBoth
		case m.inSem:
			score = m.semantic
			source = domain.RankSemantic
		default:
			score = m.lexical
			source = domain.RankLexical
		}
		results = append(results, domain.SearchResult{
			DocumentID: id,
			Score:      score,
			RankSource: source,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, false, nil
}
