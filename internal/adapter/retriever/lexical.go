package retriever

import (
	"sort"

	"finsight/internal/adapter/analyzer"
	"finsight/internal/domain"
	"finsight/internal/port"
)

// LexicalRetriever scores documents by case-insensitive token overlap:
// distinct query tokens found in the document divided by distinct query
// tokens total. It needs no vector index, so it remains usable while
// embeddings are unavailable or pending.
type LexicalRetriever struct {
	docs      port.DocumentStore
	tokenizer *analyzer.Tokenizer
}

func NewLexicalRetriever(docs port.DocumentStore, tokenizer *analyzer.Tokenizer) *LexicalRetriever {
	return &LexicalRetriever{
		docs:      docs,
		tokenizer: tokenizer,
	}
}

func (r *LexicalRetriever) Search(query string, k int, filters domain.Metadata) ([]domain.SearchResult, error) {
	queryTokens := r.tokenizer.UniqueTokens(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	candidates, err := r.docs.Scan(filters)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		docTokens := r.tokenizer.UniqueTokens(doc.Text)

		matched := 0
		for tok := range queryTokens {
			if _, ok := docTokens[tok]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		results = append(results, domain.SearchResult{
			DocumentID: doc.ID,
			Score:      float64(matched) / float64(len(queryTokens)),
			RankSource: domain.RankLexical,
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
	return results, nil
}
