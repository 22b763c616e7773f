package usecase

import (
	"errors"
	"strings"

	"finsight/internal/adapter/retriever"
	"finsight/internal/domain"
	"finsight/internal/port"
)

// SearchUseCase dispatches a query to one retrieval method and resolves
// the ranked ids to full documents. An id whose document vanished
// between ranking and resolution is silently dropped rather than
// failing the whole query.
type SearchUseCase struct {
	docs     port.DocumentStore
	semantic port.Searcher
	lexical  port.Searcher
	hybrid   *retriever.HybridRetriever
	defaultK int
}

func NewSearchUseCase(docs port.DocumentStore, semantic, lexical port.Searcher, hybrid *retriever.HybridRetriever, defaultK int) *SearchUseCase {
	if defaultK <= 0 {
		defaultK = 10
	}
	return &SearchUseCase{
		docs:     docs,
		semantic: semantic,
		lexical:  lexical,
		hybrid:   hybrid,
		defaultK: defaultK,
	}
}

func (u *SearchUseCase) Search(query string, method domain.SearchMethod, k int, filters domain.Metadata) (domain.SearchResponse, error) {
	var resp domain.SearchResponse

	if strings.TrimSpace(query) == "" {
		return resp, &domain.InvalidInputError{Reason: "empty query"}
	}
	if err := filters.Validate(); err != nil {
		return resp, err
	}
	if k <= 0 {
		k = u.defaultK
	}

	var (
		results  []domain.SearchResult
		degraded bool
		err      error
	)
	switch method {
	case domain.MethodSemantic:
		results, err = u.semantic.Search(query, k, filters)
	case domain.MethodLexical:
		results, err = u.lexical.Search(query, k, filters)
	case domain.MethodHybrid, "":
		results, degraded, err = u.hybrid.Search(query, k, filters)
	default:
		return resp, &domain.InvalidInputError{Reason: "unknown search method: " + string(method)}
	}
	if err != nil {
		return resp, err
	}

	ranked := make([]domain.RankedDocument, 0, len(results))
	for _, res := range results {
		doc, getErr := u.docs.Get(res.DocumentID)
		if getErr != nil {
			if errors.Is(getErr, domain.ErrNotFound) {
				continue
			}
			return resp, getErr
		}
		ranked = append(ranked, domain.RankedDocument{
			Document:   doc,
			Score:      res.Score,
			RankSource: res.RankSource,
		})
	}

	resp.Results = ranked
	resp.Degraded = degraded
	return resp, nil
}
