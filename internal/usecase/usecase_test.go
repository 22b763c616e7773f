package usecase

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"finsight/internal/adapter/analyzer"
	"finsight/internal/adapter/embedding"
	"finsight/internal/adapter/retriever"
	"finsight/internal/adapter/store"
	"finsight/internal/domain"
)

const testDimension = 32

type env struct {
	docs     *store.BoltDocumentStore
	index    *store.BoltVectorIndex
	embedder *embedding.MockEmbedder
}

func newEnv(t *testing.T) *env {
	t.Helper()

	docs, err := store.NewBoltDocumentStore(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { docs.Close() })

	index, err := store.NewBoltVectorIndex(docs.DB(), testDimension)
	if err != nil {
		t.Fatal(err)
	}

	return &env{
		docs:     docs,
		index:    index,
		embedder: embedding.NewMockEmbedder(testDimension),
	}
}

func (e *env) ingester(t *testing.T, batchSize int) *IngestUseCase {
	t.Helper()
	return NewIngestUseCase(e.docs, e.index, e.embedder, batchSize)
}

func (e *env) searcher(t *testing.T) *SearchUseCase {
	t.Helper()
	tokenizer := analyzer.NewTokenizer()
	semantic := retriever.NewSemanticRetriever(e.index, e.embedder)
	lexical := retriever.NewLexicalRetriever(e.docs, tokenizer)
	hybrid := retriever.NewHybridRetriever(semantic, lexical, 0.7, 0.3)
	return NewSearchUseCase(e.docs, semantic, lexical, hybrid, 10)
}

func raw(text string, meta domain.Metadata) domain.RawDocument {
	return domain.RawDocument{Text: text, Metadata: meta}
}

// flakyEmbedder fails its first failUntil calls, then delegates.
type flakyEmbedder struct {
	inner     *embedding.MockEmbedder
	calls     int
	failUntil int
}

func (f *flakyEmbedder) Embed(texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, &domain.EmbeddingProviderError{Op: "embed", Err: errors.New("transient outage")}
	}
	return f.inner.Embed(texts)
}

func (f *flakyEmbedder) Dimension() int    { return f.inner.Dimension() }
func (f *flakyEmbedder) ModelName() string { return "flaky" }

func TestIngest_StoresAndEmbeds(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	result, err := ing.Ingest([]domain.RawDocument{
		raw("Federal Reserve cuts rates", domain.Metadata{"source": "reuters", "category": "business"}),
		raw("Bitcoin hits new high", domain.Metadata{"source": "coindesk", "category": "crypto"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 2 || result.Embedded != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	embedded, err := e.docs.EmbeddedCount()
	if err != nil {
		t.Fatal(err)
	}
	indexed, err := e.index.Count()
	if err != nil {
		t.Fatal(err)
	}
	if embedded != 2 || indexed != 2 {
		t.Errorf("embedded=%d indexed=%d, want 2/2", embedded, indexed)
	}
}

func TestIngest_IdempotentReingestion(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	docs := []domain.RawDocument{
		raw("Federal Reserve cuts rates", domain.Metadata{"source": "reuters", "url": "https://example.com/a"}),
	}
	if _, err := ing.Ingest(docs); err != nil {
		t.Fatal(err)
	}

	result, err := ing.Ingest(docs)
	if err != nil {
		t.Fatal(err)
	}
	if result.Unchanged != 1 || result.Added != 0 || result.Embedded != 0 {
		t.Errorf("re-ingestion must be a no-op, got %+v", result)
	}

	count, err := e.docs.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 document after re-ingestion, got %d", count)
	}
}

func TestIngest_RejectsEmptyTextBeforeAnyWrite(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	_, err := ing.Ingest([]domain.RawDocument{
		raw("valid text", nil),
		raw("   ", nil),
	})
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}

	count, err := e.docs.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("invalid batch must not write anything, got %d documents", count)
	}
}

func TestIngest_RejectsUnknownMetadataKey(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	_, err := ing.Ingest([]domain.RawDocument{
		raw("text", domain.Metadata{"sentiment": "positive"}),
	})
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInputError for unknown key, got %v", err)
	}
}

func TestIngest_PartialBatchFailureIsolated(t *testing.T) {
	e := newEnv(t)
	flaky := &flakyEmbedder{inner: e.embedder, failUntil: 1}
	ing := NewIngestUseCase(e.docs, e.index, flaky, 2)

	result, err := ing.Ingest([]domain.RawDocument{
		raw("first article text", nil),
		raw("second article text", nil),
		raw("third article text", nil),
		raw("fourth article text", nil),
	})
	if err == nil {
		t.Fatal("expected an aggregated embedding error")
	}
	if result.Failed != 2 || result.Embedded != 2 {
		t.Errorf("first batch of 2 must fail, second succeed, got %+v", result)
	}

	// Documents are durable regardless of embedding outcome.
	count, _ := e.docs.Count()
	if count != 4 {
		t.Errorf("expected 4 stored documents, got %d", count)
	}

	pending, err := e.docs.ListUnembedded()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 documents awaiting backfill, got %d", len(pending))
	}
}

func TestBackfill_RecoversStrandedDocuments(t *testing.T) {
	e := newEnv(t)
	flaky := &flakyEmbedder{inner: e.embedder, failUntil: 1}
	ing := NewIngestUseCase(e.docs, e.index, flaky, 2)

	if _, err := ing.Ingest([]domain.RawDocument{
		raw("first article text", nil),
		raw("second article text", nil),
	}); err == nil {
		t.Fatal("expected the initial embed to fail")
	}

	result, err := ing.Backfill()
	if err != nil {
		t.Fatal(err)
	}
	if result.Embedded != 2 || result.Failed != 0 {
		t.Errorf("backfill must embed the stranded documents, got %+v", result)
	}

	embedded, _ := e.docs.EmbeddedCount()
	indexed, _ := e.index.Count()
	if embedded != indexed || embedded != 2 {
		t.Errorf("embedded=%d indexed=%d, want consistent 2", embedded, indexed)
	}
}

func TestIngest_ChangedContentReplacesPriorVersion(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	meta := domain.Metadata{"source": "reuters", "url": "https://example.com/a"}
	first, err := ing.Ingest([]domain.RawDocument{raw("original body", meta)})
	if err != nil {
		t.Fatal(err)
	}
	oldID := first.IDs[0]

	second, err := ing.Ingest([]domain.RawDocument{raw("revised body", meta)})
	if err != nil {
		t.Fatal(err)
	}
	if second.Updated != 1 || second.Added != 0 || second.Unchanged != 0 {
		t.Errorf("revised article must count as updated, got %+v", second)
	}

	count, err := e.docs.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("prior version must be replaced, got %d documents", count)
	}
	if _, err := e.docs.Get(oldID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stale version must be gone, got %v", err)
	}

	got, err := e.docs.Get(second.IDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "revised body" {
		t.Errorf("surviving document text = %q, want revised body", got.Text)
	}

	indexed, err := e.index.Count()
	if err != nil {
		t.Fatal(err)
	}
	if indexed != 1 {
		t.Errorf("stale vector must be dropped, got %d", indexed)
	}
}

func TestIngest_DistinctURLsStayDistinct(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	result, err := ing.Ingest([]domain.RawDocument{
		raw("first article", domain.Metadata{"source": "reuters", "url": "https://example.com/a"}),
		raw("second article", domain.Metadata{"source": "reuters", "url": "https://example.com/b"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Added != 2 || result.Updated != 0 {
		t.Errorf("different urls must not replace each other, got %+v", result)
	}
}

func TestSearch_ResolvesDocuments(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)
	if _, err := ing.Ingest([]domain.RawDocument{
		raw("Federal Reserve cuts rates", domain.Metadata{"category": "business"}),
		raw("Bitcoin hits new high", domain.Metadata{"category": "crypto"}),
	}); err != nil {
		t.Fatal(err)
	}

	search := e.searcher(t)
	resp, err := search.Search("Federal Reserve", domain.MethodHybrid, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Degraded {
		t.Error("expected non-degraded response")
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	top := resp.Results[0]
	if top.Document.Text != "Federal Reserve cuts rates" {
		t.Errorf("results must carry the full document, got %q", top.Document.Text)
	}
	if top.RankSource != domain.RankBoth {
		t.Errorf("expected rank source both, got %s", top.RankSource)
	}
}

func TestSearch_FilterScopesResults(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)
	if _, err := ing.Ingest([]domain.RawDocument{
		raw("market rally in tech stocks", domain.Metadata{"category": "business"}),
		raw("crypto market rally continues", domain.Metadata{"category": "crypto"}),
	}); err != nil {
		t.Fatal(err)
	}

	search := e.searcher(t)
	resp, err := search.Search("market rally", domain.MethodHybrid, 5, domain.Metadata{"category": "crypto"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 filtered result, got %d", len(resp.Results))
	}
	if resp.Results[0].Document.Metadata["category"] != "crypto" {
		t.Errorf("filter must scope every path, got %+v", resp.Results[0].Document.Metadata)
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	e := newEnv(t)
	search := e.searcher(t)

	_, err := search.Search("   ", domain.MethodHybrid, 5, nil)
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInputError, got %v", err)
	}
}

func TestSearch_UnknownMethodRejected(t *testing.T) {
	e := newEnv(t)
	search := e.searcher(t)

	_, err := search.Search("query", domain.SearchMethod("fuzzy"), 5, nil)
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInputError, got %v", err)
	}
}

func TestSearch_UnknownFilterKeyRejected(t *testing.T) {
	e := newEnv(t)
	search := e.searcher(t)

	_, err := search.Search("query", domain.MethodLexical, 5, domain.Metadata{"mood": "bullish"})
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInputError, got %v", err)
	}
}

// stubSearcher is a canned port.Searcher, for testing dispatch wiring
// independently of the real retrieval paths.
type stubSearcher struct {
	results []domain.SearchResult
}

func (s stubSearcher) Search(query string, k int, filters domain.Metadata) ([]domain.SearchResult, error) {
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

func TestSearch_DispatchesToInjectedPaths(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)
	stored, err := ing.Ingest([]domain.RawDocument{raw("stub target article", nil)})
	if err != nil {
		t.Fatal(err)
	}
	id := stored.IDs[0]

	stub := stubSearcher{results: []domain.SearchResult{
		{DocumentID: id, Score: 0.9, RankSource: domain.RankLexical},
	}}
	search := NewSearchUseCase(e.docs, stub, stub,
		retriever.NewHybridRetriever(stub, stub, 0.7, 0.3), 10)

	resp, err := search.Search("anything", domain.MethodLexical, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.ID != id {
		t.Fatalf("expected the stubbed document resolved, got %+v", resp.Results)
	}

	// Both hybrid paths return the same stub result, so the merged
	// score is the full weighted sum of 0.9 from each side.
	hybridResp, err := search.Search("anything", domain.MethodHybrid, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hybridResp.Results) != 1 {
		t.Fatalf("expected 1 hybrid result, got %d", len(hybridResp.Results))
	}
	if hybridResp.Results[0].RankSource != domain.RankBoth {
		t.Errorf("expected rank source both, got %s", hybridResp.Results[0].RankSource)
	}
	if got, want := hybridResp.Results[0].Score, 0.7*0.9+0.3*0.9; math.Abs(got-want) > 1e-9 {
		t.Errorf("merged score = %f, want %f", got, want)
	}
}

func TestSearch_DefaultKApplied(t *testing.T) {
	e := newEnv(t)
	ing := e.ingester(t, 32)

	var raws []domain.RawDocument
	for i := 0; i < 7; i++ {
		raws = append(raws, raw(fmt.Sprintf("market update number %d", i), nil))
	}
	if _, err := ing.Ingest(raws); err != nil {
		t.Fatal(err)
	}

	search := NewSearchUseCase(e.docs,
		retriever.NewSemanticRetriever(e.index, e.embedder),
		retriever.NewLexicalRetriever(e.docs, analyzer.NewTokenizer()),
		retriever.NewHybridRetriever(
			retriever.NewSemanticRetriever(e.index, e.embedder),
			retriever.NewLexicalRetriever(e.docs, analyzer.NewTokenizer()),
			0.7, 0.3),
		3)

	resp, err := search.Search("market update", domain.MethodLexical, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("k<=0 must fall back to the configured default, got %d results", len(resp.Results))
	}
}
