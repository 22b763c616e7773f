package usecase

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"finsight/config"
	"finsight/internal/adapter/analyzer"
	"finsight/internal/adapter/embedding"
	"finsight/internal/adapter/retriever"
	"finsight/internal/adapter/store"
	"finsight/internal/domain"
	"finsight/internal/port"
)

// Manager owns the full wiring of the retrieval engine: one bbolt file
// for documents and vectors, a separate one for the embedding cache,
// the configured embedding provider, and the three retrieval paths.
// It is the only type the CLI talks to.
type Manager struct {
	cfg      *config.Config
	docs     *store.BoltDocumentStore
	index    *store.BoltVectorIndex
	cache    *embedding.BoltCache
	embedder port.Embedder

	ingest *IngestUseCase
	search *SearchUseCase
}

// NewManager opens the databases under dir and wires the engine from
// cfg. The mock provider skips the embedding cache; real providers are
// always cached.
func NewManager(cfg *config.Config, dir string) (*Manager, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	docs, err := store.NewBoltDocumentStore(config.DataDBPath(dir))
	if err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg, docs: docs}

	switch cfg.Embedding.Provider {
	case "mock":
		m.embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	case "jina":
		retry := embedding.DefaultRetryPolicy()
		if cfg.Embedding.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Embedding.MaxAttempts
		}
		jina, err := embedding.NewJinaEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BatchSize, cfg.Embedding.RequestsPerSec, retry)
		if err != nil {
			docs.Close()
			return nil, err
		}
		cache, err := embedding.OpenBoltCache(config.CacheDBPath(dir))
		if err != nil {
			docs.Close()
			return nil, err
		}
		m.cache = cache
		m.embedder = embedding.NewCachedEmbedder(jina, cache)
	default:
		docs.Close()
		return nil, &domain.InvalidInputError{Reason: "unknown embedding provider: " + cfg.Embedding.Provider}
	}

	// The index is sized from the embedder, not the raw config value,
	// so a model change can never leave the two disagreeing.
	index, err := store.NewBoltVectorIndex(docs.DB(), m.embedder.Dimension())
	if err != nil {
		if m.cache != nil {
			m.cache.Close()
		}
		docs.Close()
		return nil, err
	}
	m.index = index

	tokenizer := analyzer.NewTokenizer()
	semantic := retriever.NewSemanticRetriever(index, m.embedder)
	lexical := retriever.NewLexicalRetriever(docs, tokenizer)
	hybrid := retriever.NewHybridRetriever(semantic, lexical, cfg.Search.SemanticWeight, cfg.Search.LexicalWeight)

	m.ingest = NewIngestUseCase(docs, index, m.embedder, cfg.Embedding.BatchSize)
	m.search = NewSearchUseCase(docs, semantic, lexical, hybrid, cfg.Search.TopK)

	return m, nil
}

// Ingest stores and embeds raw documents. progress may be nil.
func (m *Manager) Ingest(raws []domain.RawDocument, progress func(done, total int)) (IngestResult, error) {
	m.ingest.OnProgress = progress
	defer func() { m.ingest.OnProgress = nil }()
	return m.ingest.Ingest(raws)
}

// Backfill embeds every document still waiting for a vector.
func (m *Manager) Backfill(progress func(done, total int)) (IngestResult, error) {
	m.ingest.OnProgress = progress
	defer func() { m.ingest.OnProgress = nil }()
	return m.ingest.Backfill()
}

func (m *Manager) Search(query string, method domain.SearchMethod, k int, filters domain.Metadata) (domain.SearchResponse, error) {
	return m.search.Search(query, method, k, filters)
}

func (m *Manager) Get(id string) (domain.Document, error) {
	return m.docs.Get(id)
}

// Delete removes a document and cascades to its vector. Cache entries
// are left alone; they are keyed by content hash, not id.
func (m *Manager) Delete(id string) error {
	if err := m.index.Delete(id); err != nil {
		return err
	}
	return m.docs.Delete(id)
}

// Status reports store and index counts plus per-category and
// per-source document tallies. EmbeddedCount differing from IndexSize
// signals a needed backfill; Status only reports, never repairs.
func (m *Manager) Status() (domain.Status, error) {
	var st domain.Status

	var err error
	if st.DocumentCount, err = m.docs.Count(); err != nil {
		return st, err
	}
	if st.EmbeddedCount, err = m.docs.EmbeddedCount(); err != nil {
		return st, err
	}
	if st.IndexSize, err = m.index.Count(); err != nil {
		return st, err
	}

	all, err := m.docs.Scan(nil)
	if err != nil {
		return st, err
	}
	st.Categories = make(map[string]int)
	st.Sources = make(map[string]int)
	for _, doc := range all {
		if c := doc.Metadata["category"]; c != "" {
			st.Categories[c]++
		}
		if s := doc.Metadata["source"]; s != "" {
			st.Sources[s]++
		}
	}
	return st, nil
}

// Cleanup deletes documents older than maxAge, cascading to their
// vectors, and returns the number removed. A non-positive maxAge is a
// no-op so a zeroed retention config never wipes the store.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)

	all, err := m.docs.Scan(nil)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, doc := range all {
		if !doc.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.Delete(doc.ID); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", doc.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Export writes every stored document to w as a JSON array, in store
// iteration order.
func (m *Manager) Export(w io.Writer) error {
	all, err := m.docs.Scan(nil)
	if err != nil {
		return err
	}

	out := make([]exportedDocument, 0, len(all))
	for _, doc := range all {
		out = append(out, exportedDocument{
			ID:        doc.ID,
			Text:      doc.Text,
			Metadata:  doc.Metadata,
			Embedded:  doc.EmbeddingGenerated,
			CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Import re-ingests documents from a JSON export produced by Export.
// Vectors are not part of the export, so they are regenerated through
// the embedding provider (cached embeddings are reused). progress may
// be nil.
func (m *Manager) Import(r io.Reader, progress func(done, total int)) (IngestResult, error) {
	var in []exportedDocument
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return IngestResult{}, fmt.Errorf("invalid import data: %w", err)
	}

	raws := make([]domain.RawDocument, 0, len(in))
	for _, doc := range in {
		raws = append(raws, domain.RawDocument{Text: doc.Text, Metadata: doc.Metadata})
	}
	return m.Ingest(raws, progress)
}

type exportedDocument struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
	Embedded  bool            `json:"embedded"`
	CreatedAt string          `json:"created_at"`
}

// Close releases both database files.
func (m *Manager) Close() error {
	var first error
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			first = err
		}
	}
	if err := m.docs.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
