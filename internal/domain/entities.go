package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MetadataKeys is the fixed set of metadata keys accepted at ingestion.
var MetadataKeys = map[string]struct{}{
	"source":    {},
	"category":  {},
	"title":     {},
	"published": {},
	"url":       {},
}

// Metadata maps the known metadata keys to scalar string values.
// Keys outside MetadataKeys are rejected at the ingestion boundary.
type Metadata map[string]string

// Validate checks that all keys belong to the known key set.
func (m Metadata) Validate() error {
	for k := range m {
		if _, ok := MetadataKeys[k]; !ok {
			return &InvalidInputError{Reason: "unknown metadata key: " + k}
		}
	}
	return nil
}

// Matches reports whether m satisfies every equality constraint in filters.
// A record missing a filtered key does not match.
func (m Metadata) Matches(filters Metadata) bool {
	for k, want := range filters {
		got, ok := m[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Clone returns a copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is the atomic retrievable unit: a cleaned chunk of article
// text plus its metadata.
type Document struct {
	ID                 string
	Text               string
	Metadata           Metadata
	ContentHash        string
	EmbeddingGenerated bool
	CreatedAt          time.Time
}

// RawDocument is an un-ingested item from the upstream collaborator.
type RawDocument struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// DocumentID derives the stable document identifier from content plus
// source, so re-ingesting identical content maps to the same record
// without a separate lookup table.
func DocumentID(text string, meta Metadata) string {
	h := sha256.New()
	h.Write([]byte(meta["source"]))
	h.Write([]byte{0})
	h.Write([]byte(meta["url"]))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HashText returns the content hash used for change detection.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SearchMethod selects a retrieval strategy.
type SearchMethod string

const (
	MethodSemantic SearchMethod = "semantic"
	MethodLexical  SearchMethod = "lexical"
	MethodHybrid   SearchMethod = "hybrid"
)

// ParseSearchMethod validates a method name.
func ParseSearchMethod(s string) (SearchMethod, error) {
	switch SearchMethod(s) {
	case MethodSemantic, MethodLexical, MethodHybrid:
		return SearchMethod(s), nil
	}
	return "", &InvalidInputError{Reason: "unknown search method: " + s}
}

// RankSource records which retrieval path produced a result.
type RankSource string

const (
	RankSemantic RankSource = "semantic"
	RankLexical  RankSource = "lexical"
	RankBoth     RankSource = "both"
)

// SearchResult is the ephemeral per-query ranking unit. Scores are
// uniformly "higher is more relevant" across all methods.
type SearchResult struct {
	DocumentID string
	Score      float64
	RankSource RankSource
}

// RankedDocument is a search result with the document resolved, so
// callers never need a second store lookup.
type RankedDocument struct {
	Document   Document   `json:"document"`
	Score      float64    `json:"score"`
	RankSource RankSource `json:"rank_source"`
}

// SearchResponse carries the resolved results of one query. Degraded is
// set when hybrid search fell back to a single path because the other
// path failed, so callers can tell partial from full results.
type SearchResponse struct {
	Results  []RankedDocument `json:"results"`
	Degraded bool             `json:"degraded"`
}

// Status is the consistency-check surface. EmbeddedCount is expected to
// equal IndexSize; a persistent mismatch signals a needed backfill and
// is never auto-corrected.
type Status struct {
	DocumentCount int            `json:"document_count"`
	EmbeddedCount int            `json:"embedded_count"`
	IndexSize     int            `json:"index_size"`
	Categories    map[string]int `json:"categories,omitempty"`
	Sources       map[string]int `json:"sources,omitempty"`
}
