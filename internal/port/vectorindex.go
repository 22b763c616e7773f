package port

import "finsight/internal/domain"

// VectorIndex stores and searches embedding vectors, keyed by document
// id as a back-reference.
type VectorIndex interface {
	// Upsert replaces any existing vector for id. A vector whose length
	// differs from the index's configured dimension is rejected with
	// domain.DimensionMismatchError.
	Upsert(id string, vector []float32, meta domain.Metadata) error

	// Delete removes the vector if present; deleting an absent id is a
	// no-op.
	Delete(id string) error

	// Query returns up to k hits ordered by descending similarity
	// (higher score = closer). Filters are applied before scoring, so
	// fewer than k survivors yields a shorter result, never padded.
	// Ties are broken by insertion recency, most recent first.
	Query(vector []float32, k int, filters domain.Metadata) ([]VectorHit, error)

	// Count returns the number of vectors in the index.
	Count() (int, error)
}

// VectorHit is a nearest-neighbor match.
type VectorHit struct {
	ID    string  // Document id
	Score float64 // Cosine similarity, higher is closer
}
