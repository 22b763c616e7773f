package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"finsight/internal/domain"
	"finsight/internal/port"
)

var bucketVectors = []byte("vectors")

// BoltVectorIndex implements port.VectorIndex with bbolt persistence and
// brute-force cosine search over an in-memory mirror. Every vector
// carries an insertion sequence so equal-similarity results order
// deterministically, most recently inserted first.
type BoltVectorIndex struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	vectors   map[string]vectorEntry
	seq       uint64
}

type vectorEntry struct {
	vector []float32
	meta   domain.Metadata
	seq    uint64
}

type storedVector struct {
	Vector   []float32       `json:"v"`
	Metadata domain.Metadata `json:"m,omitempty"`
	Seq      uint64          `json:"s"`
}

// NewBoltVectorIndex creates a vector index in the given database,
// typically shared with the document store.
func NewBoltVectorIndex(db *bbolt.DB, dimension int) (*BoltVectorIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dimension)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	idx := &BoltVectorIndex{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}

	if err := idx.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return idx, nil
}

// loadVectors mirrors all persisted vectors into memory.
func (s *BoltVectorIndex) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			s.vectors[string(k)] = vectorEntry{
				vector: stored.Vector,
				meta:   stored.Metadata,
				seq:    stored.Seq,
			}
			if stored.Seq > s.seq {
				s.seq = stored.Seq
			}
			return nil
		})
	})
}

// Upsert replaces any existing vector for id.
func (s *BoltVectorIndex) Upsert(id string, vector []float32, meta domain.Metadata) error {
	if len(vector) != s.dimension {
		return &domain.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := storedVector{
		Vector:   vector,
		Metadata: meta,
		Seq:      s.seq,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put([]byte(id), data)
	})
	if err != nil {
		return err
	}

	s.vectors[id] = vectorEntry{
		vector: vector,
		meta:   meta,
		seq:    stored.Seq,
	}
	return nil
}

// Delete removes the vector if present; absent ids are a no-op.
func (s *BoltVectorIndex) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	delete(s.vectors, id)
	return nil
}

// Query returns up to k nearest vectors by cosine similarity, with
// metadata filters applied before scoring. Results are ordered by
// descending similarity, ties broken by insertion recency.
func (s *BoltVectorIndex) Query(query []float32, k int, filters domain.Metadata) ([]port.VectorHit, error) {
	if len(query) != s.dimension {
		return nil, &domain.DimensionMismatchError{Want: s.dimension, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id    string
		score float64
		seq   uint64
	}

	scores := make([]scored, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if !entry.meta.Matches(filters) {
			continue
		}
		scores = append(scores, scored{
			id:    id,
			score: cosineSimilarity(query, entry.vector),
			seq:   entry.seq,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].seq > scores[j].seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]port.VectorHit, k)
	for i := 0; i < k; i++ {
		hits[i] = port.VectorHit{ID: scores[i].id, Score: scores[i].score}
	}
	return hits, nil
}

// Count returns the number of vectors in the index.
func (s *BoltVectorIndex) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
