package embedding

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"finsight/internal/domain"
	"finsight/internal/port"
)

var bucketEmbeddings = []byte("embeddings")

// BoltCache is a durable, append-only content-hash to vector store.
// Entries are never invalidated at runtime; it trades staleness for
// cost, and switching embedding models means switching cache files.
type BoltCache struct {
	db *bbolt.DB
}

// OpenBoltCache opens (or creates) the cache database at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCache{db: db}, nil
}

// Get returns the cached vector for a content hash, if present.
func (c *BoltCache) Get(hash string) ([]float32, bool, error) {
	var vector []float32
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(hash))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &vector); err != nil {
			return err
		}
		found = true
		return nil
	})
	return vector, found, err
}

// Put stores a vector under its content hash.
func (c *BoltCache) Put(hash string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put([]byte(hash), data)
	})
}

// Size returns the number of cached vectors.
func (c *BoltCache) Size() (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

// CachedEmbedder decorates an Embedder with the content-hash cache:
// hashes already present return the cached vector without a network
// call, and every remote success is written through.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *BoltCache
}

// NewCachedEmbedder wraps embedder with cache.
func NewCachedEmbedder(embedder port.Embedder, cache *BoltCache) *CachedEmbedder {
	return &CachedEmbedder{embedder: embedder, cache: cache}
}

// Embed resolves cached texts locally and sends only misses upstream,
// preserving input order in the returned vectors.
func (e *CachedEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("empty text at position %d", i)}
		}
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		hash := domain.HashText(text)
		vector, found, err := e.cache.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("cache read: %w", err)
		}
		if found {
			vectors[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := e.embedder.Embed(missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	for j, vector := range fresh {
		i := missIdx[j]
		vectors[i] = vector
		if err := e.cache.Put(domain.HashText(texts[i]), vector); err != nil {
			return nil, fmt.Errorf("cache write: %w", err)
		}
	}

	return vectors, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}
