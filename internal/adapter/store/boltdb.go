package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"finsight/internal/domain"
)

// CurrentSchemaVersion is the storage format version. A database written
// by an incompatible version is refused rather than silently misread.
const CurrentSchemaVersion = 1

var (
	bucketDocs  = []byte("docs")
	bucketBlobs = []byte("blobs")
	bucketInfo  = []byte("info")

	keySchemaVersion = []byte("schema_version")
)

// BoltDocumentStore is the bbolt-backed authoritative document record.
// bbolt serializes update transactions, so concurrent Puts to the same
// id never interleave; reads run against a consistent snapshot.
type BoltDocumentStore struct {
	db *bbolt.DB
}

type docMeta struct {
	Metadata    domain.Metadata `json:"metadata,omitempty"`
	ContentHash string          `json:"content_hash"`
	Embedded    bool            `json:"embedded"`
	CreatedAt   int64           `json:"created_at"`
}

// NewBoltDocumentStore opens (or creates) the document database at path.
func NewBoltDocumentStore(path string) (*BoltDocumentStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketBlobs, bucketInfo} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}

		info := tx.Bucket(bucketInfo)
		if data := info.Get(keySchemaVersion); data != nil {
			var version int
			if err := json.Unmarshal(data, &version); err != nil {
				version = 0
			}
			if version != CurrentSchemaVersion {
				return fmt.Errorf("incompatible schema version %d (expected %d): re-ingest into a fresh database", version, CurrentSchemaVersion)
			}
			return nil
		}
		data, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return info.Put(keySchemaVersion, data)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltDocumentStore{db: db}, nil
}

// DB exposes the underlying database so the vector index can share it.
func (s *BoltDocumentStore) DB() *bbolt.DB {
	return s.db
}

// Put inserts or updates by the document's id. Same id with the same
// content hash is an idempotent no-op; a changed hash updates the record
// in place and resets the embedded flag.
func (s *BoltDocumentStore) Put(doc domain.Document) (string, bool, error) {
	if doc.ID == "" {
		return "", false, &domain.InvalidInputError{Reason: "document id is empty"}
	}

	changed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)

		if existing := docs.Get([]byte(doc.ID)); existing != nil {
			var meta docMeta
			if err := json.Unmarshal(existing, &meta); err != nil {
				return err
			}
			if meta.ContentHash == doc.ContentHash {
				return nil // idempotent re-ingestion
			}
			// Content changed for the same logical document: update in
			// place, drop the embedded flag until re-embedded.
			meta.Metadata = doc.Metadata
			meta.ContentHash = doc.ContentHash
			meta.Embedded = false
			changed = true
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := docs.Put([]byte(doc.ID), data); err != nil {
				return err
			}
			return tx.Bucket(bucketBlobs).Put([]byte(doc.ID), []byte(doc.Text))
		}

		meta := docMeta{
			Metadata:    doc.Metadata,
			ContentHash: doc.ContentHash,
			Embedded:    false,
			CreatedAt:   doc.CreatedAt.Unix(),
		}
		changed = true
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := docs.Put([]byte(doc.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobs).Put([]byte(doc.ID), []byte(doc.Text))
	})
	return doc.ID, changed, err
}

// Get returns domain.ErrNotFound when the id is absent.
func (s *BoltDocumentStore) Get(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		text := tx.Bucket(bucketBlobs).Get([]byte(id))
		doc = assemble(id, meta, text)
		return nil
	})
	return doc, err
}

// Scan returns documents whose metadata satisfies every equality filter.
func (s *BoltDocumentStore) Scan(filters domain.Metadata) ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		blobs := tx.Bucket(bucketBlobs)
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if !meta.Metadata.Matches(filters) {
				return nil
			}
			docs = append(docs, assemble(string(k), meta, blobs.Get(k)))
			return nil
		})
	})
	return docs, err
}

// MarkEmbedded flips the embedded flag once a vector exists in the index.
func (s *BoltDocumentStore) MarkEmbedded(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		data := docs.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		if meta.Embedded {
			return nil
		}
		meta.Embedded = true
		updated, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return docs.Put([]byte(id), updated)
	})
}

// Delete removes the record. The vector cascade happens one level up.
func (s *BoltDocumentStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketDocs).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobs).Delete([]byte(id))
	})
}

// ListUnembedded returns documents awaiting embedding, for backfill.
func (s *BoltDocumentStore) ListUnembedded() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		blobs := tx.Bucket(bucketBlobs)
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if meta.Embedded {
				return nil
			}
			docs = append(docs, assemble(string(k), meta, blobs.Get(k)))
			return nil
		})
	})
	return docs, err
}

// Count returns the number of stored documents.
func (s *BoltDocumentStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDocs).Stats().KeyN
		return nil
	})
	return n, err
}

// EmbeddedCount returns the number of documents with a generated vector.
func (s *BoltDocumentStore) EmbeddedCount() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if meta.Embedded {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (s *BoltDocumentStore) Close() error {
	return s.db.Close()
}

func assemble(id string, meta docMeta, text []byte) domain.Document {
	return domain.Document{
		ID:                 id,
		Text:               string(text),
		Metadata:           meta.Metadata,
		ContentHash:        meta.ContentHash,
		EmbeddingGenerated: meta.Embedded,
		CreatedAt:          time.Unix(meta.CreatedAt, 0),
	}
}
