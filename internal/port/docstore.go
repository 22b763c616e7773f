package port

import "finsight/internal/domain"

// DocumentStore is the authoritative record of every ingested text unit.
// It owns Document records exclusively; vector cascade on delete is the
// orchestrator's responsibility.
type DocumentStore interface {
	// Put inserts or updates by the document's id. If an existing record
	// has the same content hash the call is a no-op that returns the
	// existing id (changed=false) and does not touch the embedded flag.
	// A new id, or an existing id with a changed content hash, returns
	// changed=true and resets the embedded flag.
	Put(doc domain.Document) (id string, changed bool, err error)

	// Get returns domain.ErrNotFound when the id is absent.
	Get(id string) (domain.Document, error)

	// Scan returns documents whose metadata satisfies the conjunction of
	// equality filters. Records missing a filtered key never match.
	Scan(filters domain.Metadata) ([]domain.Document, error)

	// MarkEmbedded flips the embedded flag. Returns domain.ErrNotFound
	// when the id is absent.
	MarkEmbedded(id string) error

	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(id string) error

	// ListUnembedded returns documents awaiting embedding, for backfill.
	ListUnembedded() ([]domain.Document, error)

	Count() (int, error)

	EmbeddedCount() (int, error)

	Close() error
}
