package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finsight/internal/domain"
	"finsight/internal/port"
)

// IngestResult summarizes one ingestion pass. IDs holds the resolved
// document id for each input item, in input order.
type IngestResult struct {
	IDs       []string `json:"ids,omitempty"`
	Added     int      `json:"added"`     // new documents
	Updated   int      `json:"updated"`   // prior versions replaced (same source and url, changed text)
	Unchanged int      `json:"unchanged"` // content-hash no-ops
	Embedded  int      `json:"embedded"`  // vectors written to the index
	Failed    int      `json:"failed"`    // documents left unembedded by a failed batch
}

// IngestUseCase stores documents and generates their embeddings. The
// store write and the embedding are decoupled: a document is durable
// and lexically searchable the moment Put succeeds, and becomes
// semantically searchable once its batch embeds. Embedding runs one
// provider call per batch, so a failing batch strands only its own
// documents; everything stranded is recoverable through Backfill.
type IngestUseCase struct {
	docs      port.DocumentStore
	index     port.VectorIndex
	embedder  port.Embedder
	batchSize int

	// OnProgress, when set, is called after each document completes a
	// stage, with the number processed so far and the total.
	OnProgress func(done, total int)
}

func NewIngestUseCase(docs port.DocumentStore, index port.VectorIndex, embedder port.Embedder, batchSize int) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &IngestUseCase{
		docs:      docs,
		index:     index,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Ingest validates, stores, and embeds a batch of raw documents.
// Validation is all-or-nothing: any invalid item fails the call before
// a single write happens. Ids are content-addressed, so a known article
// arriving with changed text gets a new id; the prior version (found by
// source and url) is deleted along with its vector and the item counts
// as updated, not added. Embedding failures do not fail the call; the
// returned result counts them and the error aggregates them.
func (u *IngestUseCase) Ingest(raws []domain.RawDocument) (IngestResult, error) {
	var result IngestResult

	for i, raw := range raws {
		if strings.TrimSpace(raw.Text) == "" {
			return result, &domain.InvalidInputError{Reason: fmt.Sprintf("document %d: empty text", i)}
		}
		if err := raw.Metadata.Validate(); err != nil {
			return result, fmt.Errorf("document %d: %w", i, err)
		}
	}

	byOrigin, err := u.originIndex(raws)
	if err != nil {
		return result, err
	}

	now := time.Now()
	var pending []domain.Document
	for _, raw := range raws {
		doc := domain.Document{
			ID:          domain.DocumentID(raw.Text, raw.Metadata),
			Text:        raw.Text,
			Metadata:    raw.Metadata.Clone(),
			ContentHash: domain.HashText(raw.Text),
			CreatedAt:   now,
		}

		_, changed, err := u.docs.Put(doc)
		if err != nil {
			return result, fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
		result.IDs = append(result.IDs, doc.ID)
		if !changed {
			result.Unchanged++
			continue
		}

		replaced := false
		if raw.Metadata["url"] != "" {
			key := originKey(raw.Metadata)
			if prior, ok := byOrigin[key]; ok && prior != doc.ID {
				if err := u.index.Delete(prior); err != nil {
					return result, fmt.Errorf("failed to drop stale vector %s: %w", prior, err)
				}
				if err := u.docs.Delete(prior); err != nil {
					return result, fmt.Errorf("failed to drop stale document %s: %w", prior, err)
				}
				replaced = true
			}
			byOrigin[key] = doc.ID
		}
		if replaced {
			result.Updated++
		} else {
			result.Added++
		}
		pending = append(pending, doc)
	}

	embedded, failed, err := u.embedDocuments(pending)
	result.Embedded = embedded
	result.Failed = failed
	return result, err
}

// Backfill embeds every document whose embedding is missing, in the
// same batched fashion as Ingest. It is safe to run repeatedly.
func (u *IngestUseCase) Backfill() (IngestResult, error) {
	var result IngestResult

	pending, err := u.docs.ListUnembedded()
	if err != nil {
		return result, fmt.Errorf("failed to list unembedded documents: %w", err)
	}

	embedded, failed, err := u.embedDocuments(pending)
	result.Embedded = embedded
	result.Failed = failed
	return result, err
}

// embedDocuments embeds docs batch by batch. Each batch is one provider
// call; a batch failure strands that batch only and the loop continues.
func (u *IngestUseCase) embedDocuments(docs []domain.Document) (embedded, failed int, err error) {
	var errs []error
	done := 0
	total := len(docs)

	for start := 0; start < total; start += u.batchSize {
		end := start + u.batchSize
		if end > total {
			end = total
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.Text
		}

		vectors, embedErr := u.embedder.Embed(texts)
		if embedErr != nil {
			failed += len(batch)
			errs = append(errs, fmt.Errorf("batch starting at %d: %w", start, embedErr))
		} else {
			for i, doc := range batch {
				if upErr := u.index.Upsert(doc.ID, vectors[i], doc.Metadata); upErr != nil {
					failed++
					errs = append(errs, fmt.Errorf("failed to index %s: %w", doc.ID, upErr))
					continue
				}
				if markErr := u.docs.MarkEmbedded(doc.ID); markErr != nil {
					failed++
					errs = append(errs, fmt.Errorf("failed to mark %s embedded: %w", doc.ID, markErr))
					continue
				}
				embedded++
			}
		}

		done += len(batch)
		u.progress(done, total)
	}

	return embedded, failed, errors.Join(errs...)
}

func (u *IngestUseCase) progress(done, total int) {
	if u.OnProgress != nil {
		u.OnProgress(done, total)
	}
}

// originIndex maps source+url to the stored document id, so a changed
// version of a known article can replace its predecessor. Built only
// when the batch carries urls at all.
func (u *IngestUseCase) originIndex(raws []domain.RawDocument) (map[string]string, error) {
	need := false
	for _, raw := range raws {
		if raw.Metadata["url"] != "" {
			need = true
			break
		}
	}
	byOrigin := make(map[string]string)
	if !need {
		return byOrigin, nil
	}

	all, err := u.docs.Scan(nil)
	if err != nil {
		return nil, err
	}
	for _, doc := range all {
		if doc.Metadata["url"] != "" {
			byOrigin[originKey(doc.Metadata)] = doc.ID
		}
	}
	return byOrigin, nil
}

func originKey(meta domain.Metadata) string {
	return meta["source"] + "\x00" + meta["url"]
}
