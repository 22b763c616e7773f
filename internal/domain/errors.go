package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document id is absent from the store.
var ErrNotFound = errors.New("document not found")

// InvalidInputError marks a caller fault (empty text, malformed
// metadata, bad method name). Never retried.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// EmbeddingProviderError marks an unrecoverable remote fault after the
// adapter has exhausted its retries.
type EmbeddingProviderError struct {
	Op  string
	Err error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError marks a consistency fault between a vector and
// the index's configured dimension. Not retried.
type DimensionMismatchError struct {
	Want, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Want, e.Got)
}
