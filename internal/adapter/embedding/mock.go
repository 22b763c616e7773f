package embedding

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"finsight/internal/domain"
)

// MockEmbedder produces deterministic bag-of-words vectors: each token
// hashes to a dimension bucket, and the result is length-normalized.
// Texts sharing tokens get similar vectors, which is enough for tests
// and offline runs.
type MockEmbedder struct {
	dimension int
	// Calls counts Embed invocations, for cache tests.
	Calls int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("empty text at position %d", i)}
		}
	}
	e.Calls++

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for _, token := range mockTokens(text) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[int(h.Sum32())%e.dimension]++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range vec {
				vec[j] *= scale
			}
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

func mockTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
