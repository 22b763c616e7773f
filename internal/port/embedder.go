package port

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts, order preserving,
	// one vector per input. A call either returns a vector for every
	// input or an error, never a partial list.
	Embed(texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
