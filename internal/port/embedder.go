package port

// Embedder generates fixed-dimension, L2-normalized vector embeddings.
// Implementations must be safe for concurrent use; providers backed by an
// exclusive compute device serialize access internally so concurrent calls
// queue rather than race.
type Embedder interface {
	// Embed returns one unit-norm vector per input text, in input order.
	// If any item cannot be processed the whole batch fails with a
	// *domain.EmbeddingError; partial results are never returned. Callers
	// may submit arbitrarily large batches; providers re-batch internally.
	Embed(texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName identifies the model; it versions persisted index artifacts.
	ModelName() string
}
