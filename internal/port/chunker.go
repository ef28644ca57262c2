package port

import "recall/internal/domain"

// Chunker splits extracted text into token-bounded, sentence-aware segments.
// Segment order is significant and becomes the chunk sequence index.
type Chunker interface {
	Chunk(text string) ([]domain.Segment, error)
}
