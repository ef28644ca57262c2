package port

import "recall/internal/domain"

// MetadataStore is the durable source of truth for collections, documents,
// chunks, and the chunk-to-handle mapping. Multi-row writes are transactional:
// readers never observe a document without its chunks or vice versa.
type MetadataStore interface {
	CreateCollection(owner, name string) (domain.Collection, error)

	GetCollection(id string) (domain.Collection, error)

	ListCollections(owner string) ([]domain.Collection, error)

	// DeleteCollection cascades to documents and chunks. Callers must drop
	// the corresponding index entries before invoking it.
	DeleteCollection(id string) error

	// AddDocumentWithChunks persists a document and all its chunks in one
	// transaction, assigning each chunk a fresh monotonic handle in place.
	AddDocumentWithChunks(doc domain.Document, chunks []domain.Chunk) error

	GetDocument(id string) (domain.Document, error)

	ListDocuments(collectionID string) ([]domain.Document, error)

	// DeleteDocument cascades to the document's chunks. Callers must drop
	// the corresponding index entries first (see HandlesByDocument).
	DeleteDocument(id string) error

	// GetChunkByHandle resolves an index handle to its chunk and owning
	// document. A stale handle fails with domain.ErrNotFound.
	GetChunkByHandle(handle int64) (domain.Chunk, domain.Document, error)

	// GetNeighbors returns up to window chunks before and after the given
	// chunk by sequence index within the same document, ordered by sequence.
	GetNeighbors(chunkID string, window int) ([]domain.Chunk, error)

	ChunksByDocument(documentID string) ([]domain.Chunk, error)

	// ChunksByCollection streams every chunk of a collection, for reindexing.
	ChunksByCollection(collectionID string) ([]domain.Chunk, error)

	HandlesByDocument(documentID string) ([]int64, error)

	HandlesByCollection(collectionID string) ([]int64, error)

	Stats(collectionID string) (domain.CollectionStats, error)

	Close() error
}
