package port

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	Handle int64
	Score  float64
}

// VectorIndex is a nearest-neighbor structure over normalized vectors using
// inner-product similarity. Handles are caller-assigned, monotonically
// increasing, and never reused.
type VectorIndex interface {
	// Add inserts one vector. A duplicate handle is a programming error and
	// fails with domain.ErrDuplicateHandle.
	Add(vector []float32, handle int64) error

	// Search returns up to k hits sorted by descending score, ties broken by
	// ascending handle. k larger than the number of live vectors returns all
	// live vectors. Scores are in [-1, 1] for normalized vectors.
	Search(query []float32, k int) ([]SearchHit, error)

	// Remove logically deletes entries; a removed handle never reappears in
	// Search results even though compaction may be deferred.
	Remove(handles []int64) error

	// Persist serializes the index so restarts do not re-embed the corpus.
	Persist() error

	// Len reports the number of live vectors.
	Len() int
}

// IndexProvider owns one VectorIndex instance per collection.
type IndexProvider interface {
	// Index returns the index for a collection, loading or creating its
	// persisted artifact. A persisted artifact built with a different
	// embedding model fails with domain.ErrModelMismatch.
	Index(collectionID string) (VectorIndex, error)

	// Drop discards a collection's index and its persisted artifact.
	Drop(collectionID string) error
}
