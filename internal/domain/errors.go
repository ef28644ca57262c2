package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing collection, document, or chunk.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateHandle reports an attempt to add a vector under a handle
	// that is already present in the index. Handles are never reused, so
	// this is a programming error, not a condition to retry.
	ErrDuplicateHandle = errors.New("duplicate index handle")

	// ErrModelMismatch reports a persisted index artifact built with a
	// different embedding model or dimension than the configured one.
	// Recovery is a full reindex, never a mixed-space query.
	ErrModelMismatch = errors.New("embedding model mismatch: reindex required")
)

// EmbeddingError reports a model or device failure while embedding. It is
// propagated to the caller and never degraded to zero vectors.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (provider %s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ChunkingError reports malformed input text. During batch ingest it skips
// the offending document rather than aborting the batch.
type ChunkingError struct {
	Filename string
	Err      error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking %s: %v", e.Filename, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// StorageError reports a metadata store I/O failure. The surrounding
// transaction is rolled back and prior state is left intact.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IndexConsistencyError reports a handle present on one side of the
// index/metadata join but not the other. It is detected lazily on access,
// logged, and the orphan is treated as absent.
type IndexConsistencyError struct {
	Handle  int64
	Missing string // "index" or "metadata"
}

func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("index consistency: handle %d has no %s entry", e.Handle, e.Missing)
}

// IngestError reports an embedding or storage failure while ingesting one
// document.
type IngestError struct {
	Filename string
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Filename, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
