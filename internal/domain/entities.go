package domain

import "time"

// Collection is a named, user-scoped namespace for ingested documents.
type Collection struct {
	ID        string
	Owner     string
	Name      string
	CreatedAt time.Time
}

// Document is one ingested file. Re-ingesting the same file creates a new
// Document; there is no implicit dedup.
type Document struct {
	ID           string
	CollectionID string
	Filename     string
	Category     Category
	SourceRef    string
	Summary      string
	CreatedAt    time.Time
}

// Chunk is the unit of embedding and retrieval. Chunks are immutable after
// creation; updates are modeled as delete-then-reingest.
type Chunk struct {
	ID         string
	DocumentID string
	Seq        int
	Content    string
	TokenCount int
	Payload    Payload
	Handle     int64
}

// Segment is a chunker output before it becomes a persisted Chunk.
type Segment struct {
	Text       string
	TokenCount int
	Seq        int
}

// IngestRecord is the normalized input handed over by the document-processing
// collaborator: already-extracted text plus provenance.
type IngestRecord struct {
	Filename  string
	Category  Category
	Content   string
	Payload   Payload
	SourceRef string
	Summary   string
}

// RetrievedChunk is one entry of a query result. Score is nil for chunks that
// were included only as context neighbors of a main match.
type RetrievedChunk struct {
	ChunkID     string
	DocumentID  string
	Filename    string
	Category    Category
	Content     string
	Seq         int
	Score       *float64
	IsMainMatch bool
	Offset      int
}

// FileStatus reports the outcome of one file in a batch ingest.
type FileStatus struct {
	Path       string
	DocumentID string
	Chunks     int
	Err        error
}

// CollectionStats summarizes one collection.
type CollectionStats struct {
	Documents   int
	Chunks      int
	LiveVectors int
}
