package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recall/internal/adapter/cache"
	"recall/internal/domain"
	"recall/internal/port"
)

const (
	DefaultTopK         = 10
	DefaultOverfetch    = 3
	DefaultCategoryBias = 0.15
)

// Engine is the single entry point consumed by the chat/agent layer: it owns
// the embedding lifecycle, the per-collection vector indexes, and the
// multi-stage query ranking. One Engine serves concurrent ingest and query
// callers; each query is processed independently with no session state.
type Engine struct {
	store    port.MetadataStore
	indexes  port.IndexProvider
	embedder port.Embedder
	chunker  port.Chunker
	cache    *cache.QueryCache
	logger   *zap.Logger

	overfetch    int
	categoryBias float64

	catMu   sync.Mutex
	catVecs []categoryVector
}

// Options tunes the engine. Zero values fall back to documented defaults.
type Options struct {
	// Overfetch multiplies the caller's topK for the coarse index search so
	// filtering stages have a pool to work with. Default 3.
	Overfetch int

	// CategoryBias is added to the score of chunks matching an
	// auto-detected category before truncation. Detection is approximate,
	// so it biases ranking and never drops results. Default 0.15.
	CategoryBias float64

	// Cache enables query result memoization. Nil disables it.
	Cache *cache.QueryCache
}

func NewEngine(
	store port.MetadataStore,
	indexes port.IndexProvider,
	embedder port.Embedder,
	chunker port.Chunker,
	logger *zap.Logger,
	opts Options,
) *Engine {
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOverfetch
	}
	if opts.CategoryBias <= 0 {
		opts.CategoryBias = DefaultCategoryBias
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:        store,
		indexes:      indexes,
		embedder:     embedder,
		chunker:      chunker,
		cache:        opts.Cache,
		logger:       logger,
		overfetch:    opts.Overfetch,
		categoryBias: opts.CategoryBias,
	}
}

func (e *Engine) CreateCollection(owner, name string) (domain.Collection, error) {
	return e.store.CreateCollection(owner, name)
}

func (e *Engine) ListCollections(owner string) ([]domain.Collection, error) {
	return e.store.ListCollections(owner)
}

func (e *Engine) ListDocuments(collectionID string) ([]domain.Document, error) {
	return e.store.ListDocuments(collectionID)
}

// Ingest chunks, embeds, and persists one document. The metadata transaction
// commits before any index mutation: metadata is the source of truth and the
// index is a rebuildable accelerator. Chunk rows and index entries exist
// together or not at all once Ingest returns.
func (e *Engine) Ingest(collectionID string, rec domain.IngestRecord) (string, error) {
	docID, _, err := e.ingestDocument(collectionID, rec)
	return docID, err
}

func (e *Engine) ingestDocument(collectionID string, rec domain.IngestRecord) (string, int, error) {
	if _, err := e.store.GetCollection(collectionID); err != nil {
		return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
	}
	if err := rec.Payload.Validate(); err != nil {
		return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
	}

	segments, err := e.chunker.Chunk(rec.Content)
	if err != nil {
		var chunkErr *domain.ChunkingError
		if errors.As(err, &chunkErr) && chunkErr.Filename == "" {
			chunkErr.Filename = rec.Filename
		}
		return "", 0, err
	}

	category := rec.Category
	if category == "" {
		category = domain.CategoryUnclassified
	}
	doc := domain.Document{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Filename:     rec.Filename,
		Category:     category,
		SourceRef:    rec.SourceRef,
		Summary:      rec.Summary,
		CreatedAt:    time.Now().UTC(),
	}

	if len(segments) == 0 {
		// Nothing embeddable; the document still exists and is listable.
		if err := e.store.AddDocumentWithChunks(doc, nil); err != nil {
			return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
		}
		e.invalidate(collectionID)
		return doc.ID, 0, nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	vectors, err := e.embedder.Embed(texts)
	if err != nil {
		return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
	}

	// Opening the index first surfaces a model mismatch before anything is
	// written.
	idx, err := e.indexes.Index(collectionID)
	if err != nil {
		return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
	}

	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Seq:        seg.Seq,
			Content:    seg.Text,
			TokenCount: seg.TokenCount,
			Payload:    rec.Payload,
		}
	}

	if err := e.store.AddDocumentWithChunks(doc, chunks); err != nil {
		return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
	}

	for i := range chunks {
		if err := idx.Add(vectors[i], chunks[i].Handle); err != nil {
			// Roll back the vectors already added and the document, so
			// neither side keeps a trace of the failed ingest.
			added := make([]int64, i)
			for j := range added {
				added[j] = chunks[j].Handle
			}
			if remErr := idx.Remove(added); remErr != nil {
				e.logger.Error("failed to remove vectors after index error",
					zap.String("document", doc.ID), zap.Error(remErr))
			}
			if delErr := e.store.DeleteDocument(doc.ID); delErr != nil {
				e.logger.Error("failed to roll back document after index error",
					zap.String("document", doc.ID), zap.Error(delErr))
			}
			return "", 0, &domain.IngestError{Filename: rec.Filename, Err: err}
		}
	}

	if err := idx.Persist(); err != nil {
		// The in-memory index is correct; a stale artifact is repaired by
		// hydration checks and Reindex after a restart.
		e.logger.Error("failed to persist index artifact",
			zap.String("collection", collectionID), zap.Error(err))
	}

	e.invalidate(collectionID)
	return doc.ID, len(chunks), nil
}

// IngestDir ingests every file matched by the walker. Failures are
// per-document: one bad file is recorded in its FileStatus and the batch
// continues. Cancellation is honored between documents, never mid-document,
// so an interrupted batch leaves completed documents queryable.
func (e *Engine) IngestDir(
	ctx context.Context,
	collectionID, root string,
	category domain.Category,
	walker port.FileWalker,
	progress func(done, total int, path string),
) ([]domain.FileStatus, error) {
	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	statuses := make([]domain.FileStatus, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}

		status := domain.FileStatus{Path: file.Path}
		content, err := os.ReadFile(file.Path)
		if err != nil {
			status.Err = &domain.IngestError{Filename: file.Path, Err: err}
		} else {
			rec := domain.IngestRecord{
				Filename:  filepath.Base(file.Path),
				Category:  category,
				Content:   string(content),
				SourceRef: file.Path,
			}
			docID, chunks, err := e.ingestDocument(collectionID, rec)
			status.DocumentID = docID
			status.Chunks = chunks
			status.Err = err
		}
		if status.Err != nil {
			e.logger.Warn("skipping file", zap.String("path", file.Path), zap.Error(status.Err))
		}
		statuses = append(statuses, status)

		if progress != nil {
			progress(i+1, len(files), file.Path)
		}
	}

	return statuses, nil
}

// DeleteDocument drops the document's index entries before the metadata rows
// commit their deletion: a crash in between leaves at worst a stale index
// entry, which hydration skips, never a dangling metadata row.
func (e *Engine) DeleteDocument(documentID string) error {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	handles, err := e.store.HandlesByDocument(documentID)
	if err != nil {
		return err
	}

	idx, err := e.indexes.Index(doc.CollectionID)
	if err != nil {
		return err
	}
	if err := idx.Remove(handles); err != nil {
		return err
	}
	if err := idx.Persist(); err != nil {
		return fmt.Errorf("failed to persist index after removal: %w", err)
	}

	if err := e.store.DeleteDocument(documentID); err != nil {
		return err
	}
	e.invalidate(doc.CollectionID)
	return nil
}

// DeleteCollection drops the whole index artifact, then cascades the
// metadata deletion.
func (e *Engine) DeleteCollection(collectionID string) error {
	if _, err := e.store.GetCollection(collectionID); err != nil {
		return err
	}
	if err := e.indexes.Drop(collectionID); err != nil {
		return err
	}
	if err := e.store.DeleteCollection(collectionID); err != nil {
		return err
	}
	e.invalidate(collectionID)
	return nil
}

// Reindex re-embeds every chunk of a collection and rebuilds its index
// artifact. It is the mandated recovery after an embedding model change.
func (e *Engine) Reindex(collectionID string) error {
	if _, err := e.store.GetCollection(collectionID); err != nil {
		return err
	}

	chunks, err := e.store.ChunksByCollection(collectionID)
	if err != nil {
		return err
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err = e.embedder.Embed(texts)
		if err != nil {
			return err
		}
	}

	if err := e.indexes.Drop(collectionID); err != nil {
		return err
	}
	idx, err := e.indexes.Index(collectionID)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		if err := idx.Add(vectors[i], c.Handle); err != nil {
			return err
		}
	}
	if err := idx.Persist(); err != nil {
		return fmt.Errorf("failed to persist rebuilt index: %w", err)
	}

	e.invalidate(collectionID)
	return nil
}

// Stats reports metadata counts and the live vector count side by side, which
// makes index/metadata divergence visible.
func (e *Engine) Stats(collectionID string) (domain.CollectionStats, error) {
	stats, err := e.store.Stats(collectionID)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	idx, err := e.indexes.Index(collectionID)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	stats.LiveVectors = idx.Len()
	return stats, nil
}

func (e *Engine) invalidate(collectionID string) {
	if e.cache != nil {
		e.cache.Invalidate(collectionID)
	}
}
