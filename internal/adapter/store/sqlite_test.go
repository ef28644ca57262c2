package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestDocument(t *testing.T, s *SQLiteStore, collectionID string, nChunks int) (domain.Document, []domain.Chunk) {
	t.Helper()
	doc := domain.Document{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Filename:     "notes.txt",
		Category:     domain.CategoryNotes,
		CreatedAt:    time.Now().UTC(),
	}
	chunks := make([]domain.Chunk, nChunks)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Seq:        i,
			Content:    fmt.Sprintf("chunk %d content", i),
			TokenCount: 3,
		}
	}
	require.NoError(t, s.AddDocumentWithChunks(doc, chunks))
	return doc, chunks
}

func TestCollectionLifecycle(t *testing.T) {
	s := newTestStore(t)

	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	assert.NotEmpty(t, col.ID)

	got, err := s.GetCollection(col.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "notes", got.Name)

	cols, err := s.ListCollections("alice")
	require.NoError(t, err)
	assert.Len(t, cols, 1)

	require.NoError(t, s.DeleteCollection(col.ID))
	_, err = s.GetCollection(col.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateCollection_DuplicateName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	_, err = s.CreateCollection("alice", "notes")
	assert.Error(t, err)

	// The same name under a different owner is fine.
	_, err = s.CreateCollection("bob", "notes")
	assert.NoError(t, err)
}

func TestListCollections_AllOwners(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateCollection("alice", "a")
	require.NoError(t, err)
	_, err = s.CreateCollection("bob", "b")
	require.NoError(t, err)

	cols, err := s.ListCollections("")
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	cols, err = s.ListCollections("alice")
	require.NoError(t, err)
	assert.Len(t, cols, 1)
}

func TestAddDocumentWithChunks_AssignsHandles(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)

	_, chunks := newTestDocument(t, s, col.ID, 3)

	for i, c := range chunks {
		assert.Positive(t, c.Handle, "chunk %d must receive a handle", i)
		if i > 0 {
			assert.Equal(t, chunks[i-1].Handle+1, c.Handle, "handles are consecutive within a document")
		}
	}

	// A second document continues the sequence; handles never repeat.
	_, more := newTestDocument(t, s, col.ID, 2)
	assert.Greater(t, more[0].Handle, chunks[2].Handle)
}

func TestAddDocumentWithChunks_Atomic(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)

	doc := domain.Document{
		ID:           uuid.NewString(),
		CollectionID: col.ID,
		Filename:     "bad.txt",
		Category:     domain.CategoryNotes,
		CreatedAt:    time.Now().UTC(),
	}
	dup := uuid.NewString()
	chunks := []domain.Chunk{
		{ID: dup, DocumentID: doc.ID, Seq: 0, Content: "a"},
		{ID: dup, DocumentID: doc.ID, Seq: 1, Content: "b"}, // duplicate primary key
	}
	err = s.AddDocumentWithChunks(doc, chunks)
	require.Error(t, err)

	// Nothing from the failed transaction is visible.
	_, err = s.GetDocument(doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stats, err := s.Stats(col.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Chunks)
}

func TestGetChunkByHandle(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	doc, chunks := newTestDocument(t, s, col.ID, 2)

	chunk, gotDoc, err := s.GetChunkByHandle(chunks[1].Handle)
	require.NoError(t, err)
	assert.Equal(t, chunks[1].ID, chunk.ID)
	assert.Equal(t, "chunk 1 content", chunk.Content)
	assert.Equal(t, doc.ID, gotDoc.ID)
	assert.Equal(t, domain.CategoryNotes, gotDoc.Category)

	_, _, err = s.GetChunkByHandle(999999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetNeighbors(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	_, chunks := newTestDocument(t, s, col.ID, 5)

	// Middle chunk: one neighbor on each side, anchor excluded.
	neighbors, err := s.GetNeighbors(chunks[2].ID, 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 1, neighbors[0].Seq)
	assert.Equal(t, 3, neighbors[1].Seq)

	// Document start: the window is clipped.
	neighbors, err = s.GetNeighbors(chunks[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, 1, neighbors[0].Seq)
	assert.Equal(t, 2, neighbors[1].Seq)

	// Zero window means no expansion.
	neighbors, err = s.GetNeighbors(chunks[2].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestGetNeighbors_DocumentBoundary(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	_, first := newTestDocument(t, s, col.ID, 2)
	_, _ = newTestDocument(t, s, col.ID, 2)

	// Neighbors never cross into another document.
	neighbors, err := s.GetNeighbors(first[1].ID, 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, first[0].ID, neighbors[0].ID)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	doc, chunks := newTestDocument(t, s, col.ID, 3)

	require.NoError(t, s.DeleteDocument(doc.ID))

	_, _, err = s.GetChunkByHandle(chunks[0].Handle)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stats, err := s.Stats(col.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestDeleteCollection_Cascades(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	doc, chunks := newTestDocument(t, s, col.ID, 3)

	require.NoError(t, s.DeleteCollection(col.ID))

	_, err = s.GetDocument(doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = s.GetChunkByHandle(chunks[0].Handle)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandlesByDocumentAndCollection(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	_, first := newTestDocument(t, s, col.ID, 2)
	doc2, second := newTestDocument(t, s, col.ID, 3)

	handles, err := s.HandlesByDocument(doc2.ID)
	require.NoError(t, err)
	assert.Len(t, handles, 3)
	assert.Equal(t, second[0].Handle, handles[0])

	handles, err = s.HandlesByCollection(col.ID)
	require.NoError(t, err)
	assert.Len(t, handles, 5)
	assert.Equal(t, first[0].Handle, handles[0])
}

func TestPayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)

	doc := domain.Document{
		ID:           uuid.NewString(),
		CollectionID: col.ID,
		Filename:     "report.pdf",
		Category:     domain.CategoryWork,
		CreatedAt:    time.Now().UTC(),
	}
	chunks := []domain.Chunk{
		{
			ID: uuid.NewString(), DocumentID: doc.ID, Seq: 0,
			Content: "plain text chunk",
		},
		{
			ID: uuid.NewString(), DocumentID: doc.ID, Seq: 1,
			Content: "revenue by quarter table",
			Payload: domain.Payload{
				Kind:  domain.PayloadTable,
				Table: json.RawMessage(`{"rows":[["q1",100],["q2",200]]}`),
			},
		},
		{
			ID: uuid.NewString(), DocumentID: doc.ID, Seq: 2,
			Content: "diagram of the office floor plan",
			Payload: domain.Payload{Kind: domain.PayloadImageCaption, Caption: "office floor plan"},
		},
	}
	require.NoError(t, s.AddDocumentWithChunks(doc, chunks))

	stored, err := s.ChunksByDocument(doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	assert.Equal(t, domain.PayloadText, stored[0].Payload.NormalizedKind())
	assert.Equal(t, domain.PayloadTable, stored[1].Payload.Kind)
	assert.JSONEq(t, `{"rows":[["q1",100],["q2",200]]}`, string(stored[1].Payload.Table))
	assert.Equal(t, "office floor plan", stored[2].Payload.Caption)
}

func TestChunksByCollection(t *testing.T) {
	s := newTestStore(t)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	newTestDocument(t, s, col.ID, 2)
	newTestDocument(t, s, col.ID, 2)

	chunks, err := s.ChunksByCollection(col.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Handle, chunks[i-1].Handle)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	col, err := s.CreateCollection("alice", "notes")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening reapplies nothing and keeps existing data.
	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetCollection(col.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes", got.Name)
}
