package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"recall/internal/adapter/store/migrations"
	"recall/internal/domain"
)

// SQLiteStore is the durable metadata store: collections, documents, chunks,
// and the chunk-to-handle mapping, with foreign-key cascades and
// transactional multi-row writes.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the metadata database at path and
// applies pending migrations. WAL mode keeps concurrent readers unblocked by
// the single writer.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate(migrationFS fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	names, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, name).Scan(&applied)
		if err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		script, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return err
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			name, time.Now().Unix()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) CreateCollection(owner, name string) (domain.Collection, error) {
	col := domain.Collection{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO collections (id, owner, name, created_at) VALUES (?, ?, ?, ?)`,
		col.ID, col.Owner, col.Name, col.CreatedAt.Unix())
	if err != nil {
		return domain.Collection{}, &domain.StorageError{Op: "create collection", Err: err}
	}
	return col, nil
}

func (s *SQLiteStore) GetCollection(id string) (domain.Collection, error) {
	var col domain.Collection
	var created int64
	err := s.db.QueryRow(`SELECT id, owner, name, created_at FROM collections WHERE id = ?`, id).
		Scan(&col.ID, &col.Owner, &col.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Collection{}, fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Collection{}, &domain.StorageError{Op: "get collection", Err: err}
	}
	col.CreatedAt = time.Unix(created, 0).UTC()
	return col, nil
}

func (s *SQLiteStore) ListCollections(owner string) ([]domain.Collection, error) {
	rows, err := s.db.Query(`SELECT id, owner, name, created_at FROM collections
		WHERE (? = '' OR owner = ?) ORDER BY created_at, id`, owner, owner)
	if err != nil {
		return nil, &domain.StorageError{Op: "list collections", Err: err}
	}
	defer rows.Close()

	var cols []domain.Collection
	for rows.Next() {
		var col domain.Collection
		var created int64
		if err := rows.Scan(&col.ID, &col.Owner, &col.Name, &created); err != nil {
			return nil, &domain.StorageError{Op: "list collections", Err: err}
		}
		col.CreatedAt = time.Unix(created, 0).UTC()
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// DeleteCollection cascades to documents and chunks via foreign keys. Index
// entries must already have been dropped by the caller.
func (s *SQLiteStore) DeleteCollection(id string) error {
	res, err := s.db.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return &domain.StorageError{Op: "delete collection", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// AddDocumentWithChunks writes the document row, all chunk rows, and the
// handle assignments in a single transaction. Handles are taken from the
// monotonic handle_seq counter and written back into the chunks slice.
func (s *SQLiteStore) AddDocumentWithChunks(doc domain.Document, chunks []domain.Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &domain.StorageError{Op: "add document", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO documents
		(id, collection_id, filename, category, source_ref, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.CollectionID, doc.Filename, string(doc.Category),
		doc.SourceRef, doc.Summary, doc.CreatedAt.Unix()); err != nil {
		return &domain.StorageError{Op: "add document", Err: err}
	}

	if len(chunks) > 0 {
		var next int64
		if err := tx.QueryRow(`UPDATE handle_seq SET next = next + ? WHERE id = 1 RETURNING next`,
			len(chunks)).Scan(&next); err != nil {
			return &domain.StorageError{Op: "assign handles", Err: err}
		}
		first := next - int64(len(chunks))

		stmt, err := tx.Prepare(`INSERT INTO chunks
			(id, document_id, seq, content, token_count, payload_kind, payload, handle)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return &domain.StorageError{Op: "add chunks", Err: err}
		}
		defer stmt.Close()

		for i := range chunks {
			chunks[i].Handle = first + int64(i)
			payload, err := marshalPayload(chunks[i].Payload)
			if err != nil {
				return &domain.StorageError{Op: "add chunks", Err: err}
			}
			if _, err := stmt.Exec(chunks[i].ID, chunks[i].DocumentID, chunks[i].Seq,
				chunks[i].Content, chunks[i].TokenCount,
				string(chunks[i].Payload.NormalizedKind()), payload,
				chunks[i].Handle); err != nil {
				return &domain.StorageError{Op: "add chunks", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "add document", Err: err}
	}
	return nil
}

func (s *SQLiteStore) GetDocument(id string) (domain.Document, error) {
	row := s.db.QueryRow(`SELECT id, collection_id, filename, category, source_ref, summary, created_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, &domain.StorageError{Op: "get document", Err: err}
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(collectionID string) ([]domain.Document, error) {
	rows, err := s.db.Query(`SELECT id, collection_id, filename, category, source_ref, summary, created_at
		FROM documents WHERE collection_id = ? ORDER BY created_at, id`, collectionID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list documents", Err: err}
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "list documents", Err: err}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return &domain.StorageError{Op: "delete document", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetChunkByHandle(handle int64) (domain.Chunk, domain.Document, error) {
	row := s.db.QueryRow(`SELECT c.id, c.document_id, c.seq, c.content, c.token_count,
		c.payload, c.handle,
		d.id, d.collection_id, d.filename, d.category, d.source_ref, d.summary, d.created_at
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.handle = ?`, handle)

	var chunk domain.Chunk
	var payload sql.NullString
	var doc domain.Document
	var category string
	var created int64
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Seq, &chunk.Content, &chunk.TokenCount,
		&payload, &chunk.Handle,
		&doc.ID, &doc.CollectionID, &doc.Filename, &category, &doc.SourceRef, &doc.Summary, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chunk{}, domain.Document{}, fmt.Errorf("handle %d: %w", handle, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Chunk{}, domain.Document{}, &domain.StorageError{Op: "get chunk by handle", Err: err}
	}
	chunk.Payload, err = unmarshalPayload(payload)
	if err != nil {
		return domain.Chunk{}, domain.Document{}, &domain.StorageError{Op: "get chunk by handle", Err: err}
	}
	doc.Category = domain.Category(category)
	doc.CreatedAt = time.Unix(created, 0).UTC()
	return chunk, doc, nil
}

// GetNeighbors returns up to window chunks on each side of the given chunk
// within the same document, ordered by sequence index. The anchor itself is
// excluded.
func (s *SQLiteStore) GetNeighbors(chunkID string, window int) ([]domain.Chunk, error) {
	if window <= 0 {
		return nil, nil
	}

	var docID string
	var seq int
	err := s.db.QueryRow(`SELECT document_id, seq FROM chunks WHERE id = ?`, chunkID).Scan(&docID, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get neighbors", Err: err}
	}

	rows, err := s.db.Query(`SELECT id, document_id, seq, content, token_count, payload, handle
		FROM chunks
		WHERE document_id = ? AND seq BETWEEN ? AND ? AND id != ?
		ORDER BY seq`, docID, seq-window, seq+window, chunkID)
	if err != nil {
		return nil, &domain.StorageError{Op: "get neighbors", Err: err}
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (s *SQLiteStore) ChunksByDocument(documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.Query(`SELECT id, document_id, seq, content, token_count, payload, handle
		FROM chunks WHERE document_id = ? ORDER BY seq`, documentID)
	if err != nil {
		return nil, &domain.StorageError{Op: "chunks by document", Err: err}
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) ChunksByCollection(collectionID string) ([]domain.Chunk, error) {
	rows, err := s.db.Query(`SELECT c.id, c.document_id, c.seq, c.content, c.token_count, c.payload, c.handle
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.collection_id = ? ORDER BY c.handle`, collectionID)
	if err != nil {
		return nil, &domain.StorageError{Op: "chunks by collection", Err: err}
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) HandlesByDocument(documentID string) ([]int64, error) {
	return s.handles(`SELECT handle FROM chunks WHERE document_id = ? ORDER BY handle`, documentID)
}

func (s *SQLiteStore) HandlesByCollection(collectionID string) ([]int64, error) {
	return s.handles(`SELECT c.handle FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.collection_id = ? ORDER BY c.handle`, collectionID)
}

func (s *SQLiteStore) handles(query string, arg any) ([]int64, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, &domain.StorageError{Op: "list handles", Err: err}
	}
	defer rows.Close()

	var handles []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, &domain.StorageError{Op: "list handles", Err: err}
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

func (s *SQLiteStore) Stats(collectionID string) (domain.CollectionStats, error) {
	var stats domain.CollectionStats
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection_id = ?`, collectionID).
		Scan(&stats.Documents)
	if err != nil {
		return domain.CollectionStats{}, &domain.StorageError{Op: "stats", Err: err}
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.collection_id = ?`, collectionID).Scan(&stats.Chunks)
	if err != nil {
		return domain.CollectionStats{}, &domain.StorageError{Op: "stats", Err: err}
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var category string
	var created int64
	err := row.Scan(&doc.ID, &doc.CollectionID, &doc.Filename, &category,
		&doc.SourceRef, &doc.Summary, &created)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Category = domain.Category(category)
	doc.CreatedAt = time.Unix(created, 0).UTC()
	return doc, nil
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var payload sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Seq, &chunk.Content,
			&chunk.TokenCount, &payload, &chunk.Handle); err != nil {
			return nil, &domain.StorageError{Op: "scan chunk", Err: err}
		}
		var err error
		chunk.Payload, err = unmarshalPayload(payload)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan chunk", Err: err}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func marshalPayload(p domain.Payload) (sql.NullString, error) {
	if p.NormalizedKind() == domain.PayloadText && p.Table == nil && p.Caption == "" && len(p.Keyframes) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalPayload(raw sql.NullString) (domain.Payload, error) {
	if !raw.Valid {
		return domain.Payload{Kind: domain.PayloadText}, nil
	}
	var p domain.Payload
	if err := json.Unmarshal([]byte(raw.String), &p); err != nil {
		return domain.Payload{}, err
	}
	return p, nil
}
