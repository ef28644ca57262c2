package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"recall/internal/port"
)

// Manager owns one index instance per collection, all backed by a single
// bbolt file. Instances are created lazily, loaded from their persisted
// artifact, and shared across callers.
type Manager struct {
	mu        sync.Mutex
	db        *bbolt.DB
	model     string
	dimension int
	open      map[string]*Flat
}

// NewManager opens (creating if needed) the vector artifact database. The
// model identifier and dimension version every artifact written through this
// manager.
func NewManager(path, model string, dimension int) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}
	return &Manager{
		db:        db,
		model:     model,
		dimension: dimension,
		open:      make(map[string]*Flat),
	}, nil
}

// Index returns the collection's index, loading its artifact on first use.
func (m *Manager) Index(collectionID string) (port.VectorIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.open[collectionID]; ok {
		return idx, nil
	}
	idx, err := openFlat(m.db, collectionID, m.model, m.dimension)
	if err != nil {
		return nil, err
	}
	m.open[collectionID] = idx
	return idx, nil
}

// Drop discards the in-memory index and deletes its persisted artifact.
func (m *Manager) Drop(collectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.open, collectionID)
	return m.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(collectionID)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(collectionID))
	})
}

func (m *Manager) Close() error {
	return m.db.Close()
}
