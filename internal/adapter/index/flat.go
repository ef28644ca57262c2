package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"recall/internal/domain"
	"recall/internal/port"
)

var keyMeta = []byte("meta")
var bucketEntries = []byte("entries")

type artifactMeta struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// Flat is a brute-force inner-product index over unit-norm vectors, keyed by
// caller-assigned handles. Removals are tombstoned and compacted on Persist.
// Mutations and Persist take the write lock; searches share the read lock.
type Flat struct {
	mu           sync.RWMutex
	db           *bbolt.DB
	collectionID string
	model        string
	dimension    int

	handles []int64
	vectors [][]float32
	slot    map[int64]int
	dead    map[int64]struct{}
}

// openFlat loads the persisted artifact for a collection, or starts empty if
// none exists. An artifact written by a different model or dimension fails
// with domain.ErrModelMismatch.
func openFlat(db *bbolt.DB, collectionID, model string, dimension int) (*Flat, error) {
	f := &Flat{
		db:           db,
		collectionID: collectionID,
		model:        model,
		dimension:    dimension,
		slot:         make(map[int64]int),
		dead:         make(map[int64]struct{}),
	}

	err := db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(collectionID))
		if root == nil {
			return nil
		}

		rawMeta := root.Get(keyMeta)
		if rawMeta == nil {
			return fmt.Errorf("index artifact for %s has no meta record", collectionID)
		}
		var meta artifactMeta
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return fmt.Errorf("failed to decode index meta: %w", err)
		}
		if meta.Model != model || meta.Dimension != dimension {
			return fmt.Errorf("artifact built with model %s/d%d, configured %s/d%d: %w",
				meta.Model, meta.Dimension, model, dimension, domain.ErrModelMismatch)
		}

		entries := root.Bucket(bucketEntries)
		if entries == nil {
			return nil
		}
		// Keys are big-endian handles, so iteration order is ascending.
		return entries.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("malformed entry key of length %d", len(k))
			}
			handle := int64(binary.BigEndian.Uint64(k))
			vec, err := decodeVector(v, dimension)
			if err != nil {
				return err
			}
			f.slot[handle] = len(f.handles)
			f.handles = append(f.handles, handle)
			f.vectors = append(f.vectors, vec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Add inserts one vector under a fresh handle. Handles are allocator-assigned
// and never reused, so a duplicate is a programming error.
func (f *Flat) Add(vector []float32, handle int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(vector) != f.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", f.dimension, len(vector))
	}
	if _, exists := f.slot[handle]; exists {
		return fmt.Errorf("handle %d: %w", handle, domain.ErrDuplicateHandle)
	}

	f.slot[handle] = len(f.handles)
	f.handles = append(f.handles, handle)
	f.vectors = append(f.vectors, vector)
	return nil
}

// Search returns up to k live hits by descending inner-product score, ties
// broken by ascending handle so results are deterministic.
func (f *Flat) Search(query []float32, k int) ([]port.SearchHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]port.SearchHit, 0, len(f.handles))
	for i, handle := range f.handles {
		if _, removed := f.dead[handle]; removed {
			continue
		}
		hits = append(hits, port.SearchHit{
			Handle: handle,
			Score:  dot(query, f.vectors[i]),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Handle < hits[j].Handle
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove tombstones entries. A removed handle never reappears in Search;
// physical compaction happens on the next Persist.
func (f *Flat) Remove(handles []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, h := range handles {
		if _, exists := f.slot[h]; exists {
			f.dead[h] = struct{}{}
		}
	}
	return nil
}

// Persist rewrites the collection's artifact with live entries only and
// compacts tombstones out of memory.
func (f *Flat) Persist() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.db.Update(func(tx *bbolt.Tx) error {
		name := []byte(f.collectionID)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		root, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}

		meta, err := json.Marshal(artifactMeta{Model: f.model, Dimension: f.dimension})
		if err != nil {
			return err
		}
		if err := root.Put(keyMeta, meta); err != nil {
			return err
		}

		entries, err := root.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}
		for i, handle := range f.handles {
			if _, removed := f.dead[handle]; removed {
				continue
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(handle))
			if err := entries.Put(key[:], encodeVector(f.vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	f.compactLocked()
	return nil
}

// Len reports live vectors (tombstones excluded).
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.slot) - len(f.dead)
}

func (f *Flat) compactLocked() {
	if len(f.dead) == 0 {
		return
	}
	handles := make([]int64, 0, len(f.handles)-len(f.dead))
	vectors := make([][]float32, 0, cap(handles))
	slot := make(map[int64]int, cap(handles))
	for i, h := range f.handles {
		if _, removed := f.dead[h]; removed {
			continue
		}
		slot[h] = len(handles)
		handles = append(handles, h)
		vectors = append(vectors, f.vectors[i])
	}
	f.handles = handles
	f.vectors = vectors
	f.slot = slot
	f.dead = make(map[int64]struct{})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != 4*dimension {
		return nil, fmt.Errorf("malformed vector blob: %d bytes for dimension %d", len(buf), dimension)
	}
	v := make([]float32, dimension)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
