package usecase

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"recall/internal/adapter/cache"
	"recall/internal/domain"
)

// QueryOptions parameterizes one retrieval call.
type QueryOptions struct {
	// TopK bounds the number of main matches. Context neighbors ride along
	// and are not counted against it. Default 10.
	TopK int

	// ContextWindow is the number of adjacent chunks included on each side
	// of a main match. 0 disables expansion.
	ContextWindow int

	// Category, when set, is a hard predicate: chunks of other categories
	// are dropped before truncation.
	Category domain.Category

	// AutoCategory detects the query's category from the embedding space
	// and biases matching chunks instead of filtering. Ignored when
	// Category is set.
	AutoCategory bool
}

type candidate struct {
	chunk domain.Chunk
	doc   domain.Document
	// score is the raw similarity and is what the result reports. rank is
	// the ordering key; category biasing adjusts rank only, so a biased
	// result still carries its true similarity.
	score float64
	rank  float64
}

// Query runs the four retrieval stages: query embedding, over-fetched coarse
// search, category filtering or biasing, and context-window expansion. The
// result is deterministic for a fixed index state: scores tie-break on
// ascending handle, and expansion emits each match's window in document
// order.
func (e *Engine) Query(collectionID, text string, opts QueryOptions) ([]domain.RetrievedChunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Category != "" {
		opts.AutoCategory = false
	}

	if _, err := e.store.GetCollection(collectionID); err != nil {
		return nil, err
	}

	var key string
	var gen uint64
	if e.cache != nil {
		key = cache.Key(collectionID, text, opts.TopK, opts.ContextWindow,
			string(opts.Category), opts.AutoCategory)
		if results, hit := e.cache.Get(collectionID, key); hit {
			return results, nil
		}
		// Captured before the search so an ingest landing mid-query
		// invalidates whatever we cache below.
		gen = e.cache.Generation(collectionID)
	}

	idx, err := e.indexes.Index(collectionID)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		// An empty collection is an empty result, not an error.
		return []domain.RetrievedChunk{}, nil
	}

	queryVectors, err := e.embedder.Embed([]string{text})
	if err != nil {
		return nil, err
	}
	queryVector := queryVectors[0]

	hits, err := idx.Search(queryVector, opts.TopK*e.overfetch)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		chunk, doc, err := e.store.GetChunkByHandle(hit.Handle)
		if errors.Is(err, domain.ErrNotFound) {
			// Stale index entry; treat the orphan as absent.
			consistency := &domain.IndexConsistencyError{Handle: hit.Handle, Missing: "metadata"}
			e.logger.Warn("skipping orphaned index entry",
				zap.String("collection", collectionID), zap.Error(consistency))
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{chunk: chunk, doc: doc, score: hit.Score, rank: hit.Score})
	}

	if opts.Category != "" {
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.doc.Category == opts.Category {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	} else if opts.AutoCategory {
		detected, err := e.DetectCategory(queryVector)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			if candidates[i].doc.Category == detected {
				candidates[i].rank += e.categoryBias
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].rank != candidates[j].rank {
				return candidates[i].rank > candidates[j].rank
			}
			return candidates[i].chunk.Handle < candidates[j].chunk.Handle
		})
	}

	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}

	results := e.expand(candidates, opts.ContextWindow)

	if e.cache != nil {
		e.cache.Put(collectionID, key, gen, results)
	}
	return results, nil
}

// expand attaches up to window adjacent chunks around each main match.
// Neighbors carry no independent score and are deduped against main matches
// and against neighbors already emitted for a higher-ranked match.
func (e *Engine) expand(mains []candidate, window int) []domain.RetrievedChunk {
	results := make([]domain.RetrievedChunk, 0, len(mains)*(2*window+1))

	seen := make(map[string]struct{}, len(mains))
	for _, m := range mains {
		seen[m.chunk.ID] = struct{}{}
	}

	for _, m := range mains {
		if window <= 0 {
			results = append(results, mainRecord(m))
			continue
		}

		neighbors, err := e.store.GetNeighbors(m.chunk.ID, window)
		if err != nil {
			e.logger.Warn("context expansion failed",
				zap.String("chunk", m.chunk.ID), zap.Error(err))
			neighbors = nil
		}

		var before, after []domain.Chunk
		for _, n := range neighbors {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			if n.Seq < m.chunk.Seq {
				before = append(before, n)
			} else {
				after = append(after, n)
			}
		}

		for _, n := range before {
			results = append(results, neighborRecord(m, n))
			seen[n.ID] = struct{}{}
		}
		results = append(results, mainRecord(m))
		for _, n := range after {
			results = append(results, neighborRecord(m, n))
			seen[n.ID] = struct{}{}
		}
	}

	return results
}

func mainRecord(m candidate) domain.RetrievedChunk {
	score := m.score
	return domain.RetrievedChunk{
		ChunkID:     m.chunk.ID,
		DocumentID:  m.doc.ID,
		Filename:    m.doc.Filename,
		Category:    m.doc.Category,
		Content:     m.chunk.Content,
		Seq:         m.chunk.Seq,
		Score:       &score,
		IsMainMatch: true,
	}
}

func neighborRecord(anchor candidate, n domain.Chunk) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ChunkID:     n.ID,
		DocumentID:  anchor.doc.ID,
		Filename:    anchor.doc.Filename,
		Category:    anchor.doc.Category,
		Content:     n.Content,
		Seq:         n.Seq,
		IsMainMatch: false,
		Offset:      n.Seq - anchor.chunk.Seq,
	}
}
