package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"recall/internal/adapter/textutil"
	"recall/internal/domain"
)

const (
	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 50
)

// SentenceChunker accumulates sentences until the approximate token count
// would exceed chunkTokens, then closes the chunk. The next chunk re-includes
// the trailing overlapTokens worth of sentences so retrieval keeps
// cross-chunk context.
type SentenceChunker struct {
	chunkTokens   int
	overlapTokens int
}

func NewSentenceChunker(chunkTokens, overlapTokens int) *SentenceChunker {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &SentenceChunker{
		chunkTokens:   chunkTokens,
		overlapTokens: overlapTokens,
	}
}

// Chunk splits text into ordered segments. Empty or whitespace-only input
// yields no segments. A single sentence longer than the chunk budget is
// emitted as its own segment unsplit, never dropped.
func (c *SentenceChunker) Chunk(text string) ([]domain.Segment, error) {
	if !utf8.ValidString(text) {
		return nil, &domain.ChunkingError{Err: fmt.Errorf("input is not valid UTF-8")}
	}

	sentences := textutil.SplitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	counts := make([]int, len(sentences))
	for i, s := range sentences {
		counts[i] = textutil.EstimateTokens(s)
	}

	var segments []domain.Segment
	start := 0
	seq := 0

	for start < len(sentences) {
		end := start
		tokens := 0
		for end < len(sentences) {
			// The first sentence always fits, even when it alone blows
			// the budget.
			if tokens > 0 && tokens+counts[end] > c.chunkTokens {
				break
			}
			tokens += counts[end]
			end++
		}

		segments = append(segments, domain.Segment{
			Text:       strings.Join(sentences[start:end], " "),
			TokenCount: tokens,
			Seq:        seq,
		})
		seq++

		if end == len(sentences) {
			break
		}

		start = end - c.overlapSentences(counts, start, end)
		if start >= end {
			start = end
		}
	}

	return segments, nil
}

// overlapSentences counts how many trailing sentences of the closed chunk to
// re-include to cover overlapTokens, never the whole chunk.
func (c *SentenceChunker) overlapSentences(counts []int, start, end int) int {
	if c.overlapTokens == 0 {
		return 0
	}
	n := 0
	tokens := 0
	for i := end - 1; i > start && tokens < c.overlapTokens; i-- {
		tokens += counts[i]
		n++
	}
	return n
}
