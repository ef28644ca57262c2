package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkBasic(t *testing.T) {
	c := NewSentenceChunker(500, 50)

	segments, err := c.Chunk("First sentence here. Second sentence here. Third sentence here.")
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment for short text, got %d", len(segments))
	}
	if segments[0].Seq != 0 {
		t.Errorf("expected Seq=0, got %d", segments[0].Seq)
	}
	if segments[0].TokenCount <= 0 {
		t.Errorf("expected positive token count, got %d", segments[0].TokenCount)
	}
	if !strings.Contains(segments[0].Text, "Second sentence") {
		t.Errorf("segment lost content: %q", segments[0].Text)
	}
}

func TestChunkEmpty(t *testing.T) {
	c := NewSentenceChunker(500, 50)

	for _, input := range []string{"", "   ", "\n\t\n"} {
		segments, err := c.Chunk(input)
		if err != nil {
			t.Fatal(err)
		}
		if len(segments) != 0 {
			t.Errorf("expected no segments for %q, got %d", input, len(segments))
		}
	}
}

func TestChunkInvalidUTF8(t *testing.T) {
	c := NewSentenceChunker(500, 50)

	if _, err := c.Chunk("valid prefix \xff\xfe invalid"); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestChunkSplitting(t *testing.T) {
	// Each sentence is 3 words, roughly 3 estimated tokens. A 5-token
	// budget fits exactly one per chunk.
	c := NewSentenceChunker(5, 0)

	segments, err := c.Chunk("one two three. four five six. seven eight nine.")
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.Seq != i {
			t.Errorf("segment %d has Seq=%d", i, seg.Seq)
		}
	}
}

func TestChunkOverlap(t *testing.T) {
	// 3-token sentences, 6-token chunks, 3-token overlap: each chunk
	// re-includes the previous chunk's last sentence.
	c := NewSentenceChunker(6, 3)

	segments, err := c.Chunk("one two three. four five six. seven eight nine. ten eleven twelve.")
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if !strings.Contains(segments[1].Text, "four five six") {
		t.Errorf("expected overlap sentence in segment 1: %q", segments[1].Text)
	}
	if !strings.Contains(segments[1].Text, "seven eight nine") {
		t.Errorf("expected new sentence in segment 1: %q", segments[1].Text)
	}
}

func TestChunkOversizedSentence(t *testing.T) {
	c := NewSentenceChunker(5, 0)

	long := strings.Repeat("word ", 100) + "end."
	segments, err := c.Chunk(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected oversized sentence emitted as one segment, got %d", len(segments))
	}
	if segments[0].TokenCount <= 5 {
		t.Errorf("expected token count over budget, got %d", segments[0].TokenCount)
	}
}

func TestChunkCoverage(t *testing.T) {
	// A long document with uniquely marked sentences: every sentence must
	// land in at least one segment and seq must stay monotonic.
	var b strings.Builder
	const n = 1000
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "marker%04d alpha beta gamma delta epsilon zeta eta theta iota. ", i)
	}

	c := NewSentenceChunker(500, 50)
	segments, err := c.Chunk(b.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}

	var all strings.Builder
	for i, seg := range segments {
		if seg.Seq != i {
			t.Errorf("segment %d has Seq=%d", i, seg.Seq)
		}
		all.WriteString(seg.Text)
		all.WriteString(" ")
	}
	joined := all.String()
	for i := 0; i < n; i++ {
		marker := fmt.Sprintf("marker%04d", i)
		if !strings.Contains(joined, marker) {
			t.Fatalf("sentence %s missing from all segments", marker)
		}
	}
}

func TestChunkOverlapNeverStalls(t *testing.T) {
	// Overlap budget larger than the chunk budget must still advance.
	c := NewSentenceChunker(5, 100)

	segments, err := c.Chunk("one two three. four five six. seven eight nine.")
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) == 0 || len(segments) > 10 {
		t.Fatalf("unexpected segment count %d", len(segments))
	}
}
