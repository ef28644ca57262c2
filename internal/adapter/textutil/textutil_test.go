package textutil

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "basic",
			input: "First sentence. Second one! Third?",
			want:  []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name:  "trailing remainder kept",
			input: "Complete sentence. trailing fragment",
			want:  []string{"Complete sentence.", "trailing fragment"},
		},
		{
			name:  "no terminator",
			input: "just some words",
			want:  []string{"just some words"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "   \n\t  ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWords(t *testing.T) {
	got := Words("hello, world! foo_bar baz42")
	want := []string{"hello", "world", "foo_bar", "baz42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %v, want %v", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", got)
	}
	// 10 words at 1.3 tokens each.
	if got := EstimateTokens("one two three four five six seven eight nine ten"); got != 13 {
		t.Errorf("expected 13 tokens, got %d", got)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("The quick brown fox is on a hill")
	want := []string{"quick", "brown", "fox", "hill"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestTokens_DropsSingleChars(t *testing.T) {
	got := Tokens("x marks z spot")
	want := []string{"marks", "spot"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}
