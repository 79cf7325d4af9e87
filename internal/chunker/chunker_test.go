package chunker

import (
	"strings"
	"testing"
)

func TestSplitProducesNonEmptyChunks(t *testing.T) {
	s, err := New("cl100k_base", WithChunkSize(20), WithMinChunkSizeChars(5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	chunks := s.Split(text)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatal("expected no empty chunks")
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	s, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if chunks := s.Split("   "); chunks != nil {
		t.Fatalf("expected nil chunks for blank text, got %+v", chunks)
	}
}

func TestCountTokensMonotonic(t *testing.T) {
	s, err := New("cl100k_base")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	short := s.CountTokens("hello")
	long := s.CountTokens("hello there, this is a much longer sentence with many more tokens")
	if long <= short {
		t.Fatalf("expected longer text to have more tokens: short=%d long=%d", short, long)
	}
}
