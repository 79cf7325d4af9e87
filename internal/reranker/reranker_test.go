package reranker

import (
	"strings"
	"testing"
)

func TestParseScoresPlainArray(t *testing.T) {
	scores, err := parseScores("[8.5, 1.0, 9.5]", 3)
	if err != nil {
		t.Fatalf("parseScores: %v", err)
	}
	want := []float64{8.5, 1.0, 9.5}
	for i, s := range want {
		if scores[i] != s {
			t.Fatalf("scores[%d] = %v, want %v", i, scores[i], s)
		}
	}
}

func TestParseScoresStripsMarkdownFence(t *testing.T) {
	scores, err := parseScores("```json\n[1, 2, 3]\n```", 3)
	if err != nil {
		t.Fatalf("parseScores: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("got %d scores, want 3", len(scores))
	}
}

func TestParseScoresRejectsLengthMismatch(t *testing.T) {
	if _, err := parseScores("[1, 2]", 3); err == nil {
		t.Fatal("expected an error when the score count doesn't match the candidate count")
	}
}

func TestParseScoresRejectsMalformedJSON(t *testing.T) {
	if _, err := parseScores("not json", 1); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestBuildScoringPromptNumbersPassagesFromOne(t *testing.T) {
	prompt := buildScoringPrompt("refund policy", []Candidate{{ChunkID: "a", Text: "five days"}, {ChunkID: "b", Text: "seven days"}})
	if want := "1. five days"; !strings.Contains(prompt, want) {
		t.Fatalf("prompt missing %q: %s", want, prompt)
	}
	if want := "2. seven days"; !strings.Contains(prompt, want) {
		t.Fatalf("prompt missing %q: %s", want, prompt)
	}
}
