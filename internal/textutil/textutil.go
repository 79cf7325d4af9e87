// Package textutil holds small text-shaping helpers shared by the Prompt
// Builder's context budgeting. The sentence-boundary search is grounded on
// internal/chunker's lastIndexAny heuristic (break at the last '.', '?',
// '!', or newline), generalized here for truncating a string to a byte
// budget from the end rather than splitting a stream into equal chunks.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// ellipsis is appended after a sentence-boundary truncation so the
// truncation is visible to the model and to a human reading logs.
const ellipsis = "…" // U+2026 HORIZONTAL ELLIPSIS

// TruncateToSentence shortens text to at most maxBytes, preferring to cut
// at the last sentence boundary ('.', '?', '!', or newline) found within
// the budget so excerpts don't end mid-word. It never splits a multi-byte
// rune. If no sentence boundary exists in the budget, it falls back to a
// hard rune-boundary cut.
func TruncateToSentence(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}

	window := text[:maxBytes]
	if cut := lastIndexAny(window, ".", "?", "!", "\n"); cut != -1 {
		return strings.TrimSpace(window[:cut+1])
	}

	// No sentence boundary in range: back off to the nearest rune
	// boundary so the ellipsis never splits a UTF-8 sequence.
	end := maxBytes
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return strings.TrimSpace(text[:end]) + ellipsis
}

func lastIndexAny(s string, seps ...string) int {
	best := -1
	for _, sep := range seps {
		if i := strings.LastIndex(s, sep); i > best {
			best = i
		}
	}
	return best
}
