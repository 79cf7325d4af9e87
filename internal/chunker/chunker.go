// Package chunker splits document text into token-bounded chunks for
// embedding and lexical indexing. It is grounded on the teacher's
// tiktoken-backed TokenSplitter: same chunk-size default and the same
// sentence-boundary heuristic (break at the last '.', '?', '!', or
// newline before the chunk boundary when it's far enough in), adapted to
// return plain chunk strings instead of document.Document transforms.
// Consecutive chunks do not overlap: each token lands in exactly one chunk.
package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Splitter turns text into token-bounded chunks using a tiktoken encoding.
type Splitter struct {
	encoding              *tiktoken.Tiktoken
	chunkSize             int
	minChunkSizeChars     int
	minChunkLengthToEmbed int
	maxNumChunks          int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize overrides the default 800-token chunk size.
func WithChunkSize(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMinChunkSizeChars overrides the minimum offset before a sentence
// boundary is honored.
func WithMinChunkSizeChars(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.minChunkSizeChars = n
		}
	}
}

// New builds a Splitter for the given tiktoken encoding name (e.g.
// "cl100k_base"), defaulting to the teacher's 800-token chunk size with a
// 350-character sentence-boundary threshold.
func New(encodingName string, opts ...Option) (*Splitter, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	s := &Splitter{
		encoding:              encoding,
		chunkSize:             800,
		minChunkSizeChars:     350,
		minChunkLengthToEmbed: 5,
		maxNumChunks:          10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CountTokens returns the token count tiktoken would assign to text, used
// by the Prompt Builder to enforce context budgets.
func (s *Splitter) CountTokens(text string) int {
	return len(s.encoding.Encode(text, nil, nil))
}

// Split divides text into chunks bounded by chunkSize tokens, preferring to
// break at the end of a sentence when the break falls far enough into the
// chunk to avoid producing slivers.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := s.encoding.Encode(text, nil, nil)
	chunks := make([]string, 0, len(tokens)/s.chunkSize+1)
	numChunks := 0

	for len(tokens) > 0 && numChunks < s.maxNumChunks {
		end := min(s.chunkSize, len(tokens))
		chunk := tokens[:end]
		chunkText := s.encoding.Decode(chunk)

		if strings.TrimSpace(chunkText) == "" {
			tokens = tokens[len(chunk):]
			continue
		}

		lastPunct := lastIndexAny(chunkText, ".", "?", "!", "\n")
		if lastPunct != -1 && lastPunct > s.minChunkSizeChars {
			chunkText = chunkText[:lastPunct+1]
		}

		trimmed := strings.TrimSpace(strings.ReplaceAll(chunkText, "\n", " "))
		if len(trimmed) > s.minChunkLengthToEmbed {
			chunks = append(chunks, trimmed)
		}

		processed := s.encoding.Encode(chunkText, nil, nil)
		tokens = tokens[len(processed):]
		numChunks++
	}

	if len(tokens) > 0 {
		remaining := strings.TrimSpace(strings.ReplaceAll(s.encoding.Decode(tokens), "\n", " "))
		if len(remaining) > s.minChunkLengthToEmbed {
			chunks = append(chunks, remaining)
		}
	}

	return chunks
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
