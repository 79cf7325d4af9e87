package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/corpusloop/platform/internal/cache"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/lexical"
	"github.com/corpusloop/platform/internal/reranker"
	"github.com/corpusloop/platform/internal/vectorindex"
)

type fakeEmbedder struct{ vector []float32 }

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

type fakeVectorSearcher struct {
	matches []vectorindex.Match
	err     error
}

func (f fakeVectorSearcher) Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error) {
	return f.matches, f.err
}

type fakeLexicalSearcher struct{ matches []lexical.Match }

func (f fakeLexicalSearcher) Search(projectID, query string, topK int) []lexical.Match {
	return f.matches
}

type fakeDocuments struct{ docs map[string]domain.Document }

func (f fakeDocuments) GetMeta(ctx context.Context, projectID, documentID string) (domain.Document, error) {
	d, ok := f.docs[documentID]
	if !ok {
		return domain.Document{}, context.DeadlineExceeded
	}
	return d, nil
}

type fakeQAPairs struct{ pairs []domain.QAPair }

func (f fakeQAPairs) ListQAPairs(ctx context.Context, projectID string) ([]domain.QAPair, error) {
	return f.pairs, nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, ns cache.Namespace, projectID, key string) ([]byte, error) {
	return nil, cache.ErrMiss
}
func (noopCache) Set(ctx context.Context, ns cache.Namespace, projectID, key string, value []byte, ttl time.Duration) error {
	return nil
}

func TestRetrieveShortCircuitsOnCuratedQAPair(t *testing.T) {
	r := New(
		fakeEmbedder{},
		fakeVectorSearcher{},
		fakeLexicalSearcher{},
		fakeDocuments{},
		fakeQAPairs{pairs: []domain.QAPair{{Question: "how do refunds work", Answer: "Refunds take five days."}}},
		noopCache{},
	)

	result, err := r.Retrieve(context.Background(), "proj1", "how do refunds work")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.QAAnswer != "Refunds take five days." {
		t.Fatalf("QAAnswer = %q, want the curated answer", result.QAAnswer)
	}
	if len(result.Matches) != 0 {
		t.Fatal("expected no retrieval matches when a QA pair short-circuits")
	}
}

func TestRetrieveFusesDenseAndLexicalAndDedupes(t *testing.T) {
	dense := []vectorindex.Match{
		{ChunkID: "a", DocumentID: "doc1", Text: "shared passage"},
		{ChunkID: "b", DocumentID: "doc1", Text: "dense only passage"},
	}
	lex := []lexical.Match{
		{ChunkID: "c", DocumentID: "doc2", Text: "shared passage"}, // same text, different chunk ID: dedup by content hash
		{ChunkID: "d", DocumentID: "doc2", Text: "lexical only passage"},
	}

	r := New(
		fakeEmbedder{vector: []float32{0.1, 0.2}},
		fakeVectorSearcher{matches: dense},
		fakeLexicalSearcher{matches: lex},
		fakeDocuments{docs: map[string]domain.Document{
			"doc1": {Title: "Doc One", SourceURL: "https://example.com/1"},
			"doc2": {Title: "Doc Two", SourceURL: "https://example.com/2"},
		}},
		fakeQAPairs{},
		noopCache{},
	)

	result, err := r.Retrieve(context.Background(), "proj1", "some question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.QAAnswer != "" {
		t.Fatal("did not expect a QA short-circuit")
	}
	if len(result.Matches) != 3 {
		t.Fatalf("got %d matches, want 3 (deduped from 4 raw hits)", len(result.Matches))
	}
	for _, m := range result.Matches {
		if m.Title == "" || m.SourceURL == "" {
			t.Fatalf("match %+v missing citation metadata", m)
		}
	}
}

func TestRetrieveFlagsDegradedWhenVectorSearchFails(t *testing.T) {
	r := New(
		fakeEmbedder{},
		fakeVectorSearcher{err: context.DeadlineExceeded},
		fakeLexicalSearcher{matches: []lexical.Match{{ChunkID: "x", DocumentID: "doc1", Text: "fallback passage"}}},
		fakeDocuments{docs: map[string]domain.Document{"doc1": {Title: "Doc"}}},
		fakeQAPairs{},
		noopCache{},
	)

	result, err := r.Retrieve(context.Background(), "proj1", "question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected Degraded=true when the vector index is unavailable")
	}
	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want the lexical-only fallback match", len(result.Matches))
	}
}

type fakeReranker struct {
	order []string
	err   error
}

func (f fakeReranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func TestRetrieveAppliesRerankerOrder(t *testing.T) {
	dense := []vectorindex.Match{
		{ChunkID: "a", DocumentID: "doc1", Text: "passage a"},
		{ChunkID: "b", DocumentID: "doc1", Text: "passage b"},
	}
	r := New(
		fakeEmbedder{vector: []float32{0.1}},
		fakeVectorSearcher{matches: dense},
		fakeLexicalSearcher{},
		fakeDocuments{docs: map[string]domain.Document{"doc1": {Title: "Doc"}}},
		fakeQAPairs{},
		noopCache{},
		WithReranker(fakeReranker{order: []string{"b", "a"}}),
	)

	result, err := r.Retrieve(context.Background(), "proj1", "question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Matches) != 2 || result.Matches[0].ChunkID != "b" || result.Matches[1].ChunkID != "a" {
		t.Fatalf("expected reranker order [b a], got %+v", result.Matches)
	}
}

func TestRetrieveFallsBackToRRFOrderWhenRerankerFails(t *testing.T) {
	dense := []vectorindex.Match{
		{ChunkID: "a", DocumentID: "doc1", Text: "passage a"},
		{ChunkID: "b", DocumentID: "doc1", Text: "passage b"},
	}
	r := New(
		fakeEmbedder{vector: []float32{0.1}},
		fakeVectorSearcher{matches: dense},
		fakeLexicalSearcher{},
		fakeDocuments{docs: map[string]domain.Document{"doc1": {Title: "Doc"}}},
		fakeQAPairs{},
		noopCache{},
		WithReranker(fakeReranker{err: context.DeadlineExceeded}),
	)

	result, err := r.Retrieve(context.Background(), "proj1", "question")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Matches) != 2 || result.Matches[0].ChunkID != "a" {
		t.Fatalf("expected RRF order preserved on reranker failure, got %+v", result.Matches)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	a := tokenSet("how do refunds work")
	b := tokenSet("how does refund work")
	score := jaccard(a, b)
	if score <= 0 || score >= 1 {
		t.Fatalf("jaccard() = %v, want a partial overlap between 0 and 1", score)
	}
	if jaccard(a, a) != 1 {
		t.Fatalf("jaccard() of identical sets = %v, want 1", jaccard(a, a))
	}
}
