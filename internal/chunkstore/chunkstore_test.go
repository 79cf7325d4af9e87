package chunkstore

import (
	"context"
	"errors"
	"testing"

	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/lexical"
	"github.com/corpusloop/platform/internal/vectorindex"
)

type fakeVectorWriter struct {
	ensureErr error
	upsertErr error
	upserted  []domain.Chunk
	deleted   []string
}

func (f *fakeVectorWriter) EnsureCollection(ctx context.Context, projectID string) error {
	return f.ensureErr
}

func (f *fakeVectorWriter) Upsert(ctx context.Context, projectID string, chunks []domain.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

// Search returns every chunk ever upserted, regardless of project —
// standing in for a backend with no visibility gate of its own, so these
// tests exercise the Coordinator's own gating rather than Qdrant's.
func (f *fakeVectorWriter) Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error) {
	out := make([]vectorindex.Match, 0, len(f.upserted))
	for _, c := range f.upserted {
		out = append(out, vectorindex.Match{ChunkID: c.ID, DocumentID: c.DocumentID, Text: c.Text, Score: 1})
	}
	return out, nil
}

func (f *fakeVectorWriter) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func TestPublishSkipsLexicalOnVectorFailure(t *testing.T) {
	fv := &fakeVectorWriter{upsertErr: errors.New("boom")}
	lex := lexical.NewStore()
	c := New(fv, lex)

	err := c.Publish(context.Background(), "proj", []domain.Chunk{{ID: "a", DocumentID: "d", Text: "hello"}})
	if err == nil {
		t.Fatal("expected error from failed vector upsert")
	}
	if matches := lex.ForProject("proj").Search("hello", 5); len(matches) != 0 {
		t.Fatal("expected lexical index to stay empty when vector write fails")
	}
}

func TestPublishThenRetract(t *testing.T) {
	fv := &fakeVectorWriter{}
	lex := lexical.NewStore()
	c := New(fv, lex)
	ctx := context.Background()

	if err := c.Publish(ctx, "proj", []domain.Chunk{{ID: "a", DocumentID: "d", Text: "refund window"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if matches := lex.ForProject("proj").Search("refund", 5); len(matches) != 1 {
		t.Fatalf("expected 1 lexical match, got %d", len(matches))
	}

	if err := c.Retract(ctx, "proj", "d"); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if matches := lex.ForProject("proj").Search("refund", 5); len(matches) != 0 {
		t.Fatal("expected lexical index cleared after retract")
	}
	if len(fv.deleted) != 1 || fv.deleted[0] != "d" {
		t.Fatalf("expected vector DeleteDocument called with doc id, got %+v", fv.deleted)
	}
}

// TestSearchGatesOnVisibility proves the no-half-visibility invariant at
// the Coordinator's read path: a chunk that is queryable in the raw vector
// backend (fakeVectorWriter.Search returns everything ever upserted, with
// no gate of its own) must still not surface through Coordinator.Search or
// SearchLexical until Publish has flipped it visible.
func TestSearchGatesOnVisibility(t *testing.T) {
	fv := &fakeVectorWriter{upserted: []domain.Chunk{{ID: "ghost", DocumentID: "d", Text: "refund window"}}}
	lex := lexical.NewStore()
	c := New(fv, lex)
	ctx := context.Background()

	// The vector backend already "has" the chunk (simulating Qdrant's
	// Wait:true making a write instantly queryable) but Publish was never
	// called for it, so it must never come back from the Coordinator.
	vecMatches, err := c.Search(ctx, "proj", nil, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(vecMatches) != 0 {
		t.Fatalf("expected unpublished chunk to be gated out of vector search, got %+v", vecMatches)
	}

	if err := c.Publish(ctx, "proj", []domain.Chunk{{ID: "ghost", DocumentID: "d", Text: "refund window"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	vecMatches, err = c.Search(ctx, "proj", nil, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(vecMatches) != 1 {
		t.Fatalf("expected published chunk to be visible in vector search, got %+v", vecMatches)
	}
	lexMatches := c.SearchLexical("proj", "refund", 5)
	if len(lexMatches) != 1 {
		t.Fatalf("expected published chunk to be visible in lexical search, got %+v", lexMatches)
	}
}
