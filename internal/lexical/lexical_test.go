package lexical

import (
	"testing"

	"github.com/corpusloop/platform/internal/domain"
)

func TestSearchRanksExactTermMatchHigher(t *testing.T) {
	idx := NewIndex()
	idx.Upsert([]domain.Chunk{
		{ID: "a", DocumentID: "doc1", Text: "the quick brown fox jumps over the lazy dog"},
		{ID: "b", DocumentID: "doc2", Text: "refund policy applies within thirty days of purchase"},
	})

	matches := idx.Search("refund policy", 5)
	if len(matches) == 0 || matches[0].ChunkID != "b" {
		t.Fatalf("expected chunk b to rank first, got %+v", matches)
	}
}

func TestDeleteDocumentRemovesItsChunks(t *testing.T) {
	idx := NewIndex()
	idx.Upsert([]domain.Chunk{
		{ID: "a", DocumentID: "doc1", Text: "shipping takes five business days"},
	})
	idx.DeleteDocument("doc1")

	matches := idx.Search("shipping", 5)
	if len(matches) != 0 {
		t.Fatalf("expected no matches after delete, got %+v", matches)
	}
}

func TestStoreIsolatesProjects(t *testing.T) {
	s := NewStore()
	s.ForProject("proj-a").Upsert([]domain.Chunk{{ID: "a", DocumentID: "d1", Text: "billing question"}})

	if matches := s.ForProject("proj-b").Search("billing", 5); len(matches) != 0 {
		t.Fatalf("expected project isolation, got %+v", matches)
	}
	if matches := s.ForProject("proj-a").Search("billing", 5); len(matches) == 0 {
		t.Fatal("expected a match in proj-a")
	}
}
