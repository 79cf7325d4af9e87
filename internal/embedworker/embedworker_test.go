package embedworker

import (
	"context"
	"testing"
	"time"

	"github.com/corpusloop/platform/internal/chunker"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/events"
	"github.com/corpusloop/platform/stream/message"
)

type fakeDocs struct {
	doc domain.Document
}

func (f *fakeDocs) Get(ctx context.Context, projectID, id string) (domain.Document, error) {
	return f.doc, nil
}

func (f *fakeDocs) MarkIndexed(ctx context.Context, projectID, id string, at time.Time) error {
	return nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakePublisher struct {
	projectID string
	chunks    []domain.Chunk
}

func (f *fakePublisher) Publish(ctx context.Context, projectID string, chunks []domain.Chunk) error {
	f.projectID = projectID
	f.chunks = chunks
	return nil
}

func TestWorkEmbedsAndPublishesChunks(t *testing.T) {
	splitter, err := chunker.New("cl100k_base", chunker.WithChunkSize(30))
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	docs := &fakeDocs{doc: domain.Document{
		ID:        "doc1",
		ProjectID: "proj-a",
		Text:      "Refunds are processed within thirty days. Shipping takes five business days. Contact support for help.",
	}}
	embedder := &fakeEmbedder{}
	publisher := &fakePublisher{}
	w := New(docs, docs, embedder, publisher, splitter)

	msg := message.NewSimpleMessage().SetPayload(events.DocumentChanged{ProjectID: "proj-a", DocumentID: "doc1"})
	out, err := w.Work(context.Background(), msg)
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no follow-up messages, got %d", len(out))
	}
	if publisher.projectID != "proj-a" {
		t.Fatalf("expected publish for proj-a, got %q", publisher.projectID)
	}
	if len(publisher.chunks) == 0 {
		t.Fatal("expected at least one chunk published")
	}
	if embedder.calls != 1 {
		t.Fatalf("expected exactly one embed call, got %d", embedder.calls)
	}
}

func TestWorkSkipsEmptyDocument(t *testing.T) {
	splitter, err := chunker.New("cl100k_base")
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	docs := &fakeDocs{doc: domain.Document{ID: "doc1", ProjectID: "proj-a", Text: "   "}}
	publisher := &fakePublisher{}
	w := New(docs, docs, &fakeEmbedder{}, publisher, splitter)

	msg := message.NewSimpleMessage().SetPayload(events.DocumentChanged{ProjectID: "proj-a", DocumentID: "doc1"})
	if _, err := w.Work(context.Background(), msg); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if publisher.chunks != nil {
		t.Fatal("expected no chunks published for blank document")
	}
}
