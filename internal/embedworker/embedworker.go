// Package embedworker is the Embedding Worker component. It implements
// worker.StreamWorker over the platform's internal/events bus: each
// DocumentChanged message triggers a load-split-embed-publish cycle for
// one document. It is meant to run inside a core/job.StreamJob, the same
// job/worker/trigger trio the teacher uses for its generic background-work
// framework, generalized here from a message-agnostic broker consumer to
// this platform's document re-embedding pipeline.
package embedworker

import (
	"context"
	"fmt"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/chunker"
	"github.com/corpusloop/platform/internal/chunkstore"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/embedclient"
	"github.com/corpusloop/platform/internal/events"
	"github.com/corpusloop/platform/stream/message"
)

// DocumentLoader is the subset of internal/store.Store this worker needs to
// read a document's content.
type DocumentLoader interface {
	Get(ctx context.Context, projectID, id string) (domain.Document, error)
}

// IndexMarker is the subset of internal/store.Store that records when a
// document's chunks became searchable.
type IndexMarker interface {
	MarkIndexed(ctx context.Context, projectID, id string, at time.Time) error
}

// Embedder is the subset of internal/embedclient.Client this worker needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Publisher is the subset of internal/chunkstore.Coordinator this worker
// needs.
type Publisher interface {
	Publish(ctx context.Context, projectID string, chunks []domain.Chunk) error
}

// Worker turns DocumentChanged events into indexed, searchable chunks.
type Worker struct {
	docs      DocumentLoader
	marker    IndexMarker
	embedder  Embedder
	publisher Publisher
	splitter  *chunker.Splitter
	idleSleep time.Duration
}

// New builds an embedding Worker.
func New(docs DocumentLoader, marker IndexMarker, embedder Embedder, publisher Publisher, splitter *chunker.Splitter) *Worker {
	return &Worker{docs: docs, marker: marker, embedder: embedder, publisher: publisher, splitter: splitter, idleSleep: 2 * time.Second}
}

// Sleep backs off briefly when the input binding has nothing queued,
// matching the StreamJob contract's poll-loop idle behavior.
func (w *Worker) Sleep() {
	time.Sleep(w.idleSleep)
}

// Work processes one DocumentChanged event end to end. It never returns
// follow-up messages: the platform has nothing downstream of indexing in
// this event chain.
func (w *Worker) Work(ctx context.Context, msg message.Message) ([]message.Message, error) {
	var evt events.DocumentChanged
	msg.Unmarshal(&evt)
	if err := msg.Error(); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode document-changed event", err)
	}

	doc, err := w.docs.Get(ctx, evt.ProjectID, evt.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("embedworker: load document %s/%s: %w", evt.ProjectID, evt.DocumentID, err)
	}

	texts := w.splitter.Split(doc.Text)
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedworker: embed document %s: %w", doc.ID, err)
	}

	now := time.Now()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, i),
			DocumentID: doc.ID,
			ProjectID:  doc.ProjectID,
			Ordinal:    i,
			Text:       text,
			Embedding:  vectors[i],
			VisibleAt:  now,
		}
	}

	if err := w.publisher.Publish(ctx, doc.ProjectID, chunks); err != nil {
		return nil, fmt.Errorf("embedworker: publish chunks for document %s: %w", doc.ID, err)
	}
	if err := w.marker.MarkIndexed(ctx, doc.ProjectID, doc.ID, now); err != nil {
		return nil, fmt.Errorf("embedworker: mark document %s indexed: %w", doc.ID, err)
	}
	return nil, nil
}
