// Package events is the platform's internal pub/sub seam: the Crawler
// publishes "document changed" notifications that the Embedding Worker
// consumes, and the Answer Orchestrator publishes action requests that the
// Action Dispatcher consumes. It is a thin, typed layer over the teacher's
// stream/binding.Binding abstraction so any of its backends (Kafka, Pulsar,
// or the in-memory bus below) can carry these events.
package events

import (
	"context"
	"sync"

	"github.com/corpusloop/platform/stream/binding"
	"github.com/corpusloop/platform/stream/message"
)

// DocumentChanged signals that a document in a project was written and may
// need re-embedding.
type DocumentChanged struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
	FetchedAt  int64  `json:"fetched_at"`
}

// Bus publishes and consumes typed events over a Binding.
type Bus struct {
	b binding.Binding
}

// NewBus adapts any stream/binding.Binding into a typed event bus.
func NewBus(b binding.Binding) *Bus {
	return &Bus{b: b}
}

// PublishDocumentChanged encodes and sends a DocumentChanged event.
func (bus *Bus) PublishDocumentChanged(ctx context.Context, evt DocumentChanged) error {
	msg := message.NewSimpleMessage().SetPayload(evt)
	if err := msg.Error(); err != nil {
		return err
	}
	return bus.b.Send(ctx, msg)
}

// ReceiveDocumentChanged blocks for the next DocumentChanged event and acks
// it once the caller-supplied handler returns nil.
func (bus *Bus) ReceiveDocumentChanged(ctx context.Context, handle func(DocumentChanged) error) error {
	msg, err := bus.b.Receive(ctx)
	if err != nil {
		return err
	}
	var evt DocumentChanged
	msg.Unmarshal(&evt)
	if err := msg.Error(); err != nil {
		return err
	}
	if err := handle(evt); err != nil {
		return bus.b.Nack(ctx, msg)
	}
	return bus.b.Ack(ctx, msg)
}

// InMemory is a process-local Binding backed by a buffered channel. It is
// the default bus for single-process deployments and tests; Kafka/Pulsar
// bindings from the stream package are used instead in a clustered
// deployment by wiring a different binding.Binding into NewBus.
type InMemory struct {
	mu   sync.Mutex
	ch   chan message.Message
	dir  binding.Direction
}

var _ binding.Binding = (*InMemory)(nil)

// NewInMemory creates a bounded in-memory binding. The bound acts as the
// back-pressure point between producer and consumer described in the
// platform's concurrency model: a full channel blocks the producer.
func NewInMemory(capacity int) *InMemory {
	return &InMemory{
		ch:  make(chan message.Message, capacity),
		dir: binding.SendAndReceive,
	}
}

func (m *InMemory) Send(ctx context.Context, msg message.Message) error {
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *InMemory) Receive(ctx context.Context) (message.Message, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *InMemory) Ack(ctx context.Context, msg message.Message) error  { return nil }
func (m *InMemory) Nack(ctx context.Context, msg message.Message) error {
	// Best-effort redelivery: put the message back for another consumer.
	select {
	case m.ch <- msg:
	default:
	}
	return nil
}
func (m *InMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.ch)
	return nil
}
