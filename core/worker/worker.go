package worker

import (
	"context"

	"github.com/corpusloop/platform/stream/message"
)

type Worker interface {
	Work()
}

type BatchWorker interface {
	Worker
	Context(ctx context.Context)
	Done() <-chan struct{}
}

// StreamWorker processes a single message pulled off a binding and
// optionally produces follow-up messages. Returning a nil/empty slice with
// a nil error acks the input message with no further output.
type StreamWorker interface {
	Work(ctx context.Context, msg message.Message) ([]message.Message, error)
	Sleep()
}
