package trigger

import (
	"context"
	"github.com/corpusloop/platform/core/worker"
)

type Trigger interface {
	AddWorkers(ctx context.Context, workers ...worker.Worker) (int, error)
}
