package lynx

import (
	"testing"

	"github.com/corpusloop/platform/core/job"
	"github.com/corpusloop/platform/core/trigger"
	"github.com/corpusloop/platform/core/worker"
	"github.com/corpusloop/platform/internal/events"
)

func TestNew(t *testing.T) {
	bj := job.NewBatchJob(&job.BatchJobOptions{
		Trigger: trigger.NewCronTrigger(&trigger.CronTriggerOptions{
			Spec: "0/1 * * * * ?",
		}),
		Workers: []worker.BatchWorker{&worker.MockBatchWorker{}, &worker.MockBatchWorker{}, &worker.MockEmptyBatchWorker{}},
	})
	sj := job.NewStreamJob(&job.StreamJobOptions{
		Worker: &worker.MockStreamWorker{},
		In:     events.NewInMemory(4),
		Config: &job.StreamJobConfig{
			MaxWork: 5,
		},
	})
	l := New(&Options{Jobs: []job.Job{bj, sj}})
	err := l.start()
	t.Log(err)
	err = l.stop()
	t.Log(err)
}
