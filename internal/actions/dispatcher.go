package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// TaskTypeDispatch is the asynq task type name every action job is queued
// under; the Kind carried in the payload selects the executor.
const TaskTypeDispatch = "action:dispatch"

const (
	maxRetry   = 5
	baseDelay  = 2 * time.Second
	maxDelay   = 2 * time.Minute
)

// JobStore is the subset of *Store the Dispatcher needs.
type JobStore interface {
	Save(ctx context.Context, job domain.ActionJob) error
	FindByIdempotencyKey(ctx context.Context, requestID string, kind domain.ActionKind) (domain.ActionJob, error)
}

// Dispatcher enqueues model-requested actions onto the asynq queue. A
// Dispatcher only enqueues; Worker (in worker.go) is what actually runs
// them, so an orchestrator process can enqueue without also running
// executors in-process.
type Dispatcher struct {
	client *asynq.Client
	jobs   JobStore
}

// NewDispatcher builds a Dispatcher against a Redis connection shared with
// asynq's own queue bookkeeping.
func NewDispatcher(redisOpt asynq.RedisConnOpt, jobs JobStore) *Dispatcher {
	return &Dispatcher{client: asynq.NewClient(redisOpt), jobs: jobs}
}

// Close releases the underlying asynq client's Redis connection.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Enqueue schedules a model-requested action at most once per
// (request_id, kind): a prior job for the same key is returned unchanged
// rather than re-queued, matching the at-most-once guarantee regardless of
// how many times the orchestrator scans the same response for directives.
func (d *Dispatcher) Enqueue(ctx context.Context, projectID, requestID string, kind domain.ActionKind, payload map[string]any) (domain.ActionJob, error) {
	if existing, err := d.jobs.FindByIdempotencyKey(ctx, requestID, kind); err == nil {
		return existing, nil
	}

	job := domain.ActionJob{
		ID:        uuid.NewString(),
		RequestID: requestID,
		ProjectID: projectID,
		Kind:      kind,
		Payload:   payload,
		Status:    domain.ActionPending,
		CreatedAt: time.Now(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return domain.ActionJob{}, apierr.Wrap(apierr.KindInternal, "encode action job", err)
	}

	task := asynq.NewTask(TaskTypeDispatch, body, asynq.MaxRetry(maxRetry), asynq.TaskID(job.IdempotencyKey()))
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			if existing, ferr := d.jobs.FindByIdempotencyKey(ctx, requestID, kind); ferr == nil {
				return existing, nil
			}
			return job, nil
		}
		return domain.ActionJob{}, apierr.Wrap(apierr.KindInternal, "enqueue action job", err)
	}

	if err := d.jobs.Save(ctx, job); err != nil {
		return domain.ActionJob{}, err
	}
	return job, nil
}

// RetryDelay implements asynq's RetryDelayFunc: exponential backoff capped
// at maxDelay, so a flaky CRM webhook or SMTP relay doesn't get hammered.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := baseDelay * time.Duration(1<<uint(n))
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func decodePayload(task *asynq.Task) (domain.ActionJob, error) {
	var job domain.ActionJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return domain.ActionJob{}, fmt.Errorf("actions: decode task payload: %w", err)
	}
	return job, nil
}
