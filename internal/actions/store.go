// Package actions is the Action Dispatcher component: at-most-once
// execution of model-requested side effects (CRM ticket creation, email
// dispatch), queued on github.com/hibiken/asynq — a direct fit for
// "asynchronous job with an idempotency key, exponential backoff, capped
// retries, terminal failure recorded" since asynq's TaskID deduplicates
// enqueues and its RetryDelayFunc/MaxRetry options cover the backoff
// policy natively. No call site for asynq exists elsewhere in the
// retrieved corpus (only a go.mod listing in the WeKnora manifest), so
// this wiring follows asynq's own documented Client/Server/ServeMux shape
// directly — see DESIGN.md.
package actions

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// ErrJobNotFound is returned when an action job lookup misses.
var ErrJobNotFound = errors.New("actions: job not found")

// Store persists ActionJob records, grounded on the same
// ReplaceOne-with-upsert shape as internal/project.Registry and
// internal/crawler.JobStore.
type Store struct {
	jobs *mongo.Collection
}

// NewStore builds a Store over the action_jobs collection.
func NewStore(jobs *mongo.Collection) *Store {
	return &Store{jobs: jobs}
}

// Save upserts an action job's current state.
func (s *Store) Save(ctx context.Context, job domain.ActionJob) error {
	_, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save action job", err)
	}
	return nil
}

// Get loads an action job by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.ActionJob, error) {
	var job domain.ActionJob
	err := s.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ActionJob{}, ErrJobNotFound
		}
		return domain.ActionJob{}, apierr.Wrap(apierr.KindInternal, "load action job", err)
	}
	return job, nil
}

// FindByIdempotencyKey looks up an existing job for (request_id, kind), the
// at-most-once boundary the orchestrator checks before enqueueing.
func (s *Store) FindByIdempotencyKey(ctx context.Context, requestID string, kind domain.ActionKind) (domain.ActionJob, error) {
	var job domain.ActionJob
	err := s.jobs.FindOne(ctx, bson.M{"request_id": requestID, "kind": kind}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ActionJob{}, ErrJobNotFound
		}
		return domain.ActionJob{}, apierr.Wrap(apierr.KindInternal, "load action job", err)
	}
	return job, nil
}
