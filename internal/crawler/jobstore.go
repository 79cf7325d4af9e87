// Package-local persistence for CrawlJob and FrontierEntry state, grounded
// on internal/project.Registry's Mongo collection-wrapper shape
// (ReplaceOne-with-upsert, ErrNoDocuments translation).
package crawler

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// ErrJobNotFound is returned when a crawl job lookup misses.
var ErrJobNotFound = errors.New("crawler: job not found")

// JobStore persists CrawlJob state and frontier entries so status() stays
// observable across process restarts.
type JobStore struct {
	jobs     *mongo.Collection
	frontier *mongo.Collection
}

// NewJobStore builds a JobStore over the given collections.
func NewJobStore(jobs, frontier *mongo.Collection) *JobStore {
	return &JobStore{jobs: jobs, frontier: frontier}
}

// Save upserts a crawl job's current state.
func (s *JobStore) Save(ctx context.Context, job domain.CrawlJob) error {
	_, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save crawl job", err)
	}
	return nil
}

// Get loads a crawl job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (domain.CrawlJob, error) {
	var job domain.CrawlJob
	err := s.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CrawlJob{}, ErrJobNotFound
		}
		return domain.CrawlJob{}, apierr.Wrap(apierr.KindInternal, "load crawl job", err)
	}
	return job, nil
}

// ListByProject returns every crawl job for a project, most recently
// started first.
func (s *JobStore) ListByProject(ctx context.Context, projectID string) ([]domain.CrawlJob, error) {
	cursor, err := s.jobs.Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list crawl jobs", err)
	}
	defer cursor.Close(ctx)
	var out []domain.CrawlJob
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode crawl jobs", err)
	}
	return out, nil
}

// SaveFrontierEntry upserts a single URL's frontier state within a job.
func (s *JobStore) SaveFrontierEntry(ctx context.Context, e domain.FrontierEntry) error {
	_, err := s.frontier.ReplaceOne(ctx,
		bson.M{"job_id": e.JobID, "url": e.URL},
		e,
		options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save frontier entry", err)
	}
	return nil
}
