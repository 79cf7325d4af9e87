// Package project is the Project registry and its attached small entities
// (QA pairs, unanswered questions, daily request stats). It follows the
// same Mongo collection-wrapper shape as internal/store, grounded on the
// goa-ai registry's Mongo store.
package project

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// ErrNotFound is returned when a project lookup misses.
var ErrNotFound = errors.New("project: not found")

// Registry is the Project store plus its attached collections.
type Registry struct {
	projects  *mongo.Collection
	qaPairs   *mongo.Collection
	unanswered *mongo.Collection
	stats     *mongo.Collection
}

// New builds a Registry over the given collections. All four must live in
// the same logical database; callers typically derive them from one
// *mongo.Database.
func New(projects, qaPairs, unanswered, stats *mongo.Collection) *Registry {
	return &Registry{projects: projects, qaPairs: qaPairs, unanswered: unanswered, stats: stats}
}

// Get fetches a project by its slug, the tenant key used everywhere else
// in the platform.
func (r *Registry) Get(ctx context.Context, slug string) (domain.Project, error) {
	var p domain.Project
	err := r.projects.FindOne(ctx, bson.M{"_id": slug}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Project{}, ErrNotFound
		}
		return domain.Project{}, apierr.Wrap(apierr.KindInternal, "load project", err)
	}
	return p, nil
}

// Upsert creates or replaces a project's configuration.
func (r *Registry) Upsert(ctx context.Context, p domain.Project) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := r.projects.ReplaceOne(ctx, bson.M{"_id": p.Slug}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save project", err)
	}
	return nil
}

// List returns every registered project.
func (r *Registry) List(ctx context.Context) ([]domain.Project, error) {
	cursor, err := r.projects.Find(ctx, bson.M{})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list projects", err)
	}
	defer cursor.Close(ctx)
	var out []domain.Project
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode projects", err)
	}
	return out, nil
}

// RequireEnabled loads a project and translates both "missing" and
// "disabled" into the closed error taxonomy the HTTP layer expects.
func (r *Registry) RequireEnabled(ctx context.Context, slug string) (domain.Project, error) {
	p, err := r.Get(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Project{}, apierr.New(apierr.KindProjectNotFound, "project not found")
		}
		return domain.Project{}, err
	}
	if p.Disabled {
		return domain.Project{}, apierr.New(apierr.KindProjectMisconfigured, "project is disabled")
	}
	return p, nil
}

// --- QA pairs -------------------------------------------------------------

// UpsertQAPair creates or replaces a manually curated QA pair.
func (r *Registry) UpsertQAPair(ctx context.Context, qa domain.QAPair) error {
	_, err := r.qaPairs.ReplaceOne(ctx, bson.M{"_id": qa.ID}, qa, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save qa pair", err)
	}
	return nil
}

// ListQAPairs returns every QA pair for a project, highest priority first.
func (r *Registry) ListQAPairs(ctx context.Context, projectID string) ([]domain.QAPair, error) {
	cursor, err := r.qaPairs.Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "priority", Value: -1}}))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list qa pairs", err)
	}
	defer cursor.Close(ctx)
	var out []domain.QAPair
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode qa pairs", err)
	}
	return out, nil
}

// DeleteQAPair removes a QA pair by ID.
func (r *Registry) DeleteQAPair(ctx context.Context, projectID, id string) error {
	_, err := r.qaPairs.DeleteOne(ctx, bson.M{"_id": id, "project_id": projectID})
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "delete qa pair", err)
	}
	return nil
}

// --- unanswered questions --------------------------------------------------

// RecordUnanswered logs a question the orchestrator could not ground.
func (r *Registry) RecordUnanswered(ctx context.Context, q domain.UnansweredQuestion) error {
	if q.AskedAt.IsZero() {
		q.AskedAt = time.Now()
	}
	_, err := r.unanswered.InsertOne(ctx, q)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "record unanswered question", err)
	}
	return nil
}

// ListUnanswered returns unanswered questions for a project, most recent
// first.
func (r *Registry) ListUnanswered(ctx context.Context, projectID string, limit int64) ([]domain.UnansweredQuestion, error) {
	cursor, err := r.unanswered.Find(ctx, bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "asked_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list unanswered questions", err)
	}
	defer cursor.Close(ctx)
	var out []domain.UnansweredQuestion
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode unanswered questions", err)
	}
	return out, nil
}

// --- request stats ----------------------------------------------------------

// IncrementRequestCount bumps today's request counter for a project.
func (r *Registry) IncrementRequestCount(ctx context.Context, projectID string, at time.Time) error {
	date := at.Format("2006-01-02")
	_, err := r.stats.UpdateOne(ctx,
		bson.M{"project_id": projectID, "date": date},
		bson.M{"$inc": bson.M{"count": 1}},
		options.Update().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "increment request stats", err)
	}
	return nil
}

// StatsForRange returns daily counters for a project between two dates
// (inclusive), formatted YYYY-MM-DD.
func (r *Registry) StatsForRange(ctx context.Context, projectID, from, to string) ([]domain.RequestStatsDaily, error) {
	cursor, err := r.stats.Find(ctx, bson.M{
		"project_id": projectID,
		"date":       bson.M{"$gte": from, "$lte": to},
	}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "load request stats", err)
	}
	defer cursor.Close(ctx)
	var out []domain.RequestStatsDaily
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode request stats", err)
	}
	return out, nil
}
