package voice

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// MongoStore persists VoiceSession rows in the voice_sessions collection,
// the same ReplaceOne-with-upsert shape as internal/project.Registry and
// internal/crawler's job store. The collection's TTL index (on
// last_activity, configured at deployment time) reclaims rows the process
// itself failed to clean up.
type MongoStore struct {
	sessions *mongo.Collection
}

// NewMongoStore wraps the voice_sessions collection.
func NewMongoStore(sessions *mongo.Collection) *MongoStore {
	return &MongoStore{sessions: sessions}
}

// Save upserts a session's current snapshot.
func (s *MongoStore) Save(ctx context.Context, session domain.VoiceSession) error {
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, session, options.Replace().SetUpsert(true))
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "save voice session", err)
	}
	return nil
}

// Delete removes a session row.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "delete voice session", err)
	}
	return nil
}
