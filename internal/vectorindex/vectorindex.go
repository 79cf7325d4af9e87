// Package vectorindex is the Vector Index component: a Qdrant-backed
// nearest-neighbor store, one collection per project, holding chunk
// embeddings with their document ID, ordinal and text as payload. It is
// grounded on the teacher's Qdrant vector store provider (collection
// lifecycle, PointStruct construction, payload round-tripping), generalized
// from a single shared collection to one collection per project and from
// text-in/embed-inline to pre-computed embeddings supplied by the caller.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/pkg/ptr"
)

const (
	payloadDocumentID = "document_id"
	payloadOrdinal    = "ordinal"
	payloadText       = "text"
)

// Index is the Qdrant-backed vector index, scoped by collection naming
// convention to one collection per project.
type Index struct {
	client     *qdrant.Client
	dimensions uint64
}

// New wraps an already-connected Qdrant client. Dimensions must match the
// embedding model's output width; it is used to create new per-project
// collections on demand.
func New(client *qdrant.Client, dimensions int) *Index {
	return &Index{client: client, dimensions: uint64(dimensions)}
}

func collectionName(projectID string) string {
	return "project_" + projectID
}

// EnsureCollection creates the project's collection if it does not already
// exist, using cosine distance and HNSW defaults tuned for the platform's
// chunk sizes.
func (idx *Index) EnsureCollection(ctx context.Context, projectID string) error {
	name := collectionName(projectID)
	exists, err := idx.client.CollectionExists(ctx, name)
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "check vector collection", err)
	}
	if exists {
		return nil
	}
	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     idx.dimensions,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           ptr.Pointer(uint64(16)),
				EfConstruct: ptr.Pointer(uint64(128)),
			},
		}),
	})
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, fmt.Sprintf("create vector collection %s", name), err)
	}
	return nil
}

// Upsert writes a batch of chunk embeddings into the project's collection,
// waiting for the write to be searchable before returning so that a
// caller's subsequent visibility-flip in chunkstore is race-free.
func (idx *Index) Upsert(ctx context.Context, projectID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadDocumentID: c.DocumentID,
			payloadOrdinal:    c.Ordinal,
			payloadText:       c.Text,
		})
		if err != nil {
			return apierr.Wrap(apierr.KindInternal, "build vector payload", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: payload,
		})
	}

	wait := true
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(projectID),
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "upsert vectors", err)
	}
	return nil
}

// Match is a single nearest-neighbor search hit.
type Match struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Score      float64
}

// Search runs a dense nearest-neighbor query against the project's
// collection, returning up to topK matches scoring at or above minScore.
func (idx *Index) Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]Match, error) {
	limit := uint64(topK)
	threshold := float32(minScore)
	scored, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName(projectID),
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBackendUnavailable, "query vector index", err)
	}

	out := make([]Match, 0, len(scored))
	for _, pt := range scored {
		payload := pt.GetPayload()
		m := Match{Score: float64(pt.GetScore())}
		if id := pt.GetId(); id != nil {
			m.ChunkID = id.GetUuid()
		}
		if v, ok := payload[payloadDocumentID]; ok {
			m.DocumentID = v.GetStringValue()
		}
		if v, ok := payload[payloadOrdinal]; ok {
			m.Ordinal = int(v.GetIntegerValue())
		}
		if v, ok := payload[payloadText]; ok {
			m.Text = v.GetStringValue()
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteDocument removes every chunk belonging to a document, used when a
// document is deleted or re-crawled with changed content.
func (idx *Index) DeleteDocument(ctx context.Context, projectID, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadDocumentID, documentID),
		},
	}
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName(projectID),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return apierr.Wrap(apierr.KindBackendUnavailable, "delete vectors", err)
	}
	return nil
}
