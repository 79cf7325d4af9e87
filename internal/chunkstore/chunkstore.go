// Package chunkstore coordinates writes across the Vector Index and the
// Lexical Index so a chunk never becomes visible to one retrieval path
// before the other. It has no teacher analogue by name; it is grounded on
// the ordering discipline in the teacher's Qdrant store.Create (embed, then
// upsert, only returning success once the write is durable) generalized to
// a two-backend write plus a read-side gate, since Qdrant's Upsert(Wait:
// true) and the in-process lexical index both become independently
// queryable the instant their own write returns — there is no way to make
// two separate systems commit as one transaction. Instead Coordinator is
// the Retriever's only path to either index: Publish writes both, then
// flips an in-process visibility registry; Search and SearchLexical consult
// that registry before returning any match, so a chunk can never be
// observed through one backend before the other even though each backend
// is itself already live.
package chunkstore

import (
	"context"
	"sync"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/lexical"
	"github.com/corpusloop/platform/internal/vectorindex"
)

// VectorIndex is the subset of vectorindex.Index this package depends on,
// covering both the write path Publish needs and the read path Search
// needs so the Coordinator can gate both behind the same visibility
// registry.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, projectID string) error
	Upsert(ctx context.Context, projectID string, chunks []domain.Chunk) error
	Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error)
	DeleteDocument(ctx context.Context, projectID, documentID string) error
}

// Coordinator makes a document's chunks visible to both indices, or to
// neither.
type Coordinator struct {
	vectors VectorIndex
	lex     *lexical.Store

	mu      sync.RWMutex
	visible map[string]map[string]time.Time // project_id -> chunk_id -> VisibleAt
}

// New builds a Coordinator over a vector index and the process-local
// lexical store.
func New(vectors VectorIndex, lex *lexical.Store) *Coordinator {
	return &Coordinator{vectors: vectors, lex: lex, visible: make(map[string]map[string]time.Time)}
}

// Publish writes chunks to the vector index first (the slower, networked
// write) and registers them in the lexical index once that succeeds, then
// flips both into the visibility registry that Search/SearchLexical gate
// on, recording each chunk's domain.Chunk.VisibleAt there (now if the
// caller left it zero). It is not a two-phase commit: a lexical-index
// failure after a successful vector write leaves the vector write
// unflagged and therefore still invisible to readers — re-publishing is
// idempotent since both indices upsert by chunk ID and the flip is a pure
// map union.
func (c *Coordinator) Publish(ctx context.Context, projectID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.vectors.EnsureCollection(ctx, projectID); err != nil {
		return err
	}
	if err := c.vectors.Upsert(ctx, projectID, chunks); err != nil {
		return err
	}
	c.lex.ForProject(projectID).Upsert(chunks)

	c.mu.Lock()
	set, ok := c.visible[projectID]
	if !ok {
		set = make(map[string]time.Time, len(chunks))
		c.visible[projectID] = set
	}
	for _, ch := range chunks {
		at := ch.VisibleAt
		if at.IsZero() {
			at = time.Now()
		}
		set[ch.ID] = at
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) isVisible(projectID, chunkID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.visible[projectID]
	if !ok {
		return false
	}
	_, ok = set[chunkID]
	return ok
}

// Search runs a dense nearest-neighbor query against the vector index and
// filters out any match not yet flipped visible by Publish.
func (c *Coordinator) Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error) {
	matches, err := c.vectors.Search(ctx, projectID, queryVector, topK, minScore)
	if err != nil {
		return nil, err
	}
	out := make([]vectorindex.Match, 0, len(matches))
	for _, m := range matches {
		if c.isVisible(projectID, m.ChunkID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// SearchLexical runs a BM25 query against the lexical index and filters out
// any match not yet flipped visible by Publish.
func (c *Coordinator) SearchLexical(projectID, query string, topK int) []lexical.Match {
	matches := c.lex.Search(projectID, query, topK)
	out := make([]lexical.Match, 0, len(matches))
	for _, m := range matches {
		if c.isVisible(projectID, m.ChunkID) {
			out = append(out, m)
		}
	}
	return out
}

// Vectors adapts the Coordinator to the Retriever's VectorSearcher shape,
// so callers wire retrieval reads through the same visibility gate Publish
// writes through rather than querying the raw vector index directly.
func (c *Coordinator) Vectors() VectorView { return VectorView{c} }

// Lexical adapts the Coordinator to the Retriever's LexicalSearcher shape.
func (c *Coordinator) Lexical() LexicalView { return LexicalView{c} }

// VectorView is a thin adapter exposing only Coordinator.Search under the
// method name internal/retriever.VectorSearcher expects.
type VectorView struct{ c *Coordinator }

func (v VectorView) Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error) {
	return v.c.Search(ctx, projectID, queryVector, topK, minScore)
}

// LexicalView is a thin adapter exposing only Coordinator.SearchLexical
// under the method name internal/retriever.LexicalSearcher expects.
type LexicalView struct{ c *Coordinator }

func (v LexicalView) Search(projectID, query string, topK int) []lexical.Match {
	return v.c.SearchLexical(projectID, query, topK)
}

// Retract removes a document's chunks from both indices and from the
// visibility registry.
func (c *Coordinator) Retract(ctx context.Context, projectID, documentID string) error {
	if err := c.vectors.DeleteDocument(ctx, projectID, documentID); err != nil {
		return apierr.Wrap(apierr.KindInternal, "retract document from vector index", err)
	}
	removed := c.lex.ForProject(projectID).DeleteDocument(documentID)

	c.mu.Lock()
	if set, ok := c.visible[projectID]; ok {
		for _, id := range removed {
			delete(set, id)
		}
	}
	c.mu.Unlock()
	return nil
}

var _ VectorIndex = (*vectorindex.Index)(nil)
