// Package retriever is the Retriever component: it turns a user question
// into a ranked, deduplicated set of context chunks. It is a direct
// generalization of the teacher's ai/rag.Pipeline shape (interface.go's
// QueryTransformer/DocumentRetriever/DocumentRefiner roles, pipeline.go's
// errgroup-based parallel retrieveByQuery fan-out) from a single
// vector-store retriever into two concrete retrievers — dense
// (internal/vectorindex) and lexical (internal/lexical) — fused by
// reciprocal rank fusion and deduplicated by content hash, with a QA-pair
// short circuit ahead of the pipeline and a cache layer wrapped around both
// the query embedding and the final fused result.
package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpusloop/platform/internal/cache"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/lexical"
	"github.com/corpusloop/platform/internal/reranker"
	"github.com/corpusloop/platform/internal/vectorindex"
)

// rrfK is the reciprocal-rank-fusion damping constant, the standard value
// from the Cormack/Clarke/Buettcher RRF paper.
const rrfK = 60.0

const (
	retrievalCacheTTL = 15 * time.Minute
	embeddingCacheTTL = 6 * time.Hour
)

// Match is one retrieved, fused, citation-ready chunk.
type Match struct {
	ChunkID    string
	DocumentID string
	Text       string
	Title      string
	SourceURL  string
	Score      float64
}

// Result is everything the Orchestrator needs from a retrieval call.
type Result struct {
	Matches  []Match
	QAAnswer string // set when a curated QA pair short-circuited retrieval
	Degraded bool   // set when the vector index was unavailable and only lexical results are present
}

// DocumentMetaSource resolves a chunk's owning document for citation
// metadata (title, source URL). internal/store.Store satisfies this via
// its blob-free GetMeta method.
type DocumentMetaSource interface {
	GetMeta(ctx context.Context, projectID, documentID string) (domain.Document, error)
}

// QAPairSource supplies a project's curated QA pairs for the short-circuit
// check ahead of the retrieval pipeline.
type QAPairSource interface {
	ListQAPairs(ctx context.Context, projectID string) ([]domain.QAPair, error)
}

// Embedder turns query text into the dense vector the Vector Index
// searches against. internal/embedclient.Client satisfies this.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the dense retrieval side. internal/vectorindex.Index
// satisfies this.
type VectorSearcher interface {
	Search(ctx context.Context, projectID string, queryVector []float32, topK int, minScore float64) ([]vectorindex.Match, error)
}

// LexicalSearcher is the sparse retrieval side. internal/lexical.Store
// satisfies this.
type LexicalSearcher interface {
	Search(projectID, query string, topK int) []lexical.Match
}

// Reranker is the best-effort cross-encoder refinement stage run after RRF
// fusion. internal/reranker.Client satisfies this.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]string, error)
}

// Cacher is the narrow subset of internal/cache.Cache the Retriever needs,
// kept as an interface so tests can exercise the pipeline without a live
// Redis instance.
type Cacher interface {
	Get(ctx context.Context, ns cache.Namespace, projectID, key string) ([]byte, error)
	Set(ctx context.Context, ns cache.Namespace, projectID, key string, value []byte, ttl time.Duration) error
}

// Retriever wires the dense and lexical retrievers, their fusion, and
// result caching behind one call.
type Retriever struct {
	embed     Embedder
	vectors   VectorSearcher
	lexical   LexicalSearcher
	documents DocumentMetaSource
	qaPairs   QAPairSource
	cache     Cacher
	rerank    Reranker

	topK           int
	minVectorScore float64
	qaSimilarity   float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK overrides the default 8 fused matches returned per query.
func WithTopK(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.topK = n
		}
	}
}

// WithQASimilarityThreshold overrides the default 0.75 Jaccard token-overlap
// threshold a user question must clear against a curated QA pair's question
// to short-circuit the pipeline.
func WithQASimilarityThreshold(t float64) Option {
	return func(r *Retriever) {
		if t > 0 {
			r.qaSimilarity = t
		}
	}
}

// WithReranker enables the best-effort cross-encoder refinement stage.
// Without it, RRF fusion order is final. config.RerankModel being empty is
// the usual reason a caller omits this option entirely rather than passing
// a Reranker that can never succeed.
func WithReranker(r Reranker) Option {
	return func(ret *Retriever) { ret.rerank = r }
}

// New builds a Retriever over its backing stores.
func New(embed Embedder, vectors VectorSearcher, lex LexicalSearcher, documents DocumentMetaSource, qaPairs QAPairSource, c Cacher, opts ...Option) *Retriever {
	r := &Retriever{
		embed:          embed,
		vectors:        vectors,
		lexical:        lex,
		documents:      documents,
		qaPairs:        qaPairs,
		cache:          c,
		topK:           8,
		minVectorScore: 0.70,
		qaSimilarity:   0.75,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve runs the full pipeline for one project and question: QA
// short-circuit check, cached fused-result lookup, parallel dense+lexical
// retrieval, RRF fusion, content-hash dedup, and citation enrichment.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string) (Result, error) {
	if qa, ok := r.matchQAPair(ctx, projectID, query); ok {
		return Result{QAAnswer: qa.Answer}, nil
	}

	cacheKey := queryHash(query)
	if cached, ok := r.readCache(ctx, projectID, cacheKey); ok {
		return cached, nil
	}

	vector, err := r.cachedEmbed(ctx, projectID, query)
	if err != nil {
		return Result{}, err
	}

	var (
		denseMatches   []vectorindex.Match
		lexicalMatches []lexical.Match
		degraded       bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := r.vectors.Search(gctx, projectID, vector, r.topK*3, r.minVectorScore)
		if err != nil {
			// Dense retrieval failing is a degradation, not a hard error: the
			// lexical path can still answer, just with lower recall.
			degraded = true
			return nil
		}
		denseMatches = matches
		return nil
	})
	g.Go(func() error {
		lexicalMatches = r.lexical.Search(projectID, query, r.topK*3)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	fused := fuseRRF(denseMatches, lexicalMatches, r.topK)
	reranked := r.rerankMatches(ctx, query, fused)
	matches := r.enrichCitations(ctx, projectID, reranked)

	result := Result{Matches: matches, Degraded: degraded}
	if !degraded {
		r.writeCache(ctx, projectID, cacheKey, result)
	}
	return result, nil
}

func (r *Retriever) matchQAPair(ctx context.Context, projectID, query string) (domain.QAPair, bool) {
	pairs, err := r.qaPairs.ListQAPairs(ctx, projectID)
	if err != nil || len(pairs) == 0 {
		return domain.QAPair{}, false
	}
	queryTokens := tokenSet(query)

	var best domain.QAPair
	bestScore := 0.0
	for _, qa := range pairs {
		score := jaccard(queryTokens, tokenSet(qa.Question))
		if score > bestScore {
			bestScore = score
			best = qa
		}
	}
	if bestScore >= r.qaSimilarity {
		return best, true
	}
	return domain.QAPair{}, false
}

func tokenSet(text string) map[string]struct{} {
	tokens := lexical.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// fuseRRF combines dense and lexical rankings using reciprocal rank
// fusion: score(chunk) = sum over lists of 1/(rrfK + rank). This needs no
// score normalization between the cosine-similarity dense scores and the
// BM25 lexical scores, which is exactly why RRF is the standard way to
// merge heterogeneous rankers.
func fuseRRF(dense []vectorindex.Match, lex []lexical.Match, topK int) []Match {
	type fusedEntry struct {
		chunkID, documentID, text string
		score                     float64
	}
	fused := make(map[string]*fusedEntry)

	for rank, m := range dense {
		e, ok := fused[m.ChunkID]
		if !ok {
			e = &fusedEntry{chunkID: m.ChunkID, documentID: m.DocumentID, text: m.Text}
			fused[m.ChunkID] = e
		}
		e.score += 1.0 / (rrfK + float64(rank+1))
	}
	for rank, m := range lex {
		e, ok := fused[m.ChunkID]
		if !ok {
			e = &fusedEntry{chunkID: m.ChunkID, documentID: m.DocumentID, text: m.Text}
			fused[m.ChunkID] = e
		}
		e.score += 1.0 / (rrfK + float64(rank+1))
	}

	out := make([]Match, 0, len(fused))
	seenText := make(map[string]struct{}, len(fused))
	for _, e := range fused {
		hash := contentHash(e.text)
		if _, dup := seenText[hash]; dup {
			continue
		}
		seenText[hash] = struct{}{}
		out = append(out, Match{ChunkID: e.chunkID, DocumentID: e.documentID, Text: e.text, Score: e.score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// rerankMatches asks the configured Reranker to reorder fused matches by
// relevance to query. It is strictly best-effort: no Reranker configured,
// fewer than two matches to order, or any failure from the reranker all
// fall back to the RRF order unchanged rather than failing the request.
func (r *Retriever) rerankMatches(ctx context.Context, query string, matches []Match) []Match {
	if r.rerank == nil || len(matches) < 2 {
		return matches
	}

	candidates := make([]reranker.Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = reranker.Candidate{ChunkID: m.ChunkID, Text: m.Text}
	}
	order, err := r.rerank.Rerank(ctx, query, candidates)
	if err != nil {
		return matches
	}

	byID := make(map[string]Match, len(matches))
	for _, m := range matches {
		byID[m.ChunkID] = m
	}
	out := make([]Match, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, id := range order {
		if m, ok := byID[id]; ok {
			if _, dup := seen[id]; !dup {
				out = append(out, m)
				seen[id] = struct{}{}
			}
		}
	}
	// Anything the reranker dropped or never acknowledged keeps its RRF
	// position at the tail rather than vanishing from the result.
	for _, m := range matches {
		if _, ok := seen[m.ChunkID]; !ok {
			out = append(out, m)
		}
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// enrichCitations resolves each match's owning document for title/source
// URL, tolerating lookup failures by leaving those fields blank rather than
// dropping the match.
func (r *Retriever) enrichCitations(ctx context.Context, projectID string, matches []Match) []Match {
	metaByDoc := make(map[string]domain.Document)
	for i := range matches {
		docID := matches[i].DocumentID
		if _, ok := metaByDoc[docID]; ok {
			continue
		}
		if doc, err := r.documents.GetMeta(ctx, projectID, docID); err == nil {
			metaByDoc[docID] = doc
		}
	}
	for i := range matches {
		if doc, ok := metaByDoc[matches[i].DocumentID]; ok {
			matches[i].Title = doc.Title
			matches[i].SourceURL = doc.SourceURL
		}
	}
	return matches
}

func (r *Retriever) cachedEmbed(ctx context.Context, projectID, query string) ([]float32, error) {
	key := queryHash(query)
	if raw, err := r.cache.Get(ctx, cache.NamespaceEmbedding, projectID, key); err == nil {
		var vec []float32
		if json.Unmarshal(raw, &vec) == nil {
			return vec, nil
		}
	}

	vec, err := r.embed.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(vec); err == nil {
		_ = r.cache.Set(ctx, cache.NamespaceEmbedding, projectID, key, raw, embeddingCacheTTL)
	}
	return vec, nil
}

func (r *Retriever) readCache(ctx context.Context, projectID, key string) (Result, bool) {
	raw, err := r.cache.Get(ctx, cache.NamespaceRetrieval, projectID, key)
	if err != nil {
		return Result{}, false
	}
	var result Result
	if json.Unmarshal(raw, &result) != nil {
		return Result{}, false
	}
	return result, true
}

func (r *Retriever) writeCache(ctx context.Context, projectID, key string, result Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, cache.NamespaceRetrieval, projectID, key, raw, retrievalCacheTTL)
}

func queryHash(query string) string {
	return contentHash(query)
}
