// Package llmcluster is the LLM Cluster component: a health-checked,
// failover-capable router over multiple inference backends (OpenAI,
// Anthropic, Ollama). It is grounded on the teacher's OpenAI chat model
// adapter for the request/response/streaming shape (ai/extensions/models/openai/chat_model.go)
// and on the goa-ai Anthropic model client for the Anthropic SDK's
// streaming API (features/model/anthropic/client.go), generalized from a
// single fixed provider to a routable set of backends with health state.
package llmcluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/cache"
	"github.com/corpusloop/platform/internal/domain"
	xsync "github.com/corpusloop/platform/pkg/sync"
)

// ChatMessage is a single role-tagged message in a conversation, the
// platform's transport-agnostic representation fed to every backend.
type ChatMessage struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// StreamEvent is one increment of a streaming completion.
type StreamEvent struct {
	Delta      string
	Done       bool
	FinishedBy string // backend ID that produced the completion, set on Done
}

// Cacher is the narrow subset of internal/cache.Cache the Cluster needs to
// cache completions, kept as an interface so tests can exercise caching
// without a live Redis instance.
type Cacher interface {
	Get(ctx context.Context, ns cache.Namespace, projectID, key string) ([]byte, error)
	Set(ctx context.Context, ns cache.Namespace, projectID, key string, value []byte, ttl time.Duration) error
}

// Backend is a single inference provider the cluster can route to.
type Backend interface {
	ID() string
	Kind() string // openai | anthropic | ollama
	// Models lists the model IDs this backend serves. An empty slice means
	// the backend accepts any model name (an OpenAI-compatible gateway that
	// does its own model routing, for instance), so the cluster should not
	// filter it out regardless of the requested model.
	Models() []string
	ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error)
	HealthCheck(ctx context.Context) error
}

type backendState struct {
	backend        Backend
	health         domain.LLMHealth
	consecutiveOK  int
	consecutiveBad int
	ewmaLatencyMs  float64
	sem            *xsync.Limiter
}

const (
	upThreshold   = 2 // consecutive healthy checks before a down backend is trusted again
	downThreshold = 3 // consecutive failures before a backend is marked down
	ewmaAlpha     = 0.3
)

// Cluster routes chat requests across a fixed set of backends, preferring
// the lowest-latency healthy one and falling over to the next on error.
type Cluster struct {
	mu              sync.RWMutex
	states          []*backendState
	perBackendLimit int
	healthInterval  time.Duration
	maxRetries      int
	stopHealth      context.CancelFunc

	cache    Cacher
	cacheTTL time.Duration
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithPerBackendConcurrency caps in-flight requests to each backend,
// independent of the others.
func WithPerBackendConcurrency(n int) Option {
	return func(c *Cluster) { c.perBackendLimit = n }
}

// WithHealthCheckInterval overrides the default 30s health-check cadence.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(c *Cluster) { c.healthInterval = d }
}

// WithMaxRetries caps how many candidate backends Stream tries before
// giving up on a request, distinct from the per-backend health-check
// failure threshold above it. n <= 0 means try every candidate once,
// the prior unbounded behavior.
func WithMaxRetries(n int) Option {
	return func(c *Cluster) { c.maxRetries = n }
}

// WithCompletionCache turns on caching of full completions in the given
// namespace-scoped store, keyed by (project, model, messages) and kept for
// ttl. A second Stream call for an identical request within ttl replays the
// cached text instead of reaching any backend.
func WithCompletionCache(c Cacher, ttl time.Duration) Option {
	return func(cl *Cluster) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// New builds a Cluster over the given backends, all initially marked
// unknown until the first health check completes.
func New(backends []Backend, opts ...Option) *Cluster {
	c := &Cluster{perBackendLimit: 4, healthInterval: 30 * time.Second}
	for _, o := range opts {
		o(c)
	}
	for _, b := range backends {
		c.states = append(c.states, &backendState{
			backend: b,
			health:  domain.LLMHealthUnknown,
			sem:     xsync.NewLimiter(c.perBackendLimit),
		})
	}
	return c
}

// StartHealthChecks launches the background health-check loop. Call Stop
// to end it.
func (c *Cluster) StartHealthChecks(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.stopHealth = cancel
	xsync.Go(func() {
		ticker := time.NewTicker(c.healthInterval)
		defer ticker.Stop()
		c.checkAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkAll(ctx)
			}
		}
	})
}

// Stop ends the background health-check loop, if running.
func (c *Cluster) Stop() {
	if c.stopHealth != nil {
		c.stopHealth()
	}
}

func (c *Cluster) checkAll(ctx context.Context) {
	c.mu.RLock()
	states := append([]*backendState(nil), c.states...)
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, st := range states {
		wg.Add(1)
		go func(st *backendState) {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := st.backend.HealthCheck(hctx)
			c.mu.Lock()
			if err != nil {
				st.consecutiveBad++
				st.consecutiveOK = 0
				if st.consecutiveBad >= downThreshold {
					st.health = domain.LLMHealthDown
				}
			} else {
				st.consecutiveOK++
				st.consecutiveBad = 0
				if st.health != domain.LLMHealthUp && st.consecutiveOK >= upThreshold {
					st.health = domain.LLMHealthUp
				} else if st.health == domain.LLMHealthUnknown {
					st.health = domain.LLMHealthUp
				}
			}
			c.mu.Unlock()
		}(st)
	}
	wg.Wait()
}

// candidates returns backends ordered best-first: healthy before unknown
// before down, and within a tier, lowest observed latency first.
func (c *Cluster) candidates() []*backendState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ordered := append([]*backendState(nil), c.states...)
	rank := func(h domain.LLMHealth) int {
		switch h {
		case domain.LLMHealthUp:
			return 0
		case domain.LLMHealthUnknown:
			return 1
		default:
			return 2
		}
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			a, b := ordered[j-1], ordered[j]
			if rank(a.health) > rank(b.health) || (rank(a.health) == rank(b.health) && a.ewmaLatencyMs > b.ewmaLatencyMs) {
				ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
			}
		}
	}
	return ordered
}

func (c *Cluster) recordLatency(st *backendState, ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st.ewmaLatencyMs == 0 {
		st.ewmaLatencyMs = ms
		return
	}
	st.ewmaLatencyMs = ewmaAlpha*ms + (1-ewmaAlpha)*st.ewmaLatencyMs
}

// ErrAllBackendsUnavailable is returned when every candidate backend fails.
var ErrAllBackendsUnavailable = errors.New("llmcluster: all backends unavailable")

// ErrNoBackendForModel is returned when every backend that advertises a
// restricted model set excludes the requested model.
var ErrNoBackendForModel = errors.New("llmcluster: no backend serves the requested model")

// backendServesModel reports whether b can serve model. A backend with an
// empty Models() list is treated as serving any model.
func backendServesModel(b Backend, model string) bool {
	models := b.Models()
	if len(models) == 0 {
		return true
	}
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// Stream routes a chat completion to the best available backend, falling
// over to the next candidate if the chosen one errors before any tokens
// are produced. Once streaming has started, an error mid-stream is
// surfaced to the caller rather than silently retried, since partial
// output may already have reached the user.
//
// When a completion cache is configured (WithCompletionCache), an
// identical (projectID, model, messages) request within the cache's TTL is
// replayed from the cache as a single-shot synthetic stream instead of
// reaching any backend; a live request's accumulated text is written back
// to the cache once it completes successfully.
func (c *Cluster) Stream(ctx context.Context, projectID, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	if c.cache != nil {
		if text, ok := c.readCompletionCache(ctx, projectID, model, messages); ok {
			return replayCachedCompletion(text), nil
		}
	}

	events, err := c.dispatch(ctx, model, messages)
	if err != nil {
		return nil, err
	}
	if c.cache == nil {
		return events, nil
	}
	return c.tapForCache(ctx, projectID, model, messages, events), nil
}

// dispatch is the uncached backend-selection-and-failover path Stream used
// to be before the completion cache wrapped it.
func (c *Cluster) dispatch(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	var lastErr error
	var sawModelMatch bool
	var attempts int
	for _, st := range c.candidates() {
		if c.maxRetries > 0 && attempts >= c.maxRetries {
			break
		}
		if st.health == domain.LLMHealthDown {
			continue
		}
		if !backendServesModel(st.backend, model) {
			continue
		}
		sawModelMatch = true
		if !st.sem.TryAcquire() {
			continue
		}
		attempts++

		start := time.Now()
		events, err := st.backend.ChatStream(ctx, model, messages)
		if err != nil {
			st.sem.Release()
			lastErr = err
			continue
		}

		out := make(chan StreamEvent)
		xsync.Go(func() {
			defer st.sem.Release()
			defer close(out)
			for ev := range events {
				if ev.Done {
					c.recordLatency(st, float64(time.Since(start).Milliseconds()))
					ev.FinishedBy = st.backend.ID()
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		})
		return out, nil
	}
	if lastErr != nil {
		return nil, apierr.Wrap(apierr.KindBackendUnavailable, "no llm backend could serve this request", lastErr)
	}
	if !sawModelMatch {
		return nil, apierr.Wrap(apierr.KindBackendUnavailable, "no llm backend serves model "+model, ErrNoBackendForModel)
	}
	return nil, apierr.Wrap(apierr.KindBackendUnavailable, "no llm backend could serve this request", ErrAllBackendsUnavailable)
}

// completionCacheKey canonicalizes the request shape that determines a
// completion's output: the model and the exact message sequence. Sampling
// options aren't part of this platform's ChatMessage/Stream surface, so the
// key is just these two.
func completionCacheKey(model string, messages []ChatMessage) string {
	raw, _ := json.Marshal(struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
	}{Model: model, Messages: messages})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *Cluster) readCompletionCache(ctx context.Context, projectID, model string, messages []ChatMessage) (string, bool) {
	raw, err := c.cache.Get(ctx, cache.NamespaceLLM, projectID, completionCacheKey(model, messages))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// replayCachedCompletion turns a cached completion string into the same
// StreamEvent shape a live backend would have produced: one delta carrying
// the whole text, then a Done event. FinishedBy is left blank since no
// backend served this request.
func replayCachedCompletion(text string) <-chan StreamEvent {
	out := make(chan StreamEvent, 2)
	if text != "" {
		out <- StreamEvent{Delta: text}
	}
	out <- StreamEvent{Done: true}
	close(out)
	return out
}

// tapForCache relays events unchanged while accumulating the full text, and
// writes it to the completion cache once the stream ends successfully. A
// context cancellation mid-stream leaves the cache untouched, since the
// accumulated text would be a truncated, unrepresentative response.
func (c *Cluster) tapForCache(ctx context.Context, projectID, model string, messages []ChatMessage, events <-chan StreamEvent) <-chan StreamEvent {
	out := make(chan StreamEvent)
	xsync.Go(func() {
		defer close(out)
		var sb strings.Builder
		completed := false
		for ev := range events {
			if ev.Delta != "" {
				sb.WriteString(ev.Delta)
			}
			if ev.Done {
				completed = true
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if completed {
			key := completionCacheKey(model, messages)
			_ = c.cache.Set(ctx, cache.NamespaceLLM, projectID, key, []byte(sb.String()), c.cacheTTL)
		}
	})
	return out
}

// Snapshot is a read-only view of one backend's health for status
// reporting.
type Snapshot struct {
	ID            string
	Kind          string
	Health        domain.LLMHealth
	EWMALatencyMs float64
}

// Status returns a snapshot of every backend's current health.
func (c *Cluster) Status() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.states))
	for i, st := range c.states {
		out[i] = Snapshot{ID: st.backend.ID(), Kind: st.backend.Kind(), Health: st.health, EWMALatencyMs: st.ewmaLatencyMs}
	}
	return out
}
