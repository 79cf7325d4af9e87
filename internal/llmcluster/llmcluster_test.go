package llmcluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corpusloop/platform/internal/cache"
	"github.com/corpusloop/platform/internal/domain"
)

type fakeCompletionCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeCompletionCache() *fakeCompletionCache {
	return &fakeCompletionCache{store: make(map[string][]byte)}
}

func (f *fakeCompletionCache) Get(ctx context.Context, ns cache.Namespace, projectID, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[string(ns)+":"+projectID+":"+key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (f *fakeCompletionCache) Set(ctx context.Context, ns cache.Namespace, projectID, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[string(ns)+":"+projectID+":"+key] = value
	return nil
}

type fakeBackend struct {
	id      string
	healthy bool
	fail    bool
	models  []string

	mu    sync.Mutex
	calls int
}

func (f *fakeBackend) ID() string      { return f.id }
func (f *fakeBackend) Kind() string    { return "fake" }
func (f *fakeBackend) Models() []string { return f.models }

func (f *fakeBackend) HealthCheck(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("down")
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) ChatStream(ctx context.Context, model string, messages []ChatMessage) (<-chan StreamEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("backend refused")
	}
	ch := make(chan StreamEvent, 2)
	ch <- StreamEvent{Delta: "hello from " + f.id}
	ch <- StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

func TestStreamFallsOverToNextHealthyBackend(t *testing.T) {
	primary := &fakeBackend{id: "primary", fail: true}
	secondary := &fakeBackend{id: "secondary"}
	c := New([]Backend{primary, secondary})

	events, err := c.Stream(context.Background(), "proj", "any-model", []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var got string
	for ev := range events {
		if !ev.Done {
			got = ev.Delta
		}
	}
	if got != "hello from secondary" {
		t.Fatalf("expected fallback to secondary backend, got %q", got)
	}
}

func TestStreamSkipsDownBackends(t *testing.T) {
	down := &fakeBackend{id: "down"}
	up := &fakeBackend{id: "up", healthy: true}
	c := New([]Backend{down, up})
	c.checkAll(context.Background())
	c.checkAll(context.Background())
	c.checkAll(context.Background())

	events, err := c.Stream(context.Background(), "proj", "any-model", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var got string
	for ev := range events {
		if !ev.Done {
			got = ev.Delta
		}
	}
	if got != "hello from up" {
		t.Fatalf("expected the up backend to serve the request, got %q", got)
	}
}

func TestStreamSkipsBackendsThatDontServeTheRequestedModel(t *testing.T) {
	gpt := &fakeBackend{id: "gpt", models: []string{"gpt-4o"}}
	claude := &fakeBackend{id: "claude", models: []string{"claude-3-5-sonnet"}}
	c := New([]Backend{gpt, claude})

	events, err := c.Stream(context.Background(), "proj", "claude-3-5-sonnet", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var got string
	for ev := range events {
		if !ev.Done {
			got = ev.Delta
		}
	}
	if got != "hello from claude" {
		t.Fatalf("expected only the backend advertising the model to serve it, got %q", got)
	}
}

func TestStreamErrorsWhenNoBackendServesTheModel(t *testing.T) {
	gpt := &fakeBackend{id: "gpt", models: []string{"gpt-4o"}}
	c := New([]Backend{gpt})

	_, err := c.Stream(context.Background(), "proj", "nonexistent-model", nil)
	if err == nil {
		t.Fatal("expected an error when no backend advertises the requested model")
	}
	if !errors.Is(err, ErrNoBackendForModel) {
		t.Fatalf("expected ErrNoBackendForModel, got %v", err)
	}
}

func TestStatusReportsHealth(t *testing.T) {
	b := &fakeBackend{id: "b1", healthy: true}
	c := New([]Backend{b})
	c.checkAll(context.Background())
	c.checkAll(context.Background())

	snaps := c.Status()
	if len(snaps) != 1 || snaps[0].Health != domain.LLMHealthUp {
		t.Fatalf("expected backend marked up after consecutive successes, got %+v", snaps)
	}
}

func drainText(t *testing.T, events <-chan StreamEvent) string {
	t.Helper()
	var got string
	for ev := range events {
		if ev.Delta != "" {
			got += ev.Delta
		}
	}
	return got
}

func TestStreamServesRepeatedRequestFromCompletionCache(t *testing.T) {
	backend := &fakeBackend{id: "only", healthy: true}
	fc := newFakeCompletionCache()
	c := New([]Backend{backend}, WithCompletionCache(fc, time.Hour))
	messages := []ChatMessage{{Role: "user", Content: "what's the refund window?"}}

	first, err := c.Stream(context.Background(), "proj-a", "any-model", messages)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := drainText(t, first); got != "hello from only" {
		t.Fatalf("first call = %q, want %q", got, "hello from only")
	}
	if backend.callCount() != 1 {
		t.Fatalf("expected backend called once, got %d", backend.callCount())
	}

	second, err := c.Stream(context.Background(), "proj-a", "any-model", messages)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := drainText(t, second); got != "hello from only" {
		t.Fatalf("cached call = %q, want %q", got, "hello from only")
	}
	if backend.callCount() != 1 {
		t.Fatalf("expected identical repeated request to be served from cache without a second backend call, got %d calls", backend.callCount())
	}
}

func TestStreamDoesNotShareCompletionCacheAcrossProjects(t *testing.T) {
	backend := &fakeBackend{id: "only", healthy: true}
	fc := newFakeCompletionCache()
	c := New([]Backend{backend}, WithCompletionCache(fc, time.Hour))
	messages := []ChatMessage{{Role: "user", Content: "what's the refund window?"}}

	if _, err := c.Stream(context.Background(), "proj-a", "any-model", messages); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := c.Stream(context.Background(), "proj-b", "any-model", messages); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if backend.callCount() != 2 {
		t.Fatalf("expected the same request in a different project to miss the cache, got %d calls", backend.callCount())
	}
}
