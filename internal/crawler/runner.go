// Package crawler is the Crawler component: a bounded, polite, SSRF-safe
// breadth-first crawl of a seed URL that writes discovered documents to
// the Document Store and notifies the Embedding Worker. It is modelled as
// a teacher-style job: Start spins up a fixed pool of fetch workers
// draining a shared frontier channel and Stop cancels their context and
// waits for them to drain, the same running/cancel/WaitGroup shape as
// core/job.BatchJob, generalized from a fixed worker-per-Trigger wiring to
// a dynamic BFS frontier that feeds itself as pages are discovered.
package crawler

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/events"
)

// DocumentWriter is the subset of internal/store.Store this package needs.
// The bool return reports whether an active document with the same
// (project, content_hash) already existed — the crawler uses it to skip
// the DocumentChanged notification for content it has already indexed.
type DocumentWriter interface {
	Put(ctx context.Context, doc domain.Document) (domain.Document, bool, error)
}

// EventPublisher is the subset of internal/events.Bus this package needs.
type EventPublisher interface {
	PublishDocumentChanged(ctx context.Context, evt events.DocumentChanged) error
}

// JobPersister is the subset of *JobStore the Runner needs, narrowed so
// tests can substitute an in-memory fake instead of a live Mongo instance.
type JobPersister interface {
	Save(ctx context.Context, job domain.CrawlJob) error
	Get(ctx context.Context, id string) (domain.CrawlJob, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.CrawlJob, error)
}

// Config tunes crawl behavior. Zero values fall back to the defaults set
// in New.
type Config struct {
	UserAgent          string
	Concurrency        int
	FetchTimeout       time.Duration
	MaxRedirects       int
	MaxRetries         int
	MaxBodyBytes       int64
	OriginRPS          float64
	MaxPDFPages        int
	RenderTimeout      time.Duration
}

func (c *Config) withDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "corpusloop-bot/1.0 (+https://corpusloop.example/bot)"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 20 << 20 // 20MB
	}
	if c.OriginRPS <= 0 {
		c.OriginRPS = 1
	}
	if c.MaxPDFPages <= 0 {
		c.MaxPDFPages = 50
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 15 * time.Second
	}
}

// Runner supervises zero or more concurrently running crawl jobs.
type Runner struct {
	cfg      Config
	jobs     JobPersister
	docs     DocumentWriter
	events   EventPublisher
	robots   *RobotsCache
	limiters *originLimiters
	fetcher  *fetcher

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New builds a Runner. httpClient-backed dependencies (robots cache,
// fetcher, politeness limiter) are constructed internally from cfg so
// callers only need to supply persistence and eventing.
func New(cfg Config, jobs JobPersister, docs DocumentWriter, pub EventPublisher) *Runner {
	cfg.withDefaults()
	f := newFetcher(cfg.FetchTimeout, cfg.MaxRedirects, cfg.MaxRetries, cfg.MaxBodyBytes)
	return &Runner{
		cfg:      cfg,
		jobs:     jobs,
		docs:     docs,
		events:   pub,
		robots:   NewRobotsCache(f.client, cfg.UserAgent),
		limiters: newOriginLimiters(cfg.OriginRPS),
		fetcher:  f,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start launches a crawl job's worker pool in the background and returns
// immediately; job progress is observed via Status.
func (r *Runner) Start(parent context.Context, job domain.CrawlJob) error {
	if _, err := ValidateFetchTarget(job.SeedURL); err != nil {
		return fmt.Errorf("crawler: seed url rejected: %w", err)
	}

	r.mu.Lock()
	if _, ok := r.running[job.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("crawler: job %s is already running", job.ID)
	}
	ctx, cancel := context.WithCancel(parent)
	r.running[job.ID] = cancel
	r.mu.Unlock()

	job.Status = domain.CrawlRunning
	job.StartedAt = time.Now()
	_ = r.jobs.Save(ctx, job)

	go r.run(ctx, job)
	return nil
}

// Stop cancels a running crawl job's worker pool. It does not block for
// the workers to fully drain; status() transitions to "stopped" once they
// do.
func (r *Runner) Stop(jobID string) error {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("crawler: job %s is not running", jobID)
	}
	cancel()
	return nil
}

// Status returns a crawl job's current persisted state.
func (r *Runner) Status(ctx context.Context, jobID string) (domain.CrawlJob, error) {
	return r.jobs.Get(ctx, jobID)
}

type frontierItem struct {
	url   string
	depth int
}

// run drives the BFS crawl for one job: a bounded worker pool pulls items
// off a shared channel, fetches, extracts, writes, and pushes newly
// discovered links back onto the same channel until the frontier drains,
// the page cap is hit, or the context is canceled.
func (r *Runner) run(ctx context.Context, job domain.CrawlJob) {
	var renderCtx *renderer
	if job.JSRender {
		renderCtx = newRenderer(ctx)
		defer renderCtx.close()
	}

	state := &crawlState{
		job:     job,
		visited: make(map[string]struct{}),
		queue:   make(chan frontierItem, 1024),
	}
	state.queue <- frontierItem{url: job.SeedURL, depth: 0}
	state.visited[normalizeURL(job.SeedURL)] = struct{}{}
	state.pending.Add(1)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, state, renderCtx)
		}()
	}

	// This goroutine outlives a Stop() until every in-flight item's
	// pending.Done() call lands; workers themselves return immediately on
	// ctx.Done() via the select in worker().
	done := make(chan struct{})
	go func() {
		state.pending.Wait()
		close(state.queue)
		close(done)
	}()

	stopProgress := make(chan struct{})
	go r.reportProgress(ctx, state, stopProgress)

	select {
	case <-done:
	case <-ctx.Done():
	}
	close(stopProgress)
	wg.Wait()

	final := state.finalJob()
	if ctx.Err() != nil {
		final.Status = domain.CrawlStopped
	} else if final.Status != domain.CrawlFailed {
		final.Status = domain.CrawlDone
	}
	final.FinishedAt = time.Now()
	_ = r.jobs.Save(context.Background(), final)

	r.mu.Lock()
	delete(r.running, job.ID)
	r.mu.Unlock()
}

// reportProgress periodically persists the job's live counters so Status
// stays observable while a crawl is in flight, not just at start/finish.
func (r *Runner) reportProgress(ctx context.Context, state *crawlState, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = r.jobs.Save(ctx, state.finalJob())
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// crawlState is the mutable, concurrency-guarded state shared by a job's
// worker pool.
type crawlState struct {
	mu      sync.Mutex
	job     domain.CrawlJob
	visited map[string]struct{}
	queue   chan frontierItem
	pending sync.WaitGroup
}

func (s *crawlState) finalJob() domain.CrawlJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// tryEnqueue adds url to the frontier if it has not been visited and the
// job hasn't hit its page cap. It returns false when the link is dropped.
// The SSRF guard is not applied here; process checks each URL when it is
// dequeued.
func (s *crawlState) tryEnqueue(u string, depth int, maxPages int) bool {
	key := normalizeURL(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[key]; ok {
		return false
	}
	if maxPages > 0 && s.job.Counters.Done+s.job.Counters.Queued >= maxPages {
		return false
	}
	s.visited[key] = struct{}{}
	s.job.Counters.Queued++
	s.pending.Add(1)
	select {
	case s.queue <- frontierItem{url: u, depth: depth}:
		return true
	default:
		// Frontier channel is full: drop the link rather than block a
		// worker indefinitely: this is a politeness/backpressure bound,
		// not a correctness one, since the sitemap and in-page links will
		// usually rediscover important pages.
		s.job.Counters.Queued--
		s.pending.Done()
		return false
	}
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// worker drains state.queue until it is closed or the context is done,
// processing one URL per iteration.
func (r *Runner) worker(ctx context.Context, state *crawlState, renderCtx *renderer) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-state.queue:
			if !ok {
				return
			}
			r.process(ctx, state, item, renderCtx)
			state.pending.Done()
		}
	}
}

func (r *Runner) process(ctx context.Context, state *crawlState, item frontierItem, renderCtx *renderer) {
	job := state.finalJob()

	u, err := ValidateFetchTarget(item.url)
	if err != nil {
		state.markFailed(item.url, err.Error())
		return
	}
	if !r.robots.Allowed(ctx, origin(u), u.Path) {
		state.markFailed(item.url, "blocked by robots.txt")
		return
	}
	if err := r.limiters.wait(ctx, origin(u)); err != nil {
		state.markFailed(item.url, err.Error())
		return
	}

	result, err := r.fetcher.fetch(ctx, r.cfg.UserAgent, u.String())
	if err != nil {
		state.markFailed(item.url, err.Error())
		return
	}

	page, links, err := r.extractAndRender(ctx, job, u, result, renderCtx)
	if err != nil {
		state.markFailed(item.url, err.Error())
		return
	}

	doc := domain.Document{
		ID:        uuid.NewString(),
		ProjectID: job.ProjectID,
		SourceURL: result.FinalURL,
		MIME:      baseMIME(result.ContentType),
		Title:     page.Title,
		Text:      page.Text,
		Description: page.Description,
		FetchedAt: time.Now(),
	}
	if strings.TrimSpace(doc.Text) == "" {
		state.markFailed(item.url, "no extractable text")
		return
	}

	saved, existed, err := r.docs.Put(ctx, doc)
	if err != nil {
		state.markFailed(item.url, err.Error())
		return
	}
	if !existed {
		if err := r.events.PublishDocumentChanged(ctx, events.DocumentChanged{
			ProjectID:  job.ProjectID,
			DocumentID: saved.ID,
			FetchedAt:  saved.FetchedAt.Unix(),
		}); err != nil {
			state.markFailed(item.url, fmt.Sprintf("indexed but failed to notify embedding worker: %v", err))
			return
		}
	}

	state.markFetched(item.url)

	// The seed page also pulls in its origin's sitemap.xml, when robots.txt
	// permits it; the sitemap's URLs join the frontier at depth 1.
	if item.depth == 0 && job.MaxDepth > 0 && r.robots.Allowed(ctx, origin(u), "/sitemap.xml") && r.limiters.wait(ctx, origin(u)) == nil {
		if sm, err := r.fetcher.fetch(ctx, r.cfg.UserAgent, origin(u)+"/sitemap.xml"); err == nil {
			if urls, err := ParseSitemapURLs(sm.Body); err == nil {
				for _, su := range urls {
					state.tryEnqueue(su, 1, job.MaxPages)
				}
			}
		}
	}

	if item.depth < job.MaxDepth {
		for _, link := range resolveLinks(u, links) {
			state.tryEnqueue(link, item.depth+1, job.MaxPages)
		}
	}
}

func (s *crawlState) markFetched(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Counters.Queued--
	s.job.Counters.Done++
	s.job.LastURL = u
}

func (s *crawlState) markFailed(u, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Counters.Queued--
	s.job.Counters.Failed++
	s.job.LastURL = u
	s.job.LastError = reason
}

func (r *Runner) extractAndRender(ctx context.Context, job domain.CrawlJob, u *url.URL, result fetchResult, renderCtx *renderer) (ExtractedPage, []string, error) {
	mimeType := baseMIME(result.ContentType)
	switch {
	case mimeType == "application/pdf":
		page, err := ExtractPDF(result.Body, r.cfg.MaxPDFPages)
		return page, nil, err
	case strings.HasPrefix(mimeType, "text/html") || mimeType == "":
		if job.JSRender && renderCtx != nil {
			html, err := renderCtx.render(ctx, u.String(), r.cfg.RenderTimeout)
			if err == nil {
				page, perr := ExtractHTML([]byte(html))
				if perr == nil {
					return page, page.Links, nil
				}
			}
		}
		page, err := ExtractHTML(result.Body)
		return page, page.Links, err
	default:
		return ExtractedPage{}, nil, fmt.Errorf("crawler: unsupported content type %q", result.ContentType)
	}
}

func baseMIME(contentType string) string {
	m, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return m
}

func resolveLinks(base *url.URL, links []string) []string {
	out := make([]string, 0, len(links))
	for _, link := range links {
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""
		out = append(out, resolved.String())
	}
	return out
}
