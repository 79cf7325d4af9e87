package embedworker

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	platformsync "github.com/corpusloop/platform/pkg/sync"

	"github.com/corpusloop/platform/internal/domain"
)

// minQualityChars and minAlphaRatio are the quality heuristics from
// spec.md §4.D: a document whose extracted text is too short, or mostly
// non-alphabetic noise (markup debris, binary garbage that slipped past
// MIME sniffing), is dropped from the active indices rather than embedded.
const (
	minQualityChars = 40
	minAlphaRatio   = 0.15
)

// ProjectLister is the subset of internal/project.Registry the rescan
// worker needs to learn which projects exist.
type ProjectLister interface {
	List(ctx context.Context) ([]domain.Project, error)
}

// StaleDocuments is the subset of internal/store.Store the rescan worker
// needs: find documents the reactive path has not caught up with, and
// retire the ones that fail quality review.
type StaleDocuments interface {
	ListStale(ctx context.Context, projectID string) ([]domain.Document, error)
	Get(ctx context.Context, projectID, id string) (domain.Document, error)
	Delete(ctx context.Context, projectID, id string) error
}

// Retractor is the subset of internal/chunkstore.Coordinator the rescan
// worker needs to pull a low-quality document's chunks back out of both
// indices.
type Retractor interface {
	Retract(ctx context.Context, projectID, documentID string) error
}

// RescanWorker implements worker.Worker (Work() with no arguments) so a
// core/trigger.CronTrigger can drive it on a fixed schedule — the
// idle-cooldown half of the Embedding Worker described in spec.md §4.D,
// distinct from the reactive Worker above, which drains DocumentChanged
// events as they arrive.
type RescanWorker struct {
	projects  ProjectLister
	docs      StaleDocuments
	retractor Retractor
	embedder  Embedder
	publisher Publisher
	marker    IndexMarker
	splitter  interface{ Split(string) []string }
	pool      platformsync.Pool
	timeout   time.Duration
	log       *logrus.Entry
}

// NewRescanWorker builds a RescanWorker. pool bounds how many projects are
// rescanned concurrently; a nil pool runs projects serially.
func NewRescanWorker(projects ProjectLister, docs StaleDocuments, retractor Retractor, embedder Embedder, publisher Publisher, marker IndexMarker, splitter interface{ Split(string) []string }, pool platformsync.Pool, log *logrus.Entry) *RescanWorker {
	if pool == nil {
		pool = platformsync.PoolOfNoPool()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RescanWorker{
		projects:  projects,
		docs:      docs,
		retractor: retractor,
		embedder:  embedder,
		publisher: publisher,
		marker:    marker,
		splitter:  splitter,
		pool:      pool,
		timeout:   5 * time.Minute,
		log:       log,
	}
}

// Work satisfies worker.Worker. It never returns an error: cron-driven
// workers have no caller to report to, so failures are logged and the next
// scheduled tick tries again.
func (w *RescanWorker) Work() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	projects, err := w.projects.List(ctx)
	if err != nil {
		w.log.WithError(err).Error("embedworker: idle rescan: list projects")
		return
	}

	done := make(chan struct{}, len(projects))
	for _, p := range projects {
		p := p
		submitErr := w.pool.Submit(func() {
			defer func() { done <- struct{}{} }()
			w.rescanProject(ctx, p.Slug)
		})
		if submitErr != nil {
			w.log.WithError(submitErr).WithField("project", p.Slug).Error("embedworker: idle rescan: submit")
			done <- struct{}{}
		}
	}
	for range projects {
		<-done
	}
}

func (w *RescanWorker) rescanProject(ctx context.Context, projectID string) {
	stale, err := w.docs.ListStale(ctx, projectID)
	if err != nil {
		w.log.WithError(err).WithField("project", projectID).Error("embedworker: idle rescan: list stale")
		return
	}
	for _, meta := range stale {
		doc, err := w.docs.Get(ctx, projectID, meta.ID)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": meta.ID}).
				Error("embedworker: idle rescan: load document")
			continue
		}
		if !passesQuality(doc.Text) {
			if err := w.retractor.Retract(ctx, projectID, doc.ID); err != nil {
				w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": doc.ID}).
					Error("embedworker: idle rescan: retract low-quality document")
				continue
			}
			if err := w.docs.Delete(ctx, projectID, doc.ID); err != nil {
				w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": doc.ID}).
					Error("embedworker: idle rescan: delete low-quality document")
			}
			continue
		}

		texts := w.splitter.Split(doc.Text)
		if len(texts) == 0 {
			continue
		}
		vectors, err := w.embedder.Embed(ctx, texts)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": doc.ID}).
				Error("embedworker: idle rescan: embed")
			continue
		}
		now := time.Now()
		chunks := make([]domain.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = domain.Chunk{
				ID:         doc.ID + ":" + strconv.Itoa(i),
				DocumentID: doc.ID,
				ProjectID:  doc.ProjectID,
				Ordinal:    i,
				Text:       text,
				Embedding:  vectors[i],
				VisibleAt:  now,
			}
		}
		if err := w.publisher.Publish(ctx, projectID, chunks); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": doc.ID}).
				Error("embedworker: idle rescan: publish")
			continue
		}
		if err := w.marker.MarkIndexed(ctx, projectID, doc.ID, now); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{"project": projectID, "document": doc.ID}).
				Error("embedworker: idle rescan: mark indexed")
		}
	}
}

// passesQuality rejects documents too short or too noisy to be worth
// embedding, per spec.md §4.D's quality-pruning requirement.
func passesQuality(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minQualityChars {
		return false
	}
	var letters, total int
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return false
	}
	return float64(letters)/float64(total) >= minAlphaRatio
}
