// Package httpapi is the platform's external HTTP/WS surface from
// spec.md §6: it adapts the Answer Orchestrator, Crawler, Voice Session
// Manager and admin CRUD operations onto gin.Engine routes, the same
// gin.Context/gin.H idiom the codeready-toolchain-tarsy pack repo uses for
// its own API server (pkg/api/handlers.go). Route handlers stay thin:
// parse, call the component, translate *apierr.Error to a status code.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/llmcluster"
	"github.com/corpusloop/platform/internal/orchestrator"
	"github.com/corpusloop/platform/internal/ratelimit"
	"github.com/corpusloop/platform/internal/voice"
)

// Orchestrator is the subset of *orchestrator.Orchestrator the chat
// handler needs.
type Orchestrator interface {
	Answer(ctx context.Context, req orchestrator.Request) (<-chan orchestrator.Event, error)
}

// CrawlerRunner is the subset of *crawler.Runner the crawler handlers
// need.
type CrawlerRunner interface {
	Start(ctx context.Context, job domain.CrawlJob) error
	Stop(jobID string) error
	Status(ctx context.Context, jobID string) (domain.CrawlJob, error)
}

// CrawlJobs tracks per-project job history so the HTTP layer can enforce
// "at most one non-terminal job per project" without the Runner itself
// needing to know about projects.
type CrawlJobs interface {
	Save(ctx context.Context, job domain.CrawlJob) error
	Get(ctx context.Context, id string) (domain.CrawlJob, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.CrawlJob, error)
}

// Projects is the subset of *project.Registry the admin and chat handlers
// need.
type Projects interface {
	Get(ctx context.Context, slug string) (domain.Project, error)
	Upsert(ctx context.Context, p domain.Project) error
	List(ctx context.Context) ([]domain.Project, error)
	UpsertQAPair(ctx context.Context, qa domain.QAPair) error
	ListQAPairs(ctx context.Context, projectID string) ([]domain.QAPair, error)
	DeleteQAPair(ctx context.Context, projectID, id string) error
	ListUnanswered(ctx context.Context, projectID string, limit int64) ([]domain.UnansweredQuestion, error)
}

// Documents is the subset of *store.Store the knowledge admin handlers
// need.
type Documents interface {
	Put(ctx context.Context, doc domain.Document) (domain.Document, bool, error)
	Get(ctx context.Context, projectID, id string) (domain.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Document, error)
	Delete(ctx context.Context, projectID, id string) error
}

// Gate is the shared Request Gate.
type Gate interface {
	Check(ctx context.Context, dim ratelimit.Dimension, subject string) error
}

// HealthChecker reports the liveness of one backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// LLMStatus reports the LLM Cluster's per-backend health for /health and
// the admin panel.
type LLMStatus interface {
	Status() []llmcluster.Snapshot
}

// Deps bundles every dependency the router needs. Gate, LLM, the health
// checkers, VoiceManager, VoiceHandler and QAUpload may be left nil: a nil
// Gate skips rate limiting, a nil checker or LLM is left out of /health,
// and the voice and QA-upload routes answer with an error. The remaining
// dependencies are called by their routes without a nil check.
type Deps struct {
	Orchestrator Orchestrator
	Crawler      CrawlerRunner
	CrawlJobs    CrawlJobs
	Projects     Projects
	Documents    Documents
	Gate         Gate
	VoiceManager *voice.Manager
	VoiceHandler *voice.Handler
	QAUpload     *QAUploadService
	LLM          LLMStatus

	Mongo   HealthChecker
	Redis   HealthChecker
	Vectors HealthChecker

	AllowedOrigins []string
	MaxUploadSize  int64
}

// NewRouter builds the gin.Engine exposing every route from spec.md §6.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(d.AllowedOrigins))

	r.GET("/health", d.handleHealth)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", d.handleMetrics)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/chat", d.rateLimited(ratelimit.DimensionWriteIP), d.handleChat)

		v1.POST("/crawler/start", d.rateLimited(ratelimit.DimensionWriteIP), d.handleCrawlerStart)
		v1.POST("/crawler/stop", d.rateLimited(ratelimit.DimensionWriteIP), d.handleCrawlerStop)
		v1.GET("/crawler/status", d.rateLimited(ratelimit.DimensionReadIP), d.handleCrawlerStatus)

		admin := v1.Group("/admin")
		{
			admin.GET("/knowledge", d.rateLimited(ratelimit.DimensionReadIP), d.handleListDocuments)
			admin.POST("/knowledge", d.rateLimited(ratelimit.DimensionWriteIP), d.handleCreateDocument)
			admin.DELETE("/knowledge", d.rateLimited(ratelimit.DimensionWriteIP), d.handleDeleteDocument)
			admin.POST("/knowledge/qa/upload", d.rateLimited(ratelimit.DimensionWriteIP), d.handleQAUpload)
			admin.GET("/knowledge/qa", d.rateLimited(ratelimit.DimensionReadIP), d.handleListQAPairs)
			admin.POST("/knowledge/qa", d.rateLimited(ratelimit.DimensionWriteIP), d.handleUpsertQAPair)
			admin.DELETE("/knowledge/qa", d.rateLimited(ratelimit.DimensionWriteIP), d.handleDeleteQAPair)

			admin.GET("/projects", d.rateLimited(ratelimit.DimensionReadIP), d.handleListProjects)
			admin.POST("/projects", d.rateLimited(ratelimit.DimensionWriteIP), d.handleUpsertProject)
			admin.GET("/unanswered", d.rateLimited(ratelimit.DimensionReadIP), d.handleListUnanswered)
		}

		voiceGroup := v1.Group("/voice")
		{
			voiceGroup.POST("/session/start", d.rateLimited(ratelimit.DimensionWriteIP), d.handleVoiceStart)
			voiceGroup.GET("/session/:id", d.rateLimited(ratelimit.DimensionReadIP), d.handleVoiceGet)
			voiceGroup.DELETE("/session/:id", d.rateLimited(ratelimit.DimensionWriteIP), d.handleVoiceDelete)
			voiceGroup.GET("/ws/:id", d.handleVoiceWS)
		}
	}

	return r
}

// rateLimited checks the Request Gate for the caller's source IP before
// the wrapped handler runs, translating RateLimited into the 429 +
// Retry-After contract from spec.md §6.
func (d *Deps) rateLimited(dim ratelimit.Dimension) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Gate == nil {
			c.Next()
			return
		}
		if err := d.Gate.Check(c.Request.Context(), dim, c.ClientIP()); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// writeError maps an *apierr.Error to its transport status and body. It
// never lets internal exception text reach the caller: Message is the
// only field surfaced, matching spec.md §7's propagation policy.
func writeError(c *gin.Context, err error) {
	var ae *apierr.Error
	if e, ok := err.(*apierr.Error); ok {
		ae = e
	} else {
		ae = apierr.Wrap(apierr.KindInternal, "internal error", err)
	}
	body := gin.H{"kind": ae.Kind, "message": ae.Message}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	if ae.Kind == apierr.KindRateLimited {
		retryAfter := ae.RetryAfter
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	if ae.Kind == apierr.KindInternal {
		body["error_id"] = uuid.NewString()
	}
	c.JSON(ae.HTTPStatus(), body)
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		allowedSet[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowedSet[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
