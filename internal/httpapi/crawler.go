package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

type crawlerStartRequest struct {
	Project  string `json:"project" binding:"required"`
	SeedURL  string `json:"start_url" binding:"required"`
	MaxDepth int    `json:"max_depth"`
	MaxPages int    `json:"max_pages"`
	JSRender bool   `json:"js_render"`
}

type crawlerStopRequest struct {
	Project string `json:"project" binding:"required"`
}

// latestJob returns a project's most recently started crawl job, or an
// apierr.KindValidation error ("no crawl job for this project") when the
// project has never been crawled.
func (d *Deps) latestJob(ctx context.Context, projectID string) (domain.CrawlJob, error) {
	jobs, err := d.CrawlJobs.ListByProject(ctx, projectID)
	if err != nil {
		return domain.CrawlJob{}, err
	}
	if len(jobs) == 0 {
		return domain.CrawlJob{}, apierr.New(apierr.KindValidation, "no crawl job for this project")
	}
	return jobs[0], nil
}

func nonTerminal(status domain.CrawlStatus) bool {
	return status == domain.CrawlPending || status == domain.CrawlRunning
}

// handleCrawlerStart starts a new crawl for a project, rejecting the
// request with 409 if a crawl is already in flight for the same project —
// the Runner itself is keyed by job ID, not project, so this check has to
// live at the HTTP boundary.
func (d *Deps) handleCrawlerStart(c *gin.Context) {
	var req crawlerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}

	ctx := c.Request.Context()
	if existing, err := d.latestJob(ctx, req.Project); err == nil && nonTerminal(existing.Status) {
		writeError(c, apierr.New(apierr.KindConflict, "a crawl is already running for this project"))
		return
	}

	job := domain.CrawlJob{
		ID:        uuid.NewString(),
		ProjectID: req.Project,
		SeedURL:   req.SeedURL,
		MaxDepth:  req.MaxDepth,
		MaxPages:  req.MaxPages,
		JSRender:  req.JSRender,
		Status:    domain.CrawlPending,
	}
	if job.MaxDepth <= 0 {
		job.MaxDepth = 3
	}

	if err := d.Crawler.Start(ctx, job); err != nil {
		writeError(c, apierr.Wrap(apierr.KindValidation, "could not start crawl: "+err.Error(), err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// handleCrawlerStop stops the active crawl job for a project, if any.
func (d *Deps) handleCrawlerStop(c *gin.Context) {
	var req crawlerStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}

	job, err := d.latestJob(c.Request.Context(), req.Project)
	if err != nil {
		writeError(c, err)
		return
	}
	if !nonTerminal(job.Status) {
		writeError(c, apierr.New(apierr.KindConflict, "no running crawl for this project"))
		return
	}
	if err := d.Crawler.Stop(job.ID); err != nil {
		writeError(c, apierr.Wrap(apierr.KindConflict, "could not stop crawl: "+err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "status": "stopping"})
}

// handleCrawlerStatus returns the current state of a project's most recent
// crawl job.
func (d *Deps) handleCrawlerStatus(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		writeError(c, apierr.Validation("project", "project is required"))
		return
	}
	job, err := d.latestJob(c.Request.Context(), project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
