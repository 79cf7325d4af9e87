package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// handleListDocuments serves GET /api/v1/admin/knowledge?project=… —
// document metadata only; extracted text stays in blob storage.
func (d *Deps) handleListDocuments(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		writeError(c, apierr.Validation("project", "project is required"))
		return
	}
	docs, err := d.Documents.ListByProject(c.Request.Context(), project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type createDocumentRequest struct {
	Project     string  `json:"project" binding:"required"`
	SourceURL   string  `json:"source_url"`
	MIME        string  `json:"mime"`
	Title       string  `json:"title"`
	Text        string  `json:"text" binding:"required"`
	Description string  `json:"description"`
	Priority    float64 `json:"priority"`
}

// handleCreateDocument serves POST /api/v1/admin/knowledge: a manual
// upload. Content-hash deduplication happens inside Documents.Put, so a
// resubmission of identical text is a no-op write, not a duplicate row.
func (d *Deps) handleCreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}
	doc := domain.Document{
		ID:          uuid.NewString(),
		ProjectID:   req.Project,
		SourceURL:   req.SourceURL,
		MIME:        lo.Ternary(req.MIME != "", req.MIME, "text/plain"),
		Title:       req.Title,
		Text:        req.Text,
		Description: req.Description,
		Priority:    req.Priority,
		FetchedAt:   time.Now(),
	}
	saved, _, err := d.Documents.Put(c.Request.Context(), doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// handleDeleteDocument serves DELETE /api/v1/admin/knowledge?project=&id=.
// Chunk removal happens out-of-band (the embedding worker observes the
// deletion on its next pass); spec.md §8's "document_deleted observable to
// the Retriever" ordering is enforced by chunkstore.Retract, called from
// the worker, not from this handler.
func (d *Deps) handleDeleteDocument(c *gin.Context) {
	project := c.Query("project")
	id := c.Query("id")
	if project == "" || id == "" {
		writeError(c, apierr.Validation("", "project and id are required"))
		return
	}
	if err := d.Documents.Delete(c.Request.Context(), project, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// handleListProjects serves GET /api/v1/admin/projects.
func (d *Deps) handleListProjects(c *gin.Context) {
	projects, err := d.Projects.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// handleUpsertProject serves POST /api/v1/admin/projects, creating a
// project or replacing its configuration wholesale.
func (d *Deps) handleUpsertProject(c *gin.Context) {
	var p domain.Project
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}
	if p.Slug == "" {
		writeError(c, apierr.Validation("slug", "slug is required"))
		return
	}
	if err := d.Projects.Upsert(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// handleListUnanswered serves GET /api/v1/admin/unanswered?project=&limit=,
// the curation queue behind spec.md §8 scenario 2.
func (d *Deps) handleListUnanswered(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		writeError(c, apierr.Validation("project", "project is required"))
		return
	}
	limit := int64(100)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := d.Projects.ListUnanswered(c.Request.Context(), project, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unanswered": rows})
}

// handleListQAPairs serves GET /api/v1/admin/knowledge/qa?project=….
func (d *Deps) handleListQAPairs(c *gin.Context) {
	project := c.Query("project")
	if project == "" {
		writeError(c, apierr.Validation("project", "project is required"))
		return
	}
	pairs, err := d.Projects.ListQAPairs(c.Request.Context(), project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qa_pairs": pairs})
}

type upsertQARequest struct {
	Project  string  `json:"project" binding:"required"`
	Question string  `json:"question" binding:"required"`
	Answer   string  `json:"answer" binding:"required"`
	Priority float64 `json:"priority"`
}

// handleUpsertQAPair serves POST /api/v1/admin/knowledge/qa, a single
// manually curated high-priority question/answer row.
func (d *Deps) handleUpsertQAPair(c *gin.Context) {
	var req upsertQARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}
	qa := domain.QAPair{
		ID:        uuid.NewString(),
		ProjectID: req.Project,
		Question:  req.Question,
		Answer:    req.Answer,
		Priority:  req.Priority,
	}
	if err := d.Projects.UpsertQAPair(c.Request.Context(), qa); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, qa)
}

// handleDeleteQAPair serves DELETE /api/v1/admin/knowledge/qa?project=&id=.
func (d *Deps) handleDeleteQAPair(c *gin.Context) {
	project := c.Query("project")
	id := c.Query("id")
	if project == "" || id == "" {
		writeError(c, apierr.Validation("", "project and id are required"))
		return
	}
	if err := d.Projects.DeleteQAPair(c.Request.Context(), project, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
