package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corpusloop/platform/internal/apierr"
)

type voiceStartRequest struct {
	Project  string `json:"project" binding:"required"`
	Language string `json:"language"`
}

// handleVoiceStart serves POST /api/v1/voice/session/start, allocating a
// session subject to the Voice Session Manager's global concurrency cap.
func (d *Deps) handleVoiceStart(c *gin.Context) {
	if d.VoiceManager == nil {
		writeError(c, apierr.New(apierr.KindProjectMisconfigured, "voice is not enabled"))
		return
	}
	var req voiceStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}
	if req.Language == "" {
		req.Language = "en-US"
	}
	session, err := d.VoiceManager.Start(c.Request.Context(), req.Project, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "state": session.State()})
}

// handleVoiceGet serves GET /api/v1/voice/session/{id}.
func (d *Deps) handleVoiceGet(c *gin.Context) {
	if d.VoiceManager == nil {
		writeError(c, apierr.New(apierr.KindProjectMisconfigured, "voice is not enabled"))
		return
	}
	session, err := d.VoiceManager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID,
		"project":       session.ProjectID,
		"language":      session.Language,
		"state":         session.State(),
		"history":       session.History(),
		"last_activity": session.LastActivity(),
	})
}

// handleVoiceDelete serves DELETE /api/v1/voice/session/{id}, closing the
// session and releasing its resources immediately rather than waiting for
// the idle-timeout sweep.
func (d *Deps) handleVoiceDelete(c *gin.Context) {
	if d.VoiceManager == nil {
		writeError(c, apierr.New(apierr.KindProjectMisconfigured, "voice is not enabled"))
		return
	}
	if err := d.VoiceManager.Close(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// handleVoiceWS serves WS /api/v1/voice/ws/{id}, upgrading to a websocket
// and driving the session's audio/transcript/synthesis loop. Chat uses
// one-way SSE; voice uses a bidirectional websocket — the two transports
// are intentionally not unified, per spec.md §9.
func (d *Deps) handleVoiceWS(c *gin.Context) {
	if d.VoiceHandler == nil {
		writeError(c, apierr.New(apierr.KindProjectMisconfigured, "voice is not enabled"))
		return
	}
	d.VoiceHandler.ServeSession(c.Writer, c.Request, c.Param("id"))
}
