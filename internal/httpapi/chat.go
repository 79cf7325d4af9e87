package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/orchestrator"
	"github.com/corpusloop/platform/internal/promptbuilder"
	"github.com/corpusloop/platform/sse"
)

// chatRequest is the wire body for POST /api/v1/chat.
type chatRequest struct {
	Project string          `json:"project" binding:"required"`
	UserID  string          `json:"user_id"`
	Session string          `json:"session_id"`
	Message string          `json:"message" binding:"required"`
	History []turnRequest   `json:"history"`
}

type turnRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// handleChat streams one answer turn back as Server-Sent Events: token,
// sources, actions, done, error — the same closed event set the voice
// websocket handler relays.
func (d *Deps) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.Validation("", "invalid request body: "+err.Error()))
		return
	}

	history := make([]promptbuilder.Turn, len(req.History))
	for i, t := range req.History {
		history[i] = promptbuilder.Turn{Role: t.Role, Text: t.Text}
	}

	events, err := d.Orchestrator.Answer(c.Request.Context(), orchestrator.Request{
		ProjectSlug: req.Project,
		SourceIP:    c.ClientIP(),
		UserID:      req.UserID,
		SessionID:   req.Session,
		Message:     req.Message,
		History:     history,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	messages := make(chan *sse.Message)
	go func() {
		defer close(messages)
		for ev := range events {
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			messages <- &sse.Message{Event: ev.Name, Data: payload}
		}
	}()

	c.Status(http.StatusOK)
	_ = sse.WithSSE(c.Request.Context(), c.Writer, messages)
}
