package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corpusloop/platform/internal/domain"
	"github.com/corpusloop/platform/internal/orchestrator"
	"github.com/corpusloop/platform/internal/promptbuilder"
)

// maxUtteranceBytes bounds the buffered audio for a single utterance: a
// frame that would take the buffer past it discards the buffered audio
// (and the frame) and sends the client an error, protecting the process
// from an unbounded client upload.
const maxUtteranceBytes = 10 << 20 // 10 MiB

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // voice widget is embedded cross-origin by design
}

// clientFrame is a control message a voice client sends over the text
// channel interleaved with binary audio frames.
type clientFrame struct {
	Event string `json:"event"` // "end_of_utterance" | "cancel"
}

// serverFrame mirrors the orchestrator's event stream and the session's
// own lifecycle notices back to the client as JSON text frames.
type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Answerer is the subset of *orchestrator.Orchestrator a voice session
// needs: one chat turn, with the session's own accumulated history as
// context.
type Answerer interface {
	Answer(ctx context.Context, req orchestrator.Request) (<-chan orchestrator.Event, error)
}

// Handler adapts a Manager into an http.HandlerFunc that upgrades to a
// websocket and drives one session's audio in, transcript, orchestrator
// turn, and synthesized audio out.
type Handler struct {
	manager     *Manager
	recognizer  Recognizer
	synthesizer Synthesizer
	answer      Answerer
	voice       string
	emotion     string
}

// NewHandler builds a Handler wiring one Manager to the STT/TTS
// capabilities and the orchestrator.
func NewHandler(manager *Manager, recognizer Recognizer, synthesizer Synthesizer, answer Answerer) *Handler {
	return &Handler{manager: manager, recognizer: recognizer, synthesizer: synthesizer, answer: answer, voice: "default", emotion: "neutral"}
}

// ServeSession upgrades the request and drives sessionID's connection
// until the client disconnects or the session closes.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.manager.Get(sessionID)
	if err != nil {
		http.Error(w, "voice session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("voice websocket upgrade failed", slog.String("session_id", sessionID), slog.String("err", err.Error()))
		return
	}
	defer conn.Close()

	h.runConnection(r.Context(), conn, session)
}

// runConnection is the per-connection read loop: binary frames accumulate
// into the current utterance buffer, a text control frame with
// event="end_of_utterance" finalizes it and starts the
// listening -> processing -> speaking -> idle cycle.
func (h *Handler) runConnection(ctx context.Context, conn *websocket.Conn, session *Session) {
	var utterance []byte

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := session.transition(ctx, domain.VoiceListening, time.Now()); err == nil {
				h.manager.persist(ctx, session)
			}
			if len(utterance)+len(data) > maxUtteranceBytes {
				utterance = utterance[:0]
				h.sendError(conn, "utterance exceeded the buffered audio limit")
				continue
			}
			utterance = append(utterance, data...)

		case websocket.TextMessage:
			var frame clientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			switch frame.Event {
			case "end_of_utterance":
				h.handleUtterance(ctx, conn, session, utterance)
				utterance = nil
			case "cancel":
				_ = session.transition(ctx, domain.VoiceIdle, time.Now())
				utterance = nil
			}
		}
	}
}

func (h *Handler) handleUtterance(ctx context.Context, conn *websocket.Conn, session *Session, audio []byte) {
	if err := session.transition(ctx, domain.VoiceProcessing, time.Now()); err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.manager.persist(ctx, session)

	transcript, err := h.recognizer.Recognize(ctx, audio, session.Language)
	if err != nil {
		_ = session.transition(ctx, domain.VoiceError, time.Now())
		h.sendError(conn, "speech recognition failed")
		return
	}
	session.appendTurn("user", transcript, time.Now())
	h.send(conn, serverFrame{Event: "transcript", Data: transcript})

	req := orchestrator.Request{
		ProjectSlug: session.ProjectID,
		SessionID:   session.ID,
		Message:     transcript,
		History:     toPromptTurns(session.History()),
	}
	events, err := h.answer.Answer(ctx, req)
	if err != nil {
		_ = session.transition(ctx, domain.VoiceError, time.Now())
		h.sendError(conn, "answer failed")
		return
	}

	var answerText string
	var actions []orchestrator.ActionPayload
	for ev := range events {
		h.send(conn, serverFrame{Event: ev.Name, Data: ev.Data})
		switch payload := ev.Data.(type) {
		case orchestrator.TokenPayload:
			answerText += payload.Text
		case []orchestrator.ActionPayload:
			actions = payload
		}
	}
	_ = actions
	session.appendTurn("assistant", answerText, time.Now())

	if err := session.transition(ctx, domain.VoiceSpeaking, time.Now()); err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.manager.persist(ctx, session)

	audioOut, err := h.synthesizer.Synthesize(ctx, session.ProjectID, answerText, h.voice, h.emotion)
	if err == nil {
		_ = conn.WriteMessage(websocket.BinaryMessage, audioOut)
	}

	_ = session.transition(ctx, domain.VoiceIdle, time.Now())
	h.manager.persist(ctx, session)
}

// toPromptTurns adapts a session's voice-turn history into the prompt
// builder's transport-agnostic Turn shape.
func toPromptTurns(history []domain.VoiceTurn) []promptbuilder.Turn {
	out := make([]promptbuilder.Turn, len(history))
	for i, t := range history {
		out[i] = promptbuilder.Turn{Role: t.Role, Text: t.Text}
	}
	return out
}

func (h *Handler) send(conn *websocket.Conn, frame serverFrame) {
	_ = conn.WriteJSON(frame)
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, serverFrame{Event: "error", Data: map[string]string{"message": message}})
}
