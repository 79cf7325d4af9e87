// Package voice is the Voice Session Manager component: a per-session
// state machine (idle -> listening -> processing -> speaking -> idle, with
// error reachable from any state and closed terminal) wiring speech
// recognition, the Answer Orchestrator and speech synthesis behind a
// gorilla/websocket connection. The hub shape (register/unregister,
// per-connection read loop, upgrader) is grounded on the teacher pack's
// codeready-toolchain-tarsy WSHub, generalized from a broadcast hub to one
// independent session-plus-state-machine per connection.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// maxHistory bounds a session's stored turn history, per spec's
// "bounded" requirement.
const maxHistory = 40

// transitions enumerates the state machine's legal non-terminal edges.
// error and closed are reachable from any non-closed state and are
// handled outside this table.
var transitions = map[domain.VoiceState]map[domain.VoiceState]bool{
	domain.VoiceIdle:       {domain.VoiceListening: true},
	domain.VoiceListening:  {domain.VoiceProcessing: true},
	domain.VoiceProcessing: {domain.VoiceSpeaking: true, domain.VoiceListening: true},
	domain.VoiceSpeaking:   {domain.VoiceIdle: true},
}

// Session is one live voice interaction. Audio buffering and the
// websocket connection itself live in ws.go; Session only owns the state
// machine and turn history so it can be unit-tested without a real
// connection.
type Session struct {
	ID        string
	ProjectID string
	Language  string

	mu           sync.Mutex
	state        domain.VoiceState
	history      []domain.VoiceTurn
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(projectID, language string, now time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Language:     language,
		state:        domain.VoiceIdle,
		createdAt:    now,
		lastActivity: now,
	}
}

// State reports the session's current node.
func (s *Session) State() domain.VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the session's bounded turn history.
func (s *Session) History() []domain.VoiceTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.VoiceTurn, len(s.history))
	copy(out, s.history)
	return out
}

// LastActivity reports the last time the session transitioned or appended
// a turn, used by the Manager's idle-timeout sweep.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// transition moves the session to next, rejecting edges the state machine
// doesn't allow. error and closed are always reachable; closed is
// terminal and rejects every further transition.
func (s *Session) transition(ctx context.Context, next domain.VoiceState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.VoiceClosed {
		return apierr.New(apierr.KindConflict, "voice session is closed")
	}
	if next == domain.VoiceError || next == domain.VoiceClosed {
		s.state = next
		s.lastActivity = now
		return nil
	}
	if !transitions[s.state][next] {
		return apierr.New(apierr.KindConflict, fmt.Sprintf("voice session cannot move from %s to %s", s.state, next))
	}
	s.state = next
	s.lastActivity = now
	return nil
}

// appendTurn records a turn, trimming the oldest entries once the history
// exceeds maxHistory.
func (s *Session) appendTurn(role, text string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, domain.VoiceTurn{Role: role, Text: text, Timestamp: now})
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	s.lastActivity = now
}
