package voice

import (
	"context"
	"sync"
	"time"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// SessionStore persists a snapshot of a VoiceSession's observable state so
// the voice_sessions collection's TTL index can reclaim abandoned rows.
// Snapshots are only written: Manager.Get and the HTTP handlers read the
// in-memory session set, so a session is not served after a restart.
// internal/voice.MongoStore satisfies this.
type SessionStore interface {
	Save(ctx context.Context, s domain.VoiceSession) error
	Delete(ctx context.Context, id string) error
}

// Manager owns every live voice session, enforcing the global concurrency
// cap and sweeping sessions idle past their timeout.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	store     SessionStore
	maxActive int
	idleAfter time.Duration

	stopGC context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxActiveSessions overrides the default cap of 200 concurrent
// voice sessions.
func WithMaxActiveSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithIdleTimeout overrides the default 5-minute idle window after which
// a session with no activity is closed and garbage-collected.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleAfter = d
		}
	}
}

// New builds a Manager. store may be nil, in which case no snapshots are
// written. Either way, a session is served only by the process that
// started it.
func New(store SessionStore, opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		store:     store,
		maxActive: 200,
		idleAfter: 5 * time.Minute,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RunGC starts the idle-timeout sweep, blocking until ctx is cancelled.
// Run it in its own goroutine from the owning process's supervisor.
func (m *Manager) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle(ctx)
		}
	}
}

func (m *Manager) sweepIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.idleAfter)
	m.mu.Lock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		_ = m.Close(ctx, s.ID)
	}
}

// Start allocates a new session, subject to the global concurrency cap.
func (m *Manager) Start(ctx context.Context, projectID, language string) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.maxActive {
		m.mu.Unlock()
		return nil, apierr.New(apierr.KindResourceExhausted, "too many active voice sessions")
	}
	now := time.Now()
	s := newSession(projectID, language, now)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Save(ctx, m.snapshot(s))
	}
	return s, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "voice session not found")
	}
	return s, nil
}

// Close transitions a session to closed, removes it from the active set
// and releases its persisted row.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return apierr.New(apierr.KindValidation, "voice session not found")
	}

	_ = s.transition(ctx, domain.VoiceClosed, time.Now())
	if m.store != nil {
		_ = m.store.Delete(ctx, id)
	}
	return nil
}

// persist saves a session's current snapshot, best-effort: a failed
// write here never blocks the live session.
func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	_ = m.store.Save(ctx, m.snapshot(s))
}

func (m *Manager) snapshot(s *Session) domain.VoiceSession {
	return domain.VoiceSession{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		Language:     s.Language,
		State:        s.State(),
		History:      s.History(),
		CreatedAt:    s.createdAt,
		LastActivity: s.LastActivity(),
	}
}
