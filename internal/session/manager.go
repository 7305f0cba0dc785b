package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/jemaat/internal/flow"
)

// DefaultTTL is how long an idle session survives before the janitor
// removes it.
const DefaultTTL = 30 * time.Minute

var ErrNotFound = errors.New("session not found")

// Manager owns the in-memory check-in sessions, keyed by ID. Sessions are
// never persisted; a kiosk that reconnects starts a fresh flow.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*flow.Session

	directory flow.Directory
	ttl       time.Duration
	clock     func() time.Time
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewManager builds a session store. ttl <= 0 falls back to DefaultTTL.
func NewManager(directory flow.Directory, ttl time.Duration, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions:  make(map[string]*flow.Session),
		directory: directory,
		ttl:       ttl,
		clock:     time.Now,
		log:       log.With().Str("component", "sessions").Logger(),
		stop:      make(chan struct{}),
	}
}

// Create opens a new session for the given church configuration.
func (m *Manager) Create(cfg flow.SessionConfig) *flow.Session {
	if cfg.Clock == nil {
		cfg.Clock = m.clock
	}
	s := flow.NewSession(uuid.NewString(), m.directory, cfg)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*flow.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears a session down and removes it from the store.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many were
// dropped.
func (m *Manager) Sweep() int {
	cutoff := m.clock().Add(-m.ttl)

	m.mu.Lock()
	var expired []*flow.Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		m.log.Info().Int("count", len(expired)).Msg("swept idle check-in sessions")
	}
	return len(expired)
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (m *Manager) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the background sweeper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
