// Package session tracks the lifecycle of per-device capture sessions,
// providing create/get/remove/list operations used by the command layer.
// Each session owns the decoder it was created with; removing a session
// stops that decoder.
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/user/snapstream/config"
	"github.com/user/snapstream/decoder"
)

// Session represents one device's live capture.
type Session struct {
	DeviceID  string
	Quality   config.Quality
	StartedAt time.Time

	dec  *decoder.Decoder
	done chan struct{}
}

// Decoder returns the decoder owned by this session.
func (s *Session) Decoder() *decoder.Decoder {
	return s.dec
}

// Done is closed when the session is removed from its manager.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stats reports the owned decoder's counters.
func (s *Session) Stats() decoder.Stats {
	return s.dec.Stats()
}

// Manager manages the lifecycle of active sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. If log is nil, slog.Default()
// is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session owning dec. Returns the session and true
// if created, or nil and false if a session for this device already
// exists.
func (m *Manager) Create(deviceID string, quality config.Quality, dec *decoder.Decoder) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[deviceID]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "device", deviceID)
		return nil, false
	}

	s := &Session{
		DeviceID:  deviceID,
		Quality:   quality,
		StartedAt: time.Now(),
		dec:       dec,
		done:      make(chan struct{}),
	}

	m.sessions[deviceID] = s
	m.log.Info("session created", "device", deviceID, "quality", quality)
	return s, true
}

// Get returns the session for a device, if any.
func (m *Manager) Get(deviceID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// Remove stops a session's decoder and drops it from the manager. Unknown
// devices are ignored.
func (m *Manager) Remove(deviceID string) {
	m.mu.Lock()
	s, ok := m.sessions[deviceID]
	if ok {
		delete(m.sessions, deviceID)
	}
	m.mu.Unlock()

	if ok {
		s.dec.Stop()
		close(s.done)
		m.log.Info("session removed", "device", deviceID)
	}
}

// List returns all active sessions ordered by device ID.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].DeviceID < sessions[j].DeviceID
	})
	return sessions
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll removes every session, stopping each decoder.
func (m *Manager) StopAll() {
	for _, s := range m.List() {
		m.Remove(s.DeviceID)
	}
}
