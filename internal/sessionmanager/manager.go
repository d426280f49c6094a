package sessionmanager

import (
	"sync"

	"github.com/google/uuid"

	"minicap/pkg/models"
)

// DefaultHistory is how many closed sessions are kept for inspection
const DefaultHistory = 16

// Manager keeps the in-memory registry of client sessions: the one being
// served and a short history of closed ones.
type Manager struct {
	current *models.Session
	recent  []*models.Session // oldest first
	history int
	total   int
	mu      sync.RWMutex
}

// New creates a new session manager keeping history closed sessions
func New(history int) *Manager {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Manager{history: history}
}

// Open registers a newly accepted connection as the current session.
// A session that is still open is closed first.
func (m *Manager) Open(remoteAddr string) *models.Session {
	session := models.NewSession(uuid.NewString(), remoteAddr)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.retire(m.current, "replaced")
	}
	m.current = session
	m.total++
	return session
}

// Close marks session closed with cause and moves it to the history
func (m *Manager) Close(session *models.Session, cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == session {
		m.current = nil
	}
	m.retire(session, cause)
}

func (m *Manager) retire(session *models.Session, cause string) {
	if session.GetState() == models.SessionStateClosed {
		return
	}
	session.Close(cause)

	m.recent = append(m.recent, session)
	if len(m.recent) > m.history {
		m.recent = append(m.recent[:0], m.recent[len(m.recent)-m.history:]...)
	}
}

// Current returns the session being served, if any
func (m *Manager) Current() (*models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current != nil
}

// Recent returns closed sessions, newest first
func (m *Manager) Recent() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		sessions = append(sessions, m.recent[i])
	}
	return sessions
}

// GetSessionCount returns the number of sessions accepted so far
func (m *Manager) GetSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}
