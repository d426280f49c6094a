package models

import (
	"sync"
	"time"
)

// SessionState represents where a client session is in its lifecycle
type SessionState string

const (
	SessionStateAccepted SessionState = "accepted"
	SessionStateServing  SessionState = "serving"
	SessionStateClosed   SessionState = "closed"
)

// Session represents one accepted client connection
type Session struct {
	ID         string       // Unique session ID
	RemoteAddr string       // Address of the client
	State      SessionState // Current state
	AcceptedAt time.Time    // When the connection was accepted
	ClosedAt   *time.Time   // When the session closed (if closed)
	CloseCause string       // Why the session closed (eof, write error, single-shot...)

	// Stats
	Stats SessionStats

	mu sync.RWMutex // Protects concurrent access
}

// SessionStats tracks per-session statistics
type SessionStats struct {
	Pokes        uint64    // Request bytes received
	FramesSent   uint64    // Responses written
	BytesSent    uint64    // Total payload bytes written
	LastPokeTime time.Time // Time of the last poke
	LastFrameSeq uint64    // Cache sequence of the last frame sent
}

// NewSession creates a session in the accepted state
func NewSession(id, remoteAddr string) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		State:      SessionStateAccepted,
		AcceptedAt: time.Now(),
	}
}

// RecordPoke records one request byte from the client
func (s *Session) RecordPoke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Stats.Pokes++
	s.Stats.LastPokeTime = time.Now()
}

// RecordFrame records a frame written to the client
func (s *Session) RecordFrame(frame EncodedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Stats.FramesSent++
	s.Stats.BytesSent += uint64(len(frame.Data))
	s.Stats.LastFrameSeq = frame.Seq
}

// SetState safely updates the session state
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state

	if state == SessionStateClosed && s.ClosedAt == nil {
		now := time.Now()
		s.ClosedAt = &now
	}
}

// Close marks the session closed with the given cause
func (s *Session) Close(cause string) {
	s.mu.Lock()
	if s.CloseCause == "" {
		s.CloseCause = cause
	}
	s.mu.Unlock()

	s.SetState(SessionStateClosed)
}

// GetState safely returns the current session state
func (s *Session) GetState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// GetStats returns a copy of the session statistics
func (s *Session) GetStats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stats
}

// Info returns an API view of the session
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		ID:         s.ID,
		RemoteAddr: s.RemoteAddr,
		State:      string(s.State),
		AcceptedAt: s.AcceptedAt.Format(time.RFC3339),
		Pokes:      s.Stats.Pokes,
		FramesSent: s.Stats.FramesSent,
		BytesSent:  s.Stats.BytesSent,
		CloseCause: s.CloseCause,
	}
	end := time.Now()
	if s.ClosedAt != nil {
		info.ClosedAt = s.ClosedAt.Format(time.RFC3339)
		end = *s.ClosedAt
	}
	info.Duration = int(end.Sub(s.AcceptedAt).Seconds())
	return info
}
