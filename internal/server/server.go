package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"minicap/internal/framecache"
	"minicap/internal/metrics"
	"minicap/internal/sessionmanager"
	"minicap/pkg/models"
)

const writeBufferSize = 64 * 1024

// Server answers every byte a client sends with the latest cached frame.
//
// One client is served at a time; further connections wait in the listen
// backlog, which keeps the OS default size. Responses carry no framing, the
// frame bytes are written and flushed as one message.
type Server struct {
	addr     string
	cache    *framecache.Cache
	sessions *sessionmanager.Manager
	metrics  *metrics.Metrics
	debug    atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	closed   bool
}

// New creates a new frame server
func New(addr string, cache *framecache.Cache, sessions *sessionmanager.Manager, m *metrics.Metrics) *Server {
	return &Server{
		addr:     addr,
		cache:    cache,
		sessions: sessions,
		metrics:  m,
	}
}

// SetDebug toggles single-shot mode: each session is closed after one frame
func (s *Server) SetDebug(debug bool) {
	s.debug.Store(debug)
}

// Debug reports whether single-shot mode is on
func (s *Server) Debug() bool {
	return s.debug.Load()
}

// Listen opens the TCP listener
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		listener.Close()
		return net.ErrClosed
	}
	s.listener = listener

	log.Infof("Frame server listening on %s", listener.Addr())
	return nil
}

// Addr returns the listener address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts and serves clients one after another until ctx is done or
// Close is called. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	retry := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("Frame server stopped")
				return nil
			}

			s.metrics.RecordClientError("accept")
			log.WithError(err).Warn("Failed to accept connection")
			if err := retry.Wait(ctx); err != nil {
				return nil
			}
			continue
		}

		s.serveConn(ctx, conn)
	}
}

// serveConn runs the poke/respond loop for one client until it fails
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}

	session := s.sessions.Open(conn.RemoteAddr().String())
	session.SetState(models.SessionStateServing)
	s.metrics.RecordSessionStart()

	logger := log.WithFields(log.Fields{
		"session": session.ID,
		"remote":  session.RemoteAddr,
	})
	logger.Info("Client connected")

	cause := s.respond(ctx, conn, session)

	conn.Close()
	s.track(nil)
	s.sessions.Close(session, cause)
	s.metrics.RecordSessionStop(time.Since(session.AcceptedAt).Seconds())

	stats := session.GetStats()
	logger.WithFields(log.Fields{
		"cause":  cause,
		"frames": stats.FramesSent,
		"bytes":  stats.BytesSent,
	}).Info("Client disconnected")
}

// respond serves frames on conn and returns why it stopped
func (s *Server) respond(ctx context.Context, conn net.Conn, session *models.Session) string {
	w := bufio.NewWriterSize(conn, writeBufferSize)
	var poke [1]byte

	for {
		if _, err := io.ReadFull(conn, poke[:]); err != nil {
			if ctx.Err() != nil {
				return "shutdown"
			}
			if errors.Is(err, io.EOF) {
				return "eof"
			}
			s.metrics.RecordClientError("read")
			return fmt.Sprintf("read error: %v", err)
		}
		session.RecordPoke()
		s.metrics.RecordPoke()

		frame, err := s.cache.Wait(ctx)
		if err != nil {
			return "shutdown"
		}

		_, err = w.Write(frame.Data)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			s.metrics.RecordClientError("write")
			return fmt.Sprintf("write error: %v", err)
		}
		session.RecordFrame(frame)
		s.metrics.RecordFrameSent(frame.Len())

		if s.debug.Load() {
			return "single-shot"
		}
	}
}

// track records conn as the active connection so Close can interrupt it.
// It returns false once the server is closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && conn != nil {
		return false
	}
	s.conn = conn
	return true
}

// Close stops accepting and drops the active client
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.conn != nil {
		s.conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
