package storage

import (
	"bytes"
	"context"
	"errors"
)

var errSinkClosed = errors.New("sink closed")

// Sink buffers writes and stores them as one object on Close
type Sink struct {
	ctx     context.Context
	storage Storage
	path    string
	buf     bytes.Buffer
	closed  bool
}

// NewSink returns a writer that saves to path in st when closed
func NewSink(ctx context.Context, st Storage, path string) *Sink {
	return &Sink{ctx: ctx, storage: st, path: path}
}

// Write appends p to the pending object
func (s *Sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errSinkClosed
	}
	return s.buf.Write(p)
}

// Close writes the buffered bytes to storage. Nothing is stored if
// nothing was written.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.buf.Len() == 0 {
		return nil
	}
	return s.storage.Write(s.ctx, s.path, s.buf.Bytes())
}

// Path returns the object path the sink writes to
func (s *Sink) Path() string {
	return s.path
}
