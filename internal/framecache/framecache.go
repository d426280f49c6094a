package framecache

import (
	"bytes"
	"context"
	"sync"

	"minicap/pkg/models"
)

// Cache holds the most recently encoded frame.
//
// A store replaces the previous frame entirely; nothing is queued. The lock
// only covers the slot swap, callers do their I/O after Snapshot returns.
type Cache struct {
	mu    sync.Mutex
	frame models.EncodedFrame
	seq   uint64
	ready chan struct{} // closed on the first Store
}

// New creates an empty cache
func New() *Cache {
	return &Cache{ready: make(chan struct{})}
}

// Store replaces the cached frame and returns its sequence number.
// The frame's Data must not be modified afterwards.
func (c *Cache) Store(frame models.EncodedFrame) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	frame.Seq = c.seq
	c.frame = frame

	if c.seq == 1 {
		close(c.ready)
	}
	return c.seq
}

// Snapshot returns a copy of the current frame. ok is false until the
// first Store.
func (c *Cache) Snapshot() (frame models.EncodedFrame, ok bool) {
	c.mu.Lock()
	frame, seq := c.frame, c.seq
	c.mu.Unlock()

	if seq == 0 {
		return models.EncodedFrame{}, false
	}
	frame.Data = bytes.Clone(frame.Data)
	return frame, true
}

// Wait blocks until a frame has been stored, then returns the current one
func (c *Cache) Wait(ctx context.Context) (models.EncodedFrame, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return models.EncodedFrame{}, ctx.Err()
	}

	frame, _ := c.Snapshot()
	return frame, nil
}

// Ready is closed once the first frame has been stored
func (c *Cache) Ready() <-chan struct{} {
	return c.ready
}

// Seq returns the sequence number of the current frame (0 when empty)
func (c *Cache) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
