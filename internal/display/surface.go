package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"minicap/pkg/models"
)

const bytesPerPixel = 4

// Surface is an in-memory CaptureTarget holding at most one pending frame.
// Rows are laid out with optional padding, like a hardware image buffer.
type Surface struct {
	size       models.Size
	rowPadding int

	mu       sync.Mutex
	pending  []byte    // newest frame not yet acquired
	pendTime time.Time // when pending was queued
	free     [][]byte  // recycled buffers
	closed   bool
}

// NewSurface creates a surface for frames of size with rowPadding bytes
// appended to every row
func NewSurface(size models.Size, rowPadding int) (*Surface, error) {
	if size.Empty() {
		return nil, fmt.Errorf("invalid surface size %s", size)
	}
	if rowPadding < 0 || rowPadding%bytesPerPixel != 0 {
		return nil, fmt.Errorf("row padding must be a non-negative multiple of %d, got %d", bytesPerPixel, rowPadding)
	}
	return &Surface{size: size, rowPadding: rowPadding}, nil
}

// Size returns the frame size
func (s *Surface) Size() models.Size {
	return s.size
}

// RowStride returns the number of bytes per row including padding
func (s *Surface) RowStride() int {
	return s.size.Width*bytesPerPixel + s.rowPadding
}

// Queue copies img into the surface, replacing any pending frame.
// img must have the surface size. Returns false once the surface is closed.
func (s *Surface) Queue(img *image.RGBA) (bool, error) {
	if img.Rect.Dx() != s.size.Width || img.Rect.Dy() != s.size.Height {
		return false, fmt.Errorf("frame %dx%d does not match surface %s", img.Rect.Dx(), img.Rect.Dy(), s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, nil
	}

	buf := s.takeBuffer()
	stride := s.RowStride()
	rowBytes := s.size.Width * bytesPerPixel
	for y := 0; y < s.size.Height; y++ {
		srcOff := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(buf[y*stride:y*stride+rowBytes], img.Pix[srcOff:srcOff+rowBytes])
	}

	if s.pending != nil {
		s.free = append(s.free, s.pending)
	}
	s.pending = buf
	s.pendTime = time.Now()
	return true, nil
}

// AcquireLatest takes the pending frame
func (s *Surface) AcquireLatest() (*models.RawFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pending == nil {
		return nil, false
	}

	buf := s.pending
	s.pending = nil

	frame := models.NewRawFrame(buf, s.size.Width, s.size.Height, bytesPerPixel, s.RowStride(),
		models.PixelFormatRGBA8888, func() { s.recycle(buf) })
	frame.Timestamp = s.pendTime
	return frame, true
}

// Close discards pending frames; later Queue calls are ignored
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.pending = nil
	s.free = nil
	return nil
}

// Closed reports whether Close has been called
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Surface) takeBuffer() []byte {
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free = s.free[:n-1]
		return buf
	}
	return make([]byte, s.RowStride()*s.size.Height)
}

func (s *Surface) recycle(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed && len(s.free) < 2 {
		s.free = append(s.free, buf)
	}
}
