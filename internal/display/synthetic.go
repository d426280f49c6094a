package display

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"minicap/pkg/models"
)

// SyntheticSource renders a moving test pattern. Its rotation can be changed
// at any time to simulate a device being turned.
type SyntheticSource struct {
	producer

	natural  models.Size
	interval time.Duration
	rotation atomic.Int32
	frames   atomic.Uint64
}

// NewSyntheticSource creates a source with the given natural size. rowPadding
// bytes are added to each row of created targets.
func NewSyntheticSource(natural models.Size, rotation models.Rotation, interval time.Duration, rowPadding int) *SyntheticSource {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	s := &SyntheticSource{
		producer: producer{name: "synthetic", rowPadding: rowPadding},
		natural:  natural,
		interval: interval,
	}
	s.rotation.Store(int32(rotation))
	return s
}

// CurrentSize returns the natural display size
func (s *SyntheticSource) CurrentSize() models.Size {
	return s.natural
}

// CurrentRotation returns the simulated rotation
func (s *SyntheticSource) CurrentRotation() models.Rotation {
	return models.Rotation(s.rotation.Load())
}

// SetRotation turns the simulated display
func (s *SyntheticSource) SetRotation(r models.Rotation) {
	s.rotation.Store(int32(r))
}

// Frames returns the number of frames rendered so far
func (s *SyntheticSource) Frames() uint64 {
	return s.frames.Load()
}

// Step renders one frame and delivers it synchronously
func (s *SyntheticSource) Step() error {
	img, _ := s.grab(context.Background())
	return s.deliver(img)
}

// Run renders frames every interval until ctx is done
func (s *SyntheticSource) Run(ctx context.Context) error {
	return s.loop(ctx, s.interval, s.grab)
}

func (s *SyntheticSource) grab(ctx context.Context) (*image.RGBA, error) {
	n := s.frames.Add(1)
	size := s.natural.ForRotation(s.CurrentRotation())
	return TestPattern(size, n), nil
}

// TestPattern draws a gradient with a vertical bar whose position depends on n
func TestPattern(size models.Size, n uint64) *image.RGBA {
	img := image.NewRGBA(size.Rect())
	bar := int(n*4) % max(size.Width, 1)

	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / max(size.Width-1, 1)),
				G: uint8(y * 255 / max(size.Height-1, 1)),
				B: 96,
				A: 255,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
