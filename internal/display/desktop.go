package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"minicap/pkg/models"
)

// DesktopSource captures a local desktop display. Desktops do not report
// rotation, so the configured one is returned unchanged.
type DesktopSource struct {
	producer

	index    int
	bounds   image.Rectangle
	rotation models.Rotation
	interval time.Duration
}

// NewDesktopSource opens display index
func NewDesktopSource(index int, rotation models.Rotation, interval time.Duration) (*DesktopSource, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplay
	}
	if index < 0 || index >= n {
		return nil, fmt.Errorf("display index %d out of range (0-%d)", index, n-1)
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}

	return &DesktopSource{
		producer: producer{name: "desktop"},
		index:    index,
		bounds:   screenshot.GetDisplayBounds(index),
		rotation: rotation,
		interval: interval,
	}, nil
}

// CurrentSize returns the display size in its natural orientation
func (s *DesktopSource) CurrentSize() models.Size {
	return models.Size{Width: s.bounds.Dx(), Height: s.bounds.Dy()}.ForRotation(s.rotation)
}

// CurrentRotation returns the configured rotation
func (s *DesktopSource) CurrentRotation() models.Rotation {
	return s.rotation
}

// Run captures the display every interval until ctx is done
func (s *DesktopSource) Run(ctx context.Context) error {
	return s.loop(ctx, s.interval, s.grab)
}

func (s *DesktopSource) grab(ctx context.Context) (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", s.index, err)
	}
	return originAt0(img), nil
}

// originAt0 re-anchors img at (0,0) without copying
func originAt0(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	return &image.RGBA{
		Pix:    img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y):],
		Stride: img.Stride,
		Rect:   image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()),
	}
}
