package display

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"minicap/pkg/models"
)

// grabFunc returns the whole display in its current orientation
type grabFunc func(ctx context.Context) (*image.RGBA, error)

// producer holds what every Source needs: the bound target, the projection
// and the frame listener. Sources embed it and feed it grabbed images.
type producer struct {
	name       string
	rowPadding int

	mu       sync.Mutex
	target   *Surface
	src      image.Rectangle
	dst      image.Rectangle
	layer    int
	listener func()
	scaled   *image.RGBA
}

// CreateCaptureTarget allocates a Surface
func (p *producer) CreateCaptureTarget(size models.Size, format models.PixelFormat) (CaptureTarget, error) {
	if format != models.PixelFormatRGBA8888 {
		return nil, fmt.Errorf("%s: unsupported pixel format %s", p.name, format)
	}
	surface, err := NewSurface(size, p.rowPadding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	return surface, nil
}

// BindCaptureToDisplay makes target the destination of future frames
func (p *producer) BindCaptureToDisplay(target CaptureTarget, src, dst image.Rectangle, layer int) error {
	surface, ok := target.(*Surface)
	if !ok {
		return fmt.Errorf("%s: %w", p.name, ErrForeignTarget)
	}
	if src.Empty() || dst.Empty() {
		return fmt.Errorf("%s: empty projection %v -> %v", p.name, src, dst)
	}
	if !dst.In(surface.Size().Rect()) {
		return fmt.Errorf("%s: destination %v outside target %s", p.name, dst, surface.Size())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.target = surface
	p.src = src
	p.dst = dst
	p.layer = layer

	log.WithFields(log.Fields{
		"source": p.name,
		"src":    src,
		"dst":    dst,
		"layer":  layer,
	}).Debug("Capture target bound to display")
	return nil
}

// SetFrameListener registers fn for frame-available notifications
func (p *producer) SetFrameListener(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

// deliver projects img onto the bound target and notifies the listener.
// Must only be called from the source's producing goroutine.
func (p *producer) deliver(img *image.RGBA) error {
	p.mu.Lock()
	target, src, dst, listener := p.target, p.src, p.dst, p.listener
	if target == nil || target.Closed() {
		p.mu.Unlock()
		return nil
	}
	frame := p.project(img, target.Size(), src, dst)
	p.mu.Unlock()

	queued, err := target.Queue(frame)
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	if queued && listener != nil {
		listener()
	}
	return nil
}

// project scales the src part of img into dst of a raster of size
func (p *producer) project(img *image.RGBA, size models.Size, src, dst image.Rectangle) *image.RGBA {
	src = src.Intersect(img.Rect)
	if src == img.Rect && dst == size.Rect() && src.Size() == dst.Size() {
		return img
	}

	if p.scaled == nil || p.scaled.Rect != size.Rect() {
		p.scaled = image.NewRGBA(size.Rect())
	}
	draw.ApproxBiLinear.Scale(p.scaled, dst, img, src, draw.Src, nil)
	return p.scaled
}

// loop calls grab every interval and delivers the result until ctx is done
func (p *producer) loop(ctx context.Context, interval time.Duration, grab grabFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		img, err := grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				log.WithError(err).WithField("source", p.name).Warnf("Failed to grab display (%d consecutive failures)", failures)
			}
			continue
		}
		failures = 0

		if err := p.deliver(img); err != nil {
			log.WithError(err).WithField("source", p.name).Warn("Failed to deliver frame")
		}
	}
}
