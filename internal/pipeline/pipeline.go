// Package pipeline turns frame-available notifications from a display
// source into cached JPEG frames.
//
// Every notification goes through the same steps: compare the display
// rotation with the configured one and reconfigure on mismatch, acquire
// the latest raw frame, apply the frame rate limit, encode, store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"minicap/internal/display"
	"minicap/internal/encoder"
	"minicap/internal/framecache"
	"minicap/internal/metrics"
	"minicap/internal/ratelimit"
	"minicap/pkg/models"
)

// ErrNotInitialized is returned by operations that need a bound capture target
var ErrNotInitialized = errors.New("pipeline not initialized")

// State is the lifecycle state of a Pipeline
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateServing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateServing:
		return "serving"
	default:
		return "unknown"
	}
}

// Outcome tells what happened to one frame-available event
type Outcome int

const (
	OutcomeStored      Outcome = iota // encoded and cached
	OutcomeRotated                    // rotation changed, pipeline reconfigured, frame dropped
	OutcomeNoFrame                    // nothing to acquire
	OutcomeRateLimited                // too soon after the last processed frame
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeRotated:
		return "rotated"
	case OutcomeNoFrame:
		return "no_frame"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock replaces time.Now for rate limiting
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithBaseSize sets the output size at rotation 0. Defaults to the display size.
func WithBaseSize(size models.Size) Option {
	return func(p *Pipeline) { p.base = size }
}

// WithRotation sets the rotation the first Init assumes
func WithRotation(r models.Rotation) Option {
	return func(p *Pipeline) { p.rotation = r }
}

// WithLayer sets the layer passed when binding to the display
func WithLayer(layer int) Option {
	return func(p *Pipeline) { p.layer = layer }
}

// WithQuality sets the initial JPEG quality
func WithQuality(q int) Option {
	return func(p *Pipeline) { p.SetQuality(q) }
}

// WithFrameRate sets the initial frame rate limit (0 is unbounded)
func WithFrameRate(fps float64) Option {
	return func(p *Pipeline) { p.SetFrameRate(fps) }
}

// Info describes the pipeline configuration at one point in time
type Info struct {
	State       State
	Rotation    models.Rotation
	BaseSize    models.Size
	TargetSize  models.Size
	Quality     int
	FrameRate   float64
	FramePeriod time.Duration
}

// Pipeline owns the capture target and the rotation state of one display
type Pipeline struct {
	source  display.Source
	encoder *encoder.Encoder
	cache   *framecache.Cache
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	now     func() time.Time
	layer   int

	mu       sync.Mutex
	state    State
	base     models.Size
	rotation models.Rotation
	target   models.Size
	capture  display.CaptureTarget

	// serializes acquire/encode; the encoder keeps scratch rasters
	captureMu sync.Mutex

	quality   atomic.Int32
	frameRate atomic.Uint64 // math.Float64bits

	serving     chan struct{}
	servingOnce sync.Once

	dropLog rate.Sometimes
}

// New creates a pipeline in the uninitialized state
func New(source display.Source, enc *encoder.Encoder, cache *framecache.Cache, limiter *ratelimit.Limiter, m *metrics.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		encoder: enc,
		cache:   cache,
		limiter: limiter,
		metrics: m,
		now:     time.Now,
		serving: make(chan struct{}),
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	p.SetQuality(encoder.DefaultQuality)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init creates a capture target for the current rotation, binds it to the
// display and registers the pipeline as the source's frame listener.
// Calling it again replaces the previous target.
func (p *Pipeline) Init() error {
	p.mu.Lock()
	err := p.initLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.source.SetFrameListener(p.OnFrameAvailable)
	return nil
}

func (p *Pipeline) initLocked() error {
	if p.capture != nil {
		if err := p.capture.Close(); err != nil {
			log.WithError(err).Warn("Failed to close previous capture target")
		}
		p.capture = nil
	}
	p.state = StateUninitialized

	natural := p.source.CurrentSize()
	if p.base.Empty() {
		p.base = natural
	}
	if p.base.Empty() {
		return fmt.Errorf("%w: display reports size %s", encoder.ErrInvalidDimensions, natural)
	}
	if !p.rotation.Valid() {
		return fmt.Errorf("invalid rotation %d", p.rotation)
	}

	target := p.base.ForRotation(p.rotation)
	screen := natural.ForRotation(p.rotation)

	capture, err := p.source.CreateCaptureTarget(target, models.PixelFormatRGBA8888)
	if err != nil {
		return fmt.Errorf("failed to create capture target: %w", err)
	}
	if err := p.source.BindCaptureToDisplay(capture, screen.Rect(), target.Rect(), p.layer); err != nil {
		capture.Close()
		return fmt.Errorf("failed to bind capture target: %w", err)
	}

	p.capture = capture
	p.target = target
	p.state = StateInitialized

	log.WithFields(log.Fields{
		"rotation": p.rotation.Degrees(),
		"target":   target.String(),
		"screen":   screen.String(),
	}).Info("Capture pipeline initialized")
	return nil
}

// HandleFrameAvailable processes one frame-available event. Dropped frames
// are reported through the outcome; only failures return an error.
func (p *Pipeline) HandleFrameAvailable() (Outcome, error) {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()

	p.mu.Lock()
	if p.state == StateUninitialized {
		p.mu.Unlock()
		return OutcomeNoFrame, ErrNotInitialized
	}

	if live := p.source.CurrentRotation(); live != p.rotation {
		from := p.rotation
		p.rotation = live
		err := p.initLocked()
		p.mu.Unlock()
		if err != nil {
			return OutcomeRotated, fmt.Errorf("failed to reinitialize for rotation %d: %w", live, err)
		}

		p.metrics.RecordRotation(int(live))
		log.WithFields(log.Fields{
			"from": from.Degrees(),
			"to":   live.Degrees(),
		}).Info("Display rotated")
		return OutcomeRotated, nil
	}

	capture, target := p.capture, p.target
	p.mu.Unlock()

	frame, outcome, err := p.captureFrame(capture, target)
	if err != nil || outcome != OutcomeStored {
		return outcome, err
	}

	p.store(frame, true)
	return OutcomeStored, nil
}

// captureFrame runs acquire, rate limit and encode. Callers hold captureMu.
func (p *Pipeline) captureFrame(capture display.CaptureTarget, target models.Size) (models.EncodedFrame, Outcome, error) {
	raw, ok := capture.AcquireLatest()
	if !ok {
		return models.EncodedFrame{}, OutcomeNoFrame, nil
	}
	defer raw.Release()

	if !p.limiter.ShouldProcess(p.now(), p.FramePeriod()) {
		return models.EncodedFrame{}, OutcomeRateLimited, nil
	}

	start := time.Now()
	frame, err := p.encoder.Encode(raw, p.Quality(), target)
	if err != nil {
		return models.EncodedFrame{}, OutcomeNoFrame, fmt.Errorf("failed to encode frame: %w", err)
	}
	p.metrics.RecordFrameEncoded(frame.Len(), time.Since(start).Seconds())

	return frame, OutcomeStored, nil
}

func (p *Pipeline) store(frame models.EncodedFrame, serve bool) uint64 {
	seq := p.cache.Store(frame)
	if !serve {
		return seq
	}

	p.mu.Lock()
	if p.state == StateInitialized {
		p.state = StateServing
	}
	p.mu.Unlock()

	p.servingOnce.Do(func() {
		log.WithField("seq", seq).Info("First frame cached, serving")
		close(p.serving)
	})
	return seq
}

// OnFrameAvailable is the frame listener registered with the source
func (p *Pipeline) OnFrameAvailable() {
	outcome, err := p.HandleFrameAvailable()
	if err != nil {
		if outcome == OutcomeRotated {
			p.metrics.RecordFrameDropped(metrics.ReasonRotation)
		} else {
			p.metrics.RecordFrameDropped(metrics.ReasonEncodeError)
		}
		log.WithError(err).Error("Failed to process frame")
		return
	}

	switch outcome {
	case OutcomeRotated:
		p.metrics.RecordFrameDropped(metrics.ReasonRotation)
	case OutcomeNoFrame:
		p.metrics.RecordFrameDropped(metrics.ReasonNoFrame)
		p.dropLog.Do(func() { log.Debug("Frame available but none acquired") })
	case OutcomeRateLimited:
		p.metrics.RecordFrameDropped(metrics.ReasonRateLimited)
		p.dropLog.Do(func() { log.WithField("period", p.FramePeriod()).Debug("Frame dropped by rate limit") })
	}
}

// Serving is closed once the first frame has been cached
func (p *Pipeline) Serving() <-chan struct{} {
	return p.serving
}

// Screenshot initializes the pipeline, captures a single frame and writes it
// to sink. Frames must be produced by the source while it waits. The
// pipeline does not start serving.
func (p *Pipeline) Screenshot(ctx context.Context, sink io.Writer) error {
	p.mu.Lock()
	err := p.initLocked()
	capture, target := p.capture, p.target
	p.mu.Unlock()
	if err != nil {
		return err
	}

	available := make(chan struct{}, 1)
	p.source.SetFrameListener(func() {
		select {
		case available <- struct{}{}:
		default:
		}
	})
	defer p.source.SetFrameListener(nil)

	for {
		p.captureMu.Lock()
		frame, outcome, err := p.captureFrame(capture, target)
		p.captureMu.Unlock()
		if err != nil {
			return err
		}

		if outcome == OutcomeStored {
			p.store(frame, false)
			if _, err := sink.Write(frame.Data); err != nil {
				return fmt.Errorf("failed to write screenshot: %w", err)
			}
			log.WithFields(log.Fields{
				"size":  frame.Size().String(),
				"bytes": frame.Len(),
			}).Info("Screenshot captured")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-available:
		}
	}
}

// Close releases the capture target
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateUninitialized
	if p.capture == nil {
		return nil
	}
	err := p.capture.Close()
	p.capture = nil
	return err
}

// SetQuality changes the JPEG quality of future frames. Values are clamped to [1,100].
func (p *Pipeline) SetQuality(q int) {
	q = encoder.ClampQuality(q)
	p.quality.Store(int32(q))
	p.metrics.Quality.Set(float64(q))
}

// Quality returns the current JPEG quality
func (p *Pipeline) Quality() int {
	return int(p.quality.Load())
}

// SetFrameRate changes the frame rate limit. Zero, negative or NaN means unbounded.
func (p *Pipeline) SetFrameRate(fps float64) {
	if fps < 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = 0
	}
	p.frameRate.Store(math.Float64bits(fps))
}

// FrameRate returns the frame rate limit (0 when unbounded)
func (p *Pipeline) FrameRate() float64 {
	return math.Float64frombits(p.frameRate.Load())
}

// FramePeriod returns the minimum interval between processed frames
func (p *Pipeline) FramePeriod() time.Duration {
	return ratelimit.FramePeriod(p.FrameRate())
}

// State returns the lifecycle state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Rotation returns the rotation the capture target was built for
func (p *Pipeline) Rotation() models.Rotation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotation
}

// TargetSize returns the size frames are encoded at
func (p *Pipeline) TargetSize() models.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Info returns the current configuration
func (p *Pipeline) Info() Info {
	p.mu.Lock()
	info := Info{
		State:      p.state,
		Rotation:   p.rotation,
		BaseSize:   p.base,
		TargetSize: p.target,
	}
	p.mu.Unlock()

	info.Quality = p.Quality()
	info.FrameRate = p.FrameRate()
	info.FramePeriod = p.FramePeriod()
	return info
}
