package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"minicap/internal/display"
	"minicap/internal/display/mock_display"
	"minicap/internal/encoder"
	"minicap/internal/framecache"
	"minicap/internal/metrics"
	"minicap/internal/ratelimit"
	"minicap/pkg/models"
)

type fixture struct {
	p       *Pipeline
	cache   *framecache.Cache
	metrics *metrics.Metrics
}

func newFixture(src display.Source, opts ...Option) *fixture {
	m := metrics.New(prometheus.NewRegistry())
	cache := framecache.New()
	return &fixture{
		p:       New(src, encoder.New(), cache, ratelimit.New(), m, opts...),
		cache:   cache,
		metrics: m,
	}
}

func decodeSize(t *testing.T, data []byte) models.Size {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("cached frame is not a JPEG: %v", err)
	}
	return models.Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
}

// solidFrame returns a w x h frame filled with gray level v
func solidFrame(w, h int, v byte, released *int) *models.RawFrame {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
	}
	return models.NewRawFrame(pix, w, h, 4, w*4, models.PixelFormatRGBA8888, func() { *released++ })
}

func expectInit(src *mock_display.MockSource, target display.CaptureTarget, size models.Size) {
	src.EXPECT().CurrentSize().Return(size).AnyTimes()
	src.EXPECT().CurrentRotation().Return(models.Rotation0).AnyTimes()
	src.EXPECT().CreateCaptureTarget(size, models.PixelFormatRGBA8888).Return(target, nil)
	src.EXPECT().BindCaptureToDisplay(target, size.Rect(), size.Rect(), 0).Return(nil)
	src.EXPECT().SetFrameListener(gomock.Any())
}

func TestInitBindsRotatedTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	target := mock_display.NewMockCaptureTarget(ctrl)

	src.EXPECT().CurrentSize().Return(models.Size{Width: 40, Height: 60}).AnyTimes()
	src.EXPECT().CreateCaptureTarget(models.Size{Width: 30, Height: 20}, models.PixelFormatRGBA8888).Return(target, nil)
	src.EXPECT().BindCaptureToDisplay(target, image.Rect(0, 0, 60, 40), image.Rect(0, 0, 30, 20), 7).Return(nil)
	src.EXPECT().SetFrameListener(gomock.Any())

	f := newFixture(src,
		WithBaseSize(models.Size{Width: 20, Height: 30}),
		WithRotation(models.Rotation90),
		WithLayer(7),
	)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if got := f.p.State(); got != StateInitialized {
		t.Errorf("State() = %s, want initialized", got)
	}
	if got := f.p.TargetSize(); got != (models.Size{Width: 30, Height: 20}) {
		t.Errorf("TargetSize() = %s, want 30x20", got)
	}
}

func TestInitFailureLeavesNoState(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	target := mock_display.NewMockCaptureTarget(ctrl)
	size := models.Size{Width: 8, Height: 8}
	bindErr := errors.New("permission denied")

	src.EXPECT().CurrentSize().Return(size).AnyTimes()
	src.EXPECT().CreateCaptureTarget(size, models.PixelFormatRGBA8888).Return(target, nil)
	src.EXPECT().BindCaptureToDisplay(target, gomock.Any(), gomock.Any(), gomock.Any()).Return(bindErr)
	target.EXPECT().Close().Return(nil)

	f := newFixture(src)
	err := f.p.Init()
	if !errors.Is(err, bindErr) {
		t.Fatalf("Init() error = %v, want %v", err, bindErr)
	}
	if got := f.p.State(); got != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", got)
	}

	if _, err := f.p.HandleFrameAvailable(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("HandleFrameAvailable() error = %v, want ErrNotInitialized", err)
	}
}

func TestInitCreateFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	size := models.Size{Width: 8, Height: 8}

	src.EXPECT().CurrentSize().Return(size).AnyTimes()
	src.EXPECT().CreateCaptureTarget(size, models.PixelFormatRGBA8888).Return(nil, display.ErrNoDisplay)

	f := newFixture(src)
	if err := f.p.Init(); !errors.Is(err, display.ErrNoDisplay) {
		t.Fatalf("Init() error = %v, want ErrNoDisplay", err)
	}
	if got := f.p.State(); got != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized", got)
	}
}

func TestReinitClosesPreviousTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	first := mock_display.NewMockCaptureTarget(ctrl)
	second := mock_display.NewMockCaptureTarget(ctrl)
	size := models.Size{Width: 8, Height: 8}

	src.EXPECT().CurrentSize().Return(size).AnyTimes()
	gomock.InOrder(
		src.EXPECT().CreateCaptureTarget(size, models.PixelFormatRGBA8888).Return(first, nil),
		src.EXPECT().BindCaptureToDisplay(first, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		first.EXPECT().Close().Return(nil),
		src.EXPECT().CreateCaptureTarget(size, models.PixelFormatRGBA8888).Return(second, nil),
		src.EXPECT().BindCaptureToDisplay(second, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
	)
	src.EXPECT().SetFrameListener(gomock.Any()).Times(2)

	f := newFixture(src)
	for i := 0; i < 2; i++ {
		if err := f.p.Init(); err != nil {
			t.Fatalf("Init() #%d failed: %v", i+1, err)
		}
	}
}

func TestHandleBeforeInit(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 8, Height: 8}, 0, 0, 0)
	f := newFixture(src)

	if _, err := f.p.HandleFrameAvailable(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("HandleFrameAvailable() error = %v, want ErrNotInitialized", err)
	}
}

func TestFirstFrameStartsServing(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 40, Height: 60}, 0, 0, 16)
	f := newFixture(src)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	select {
	case <-f.p.Serving():
		t.Fatal("serving before any frame")
	default:
	}

	for i := 0; i < 3; i++ {
		if err := src.Step(); err != nil {
			t.Fatalf("Step() failed: %v", err)
		}
	}

	select {
	case <-f.p.Serving():
	default:
		t.Fatal("Serving() not closed after first frame")
	}
	if got := f.p.State(); got != StateServing {
		t.Errorf("State() = %s, want serving", got)
	}

	frame, ok := f.cache.Snapshot()
	if !ok {
		t.Fatal("cache empty")
	}
	if got := decodeSize(t, frame.Data); got != (models.Size{Width: 40, Height: 60}) {
		t.Errorf("decoded size %s, want 40x60", got)
	}
	if frame.Seq != 3 {
		t.Errorf("Seq = %d, want 3", frame.Seq)
	}
	if got := testutil.ToFloat64(f.metrics.FramesEncoded); got != 3 {
		t.Errorf("frames encoded = %v, want 3", got)
	}
}

func TestRateLimiting(t *testing.T) {
	now := time.Unix(1000, 0)
	src := display.NewSyntheticSource(models.Size{Width: 8, Height: 8}, 0, 0, 0)
	f := newFixture(src,
		WithFrameRate(10),
		WithClock(func() time.Time { return now }),
	)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	steps := []struct {
		at      time.Duration
		wantSeq uint64
	}{
		{0, 1},
		{50 * time.Millisecond, 1},
		{150 * time.Millisecond, 2},
	}

	start := now
	for _, s := range steps {
		now = start.Add(s.at)
		if err := src.Step(); err != nil {
			t.Fatalf("Step() failed: %v", err)
		}
		if got := f.cache.Seq(); got != s.wantSeq {
			t.Errorf("t=%v: cache seq = %d, want %d", s.at, got, s.wantSeq)
		}
	}

	dropped := testutil.ToFloat64(f.metrics.FramesDropped.WithLabelValues(metrics.ReasonRateLimited))
	if dropped != 1 {
		t.Errorf("rate limited drops = %v, want 1", dropped)
	}
}

func TestRotationAdaptation(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 40, Height: 60}, models.Rotation0, 0, 0)
	f := newFixture(src)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if err := src.Step(); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	if f.cache.Seq() != 1 {
		t.Fatalf("first frame not cached")
	}

	src.SetRotation(models.Rotation90)
	if err := src.Step(); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}

	if got := f.cache.Seq(); got != 1 {
		t.Errorf("frame during rotation was cached (seq %d)", got)
	}
	if got := f.p.Rotation(); got != models.Rotation90 {
		t.Errorf("Rotation() = %d, want 1", got)
	}
	if got := f.p.TargetSize(); got != (models.Size{Width: 60, Height: 40}) {
		t.Errorf("TargetSize() = %s, want 60x40", got)
	}
	if got := testutil.ToFloat64(f.metrics.RotationChanges); got != 1 {
		t.Errorf("rotation changes = %v, want 1", got)
	}
	if got := f.p.State(); got != StateInitialized {
		t.Errorf("State() after rotation = %s, want initialized", got)
	}

	if err := src.Step(); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	frame, ok := f.cache.Snapshot()
	if !ok || frame.Seq != 2 {
		t.Fatalf("frame after rotation not cached")
	}
	if got := f.p.State(); got != StateServing {
		t.Errorf("State() after next frame = %s, want serving", got)
	}
	if got := decodeSize(t, frame.Data); got != (models.Size{Width: 60, Height: 40}) {
		t.Errorf("decoded size %s, want 60x40", got)
	}
}

func TestCacheHoldsLatestEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	target := mock_display.NewMockCaptureTarget(ctrl)
	size := models.Size{Width: 16, Height: 16}
	expectInit(src, target, size)

	const events = 5
	released := 0
	n := 0
	target.EXPECT().AcquireLatest().DoAndReturn(func() (*models.RawFrame, bool) {
		n++
		return solidFrame(16, 16, byte(n*40), &released), true
	}).Times(events)

	f := newFixture(src)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	for i := 0; i < events; i++ {
		outcome, err := f.p.HandleFrameAvailable()
		if err != nil || outcome != OutcomeStored {
			t.Fatalf("event %d: %s, %v", i+1, outcome, err)
		}
	}

	if released != events {
		t.Errorf("released %d frames, want %d", released, events)
	}

	frame, _ := f.cache.Snapshot()
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	r, _, _, _ := img.At(8, 8).RGBA()
	if got, want := int(r>>8), events*40; got < want-4 || got > want+4 {
		t.Errorf("cached gray level %d, want about %d", got, want)
	}
}

func TestNoFrameAvailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	target := mock_display.NewMockCaptureTarget(ctrl)
	size := models.Size{Width: 8, Height: 8}
	expectInit(src, target, size)
	target.EXPECT().AcquireLatest().Return(nil, false)

	f := newFixture(src)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	outcome, err := f.p.HandleFrameAvailable()
	if err != nil || outcome != OutcomeNoFrame {
		t.Errorf("HandleFrameAvailable() = %s, %v, want no_frame", outcome, err)
	}
	if _, ok := f.cache.Snapshot(); ok {
		t.Error("cache not empty")
	}
}

func TestEncodeFailureReleasesFrame(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mock_display.NewMockSource(ctrl)
	target := mock_display.NewMockCaptureTarget(ctrl)
	size := models.Size{Width: 8, Height: 8}
	expectInit(src, target, size)

	released := 0
	target.EXPECT().AcquireLatest().Return(solidFrame(4, 4, 0, &released), true)

	f := newFixture(src)
	if err := f.p.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err := f.p.HandleFrameAvailable()
	if !errors.Is(err, encoder.ErrInvalidDimensions) {
		t.Errorf("HandleFrameAvailable() error = %v, want ErrInvalidDimensions", err)
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
	if _, ok := f.cache.Snapshot(); ok {
		t.Error("cache not empty after failed encode")
	}
	if got := f.p.State(); got != StateInitialized {
		t.Errorf("State() = %s, want initialized", got)
	}
}

func TestScreenshot(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 32, Height: 24}, 0, time.Millisecond, 0)
	f := newFixture(src, WithBaseSize(models.Size{Width: 16, Height: 12}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go src.Run(ctx)

	var buf bytes.Buffer
	if err := f.p.Screenshot(ctx, &buf); err != nil {
		t.Fatalf("Screenshot() failed: %v", err)
	}

	if got := decodeSize(t, buf.Bytes()); got != (models.Size{Width: 16, Height: 12}) {
		t.Errorf("screenshot size %s, want 16x12", got)
	}
	if got := f.p.State(); got == StateServing {
		t.Error("screenshot entered serving state")
	}
	select {
	case <-f.p.Serving():
		t.Error("Serving() closed by screenshot")
	default:
	}
}

func TestScreenshotCancel(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 8, Height: 8}, 0, 0, 0)
	f := newFixture(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.p.Screenshot(ctx, &bytes.Buffer{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Screenshot() error = %v, want context.Canceled", err)
	}
}

func TestSettings(t *testing.T) {
	src := display.NewSyntheticSource(models.Size{Width: 8, Height: 8}, 0, 0, 0)
	f := newFixture(src)

	if got := f.p.Quality(); got != encoder.DefaultQuality {
		t.Errorf("default quality %d", got)
	}
	f.p.SetQuality(0)
	if got := f.p.Quality(); got != 1 {
		t.Errorf("SetQuality(0) -> %d, want 1", got)
	}
	f.p.SetQuality(500)
	if got := f.p.Quality(); got != 100 {
		t.Errorf("SetQuality(500) -> %d, want 100", got)
	}
	if got := testutil.ToFloat64(f.metrics.Quality); got != 100 {
		t.Errorf("quality gauge %v", got)
	}

	if got := f.p.FramePeriod(); got != 0 {
		t.Errorf("default period %v, want 0", got)
	}
	f.p.SetFrameRate(10)
	if got := f.p.FramePeriod(); got != 100*time.Millisecond {
		t.Errorf("period at 10fps = %v", got)
	}
	f.p.SetFrameRate(-3)
	if got := f.p.FrameRate(); got != 0 {
		t.Errorf("SetFrameRate(-3) -> %v, want 0", got)
	}
}
