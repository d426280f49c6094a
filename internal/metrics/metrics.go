package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons
const (
	ReasonNoFrame     = "no_frame"
	ReasonRateLimited = "rate_limited"
	ReasonRotation    = "rotation"
	ReasonEncodeError = "encode_error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Capture metrics
	FramesEncoded   prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	EncodeDuration  prometheus.Histogram
	FrameSize       prometheus.Histogram
	RotationChanges prometheus.Counter
	Rotation        prometheus.Gauge
	Quality         prometheus.Gauge

	// Client metrics
	ActiveSessions  prometheus.Gauge
	TotalSessions   prometheus.Counter
	SessionDuration prometheus.Histogram
	Pokes           prometheus.Counter
	FramesSent      prometheus.Counter
	BytesSent       prometheus.Counter
	ClientErrors    *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Capture metrics
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_frames_encoded_total",
			Help: "Total number of frames encoded and cached",
		}),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minicap_frames_dropped_total",
				Help: "Total number of frame-available events that did not produce a cached frame",
			},
			[]string{"reason"},
		),
		EncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "minicap_encode_duration_seconds",
			Help:    "Time spent encoding one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~0.5s
		}),
		FrameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "minicap_frame_size_bytes",
			Help:    "Size of encoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10), // 4KB to ~2MB
		}),
		RotationChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_rotation_changes_total",
			Help: "Total number of display rotation changes handled",
		}),
		Rotation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minicap_rotation",
			Help: "Current rotation in quarter turns",
		}),
		Quality: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minicap_quality",
			Help: "Current JPEG quality",
		}),

		// Client metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minicap_active_sessions",
			Help: "Number of client sessions being served",
		}),
		TotalSessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_sessions_total",
			Help: "Total number of client sessions accepted",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "minicap_session_duration_seconds",
			Help:    "Duration of client sessions",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
		}),
		Pokes: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_pokes_total",
			Help: "Total number of frame requests received",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_frames_sent_total",
			Help: "Total number of frames written to clients",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "minicap_bytes_sent_total",
			Help: "Total bytes written to clients",
		}),
		ClientErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minicap_client_errors_total",
				Help: "Total number of client I/O errors",
			},
			[]string{"op"}, // accept, read, write
		),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minicap_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minicap_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// RecordFrameEncoded records a frame stored in the cache
func (m *Metrics) RecordFrameEncoded(size int, seconds float64) {
	m.FramesEncoded.Inc()
	m.FrameSize.Observe(float64(size))
	m.EncodeDuration.Observe(seconds)
}

// RecordFrameDropped records a dropped frame-available event
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordRotation records a rotation change
func (m *Metrics) RecordRotation(rotation int) {
	m.RotationChanges.Inc()
	m.Rotation.Set(float64(rotation))
}

// RecordSessionStart records an accepted session
func (m *Metrics) RecordSessionStart() {
	m.ActiveSessions.Inc()
	m.TotalSessions.Inc()
}

// RecordSessionStop records a closed session
func (m *Metrics) RecordSessionStop(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordPoke records a frame request
func (m *Metrics) RecordPoke() {
	m.Pokes.Inc()
}

// RecordFrameSent records a frame written to a client
func (m *Metrics) RecordFrameSent(bytes int) {
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordClientError records a client I/O error
func (m *Metrics) RecordClientError(op string) {
	m.ClientErrors.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, m.statusCodeToString(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// statusCodeToString converts an HTTP status code to a string
func (m *Metrics) statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
