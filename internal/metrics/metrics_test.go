package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordFrameEncoded(5000, 0.002)
	m.RecordFrameDropped(ReasonRateLimited)
	m.RecordFrameDropped(ReasonRateLimited)
	m.RecordRotation(3)
	m.RecordSessionStart()
	m.RecordPoke()
	m.RecordFrameSent(5000)
	m.RecordSessionStop(1.5)

	if got := testutil.ToFloat64(m.FramesEncoded); got != 1 {
		t.Errorf("frames encoded = %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues(ReasonRateLimited)); got != 2 {
		t.Errorf("rate limited drops = %v", got)
	}
	if got := testutil.ToFloat64(m.Rotation); got != 3 {
		t.Errorf("rotation gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("active sessions = %v", got)
	}
	if got := testutil.ToFloat64(m.BytesSent); got != 5000 {
		t.Errorf("bytes sent = %v", got)
	}
	if n := testutil.CollectAndCount(m.SessionDuration); n != 1 {
		t.Errorf("session duration series = %d", n)
	}
}

func TestHTTPStatusClasses(t *testing.T) {
	m := New(prometheus.NewRegistry())

	for _, status := range []int{200, 201, 404, 503} {
		m.RecordHTTPRequest("GET", "/api/v1/status", status, 0.01)
	}

	for class, want := range map[string]float64{"2xx": 2, "4xx": 1, "5xx": 1, "3xx": 0} {
		got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/status", class))
		if got != want {
			t.Errorf("%s = %v, want %v", class, got, want)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
