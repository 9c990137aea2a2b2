package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart()
	m.RecordSessionEnd("model", "closed", time.Second)
	m.RecordConnect(time.Second)
	m.RecordTransition("IDLE", "CONNECTING")
	m.RecordAudio("out", 10)
	m.RecordChunk("scheduled")
	m.RecordOutboundDrop()
	m.SetOutboundQueue(3)
	m.RecordLineCached()
	m.RecordSegmentSkipped("unmatched")
	m.RecordError("transport")
}

func TestRecordSessionLifecycle(t *testing.T) {
	m := New("test")
	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("sessions_active=%v, want 1", got)
	}
	m.RecordSessionEnd("gemini", "error", 2*time.Second)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Fatalf("sessions_active=%v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("sessions_total{error}=%v, want 1", got)
	}
}

func TestRecordAudioIgnoresEmpty(t *testing.T) {
	m := New("test")
	m.RecordAudio("in", 0)
	m.RecordAudio("in", 480)
	if got := testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("in")); got != 480 {
		t.Fatalf("audio_bytes_total{in}=%v, want 480", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New("livetutor")
	m.RecordOutboundDrop()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "livetutor_outbound_dropped_total 1") {
		t.Fatalf("metrics body missing drop counter:\n%s", body)
	}
}
