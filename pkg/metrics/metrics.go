// Package metrics exposes Prometheus metrics for live audio sessions.
//
// All Record methods are safe on a nil *Metrics so components can take an
// optional metrics sink without nil checks at every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for livetutor.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	ConnectDuration  prometheus.Histogram
	StateTransitions *prometheus.CounterVec

	// Audio metrics
	AudioBytesTotal     *prometheus.CounterVec
	ChunksTotal         *prometheus.CounterVec
	OutboundDropped     prometheus.Counter
	OutboundQueueLength prometheus.Gauge

	// Line cache metrics
	LinesCached     prometheus.Counter
	SegmentsSkipped *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "livetutor"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions currently connecting or active",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of live sessions by final status",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model"},
	)

	connectDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from start to session handle resolution",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	stateTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions",
		},
		[]string{"from", "to"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes exchanged with the model",
		},
		[]string{"direction"},
	)

	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Inbound audio chunks by outcome",
		},
		[]string{"outcome"},
	)

	outboundDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_dropped_total",
			Help:      "Outbound frames dropped because the send queue was full",
		},
	)

	outboundQueueLength := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_queue_length",
			Help:      "Outbound items waiting for the session",
		},
	)

	linesCached := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_cached_total",
			Help:      "Spoken lines stored in the line cache",
		},
	)

	segmentsSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Audio segments not cached, by reason",
		},
		[]string{"reason"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		connectDuration,
		stateTransitions,
		audioBytesTotal,
		chunksTotal,
		outboundDropped,
		outboundQueueLength,
		linesCached,
		segmentsSkipped,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		SessionsActive:      sessionsActive,
		SessionsTotal:       sessionsTotal,
		SessionDuration:     sessionDuration,
		ConnectDuration:     connectDuration,
		StateTransitions:    stateTransitions,
		AudioBytesTotal:     audioBytesTotal,
		ChunksTotal:         chunksTotal,
		OutboundDropped:     outboundDropped,
		OutboundQueueLength: outboundQueueLength,
		LinesCached:         linesCached,
		SegmentsSkipped:     segmentsSkipped,
		ErrorsTotal:         errorsTotal,
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session entering Connecting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending with status ("closed", "stopped", "error").
func (m *Metrics) RecordSessionEnd(model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordConnect records how long the session handle took to resolve.
func (m *Metrics) RecordConnect(duration time.Duration) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(duration.Seconds())
}

// RecordTransition records a state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordAudio records PCM bytes; direction is "in" or "out".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordChunk records an inbound chunk outcome ("scheduled", "malformed").
func (m *Metrics) RecordChunk(outcome string) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(outcome).Inc()
}

// RecordOutboundDrop records a frame dropped on a full send queue.
func (m *Metrics) RecordOutboundDrop() {
	if m == nil {
		return
	}
	m.OutboundDropped.Inc()
}

// SetOutboundQueue records the current send queue length.
func (m *Metrics) SetOutboundQueue(n int) {
	if m == nil {
		return
	}
	m.OutboundQueueLength.Set(float64(n))
}

// RecordLineCached records a line stored in the cache.
func (m *Metrics) RecordLineCached() {
	if m == nil {
		return
	}
	m.LinesCached.Inc()
}

// RecordSegmentSkipped records a segment left out of the cache.
func (m *Metrics) RecordSegmentSkipped(reason string) {
	if m == nil {
		return
	}
	m.SegmentsSkipped.WithLabelValues(reason).Inc()
}

// RecordError records an error.
func (m *Metrics) RecordError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
