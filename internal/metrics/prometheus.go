package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voting booth.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsFailed    prometheus.Counter
	RecordingsDiscarded prometheus.Counter
	RecordingDuration   prometheus.Histogram
	PayloadSize         prometheus.Histogram
	ActiveRecording     prometheus.Gauge
	Announcements       *prometheus.CounterVec

	// Vote submission metrics
	VoteSubmissions        *prometheus.CounterVec
	VoteSubmissionDuration prometheus.Histogram

	// Parliament API metrics
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIRetries         prometheus.Counter

	// Realtime channel metrics
	RealtimeEvents     *prometheus.CounterVec
	RealtimeConnected  prometheus.Gauge
	RealtimeReconnects prometheus.Counter

	// Session metrics
	VotedMembers prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with the default registerer
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Recording metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_recordings_started_total",
			Help: "Total number of vote recordings started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_recordings_completed_total",
			Help: "Total number of vote recordings that produced a payload",
		}),
		RecordingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_recordings_failed_total",
			Help: "Total number of vote recordings that failed to start or finalize",
		}),
		RecordingsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_recordings_discarded_total",
			Help: "Total number of recordings discarded because no speech was detected",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "booth_recording_duration_seconds",
			Help:    "Captured audio duration of vote recordings",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 12), // 0.5s to 6s
		}),
		PayloadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "booth_payload_size_bytes",
			Help:    "Size of encoded WAV payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ActiveRecording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "booth_recording_active",
			Help: "1 while a vote recording is in progress",
		}),
		Announcements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_announcements_total",
			Help: "Total number of speaker announcements",
		}, []string{"result"}),

		// Vote submission metrics
		VoteSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_vote_submissions_total",
			Help: "Total number of cast-vote requests",
		}, []string{"result"}),
		VoteSubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "booth_vote_submission_duration_seconds",
			Help:    "Duration of cast-vote requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		// Parliament API metrics
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_api_requests_total",
			Help: "Total number of parliament API requests",
		}, []string{"method", "endpoint", "status_code"}),
		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booth_api_request_duration_seconds",
			Help:    "Duration of parliament API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		APIRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_api_retries_total",
			Help: "Total number of parliament API request retries",
		}),

		// Realtime channel metrics
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_realtime_events_total",
			Help: "Total number of realtime events sent and received",
		}, []string{"direction", "event"}),
		RealtimeConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "booth_realtime_connected",
			Help: "1 while the realtime channel is connected",
		}),
		RealtimeReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "booth_realtime_reconnects_total",
			Help: "Total number of realtime reconnect attempts",
		}),

		// Session metrics
		VotedMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "booth_voted_members",
			Help: "Number of members who voted in the current session",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_http_requests_total",
			Help: "Total number of status server HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booth_http_request_duration_seconds",
			Help:    "Duration of status server HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booth_http_errors_total",
			Help: "Total number of status server HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted increments the recordings started counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	m.ActiveRecording.Set(1)
}

// RecordRecordingCompleted records a finalized recording
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.PayloadSize.Observe(float64(sizeBytes))
	m.ActiveRecording.Set(0)
}

// RecordRecordingFailed increments the recordings failed counter
func (m *Metrics) RecordRecordingFailed() {
	if m == nil {
		return
	}
	m.RecordingsFailed.Inc()
	m.ActiveRecording.Set(0)
}

// RecordRecordingEnded clears the active recording gauge without a result
func (m *Metrics) RecordRecordingEnded() {
	if m == nil {
		return
	}
	m.ActiveRecording.Set(0)
}

// RecordRecordingDiscarded increments the discarded recordings counter
func (m *Metrics) RecordRecordingDiscarded() {
	if m == nil {
		return
	}
	m.RecordingsDiscarded.Inc()
}

// RecordAnnouncement records a speaker announcement
func (m *Metrics) RecordAnnouncement(success bool) {
	if m == nil {
		return
	}
	m.Announcements.WithLabelValues(resultLabel(success)).Inc()
}

// RecordVoteSubmission records a cast-vote request
func (m *Metrics) RecordVoteSubmission(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.VoteSubmissions.WithLabelValues(resultLabel(success)).Inc()
	m.VoteSubmissionDuration.Observe(durationSeconds)
}

// RecordAPIRequest records a parliament API request
func (m *Metrics) RecordAPIRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.APIRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordAPIRetry increments the retry counter
func (m *Metrics) RecordAPIRetry() {
	if m == nil {
		return
	}
	m.APIRetries.Inc()
}

// RecordRealtimeEvent counts a realtime event; direction is "in" or "out"
func (m *Metrics) RecordRealtimeEvent(direction, event string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(direction, event).Inc()
}

// SetRealtimeConnected sets the realtime connection gauge
func (m *Metrics) SetRealtimeConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.RealtimeConnected.Set(1)
	} else {
		m.RealtimeConnected.Set(0)
	}
}

// RecordRealtimeReconnect increments the reconnect counter
func (m *Metrics) RecordRealtimeReconnect() {
	if m == nil {
		return
	}
	m.RealtimeReconnects.Inc()
}

// SetVotedMembers sets the number of members who voted this session
func (m *Metrics) SetVotedMembers(count int) {
	if m == nil {
		return
	}
	m.VotedMembers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
