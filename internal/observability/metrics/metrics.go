// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lingualive"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	SessionsAborted *prometheus.CounterVec

	// Audio metrics
	AudioBytesCaptured  prometheus.Counter
	AudioFramesCaptured prometheus.Counter
	AudioFramesDropped  prometheus.Counter
	CaptureErrors       *prometheus.CounterVec

	// Recognition metrics
	FragmentsInterim   prometheus.Counter
	FragmentsFinal     prometheus.Counter
	FragmentsStale     prometheus.Counter
	Utterances         prometheus.Counter
	RecognizerRestarts *prometheus.CounterVec
	RecognizerErrors   *prometheus.CounterVec

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationErrors   *prometheus.CounterVec
	TranslationLatency  prometheus.Histogram
	TranslationBypassed prometheus.Counter

	// Ledger metrics
	EntriesRecorded prometheus.Counter
	EntriesFallback prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active recording sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of recording sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		}),
		SessionsAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_aborted_total",
			Help:      "Recording sessions that ended without a normal stop",
		}, []string{"reason"}),

		AudioBytesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_captured_total",
			Help:      "Total PCM bytes read from the capture backend",
		}),
		AudioFramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_captured_total",
			Help:      "Total PCM frames read from the capture backend",
		}),
		AudioFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "PCM frames dropped while the recognizer was not listening",
		}),
		CaptureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Microphone acquisition failures by kind",
		}, []string{"kind"}),

		FragmentsInterim: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_interim_total",
			Help:      "Total interim fragments delivered",
		}),
		FragmentsFinal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_final_total",
			Help:      "Total final fragments delivered",
		}),
		FragmentsStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_stale_total",
			Help:      "Fragments dropped for arriving out of result order",
		}),
		Utterances: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total utterances finalized",
		}),
		RecognizerRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_restarts_total",
			Help:      "Automatic recognizer restarts",
		}, []string{"provider"}),
		RecognizerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Recognizer stream errors",
		}, []string{"provider", "error_type"}),

		TranslationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_requests_total",
			Help:      "Translation service requests",
		}, []string{"operation"}),
		TranslationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Translation service failures",
		}, []string{"operation", "error_type"}),
		TranslationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Translation round-trip latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
		TranslationBypassed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_bypassed_total",
			Help:      "Translations answered locally without a service call",
		}),

		EntriesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Entries appended to the transcript ledger",
		}),
		EntriesFallback: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_fallback_entries_total",
			Help:      "Entries recorded with a translation error marker",
		}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new recording session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a recording session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionAborted records a session ended by abort, reset or failure.
func (m *Metrics) RecordSessionAborted(reason string) {
	m.SessionsAborted.WithLabelValues(reason).Inc()
}

// RecordAudioCaptured records one captured frame.
func (m *Metrics) RecordAudioCaptured(bytes int) {
	m.AudioBytesCaptured.Add(float64(bytes))
	m.AudioFramesCaptured.Inc()
}

// RecordFrameDropped records a frame the recognizer could not accept.
func (m *Metrics) RecordFrameDropped() {
	m.AudioFramesDropped.Inc()
}

// RecordCaptureError records a microphone acquisition failure.
func (m *Metrics) RecordCaptureError(kind string) {
	m.CaptureErrors.WithLabelValues(kind).Inc()
}

// RecordFragment records a delivered fragment.
func (m *Metrics) RecordFragment(final bool) {
	if final {
		m.FragmentsFinal.Inc()
		return
	}
	m.FragmentsInterim.Inc()
}

// RecordStaleFragment records a fragment dropped for ordering.
func (m *Metrics) RecordStaleFragment() {
	m.FragmentsStale.Inc()
}

// RecordUtterance records a finalized utterance.
func (m *Metrics) RecordUtterance() {
	m.Utterances.Inc()
}

// RecordRestart records an automatic recognizer restart.
func (m *Metrics) RecordRestart(provider string) {
	m.RecognizerRestarts.WithLabelValues(provider).Inc()
}

// RecordRecognizerError records a recognizer failure.
func (m *Metrics) RecordRecognizerError(provider, errorType string) {
	m.RecognizerErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordTranslation records a translation round trip.
func (m *Metrics) RecordTranslation(operation string, err error, errorType string, latencySeconds float64) {
	m.TranslationRequests.WithLabelValues(operation).Inc()
	m.TranslationLatency.Observe(latencySeconds)
	if err != nil {
		m.TranslationErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordTranslationBypass records a locally answered translation.
func (m *Metrics) RecordTranslationBypass() {
	m.TranslationBypassed.Inc()
}

// RecordEntry records a ledger append.
func (m *Metrics) RecordEntry(fallback bool) {
	m.EntriesRecorded.Inc()
	if fallback {
		m.EntriesFallback.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
