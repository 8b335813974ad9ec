// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_speech"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	StartRequests     *prometheus.CounterVec
	StartAttempts     *prometheus.CounterVec
	StartFailures     *prometheus.CounterVec
	Listening         prometheus.Gauge
	ListeningDuration prometheus.Histogram

	// Engine metrics
	EngineErrors *prometheus.CounterVec

	// Transcript metrics
	SegmentsFinal  prometheus.Counter
	InterimUpdates prometheus.Counter
	AnswersTaken   prometheus.Counter
	AnswerLength   prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Control surface metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		StartRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_requests_total",
			Help:      "Total number of start requests by outcome (issued, skipped)",
		}, []string{"outcome"}),
		StartAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_attempts_total",
			Help:      "Total number of engine start calls by result (accepted, retry, fatal)",
		}, []string{"result"}),
		StartFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_failures_total",
			Help:      "Total number of start requests that never reached listening",
		}, []string{"reason"}),
		Listening: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "Number of managers currently listening",
		}),
		ListeningDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listening_duration_seconds",
			Help:      "Duration of listening sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of recognition engine errors",
		}, []string{"kind"}),

		SegmentsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_final_total",
			Help:      "Total number of finalized segments appended to answers",
		}),
		InterimUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_updates_total",
			Help:      "Total number of interim preview updates",
		}),
		AnswersTaken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_taken_total",
			Help:      "Total number of answers taken and cleared",
		}),
		AnswerLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_length_chars",
			Help:      "Length in characters of taken answers",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500},
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of control requests",
		}, []string{"transport", "method", "code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Control request latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"transport", "method"}),
	}
}

// RecordStartRequest records a start request and whether it was issued to the engine.
func (m *Metrics) RecordStartRequest(issued bool) {
	if issued {
		m.StartRequests.WithLabelValues("issued").Inc()
	} else {
		m.StartRequests.WithLabelValues("skipped").Inc()
	}
}

// RecordStartAttempt records the result of one engine start call.
func (m *Metrics) RecordStartAttempt(result string) {
	m.StartAttempts.WithLabelValues(result).Inc()
}

// RecordStartFailed records a start request that gave up.
func (m *Metrics) RecordStartFailed(reason string) {
	m.StartFailures.WithLabelValues(reason).Inc()
}

// RecordListeningStarted records a transition into listening.
func (m *Metrics) RecordListeningStarted() {
	m.Listening.Inc()
}

// RecordListeningEnded records a transition out of listening.
func (m *Metrics) RecordListeningEnded(durationSeconds float64) {
	m.Listening.Dec()
	m.ListeningDuration.Observe(durationSeconds)
}

// RecordEngineError records an engine error by kind.
func (m *Metrics) RecordEngineError(kind string) {
	m.EngineErrors.WithLabelValues(kind).Inc()
}

// RecordFinalSegment records a finalized segment.
func (m *Metrics) RecordFinalSegment() {
	m.SegmentsFinal.Inc()
}

// RecordInterimUpdate records an interim preview change.
func (m *Metrics) RecordInterimUpdate() {
	m.InterimUpdates.Inc()
}

// RecordAnswerTaken records a take-and-clear.
func (m *Metrics) RecordAnswerTaken(chars int) {
	m.AnswersTaken.Inc()
	m.AnswerLength.Observe(float64(chars))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRequest records a control request on the grpc or http transport.
func (m *Metrics) RecordRequest(transport, method, code string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(transport, method, code).Inc()
	m.RequestDuration.WithLabelValues(transport, method).Observe(durationSeconds)
}
