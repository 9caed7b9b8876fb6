package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline outcomes recorded by PipelineRuns.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Metrics contains all Prometheus metrics for the voice assistant.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connection metrics
	ActiveConnections prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	InvalidMessages   prometheus.Counter
	BusyRejections    prometheus.Counter

	// Pipeline metrics
	PipelineRuns      *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	StageDuration     *prometheus.HistogramVec
	ActivePipelines   prometheus.Gauge
	RecordedBytes     prometheus.Histogram
	QueryFailures     prometheus.Counter
	SynthesisFailures prometheus.Counter
	SpeakableUnits    prometheus.Counter
	FallbackSyntheses prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightvoice_active_connections",
			Help: "Current number of open client connections",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightvoice_messages_received_total",
			Help: "Total number of client messages received by type",
		}, []string{"type"}),
		InvalidMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_invalid_messages_total",
			Help: "Total number of malformed or unknown client messages",
		}),
		BusyRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_busy_rejections_total",
			Help: "Total number of requests rejected because the connection was processing",
		}),

		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightvoice_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightvoice_pipeline_duration_seconds",
			Help:    "Duration of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~30s
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightvoice_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		ActivePipelines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightvoice_active_pipelines",
			Help: "Current number of pipeline runs in flight",
		}),
		RecordedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightvoice_recorded_audio_bytes",
			Help:    "Size of recorded utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 12), // 4KB to ~8MB
		}),
		QueryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_query_failures_total",
			Help: "Total number of flight queries that failed and were replaced by an empty result",
		}),
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_synthesis_failures_total",
			Help: "Total number of speech fragments that failed to synthesize",
		}),
		SpeakableUnits: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_speakable_units_total",
			Help: "Total number of text units flushed to speech synthesis",
		}),
		FallbackSyntheses: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightvoice_fallback_syntheses_total",
			Help: "Total number of responses synthesized as a single whole-text fragment",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// RecordMessage counts one inbound client message.
func (m *Metrics) RecordMessage(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordInvalidMessage() {
	if m == nil {
		return
	}
	m.InvalidMessages.Inc()
}

func (m *Metrics) RecordBusyRejection() {
	if m == nil {
		return
	}
	m.BusyRejections.Inc()
}

// PipelineStarted marks a run as in flight and records the utterance size.
func (m *Metrics) PipelineStarted(audioBytes int) {
	if m == nil {
		return
	}
	m.ActivePipelines.Inc()
	m.RecordedBytes.Observe(float64(audioBytes))
}

// PipelineFinished records the outcome and total duration of a run.
func (m *Metrics) PipelineFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActivePipelines.Dec()
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(elapsed.Seconds())
}

// ObserveStage records how long one pipeline stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordQueryFailure() {
	if m == nil {
		return
	}
	m.QueryFailures.Inc()
}

func (m *Metrics) RecordSynthesisFailure() {
	if m == nil {
		return
	}
	m.SynthesisFailures.Inc()
}

func (m *Metrics) RecordSpeakableUnit() {
	if m == nil {
		return
	}
	m.SpeakableUnits.Inc()
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.FallbackSyntheses.Inc()
}
