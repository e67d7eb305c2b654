package prometheus

import (
	"time"
)

// AnnotationMetrics holds every metric ClinLink records.
type AnnotationMetrics struct {
	// Engine
	DocumentsTotal        CounterVec
	DocumentDuration      HistogramVec
	StageDuration         HistogramVec
	SpansTotal            CounterVec
	LinkOutcomesTotal     CounterVec
	SpellCorrectionsTotal CounterVec
	InFlightDocuments     GaugeVec
	EngineInfo            GaugeVec
	EngineReloadsTotal    CounterVec

	// Cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	CacheErrorsTotal CounterVec

	// Messaging
	MessagesTotal          CounterVec
	MessageProcessDuration HistogramVec

	// Artifacts
	ArtifactFetchDuration HistogramVec

	// Health
	HealthCheckStatus GaugeVec
}

// Document status label values.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Message result label values.
const (
	MessageProcessed    = "processed"
	MessageRetried      = "retried"
	MessageDeadLettered = "dead_lettered"
	MessageDropped      = "dropped"
)

var DefaultArtifactDurationBuckets = []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120}

// NewAnnotationMetrics registers all metrics on collector.
func NewAnnotationMetrics(collector MetricsCollector) *AnnotationMetrics {
	m := &AnnotationMetrics{}

	m.DocumentsTotal = collector.RegisterCounter("documents_total", "Documents annotated", "status")
	m.DocumentDuration = collector.RegisterHistogram("document_duration_seconds", "End-to-end document annotation latency", nil)
	m.StageDuration = collector.RegisterHistogram("stage_duration_seconds", "Per-stage pipeline latency", nil, "stage")
	m.SpansTotal = collector.RegisterCounter("spans_detected_total", "Spans produced by the detector")
	m.LinkOutcomesTotal = collector.RegisterCounter("link_outcomes_total", "Linker decisions by outcome", "outcome")
	m.SpellCorrectionsTotal = collector.RegisterCounter("spell_corrections_total", "Tokens normalised from a spelling correction")
	m.InFlightDocuments = collector.RegisterGauge("inflight_documents", "Documents currently being annotated")
	m.EngineInfo = collector.RegisterGauge("engine_info", "Active engine configuration (value is always 1)", "fingerprint")
	m.EngineReloadsTotal = collector.RegisterCounter("engine_reloads_total", "Engine hot reloads", "result")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.CacheErrorsTotal = collector.RegisterCounter("cache_errors_total", "Cache operation failures", "cache", "operation")

	m.MessagesTotal = collector.RegisterCounter("messages_total", "Kafka messages by result", "topic", "result")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Kafka message handling latency", nil, "topic")

	m.ArtifactFetchDuration = collector.RegisterHistogram("artifact_fetch_duration_seconds", "Artifact download latency", DefaultArtifactDurationBuckets, "artifact")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// NewNopMetrics returns metrics backed by the no-op collector.
func NewNopMetrics() *AnnotationMetrics {
	return NewAnnotationMetrics(NewNopCollector())
}

// Helpers

func RecordDocument(m *AnnotationMetrics, status string, duration time.Duration) {
	m.DocumentsTotal.WithLabelValues(status).Inc()
	m.DocumentDuration.WithLabelValues().Observe(duration.Seconds())
}

func RecordStage(m *AnnotationMetrics, stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordCacheAccess(m *AnnotationMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordMessage(m *AnnotationMetrics, topic, result string, duration time.Duration) {
	m.MessagesTotal.WithLabelValues(topic, result).Inc()
	if duration > 0 {
		m.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
	}
}

// SetEngineInfo makes fingerprint the only engine_info series.
func SetEngineInfo(m *AnnotationMetrics, fingerprint string) {
	m.EngineInfo.Reset()
	m.EngineInfo.WithLabelValues(fingerprint).Set(1)
}

func SetHealth(m *AnnotationMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

//Personal.AI order the ending
