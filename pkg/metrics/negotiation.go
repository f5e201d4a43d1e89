package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NegotiationMetrics records pipeline counters for the round driver and the
// extractor. A nil receiver is safe and records nothing.
type NegotiationMetrics struct {
	extractionDuration prometheus.Histogram
	extractionFallback prometheus.Counter
	roundsDriven       *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	publishFailures    prometheus.Counter
}

// NewNegotiationMetrics registers the pipeline metrics on the provided
// registerer.
func NewNegotiationMetrics(reg prometheus.Registerer) *NegotiationMetrics {
	if reg == nil {
		return &NegotiationMetrics{}
	}
	extractionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "extraction_duration_seconds",
		Help:    "Duration of offer extraction calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	extractionFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_fallbacks_total",
		Help: "Extractions that fell back to baseline-only offers.",
	})
	roundsDriven := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiation_rounds_total",
		Help: "Negotiation rounds driven, by phase.",
	}, []string{"phase"})
	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiation_events_published_total",
		Help: "Negotiation events published, by event type.",
	}, []string{"event_type"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "negotiation_event_publish_failures_total",
		Help: "Failed negotiation event publish attempts.",
	})
	reg.MustRegister(extractionDuration, extractionFallback, roundsDriven, eventsPublished, publishFailures)
	return &NegotiationMetrics{
		extractionDuration: extractionDuration,
		extractionFallback: extractionFallback,
		roundsDriven:       roundsDriven,
		eventsPublished:    eventsPublished,
		publishFailures:    publishFailures,
	}
}

// ObserveExtraction records one extraction call.
func (m *NegotiationMetrics) ObserveExtraction(duration time.Duration, fallback bool) {
	if m == nil || m.extractionDuration == nil {
		return
	}
	m.extractionDuration.Observe(duration.Seconds())
	if fallback {
		m.extractionFallback.Inc()
	}
}

// IncRound counts one completed round in the given phase.
func (m *NegotiationMetrics) IncRound(phase string) {
	if m == nil || m.roundsDriven == nil {
		return
	}
	m.roundsDriven.WithLabelValues(phase).Inc()
}

// IncEventPublished counts one published event.
func (m *NegotiationMetrics) IncEventPublished(eventType string) {
	if m == nil || m.eventsPublished == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// IncPublishFailure counts one failed publish attempt.
func (m *NegotiationMetrics) IncPublishFailure() {
	if m == nil || m.publishFailures == nil {
		return
	}
	m.publishFailures.Inc()
}
