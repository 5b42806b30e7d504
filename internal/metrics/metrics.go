// Package metrics exposes the detector's operational counters via
// Prometheus. All metrics live in the default registry and are served
// by the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsProcessed counts records that completed the full pipeline.
	PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_packets_processed_total",
		Help: "Total packet records processed by the pipeline.",
	})

	// PacketsDropped counts ingest records dropped on queue overflow.
	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_packets_dropped_total",
		Help: "Total packet records dropped because the ingest queue was full.",
	})

	// ParseErrors counts frames the normalizer could not convert.
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_parse_errors_total",
		Help: "Total captured frames dropped as malformed or unsupported.",
	})

	// PayloadTruncations counts payloads cut to the configured maximum.
	PayloadTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_payload_truncations_total",
		Help: "Total payloads truncated to the configured byte limit.",
	})

	// AlertsGenerated counts alerts by severity.
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_alerts_generated_total",
		Help: "Total alerts generated, labeled by severity.",
	}, []string{"severity"})

	// AlertsSuppressed counts predictions rejected by the cooldown or
	// confidence gate.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_alerts_suppressed_total",
		Help: "Total attack predictions suppressed by confidence or cooldown.",
	})

	// PersistenceFailures counts failed alert log writes.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_alert_persistence_failures_total",
		Help: "Total alert log writes that failed.",
	})

	// ActiveFlows tracks the current flow table population.
	ActiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netsentry_active_flows",
		Help: "Current number of tracked flows.",
	})

	// FlowsEvicted counts flows removed by the idle sweep.
	FlowsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_flows_evicted_total",
		Help: "Total flows evicted after exceeding the session timeout.",
	})

	// ProcessingLatency observes per-record pipeline latency.
	ProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netsentry_processing_latency_seconds",
		Help:    "Per-record processing latency through the full pipeline.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	})
)
