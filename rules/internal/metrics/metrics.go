package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_rules_events_total",
			Help: "Total number of events accepted for evaluation",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_rules_events_dropped_total",
			Help: "Total number of events dropped before evaluation",
		},
		[]string{"reason"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoistwaywatch_rules_queue_depth",
			Help: "Current depth of the evaluation queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoistwaywatch_rules_queue_capacity",
			Help: "Maximum capacity of the evaluation queue",
		},
	)

	// Evaluation metrics
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hoistwaywatch_rules_evaluation_duration_seconds",
			Help:    "Duration of one event evaluation against the rule set",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_rules_alerts_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"rule_id", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_rules_alerts_suppressed_total",
			Help: "Total number of rule matches held back by cooldown",
		},
		[]string{"rule_id"},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_rules_publish_errors_total",
			Help: "Total number of alerts that failed to publish",
		},
	)

	// State metrics
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoistwaywatch_rules_loaded",
			Help: "Number of active rules",
		},
	)

	RulesSkipped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoistwaywatch_rules_skipped",
			Help: "Number of malformed rule entries skipped at load",
		},
	)

	CorrelationKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hoistwaywatch_rules_correlation_keys",
			Help: "Number of distinct correlation keys held in memory",
		},
	)
)
