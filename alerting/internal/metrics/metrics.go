package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_alerting_alerts_received_total",
			Help: "Total number of valid alerts received",
		},
		[]string{"severity"},
	)

	AlertsInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_alerting_alerts_invalid_total",
			Help: "Total number of alert messages rejected by validation",
		},
	)

	LogWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_alerting_log_write_errors_total",
			Help: "Total number of failed alert log appends",
		},
	)

	ExecTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hoistwaywatch_alerting_exec_total",
			Help: "Total number of alert command runs by result",
		},
		[]string{"result"}, // ok, failed, timeout
	)

	ExecDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hoistwaywatch_alerting_exec_duration_seconds",
			Help:    "Alert command run time",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)
