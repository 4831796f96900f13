package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeplog_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sleeplog_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	EntriesLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeplog_entries_logged_total",
			Help: "Sleep ledger writes by kind (start, stop) and operation (append, replace)",
		},
		[]string{"kind", "operation"},
	)

	RemindersFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sleeplog_reminders_fired_total",
			Help: "Reminder notifications fired by the watchdog",
		},
	)

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeplog_gate_decisions_total",
			Help: "Notification gate decisions by reason",
		},
		[]string{"reason"},
	)

	InsightDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeplog_insight_decisions_total",
			Help: "Reasoning provider outcomes (send, skip, error)",
		},
		[]string{"outcome"},
	)

	DeliveryResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeplog_delivery_results_total",
			Help: "Per-transport delivery attempts",
		},
		[]string{"transport", "result"},
	)

	PushSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sleeplog_push_subscriptions",
			Help: "Number of stored web push subscriptions",
		},
	)

	ActiveWebsockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sleeplog_active_websockets",
			Help: "Number of connected websocket clients",
		},
	)
)
