// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed metrics
	FeedSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blazealert_feed_alerts",
			Help: "Number of alerts currently retained in the feed",
		},
	)

	FeedUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blazealert_feed_unread",
			Help: "Number of unread alerts in the feed",
		},
	)

	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_alerts_ingested_total",
			Help: "Total number of alerts accepted into the feed",
		},
		[]string{"intensity"},
	)

	AlertsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_alerts_rejected_total",
			Help: "Total number of alerts refused by the feed",
		},
		[]string{"reason"}, // reason: invalid, duplicate
	)

	PersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blazealert_persist_failures_total",
			Help: "Total number of failed feed saves",
		},
	)

	EventsDropped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blazealert_events_dropped",
			Help: "Internal events skipped because a subscriber was full",
		},
	)

	// Generator metrics
	GeneratorTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_generator_ticks_total",
			Help: "Total number of generator ticks",
		},
		[]string{"outcome"}, // outcome: emitted, skipped, dropped
	)

	// Delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_deliveries_total",
			Help: "Total number of alert deliveries by channel and result",
		},
		[]string{"channel", "result"}, // channel: in_app, push
	)

	PushQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blazealert_push_queue_depth",
			Help: "Push notifications waiting to be sent",
		},
	)

	PushSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blazealert_push_send_duration_seconds",
			Help:    "Push sink call latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Permission metrics
	PermissionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blazealert_push_permission_state",
			Help: "Current push permission state (1 for the active state)",
		},
		[]string{"state"},
	)

	ConsentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blazealert_consent_requests_total",
			Help: "Total number of consent requests by result",
		},
		[]string{"result"}, // result: granted, denied, unsupported, timeout, cached
	)
)

// SetPermissionState marks state as the active one.
func SetPermissionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		PermissionState.WithLabelValues(s).Set(v)
	}
}
