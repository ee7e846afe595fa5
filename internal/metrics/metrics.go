// Package metrics defines the Prometheus instrumentation for inboxd.
//
// Metrics are registered with the default registry via promauto and exposed
// by the API server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles counts completed poll cycles against the Canvas API.
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_poll_cycles_total",
			Help: "The total number of Canvas poll cycles",
		},
		[]string{"status"},
	)

	// AssignmentsUpserted counts assignments written to the store by the poller.
	AssignmentsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inboxd_assignments_upserted_total",
			Help: "The total number of assignments upserted from Canvas",
		},
	)

	// RemindersScheduled counts delivery intents published by the scheduler.
	RemindersScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inboxd_reminders_scheduled_total",
			Help: "The total number of delivery intents published",
		},
	)

	// Deliveries counts SMS delivery outcomes.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_sms_deliveries_total",
			Help: "The total number of SMS delivery attempts by final outcome",
		},
		[]string{"outcome"},
	)

	// DeliveryDuration tracks end-to-end send duration including retries.
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inboxd_sms_delivery_duration_seconds",
			Help:    "The duration of SMS deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_http_requests_total",
			Help: "The total number of API requests",
		},
		[]string{"route", "code"},
	)

	// EventStreamClients tracks the number of connected SSE clients.
	EventStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inboxd_event_stream_clients",
			Help: "The number of currently connected event stream clients",
		},
	)
)
