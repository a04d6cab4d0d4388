// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the mail dispatcher and the notification scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1, 3},
		},
		[]string{"method", "route"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskflow_scheduler_sweeps_total",
			Help: "Notification sweeps that ran to completion.",
		},
	)

	SweepsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_scheduler_sweeps_skipped_total",
			Help: "Ticks skipped because a sweep was already running or the lock was held.",
		},
		[]string{"reason"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskflow_scheduler_sweep_duration_seconds",
			Help:    "Duration of notification sweeps in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_notifications_sent_total",
			Help: "Emails delivered, by category.",
		},
		[]string{"category"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_notifications_failed_total",
			Help: "Emails that could not be delivered, by category.",
		},
		[]string{"category"},
	)

	MailDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_mail_dropped_total",
			Help: "Emails dropped because the dispatch queue was full or closed.",
		},
		[]string{"category"},
	)

	MailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_mail_queue_depth",
			Help: "Emails waiting in the dispatch queue.",
		},
	)
)
