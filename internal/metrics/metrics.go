package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// Transfers
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfer attempts by outcome",
		},
		[]string{"outcome"}, // success|replayed|validation_error|insufficient_balance|...
	)
	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "Time spent inside Transfer, including lock waits and commit.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notifications
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch results",
		},
		[]string{"result"}, // delivered|no_subscriber|dropped|failed
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestLatency,
			TransfersTotal,
			TransferDuration,
			NotificationsTotal,
			WorkerQueueDepth,
		)
	})
}

func ObserveTransfer(outcome string, d time.Duration) {
	TransfersTotal.WithLabelValues(outcome).Inc()
	TransferDuration.Observe(d.Seconds())
}
