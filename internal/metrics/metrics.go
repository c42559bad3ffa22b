package metrics

import (
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_api_requests_total",
			Help: "API calls issued by the client",
		},
		[]string{"route", "method", "status"},
	)
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_api_latency_seconds",
			Help:    "Latency of API calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Payments
	Payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_payments_total",
			Help: "Invoice confirmation outcomes",
		},
		[]string{"outcome"}, // paid|declined|not_pending|busy|failed
	)

	// Scanner
	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_scans_total",
			Help: "Scanner decode results",
		},
		[]string{"result"}, // decoded|duplicate|camera_error
	)

	// View model
	Refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_refreshes_total",
			Help: "Balance and transaction list refreshes",
		},
		[]string{"kind", "result"}, // balance|transactions, applied|stale|failed
	)

	// Debug listener
	DebugLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_debug_http_latency_seconds",
			Help:    "Latency of debug listener requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	DebugPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_debug_http_panics_total",
			Help: "Debug listener handlers that panicked.",
		},
		[]string{"route"},
	)

	// Worker kuyruğu
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// /metrics endpoint'i için handler
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(APIRequests, APILatency, Payments, Scans, Refreshes, DebugLatency, DebugPanics, WorkerQueueDepth)
	})
}

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

// Route collapses ids and query strings so label cardinality stays bounded.
func Route(path string) string {
	path, _, _ = strings.Cut(path, "?")
	for numericSegment.MatchString(path) {
		path = numericSegment.ReplaceAllString(path, "/{id}$1")
	}
	return path
}
