package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	plagiarismChecksTotal  *prometheus.CounterVec
	plagiarismCacheLookups *prometheus.CounterVec
	plagiarismAlertsTotal  *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
	notificationsDropped   prometheus.Counter
	sseClientsActive       prometheus.Gauge
	plagiarismCheckSeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tamanduai_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		plagiarismChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_plagiarism_checks_total",
			Help: "Plagiarism check requests by outcome.",
		}, []string{"outcome"})

		plagiarismCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_plagiarism_cache_lookups_total",
			Help: "Plagiarism result cache lookups by result (hit, miss, error, expired).",
		}, []string{"result"})

		plagiarismAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_plagiarism_alerts_total",
			Help: "Plagiarism alert deliveries by channel and status.",
		}, []string{"channel", "status"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamanduai_notifications_published_total",
			Help: "In-app notifications delivered to local subscribers by type.",
		}, []string{"type"})

		notificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tamanduai_notifications_dropped_total",
			Help: "Notifications skipped because a stream subscriber buffer was full.",
		})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tamanduai_sse_clients_active",
			Help: "Number of connected notification stream clients.",
		})

		plagiarismCheckSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tamanduai_plagiarism_check_duration_seconds",
			Help:    "End-to-end duration of plagiarism checks that reached the provider or cache.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			plagiarismChecksTotal,
			plagiarismCacheLookups,
			plagiarismAlertsTotal,
			notificationsPublished,
			notificationsDropped,
			sseClientsActive,
			plagiarismCheckSeconds,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PlagiarismChecks counts check outcomes.
func PlagiarismChecks() *prometheus.CounterVec {
	RegisterMetrics()
	return plagiarismChecksTotal
}

// PlagiarismCacheLookups counts result cache lookups.
func PlagiarismCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return plagiarismCacheLookups
}

// PlagiarismAlerts counts alert deliveries per channel.
func PlagiarismAlerts() *prometheus.CounterVec {
	RegisterMetrics()
	return plagiarismAlertsTotal
}

// PlagiarismCheckDuration observes end-to-end check latency.
func PlagiarismCheckDuration() prometheus.Histogram {
	RegisterMetrics()
	return plagiarismCheckSeconds
}

// NotificationsPublishedTotal counts notifications fanned out to subscribers.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// NotificationsDropped counts deliveries lost to slow stream consumers.
func NotificationsDropped() prometheus.Counter {
	RegisterMetrics()
	return notificationsDropped
}

// SSEClientsActive tracks open notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}
