package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "dispatches_total", Help: "Requests successfully assigned to a provider"})
	DispatchNoCapacity = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "dispatch_no_capacity_total", Help: "Dispatch attempts that found no eligible provider"})
	DispatchConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "dispatch_conflicts_total", Help: "Assignment attempts lost to a concurrent dispatcher"})
	DispatchLatency   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "roadside", Name: "dispatch_latency_seconds", Help: "Dispatch attempt latency"})

	QuotesGenerated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "quotes_generated_total", Help: "Dynamic quotes generated"})
	QuotesFinalized = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roadside", Name: "quotes_finalized_total", Help: "Quotes reconciled into final fares"})

	ProvidersOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "roadside", Name: "providers_online", Help: "Providers with a recent location report"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roadside", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roadside",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
