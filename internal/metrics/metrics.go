// Package metrics registers the Prometheus metrics used by the gateway.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// RequestsTotal counts completed HTTP requests labelled by route and
	// status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgw_requests_total",
			Help: "Total number of requests processed by the gateway.",
		},
		[]string{"route", "status"},
	)

	// UpstreamDuration observes CMS collection fetch latency in seconds.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventgw_upstream_duration_seconds",
			Help:    "Duration of CMS collection fetches in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"collection"},
	)

	// RateLimitRejections counts /api requests rejected by the per-IP limiter.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventgw_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
	)
)

// Offline cache manager.
var (
	// OfflineRequests counts intercepted requests by class ("api", "image",
	// "static", "passthrough") and outcome ("hit", "miss", "network",
	// "stale", "offline", "bypass").
	OfflineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgw_offline_requests_total",
			Help: "Requests handled by the offline cache manager.",
		},
		[]string{"class", "outcome"},
	)

	// OfflineCacheOps counts named-cache operations ("put", "delete",
	// "put_error") per cache name.
	OfflineCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgw_offline_cache_ops_total",
			Help: "Named cache operations performed by the offline cache manager.",
		},
		[]string{"cache", "op"},
	)
)
