package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache store metrics
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_reads_total",
			Help: "Total number of cache store reads",
		},
		[]string{"result"}, // result: hit, miss, corrupt
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_writes_total",
			Help: "Total number of cache store writes",
		},
		[]string{"result"}, // result: success, evicted_retry, abandoned
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_quota_evictions_total",
			Help: "Total number of entries evicted under quota pressure",
		},
	)

	CacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_bytes",
			Help: "Current serialized size of cached entries in bytes",
		},
		[]string{"prefix"},
	)

	// Fetch orchestrator metrics
	FetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_with_cache_total",
			Help: "Outcomes of fetch-with-cache invocations",
		},
		[]string{"outcome"}, // outcome: fresh_hit, fetched, stale_fallback, error
	)

	FetchDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_inflight_deduped_total",
			Help: "Concurrent same-key fetches that shared one in-flight call",
		},
	)

	// Upstream client metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to upstream proxies",
		},
		[]string{"upstream", "status"}, // upstream: fred, ai, quotes, apikey; status: success, retry, error
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of upstream proxy requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	UpstreamRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_http_retries_total",
			Help: "Total number of upstream HTTP request retries",
		},
	)

	UpstreamRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_rate_limit_waits_total",
			Help: "Total number of times an upstream call waited for the rate limiter",
		},
	)

	UpstreamRetryAfterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upstream_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Realtime coordinator metrics
	RealtimeCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_cycles_total",
			Help: "Total number of realtime refresh cycles",
		},
		[]string{"status"}, // status: success, failed, skipped_paused
	)

	RealtimeCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_cycle_duration_seconds",
			Help:    "Duration of realtime refresh cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Current number of realtime coordinator subscribers",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"}, // type: quotes, status, error, ping
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// HTTP API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)
