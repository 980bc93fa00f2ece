package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	UserAgent      string
	ListenAddr     string
	HTTPMaxRetries int
	HTTPRetryBase  time.Duration
	HTTPTimeout    time.Duration
	LogHTTPRetries bool
	// Upstream proxy endpoints
	FredProxyURL   string
	AIProxyURL     string
	QuotesProxyURL string
	APIKeyProxyURL string
	// Hard deadline for a single upstream fetch (spec: 30s)
	FetchTimeout time.Duration
	// Cache store sizing
	CacheQuotaBytes int64
	CachePrefix     string
	// Realtime coordinator
	RealtimeInterval   time.Duration
	RealtimeMaxRetries int
	RealtimeRetryBase  time.Duration
	WatchedSymbols     []string
	QuoteCacheMB       int64
	QuoteCacheEntries  int64
	// Upstream pacing
	QuotesRPS       float64
	QuotesBurstSize int
	// API key provider
	APIKeyMaxRetries int
	DemoAPIKey       string
	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string
	// Security settings
	RateLimitGlobal      float64
	RateLimitGlobalBurst int
	RateLimitPerIP       float64
	RateLimitPerIPBurst  int
	CORSAllowedOrigins   []string
	EnableRateLimit      bool
	// Observability settings
	LogLevel          string
	OTELEnabled       bool
	OTELEndpoint      string
	OTELSampleRate    float64
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	ua := os.Getenv("MARKET_PULSE_USER_AGENT")
	if strings.TrimSpace(ua) == "" {
		ua = "market-pulse/0.1"
	}
	cached = &Config{
		UserAgent:      ua,
		ListenAddr:     envOrDefault("LISTEN_ADDR", ":8000"),
		HTTPMaxRetries: utils.GetEnvAsInt("HTTP_MAX_RETRIES", 3),
		HTTPRetryBase:  utils.GetEnvAsDurationMS("HTTP_RETRY_BASE_MS", 300),
		HTTPTimeout:    utils.GetEnvAsDurationMS("HTTP_TIMEOUT_MS", 15000),
		LogHTTPRetries: utils.GetEnvAsBool("LOG_HTTP_RETRIES", false),
		FredProxyURL:   envOrDefault("FRED_PROXY_URL", "http://localhost:9000/fred-proxy"),
		AIProxyURL:     envOrDefault("AI_PROXY_URL", "http://localhost:9000/analyze-stocks"),
		QuotesProxyURL: envOrDefault("QUOTES_PROXY_URL", "http://localhost:9000/quotes"),
		APIKeyProxyURL: envOrDefault("API_KEY_PROXY_URL", "http://localhost:9000/get-api-key"),
		FetchTimeout:   utils.GetEnvAsDurationMS("FETCH_TIMEOUT_MS", 30000),
		// Keep the response cache small; entries are JSON and cheap to refetch
		CacheQuotaBytes: utils.GetEnvAsInt64("CACHE_QUOTA_BYTES", 5*1024*1024),
		CachePrefix:     envOrDefault("CACHE_PREFIX", "econ_"),
		// Realtime: one shared polling cycle for all subscribers
		RealtimeInterval:   utils.GetEnvAsDurationMS("REALTIME_INTERVAL_MS", 60000),
		RealtimeMaxRetries: utils.GetEnvAsInt("REALTIME_MAX_RETRIES", 3),
		RealtimeRetryBase:  utils.GetEnvAsDurationMS("REALTIME_RETRY_BASE_MS", 2000),
		WatchedSymbols:     utils.GetEnvAsSlice("WATCHED_SYMBOLS", []string{"SPY", "QQQ", "DIA"}, ","),
		QuoteCacheMB:       utils.GetEnvAsInt64("QUOTE_CACHE_MB", 16),
		QuoteCacheEntries:  utils.GetEnvAsInt64("QUOTE_CACHE_ENTRIES", 4096),
		// Quotes upstream pacing: default ~1 request per second
		QuotesRPS:        utils.GetEnvAsFloat("QUOTES_RPS", 1.0),
		QuotesBurstSize:  utils.GetEnvAsInt("QUOTES_BURST_SIZE", 2),
		APIKeyMaxRetries: utils.GetEnvAsInt("API_KEY_MAX_RETRIES", 3),
		DemoAPIKey:       envOrDefault("DEMO_API_KEY", "demo"),
		AdminAPIToken:    strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		CORSAllowedOrigins:   utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}, ","),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
	}
	return cached
}

// Reset clears the cached config. For tests only.
func Reset() {
	cached = nil
}

func envOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}
