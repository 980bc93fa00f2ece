package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/market-pulse/backend/internal/api/handlers"
	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/db"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
	"github.com/onnwee/market-pulse/backend/internal/metrics"
	"github.com/onnwee/market-pulse/backend/internal/middleware"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
)

// Deps carries everything the router needs. Queries may be nil when no
// database is configured; the watchlist routes are skipped in that case.
type Deps struct {
	Orchestrator *fetchcache.Orchestrator
	Indicators   handlers.IndicatorFetcher
	Quotes       handlers.QuoteSource
	Analyzer     handlers.Analyzer
	Coordinator  *realtime.Coordinator
	Queries      *db.Queries
}

// NewRouter builds the full HTTP surface with the middleware chain applied.
func NewRouter(deps Deps) *mux.Router {
	cfg := config.Load()
	r := mux.NewRouter()

	// Middleware order matters: request IDs first so recovery and logging
	// can reference them, compression last so it wraps the response body.
	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverWithSentry)
	r.Use(middleware.SecurityHeaders)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	r.Use(middleware.CORS(corsConfig))

	if cfg.EnableRateLimit {
		rl := middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		r.Use(rl.Limit)
	}

	r.Use(instrument)

	r.HandleFunc("/healthz", handlers.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.Compression)

	// Indicators
	indicators := handlers.NewIndicatorsHandler(deps.Orchestrator, deps.Indicators)
	apiRouter.HandleFunc("/indicators", indicators.GetIndicators).Methods("GET")

	// Quotes
	quotesHandler := handlers.NewQuotesHandler(deps.Coordinator, deps.Quotes)
	apiRouter.HandleFunc("/quotes", quotesHandler.GetQuotes).Methods("GET")
	apiRouter.HandleFunc("/quotes/{symbol}", quotesHandler.GetQuote).Methods("GET")

	// AI analysis
	analysis := handlers.NewAnalysisHandler(deps.Orchestrator, deps.Analyzer)
	apiRouter.HandleFunc("/analysis", analysis.PostAnalysis).Methods("POST")

	// Realtime control and push
	rt := handlers.NewRealtimeHandler(deps.Coordinator)
	apiRouter.HandleFunc("/realtime/status", rt.GetStatus).Methods("GET")
	apiRouter.HandleFunc("/realtime/toggle", rt.ToggleUpdates).Methods("POST")
	apiRouter.HandleFunc("/realtime/refresh", rt.Refresh).Methods("POST")

	ws := handlers.NewWebSocketHandler(deps.Coordinator)
	apiRouter.HandleFunc("/realtime/ws", ws.HandleWebSocket).Methods("GET")

	// Watchlists (only when a database is wired up)
	if deps.Queries != nil {
		wl := handlers.NewWatchlistsHandler(deps.Queries)
		apiRouter.HandleFunc("/watchlists", wl.ListWatchlists).Methods("GET")
		apiRouter.HandleFunc("/watchlists", wl.CreateWatchlist).Methods("POST")
		apiRouter.HandleFunc("/watchlists/{id}", wl.UpdateWatchlist).Methods("PUT")
		apiRouter.HandleFunc("/watchlists/{id}", wl.DeleteWatchlist).Methods("DELETE")
	}

	// Admin endpoints require a Bearer token
	admin := apiRouter.PathPrefix("/admin").Subrouter()
	admin.Use(adminOnly(cfg))

	cacheAdmin := handlers.NewCacheAdminHandler(deps.Orchestrator, cfg.CachePrefix)
	admin.HandleFunc("/cache/stats", cacheAdmin.GetCacheStats).Methods("GET")
	admin.HandleFunc("/cache/clear", cacheAdmin.ClearCache).Methods("POST")

	return r
}

// adminOnly gates a subrouter behind the configured admin Bearer token.
func adminOnly(cfg *config.Config) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminAPIToken == "" {
				http.Error(w, "admin token not configured", http.StatusServiceUnavailable)
				return
			}
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != cfg.AdminAPIToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the WebSocket upgrade still works when wrapped.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// instrument records request counts and latencies per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
