package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/aianalysis"
	"github.com/onnwee/market-pulse/backend/internal/api"
	"github.com/onnwee/market-pulse/backend/internal/apikeys"
	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/db"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
	"github.com/onnwee/market-pulse/backend/internal/fredapi"
	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/quotes"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
)

// Server wires the cache, upstream clients, realtime coordinator, and
// optional database into one HTTP service.
type Server struct {
	cfg   *config.Config
	http  *http.Server
	coord *realtime.Coordinator
	db    *db.Queries
}

// New builds the full dependency graph from config.
func New(cfg *config.Config) (*Server, error) {
	store := cache.NewMemStore(cfg.CacheQuotaBytes)
	orch := fetchcache.New(store)

	keys := apikeys.NewProvider(cfg)
	quotesClient := quotes.NewClient(cfg, keys)
	fredClient := fredapi.NewClient(cfg)
	analysisClient := aianalysis.NewClient(cfg)

	coord, err := realtime.New(cfg, func(ctx context.Context) (map[string]quotes.Quote, error) {
		return quotesClient.Snapshot(ctx, cfg.WatchedSymbols)
	})
	if err != nil {
		return nil, err
	}

	var queries *db.Queries
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		queries, err = db.Init(dbURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected")
	} else {
		logger.Warn("DATABASE_URL not set, watchlist endpoints disabled")
	}

	router := api.NewRouter(api.Deps{
		Orchestrator: orch,
		Indicators:   fredClient,
		Quotes:       quotesClient,
		Analyzer:     analysisClient,
		Coordinator:  coord,
		Queries:      queries,
	})

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		coord: coord,
		db:    queries,
	}, nil
}

// Start runs the realtime coordinator and serves HTTP until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	go s.coord.Start(ctx)

	logger.Info("Server listening", "addr", s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the coordinator and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.coord.Stop()
	return s.http.Shutdown(ctx)
}
