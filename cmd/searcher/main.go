package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/internal/scheduler"
	"github.com/goodfilms/picky/internal/search"
	"github.com/goodfilms/picky/internal/search/cache"
	"github.com/goodfilms/picky/internal/search/handler"
	"github.com/goodfilms/picky/pkg/config"
	"github.com/goodfilms/picky/pkg/health"
	"github.com/goodfilms/picky/pkg/kafka"
	"github.com/goodfilms/picky/pkg/logger"
	"github.com/goodfilms/picky/pkg/metrics"
	"github.com/goodfilms/picky/pkg/middleware"
	pkgredis "github.com/goodfilms/picky/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/picky.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index", cfg.Index.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	backend, err := index.OpenBackend(cfg.Index)
	if err != nil {
		slog.Error("failed to open index backend", "error", err)
		os.Exit(1)
	}
	idx, err := index.New(cfg.Index.Name, nil, cfg.Index.Categories, backend, index.WithMetrics(m))
	if err != nil {
		slog.Error("invalid index configuration", "error", err)
		os.Exit(1)
	}
	if backend.Kind() == index.KindMemory {
		if idx, err = buildInProcess(ctx, cfg, backend, m); err != nil {
			slog.Error("failed to build in-memory index", "error", err)
			os.Exit(1)
		}
	}
	if err := idx.Load(); err != nil {
		slog.Warn("index not loaded, searches fail until the next index-complete event", "error", err)
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, idx.Name(), cfg.Redis.CacheTTL, cache.WithMetrics(m))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		var inv search.Invalidator
		if queryCache != nil {
			inv = queryCache
		}
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, search.ReloadHandler(idx, inv, m))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index-complete consumer error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !idx.Loaded() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d categories", len(idx.Categories()))}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	searcher := search.New(idx, cfg.Search, search.WithMetrics(m))
	h := handler.New(searcher, queryCache, m)

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit.Requests > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, middleware.Metrics(m, name)(h))
	}
	route("GET /api/v1/search", "/api/v1/search", middleware.RateLimit(limiter)(http.HandlerFunc(h.Search)))
	route("POST /api/v1/cache/invalidate", "/api/v1/cache/invalidate", http.HandlerFunc(h.CacheInvalidate))
	route("GET /health", "/health", checker.ReadyHandler())
	route("GET /health/ready", "/health/ready", checker.ReadyHandler())
	route("GET /health/live", "/health/live", checker.LiveHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.Recover, middleware.RequestID, middleware.Timeout(cfg.Server.WriteTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// buildInProcess indexes the configured source into the memory backend,
// since memory bundles are only visible to the process that dumped them.
func buildInProcess(ctx context.Context, cfg *config.Config, backend index.Backend, m *metrics.Metrics) (*index.Index, error) {
	source, closer, err := index.OpenSource(ctx, cfg.Index, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	idx, err := index.New(cfg.Index.Name, source, cfg.Index.Categories, backend, index.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	if err := idx.Build(ctx, scheduler.New(cfg.Scheduler, scheduler.WithMetrics(m))); err != nil {
		return nil, err
	}
	return idx, nil
}
