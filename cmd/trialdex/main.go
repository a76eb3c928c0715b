package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/config"
	"github.com/kailas-cloud/trialdex/internal/db/memory"
	"github.com/kailas-cloud/trialdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/trialdex/internal/db/redis"
	"github.com/kailas-cloud/trialdex/internal/domain"
	logpkg "github.com/kailas-cloud/trialdex/internal/logger"
	"github.com/kailas-cloud/trialdex/internal/metrics"
	"github.com/kailas-cloud/trialdex/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/trialdex/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/trialdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/trialdex/internal/usecase/embedding"
	facetuc "github.com/kailas-cloud/trialdex/internal/usecase/facet"
	healthuc "github.com/kailas-cloud/trialdex/internal/usecase/health"
	matchuc "github.com/kailas-cloud/trialdex/internal/usecase/match"
	searchuc "github.com/kailas-cloud/trialdex/internal/usecase/search"
	"github.com/kailas-cloud/trialdex/internal/version"
)

// recordStore is everything the query side needs from the record store.
type recordStore interface {
	searchuc.Repository
	facetuc.Repository
	healthuc.DBPinger
	Close()
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting trialdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("query_cache", cfg.Cache.Enabled()),
	)

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open database store", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Connected to database")

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Query embedder chain: OpenAI -> Cached -> Instrumented
	versionTag := domain.VersionTag(cfg.Embedding.Model, cfg.Embedding.Dimensions)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	var queryEmbedder domain.Embedder = base
	var cache healthuc.CachePinger
	if cfg.Cache.Enabled() {
		kv, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache client", zap.Error(err))
		}
		defer kv.Close()
		if err := kv.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			// The cache is optional; searches fall through to the provider.
			logger.Warn("Query cache not ready", zap.Error(err))
		}
		queryEmbedder = embcache.New(base, kv, versionTag, cfg.Cache.TTL(), metrics.EmbeddingCacheTotal, logger)
		cache = kv
	}
	queryEmbedder = embeddinguc.NewInstrumentedEmbedder(queryEmbedder, "openai", cfg.Embedding.Model, logger)

	logger.Info("Query embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("version_tag", versionTag),
	)

	// Use case services
	searchSvc := searchuc.New(store, queryEmbedder, searchuc.Config{
		TopK:         cfg.Search.TopK,
		QueryTimeout: cfg.Search.QueryTimeout(),
		Version:      versionTag,
	}, logger)
	facetSvc := facetuc.New(store, facetuc.Config{
		ConditionLimit: cfg.Search.ConditionFacetLimit,
		QueryTimeout:   cfg.Search.QueryTimeout(),
	}, logger)
	matchSvc := matchuc.New(store, logger).WithQueryTimeout(cfg.Search.QueryTimeout())
	healthSvc := healthuc.New(store, store, newEmbeddingHealthChecker(base), cache)

	server := chiTransport.NewServer(searchSvc, facetSvc, matchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func openStore(ctx context.Context, cfg config.Config) (recordStore, error) {
	if cfg.Database.Driver == "memory" {
		return memory.NewStore(), nil
	}

	store, err := postgres.NewStore(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		Dimensions:      cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
