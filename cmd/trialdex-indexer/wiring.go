package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/config"
	"github.com/kailas-cloud/trialdex/internal/db/memory"
	"github.com/kailas-cloud/trialdex/internal/db/postgres"
	logpkg "github.com/kailas-cloud/trialdex/internal/logger"
	"github.com/kailas-cloud/trialdex/internal/metrics"
	anthropicllm "github.com/kailas-cloud/trialdex/internal/transport/anthropic"
	"github.com/kailas-cloud/trialdex/internal/transport/ctgov"
	openaiprov "github.com/kailas-cloud/trialdex/internal/transport/openai"
	"github.com/kailas-cloud/trialdex/internal/usecase/canonical"
	eligibilityuc "github.com/kailas-cloud/trialdex/internal/usecase/eligibility"
	embeddinguc "github.com/kailas-cloud/trialdex/internal/usecase/embedding"
	"github.com/kailas-cloud/trialdex/internal/version"
)

// recordStore is everything the passes need from the record store.
type recordStore interface {
	canonical.Repository
	embeddinguc.Repository
	eligibilityuc.Repository
	Close()
}

// buildPipeline is the composition root of the indexer.
func buildPipeline(ctx context.Context, env string) (*pipeline, func(), error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting trialdex indexer",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("extraction_provider", cfg.Extraction.Provider),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	policy := cfg.Retry.Policy()

	feed := ctgov.NewClient(ctgov.Config{
		BaseURL:           cfg.Ingest.BaseURL,
		RequestsPerSecond: cfg.Ingest.RequestsPerSecond,
		Retry:             policy,
		Logger:            logger,
	})
	ingest := canonical.New(feed, store, logger).
		WithPageSize(cfg.Ingest.PageSize).
		WithConcurrency(cfg.Workers.Concurrency)

	embedder := openaiprov.NewEmbedder(&openaiprov.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	embed := embeddinguc.New(embedder, store, embeddinguc.Config{
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		BatchSize:     cfg.Embedding.BatchSize,
		MaxInputChars: cfg.Embedding.MaxInputChars,
		Concurrency:   cfg.Workers.Concurrency,
		Retry:         policy,
	}, logger)

	extract := eligibilityuc.New(buildCaller(cfg.Extraction, logger), store, eligibilityuc.Config{
		Provider:       cfg.Extraction.Provider,
		SchemaVersion:  cfg.Extraction.SchemaVersion,
		MaxCorrections: cfg.Extraction.MaxCorrections,
		Concurrency:    cfg.Workers.Concurrency,
		Retry:          policy,
	}, logger)

	cleanup := func() {
		store.Close()
		_ = logger.Sync()
	}
	return &pipeline{
		ingest:      ingest,
		embed:       embed,
		extract:     extract,
		ingestLimit: cfg.Ingest.Limit,
	}, cleanup, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (recordStore, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Memory store selected; indexed records are discarded on exit")
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
		return nil, fmt.Errorf("create database store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("Connected to database")
	return store, nil
}

// buildCaller selects the extraction model provider.
func buildCaller(cfg config.ExtractionConfig, logger *zap.Logger) eligibilityuc.Caller {
	if cfg.Provider == "openai" {
		return openaiprov.NewChatCaller(&openaiprov.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Provider:  "openai",
			Logger:    logger,
		})
	}
	return anthropicllm.NewCaller(&anthropicllm.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Logger:    logger,
	})
}
