package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/config"
	dbRedis "github.com/Aviyadav22/ParalegalAI/internal/db/redis"
	logpkg "github.com/Aviyadav22/ParalegalAI/internal/logger"
	"github.com/Aviyadav22/ParalegalAI/internal/metrics"
	"github.com/Aviyadav22/ParalegalAI/internal/repository/embcache"
	"github.com/Aviyadav22/ParalegalAI/internal/repository/metadata"
	"github.com/Aviyadav22/ParalegalAI/internal/repository/vector"
	chiTransport "github.com/Aviyadav22/ParalegalAI/internal/transport/chi"
	openaiEmb "github.com/Aviyadav22/ParalegalAI/internal/transport/openai"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/chunker"
	embeddinguc "github.com/Aviyadav22/ParalegalAI/internal/usecase/embedding"
	healthuc "github.com/Aviyadav22/ParalegalAI/internal/usecase/health"
	ingestuc "github.com/Aviyadav22/ParalegalAI/internal/usecase/ingest"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/keyword"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/metasearch"
	"github.com/Aviyadav22/ParalegalAI/internal/usecase/rotator"
	searchuc "github.com/Aviyadav22/ParalegalAI/internal/usecase/search"
	"github.com/Aviyadav22/ParalegalAI/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

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

	logger.Info("Starting ParalegalAI retrieval server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("credentials", len(cfg.Embedding.Credentials)),
	)

	// Register metrics explicitly (no init())
	metrics.Register()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	meta, err := metadata.Open(ctx, cfg.Metadata.DSN)
	if err != nil {
		logger.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer func() { _ = meta.Close() }()

	// Embedding chain: provider -> rotator -> stage (-> query cache)
	specs := make([]rotator.Spec, len(cfg.Embedding.Credentials))
	for i, c := range cfg.Embedding.Credentials {
		specs[i] = rotator.Spec{ID: c.ID, APIKey: c.APIKey, RPS: c.RPS}
	}
	rot, err := rotator.New(specs,
		rotator.WithFailureThreshold(cfg.Embedding.FailureThreshold),
		rotator.WithDefaultCooldown(cfg.Embedding.Cooldown()),
		rotator.WithLogger(logpkg.Component(logger, "rotator")),
	)
	if err != nil {
		logger.Fatal("Failed to build credential rotator", zap.Error(err))
	}

	provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
		BaseURL:             cfg.Embedding.BaseURL,
		Model:               cfg.Embedding.Model,
		Dimensions:          cfg.Embedding.Dimensions,
		Provider:            cfg.Embedding.Provider,
		DocumentInstruction: cfg.Embedding.DocumentInstruction,
		QueryInstruction:    cfg.Embedding.QueryInstruction,
		HealthKey:           specs[0].APIKey,
		Logger:              logger,
	})
	stage := embeddinguc.NewStage(provider, rot, embeddinguc.Config{
		BatchSize:     cfg.Embedding.BatchSize,
		Concurrency:   cfg.Embedding.Concurrency,
		MaxAttempts:   cfg.Embedding.MaxRetries,
		BaseDelay:     cfg.Embedding.BaseDelay(),
		MaxDelay:      cfg.Embedding.MaxDelay(),
		FallbackDelay: cfg.Embedding.FallbackDelay(),
		Provider:      cfg.Embedding.Provider,
		Model:         cfg.Embedding.Model,
	}, logpkg.Component(logger, "embedding"))
	queryEmbedder, err := embcache.New(stage, store, embcache.Options{
		KeyPrefix:  cfg.Index.KeyPrefix,
		Model:      cfg.Embedding.Model,
		LocalSize:  cfg.Embedding.QueryCacheSize,
		TTL:        cfg.Embedding.QueryCacheTTL(),
		CacheTotal: metrics.EmbeddingCacheTotal,
		Logger:     logpkg.Component(logger, "embcache"),
	})
	if err != nil {
		logger.Fatal("Failed to build query cache", zap.Error(err))
	}
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	split, err := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunker settings", zap.Error(err))
	}

	vectors := vector.New(store, meta, vector.Config{
		KeyPrefix:  cfg.Index.KeyPrefix,
		WriteBatch: cfg.Index.WriteBatchSize,
		HNSW: vector.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		},
	}, logpkg.Component(logger, "vector"))
	keywords := keyword.NewRegistry()

	ingestSvc := ingestuc.New(split, stage, vectors, meta, keywords, ingestuc.Config{
		BatchSize:           cfg.Ingestion.BatchSize,
		DocumentConcurrency: cfg.Ingestion.DocumentConcurrency,
		RetryAttempts:       cfg.Ingestion.RetryAttempts,
		RetryBaseDelay:      cfg.Ingestion.RetryBaseDelay(),
	}, logpkg.Component(logger, "ingest"))

	// Keyword indexes live in memory; rebuild them from the metadata store.
	partitions, err := meta.Partitions(ctx)
	if err != nil {
		logger.Fatal("Failed to list partitions", zap.Error(err))
	}
	if err := ingestSvc.Reindex(ctx, partitions...); err != nil {
		logger.Error("Keyword index warm-up incomplete", zap.Error(err))
	}
	logger.Info("Keyword indexes built", zap.Int("partitions", len(partitions)))

	searchSvc := searchuc.New(
		queryEmbedder, vectors, keywords,
		metasearch.New(meta, logpkg.Component(logger, "metasearch")),
		searchuc.Config{
			TopN:                cfg.Search.TopN,
			SimilarityThreshold: cfg.Search.SimilarityThreshold,
			PathTimeout:         cfg.Search.PathTimeout(),
			Reranker:            cfg.Search.Reranker,
			Weights: searchuc.Weights{
				Semantic: cfg.Search.Weights.Semantic,
				Reranker: cfg.Search.Weights.Reranker,
				Keyword:  cfg.Search.Weights.Keyword,
				Metadata: cfg.Search.Weights.Metadata,
			},
			MinTextLength:    cfg.Search.MinTextLength,
			QualityThreshold: cfg.Search.QualityThreshold,
		},
		logpkg.Component(logger, "search"),
	)

	healthSvc := healthuc.New(store, meta, provider)

	server := chiTransport.NewServer(ingestSvc, searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
