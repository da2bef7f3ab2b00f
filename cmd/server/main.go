package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/talentvec/internal/api"
	"github.com/dgallion1/talentvec/internal/chunker"
	"github.com/dgallion1/talentvec/internal/config"
	"github.com/dgallion1/talentvec/internal/embed"
	"github.com/dgallion1/talentvec/internal/pathstore"
	"github.com/dgallion1/talentvec/internal/pipeline"
	"github.com/dgallion1/talentvec/internal/ratelimit"
	"github.com/dgallion1/talentvec/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := embed.NewMetrics(reg)

	limiter := ratelimit.New(ratelimit.Config{
		TokensPerWindow:   cfg.RateLimitTPM,
		RequestsPerWindow: cfg.RateLimitRPM,
		Window:            cfg.RateLimitWindow,
	}, nil, ratelimit.WithWaitObserver(metrics.ObserveLimiterWait))

	ch := chunker.New(chunker.Options{
		MaxTokensPerChunk: cfg.ChunkInitialTokens,
		MaxWordsPerChunk:  cfg.ChunkMaxWords,
		MaxWordsHeader:    cfg.ChunkMaxHeaderWords,
		PathSeparator:     cfg.ChunkPathSeparator,
	}, log)

	stats := embed.NewLatencyStats(time.Hour)
	client, err := embed.NewClient(embed.Config{
		APIKey:              cfg.JinaAPIKey,
		BaseURL:             cfg.JinaBaseURL,
		Model:               cfg.JinaModel,
		Dimensions:          cfg.JinaDimensions,
		Task:                cfg.JinaTask,
		EmbeddingType:       cfg.JinaEmbeddingType,
		LateChunking:        cfg.JinaLateChunking,
		StripNewlines:       cfg.JinaStripNewlines,
		MaxTokensPerRequest: cfg.JinaMaxTokensPerRequest,
		Timeout:             cfg.JinaTimeout,
		InitialChunkTokens:  cfg.ChunkInitialTokens,
		MinChunkTokens:      cfg.ChunkMinTokens,
		ResizeDecay:         cfg.ChunkResizeDecay,
		ResizeStep:          cfg.ChunkResizeStep,
	}, limiter,
		embed.WithLogger(log),
		embed.WithStats(stats),
		embed.WithMetrics(metrics),
		embed.WithChunker(ch),
	)
	if err != nil {
		log.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open chunk store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	orch := pipeline.NewOrchestrator(cfg, client, st, log)
	orch.Start(ctx)

	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Queries:      client,
		Model:        client.Config().Model,
		Chunker:      ch,
		Limiter:      limiter,
		Stats:        stats,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		orch.Stop()
	}()

	log.Info("starting talentvec", "port", cfg.Port, "store", cfg.StoreBackend, "model", cfg.JinaModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

// openStore builds the configured chunk store and a func that releases it.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.DBMigrate {
			if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return nil, nil, err
			}
		}
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(pool, log), pool.Close, nil
	case config.BackendPathstore:
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		return pathstore.NewChunkStore(ps, cfg.PathstorePrefix, log), ps.Close, nil
	case config.BackendMemory:
		log.Warn("using in-memory chunk store; chunks are lost on restart")
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
