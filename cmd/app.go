package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonyzinh/system-hospital-backend/internal/types"
	cfgPkg "github.com/tonyzinh/system-hospital-backend/pkg/config"
	"github.com/tonyzinh/system-hospital-backend/pkg/corpus"
	"github.com/tonyzinh/system-hospital-backend/pkg/index"
	"github.com/tonyzinh/system-hospital-backend/pkg/ingest"
	"github.com/tonyzinh/system-hospital-backend/pkg/llm"
	"github.com/tonyzinh/system-hospital-backend/pkg/logging"
	"github.com/tonyzinh/system-hospital-backend/pkg/metrics"
	"github.com/tonyzinh/system-hospital-backend/pkg/orchestrator"
	"github.com/tonyzinh/system-hospital-backend/pkg/processor"
	"github.com/tonyzinh/system-hospital-backend/pkg/rag"
	"github.com/tonyzinh/system-hospital-backend/pkg/scraper"
	"github.com/tonyzinh/system-hospital-backend/pkg/store"
	"github.com/tonyzinh/system-hospital-backend/server"
)

// app is the fully wired set of components behind every command.
type app struct {
	config  *cfgPkg.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	index        *index.Manager
	synthesizer  *rag.Synthesizer
	orchestrator *orchestrator.Orchestrator
	ingest       *ingest.Pipeline

	closers []func()
}

func newApp(ctx context.Context, cfg *cfgPkg.Config) (*app, error) {
	a := &app{
		config:  cfg,
		logger:  logging.New(cfg.Log, os.Stderr),
		metrics: metrics.New(),
	}
	slog.SetDefault(a.logger)

	c, err := corpus.New(cfg.Index.DataDir)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.EmbedTimeout,
	})
	if err != nil {
		return nil, err
	}

	snapshots, err := a.snapshotStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.index = index.NewManager(index.ManagerConfig{
		BatchSize: cfg.Index.BatchSize,
		Workers:   cfg.Index.Workers,
	}, c, embedder, snapshots, a.metrics, a.logger.With("component", "index"))
	a.synthesizer = rag.New(a.index, cfg.Index.TopK)

	cache, err := a.responseCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	chat := llm.NewChatClient(llm.ChatConfig{
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		ConnectTimeout: cfg.LLM.ConnectTimeout,
		Timeout:        cfg.LLM.Timeout,
	})
	a.orchestrator = orchestrator.New(orchestrator.Config{
		Model:          cfg.LLM.Model,
		SystemPrompt:   cfg.LLM.SystemPrompt,
		ConnectTimeout: cfg.LLM.ConnectTimeout,
		CacheEnabled:   cfg.Cache.IsEnabled(),
		MaxRetries:     cfg.Orchestrator.Retries(),
		RetryDelay:     cfg.Orchestrator.RetryDelay,
		TimeoutGrowth:  cfg.Orchestrator.TimeoutGrowth,
		MaxTimeout:     cfg.Orchestrator.MaxTimeout,
		SlowThreshold:  cfg.Orchestrator.SlowThreshold,
	}, chat, cache, a.metrics, a.logger.With("component", "orchestrator"))

	a.ingest = ingest.NewPipeline(
		ingest.PipelineConfig{MinContentLength: cfg.Scraper.MinContentLength},
		scraper.NewWithConfig(scraper.ScraperConfig{
			Timeout:   cfg.Scraper.Timeout,
			MaxBytes:  cfg.Scraper.MaxBytes,
			UserAgent: cfg.Scraper.UserAgent,
			RateLimit: cfg.Scraper.RateLimit,
		}),
		processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    cfg.Processor.ChunkSize,
			OverlapRatio: cfg.Processor.OverlapRatio,
		}),
		c,
		a.metrics,
		a.logger.With("component", "ingest"),
	)
	return a, nil
}

func (a *app) snapshotStore(ctx context.Context) (types.SnapshotStore, error) {
	switch a.config.Index.Backend {
	case "pgvector":
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: a.config.Database.URL,
			TableName:  a.config.Database.TableName,
			VectorDim:  a.config.Database.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		a.closers = append(a.closers, vs.Close)
		return vs, nil
	default:
		return store.NewFileStore(filepath.Join(a.config.Index.DataDir, "index"))
	}
}

func (a *app) responseCache(ctx context.Context) (types.CacheStore, error) {
	if a.config.Cache.Backend != "redis" {
		return orchestrator.NewMemoryCache(a.config.Cache.MaxSize), nil
	}
	rc, err := orchestrator.NewRedisCache(ctx, orchestrator.RedisCacheConfig{
		Addr:     a.config.Cache.RedisAddr,
		Password: a.config.Cache.RedisPassword,
		DB:       a.config.Cache.RedisDB,
		Prefix:   a.config.Cache.RedisPrefix,
		Capacity: a.config.Cache.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { rc.Close() })
	return rc, nil
}

func (a *app) server() *server.Server {
	return server.New(server.Config{
		Addr:        a.config.Server.Addr,
		Debug:       a.config.Server.Debug,
		SlowRequest: a.config.Orchestrator.SlowThreshold,
	}, server.Service{
		Index:        a.index,
		Synthesizer:  a.synthesizer,
		Orchestrator: a.orchestrator,
		Ingest:       a.ingest,
		Metrics:      a.metrics,
		Logger:       a.logger.With("component", "http"),
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
