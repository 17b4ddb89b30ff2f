// Command hnzh-pipeline runs the long-lived fetch/translate,
// comment-refresh, and retention schedulers against a Postgres cache:
// load config, build the infra adapters, wire them into the domain
// ports, start the background loops, and wait on an OS signal to shut
// down cleanly.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hnzh/internal/config"
	"hnzh/internal/eventbus"
	"hnzh/internal/health"
	"hnzh/internal/infra/feedhn"
	"hnzh/internal/infra/llmclient"
	"hnzh/internal/infra/pgcache"
	"hnzh/internal/infra/pgjobs"
	"hnzh/internal/infra/reader"
	"hnzh/internal/logging"
	"hnzh/internal/metrics"
	"hnzh/internal/pipeline"
	"hnzh/internal/prompts"
	"hnzh/internal/queue"
	"hnzh/internal/xerrors"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewComponentLogger("hnzh-pipeline")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	cache := pgcache.New(pool, logger)
	if err := cache.EnsureSchema(ctx); err != nil {
		return err
	}
	jobStore := pgjobs.New(pool)
	if err := jobStore.EnsureSchema(ctx); err != nil {
		return err
	}

	upstream := feedhn.New(feedhn.Config{
		BaseURL:        cfg.UpstreamBaseURL,
		RequestTimeout: cfg.HTTPTimeout,
		Retry:          xerrors.DefaultRetryConfig(),
	}, logger)
	articleFetcher := reader.New(reader.Config{
		ReaderBase:     cfg.ReaderBaseURL,
		RequestTimeout: cfg.HTTPTimeout,
		WithImages:     cfg.ReaderWithImage,
		Retry:          xerrors.DefaultRetryConfig(),
	}, logger)

	providers := make([]llmclient.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, llmclient.Provider{
			Name:          p.Name,
			BaseURL:       p.BaseURL,
			Model:         p.Model,
			APIKey:        p.APIKey,
			ThinkingModel: p.ThinkingModel,
		})
	}
	translator := llmclient.New(providers, cfg.CurrentProvider, logger)

	bus := eventbus.New()
	promptRegistry := prompts.NewRegistry()
	if home, err := os.UserHomeDir(); err == nil {
		if err := prompts.LoadSeed(promptRegistry, home+"/prompts.yaml"); err != nil {
			logger.Warn("load prompt seed: %v", err)
		}
	}
	if err := prompts.LoadFromSettings(ctx, cache, promptRegistry); err != nil {
		logger.Warn("load prompt overrides: %v", err)
	}

	metricsCollector, err := metrics.New(metrics.Config{
		Enabled: cfg.MetricsAddr != "",
		Addr:    cfg.MetricsAddr,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsCollector.Shutdown(shutdownCtx)
	}()

	healthRegistry := health.NewRegistry()
	queueConcurrency := pipeline.QueueConcurrencyFromSettings(ctx, cache, logger, cfg.QueueMaxConcurrency)
	jobQueue := queue.New(jobStore, bus, logger, queueConcurrency)

	deps := pipeline.Deps{
		Upstream:   upstream,
		Reader:     articleFetcher,
		Translator: translator,
		Cache:      cache,
		Prompts:    promptRegistry,
		Settings:   cache,
		Bus:        bus,
		Metrics:    metricsCollector,
		Health:     healthRegistry,
		Logger:     logger,
		Queue:      jobQueue,
	}

	fetchCfg := pipeline.FetchConfigFromSettings(ctx, cache, logger, pipeline.FetchConfig{
		IntervalMS:             cfg.SchedulerIntervalMS,
		StoryLimit:             cfg.SchedulerStoryLimit,
		ArticleConcurrency:     cfg.ArticleTranslationConcurrency,
		MaxCommentTranslations: cfg.MaxCommentTranslations,
	})
	refreshCfg := pipeline.CommentRefreshConfigFromSettings(ctx, cache, logger, pipeline.CommentRefreshConfig{
		Enabled:                cfg.CommentRefreshEnabled,
		IntervalMS:             cfg.CommentRefreshIntervalMS,
		StoryLimit:             cfg.CommentRefreshStoryLimit,
		BatchSize:              cfg.CommentRefreshBatchSize,
		MaxCommentTranslations: cfg.MaxCommentTranslations,
	})
	fetchScheduler := pipeline.NewFetchScheduler(deps, fetchCfg)
	commentScheduler := pipeline.NewCommentRefreshScheduler(deps, refreshCfg)
	retentionSweeper := pipeline.NewRetentionSweeper(deps, pipeline.RetentionConfig{
		IntervalMS:          cfg.RetentionIntervalMS,
		MaxItems:            cfg.RetentionMaxItems,
		DeleteItemsBatch:    cfg.RetentionDeleteItemsBatch,
		MaxComments:         cfg.RetentionMaxComments,
		DeleteCommentsBatch: cfg.RetentionDeleteCommentsBatch,
	})

	fetchScheduler.Start(ctx)
	commentScheduler.Start(ctx)
	retentionSweeper.Start(ctx)

	logger.Info("hnzh-pipeline started")
	<-ctx.Done()
	logger.Info("shutting down")

	fetchScheduler.Stop()
	commentScheduler.Stop()
	retentionSweeper.Stop()
	<-fetchScheduler.Done()
	<-commentScheduler.Done()
	<-retentionSweeper.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !jobQueue.Drain(drainCtx) {
		logger.Warn("queue did not drain in time; abandoning in-flight jobs")
	}

	return nil
}
