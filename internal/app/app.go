// Package app builds the long-lived services from configuration, acting as the
// dependency injection container for the CLI and the admin server.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/api"
	"github.com/JakeFAU/insight-crawler/internal/clock/system"
	"github.com/JakeFAU/insight-crawler/internal/compliance"
	"github.com/JakeFAU/insight-crawler/internal/config"
	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/feed"
	collyfetcher "github.com/JakeFAU/insight-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/insight-crawler/internal/hash/sha256"
	"github.com/JakeFAU/insight-crawler/internal/id/uuid"
	"github.com/JakeFAU/insight-crawler/internal/orchestrator"
	"github.com/JakeFAU/insight-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/insight-crawler/internal/processor"
	pubmemory "github.com/JakeFAU/insight-crawler/internal/publisher/memory"
	"github.com/JakeFAU/insight-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/insight-crawler/internal/scheduler"
	"github.com/JakeFAU/insight-crawler/internal/scraper"
	"github.com/JakeFAU/insight-crawler/internal/storage/gcs"
	"github.com/JakeFAU/insight-crawler/internal/storage/local"
	"github.com/JakeFAU/insight-crawler/internal/storage/memory"
	"github.com/JakeFAU/insight-crawler/internal/storage/postgres"
)

// App holds the shared services. It is built once per process and closed on exit.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Registry     *crawler.Registry
	Store        crawler.Store
	Archive      crawler.BlobStore
	Publisher    crawler.Publisher
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// New wires every service described by cfg. It fails fast when a provider cannot be
// initialized; anything opened before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Registry, err = crawler.NewRegistry(cfg.Organizations)
	if err != nil {
		return a, fmt.Errorf("build organization registry: %w", err)
	}
	if a.Store, err = a.newStore(ctx); err != nil {
		return a, err
	}
	if a.Archive, err = a.newArchive(ctx); err != nil {
		return a, err
	}
	if a.Publisher, err = a.newPublisher(ctx); err != nil {
		return a, err
	}

	clk := system.New()
	ids := uuid.NewUUIDGenerator()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, logger.Named("fetcher"))
	robots := compliance.NewRobotsCache(compliance.RobotsConfig{
		TTL:       cfg.RobotsTTL(),
		Mode:      cfg.Compliance.RobotsMode,
		UserAgent: cfg.Crawler.UserAgent,
	}, fetcher, clk, logger.Named("robots"))
	gate := compliance.NewGate(robots, logger.Named("compliance"))
	limiter := ratelimit.New(ratelimit.Config{Window: cfg.RateLimitWindow()}, clk)
	recorder := crawler.NewDocumentRecorder(a.Store, sha256.New(), ids, clk, a.Registry)

	proc, err := processor.New(processor.Config{
		ChunkSize:          cfg.Processor.ChunkSize,
		Overlap:            cfg.Processor.Overlap,
		EnforceCompliance:  cfg.Processor.EnforceCompliance,
		ArchivePrefix:      cfg.Archive.Prefix,
		ArchiveContentType: cfg.Archive.ContentType,
		DocumentTopic:      cfg.PubSub.DocumentTopic,
	}, processor.Deps{
		Store:     a.Store,
		Fetcher:   fetcher,
		Gate:      gate,
		Limiter:   limiter,
		Archive:   a.Archive,
		Publisher: a.Publisher,
		IDs:       ids,
		Clock:     clk,
		Logger:    logger.Named("processor"),
	})
	if err != nil {
		return a, fmt.Errorf("build processor: %w", err)
	}

	ingester := feed.NewIngester(fetcher, feed.NewParser(cfg.Crawler.FeedParser), recorder, logger.Named("feed"))
	pages := scraper.New(
		scraper.Config{MaxCandidates: cfg.Crawler.MaxCandidates},
		fetcher,
		scraper.NewExtractor(cfg.Crawler.LinkExtractor),
		gate,
		recorder,
		logger.Named("scraper"),
	)

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Concurrency:        cfg.Crawler.Concurrency,
		ProcessConcurrency: cfg.Processor.Concurrency,
		CrawlTopic:         cfg.PubSub.CrawlTopic,
	}, orchestrator.Deps{
		Registry:  a.Registry,
		Store:     a.Store,
		Ingester:  ingester,
		Scraper:   pages,
		Processor: proc,
		Gate:      gate,
		Limiter:   limiter,
		Publisher: a.Publisher,
		IDs:       ids,
		Clock:     clk,
		Logger:    logger.Named("orchestrator"),
	})
	if err != nil {
		return a, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("pubsub", cfg.PubSub.Provider),
		zap.Int("organizations", len(cfg.Organizations)),
	)
	return a, nil
}

func (a *App) newStore(ctx context.Context) (crawler.Store, error) {
	switch a.Config.Storage.Provider {
	case "", "memory":
		a.Logger.Info("using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{DSN: a.Config.DB.DSN, MaxConns: a.Config.DB.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", a.Config.Storage.Provider)
	}
}

func (a *App) newArchive(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gcs archive: %w", err)
		}
		a.Logger.Info("archiving raw documents to GCS", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
	}
}

func (a *App) newPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.Config.PubSub
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return pubmemory.New(), nil
	case "gcp":
		pub, err := pubsub.Dial(ctx, cfg.ProjectID, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		a.Logger.Info("publishing events to Pub/Sub", zap.String("project", cfg.ProjectID))
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown pubsub provider: %s", cfg.Provider)
	}
}

// Migrate applies the relational schema. The in-memory store needs none.
func (a *App) Migrate(ctx context.Context) error {
	migrator, ok := a.Store.(interface{ EnsureSchema(context.Context) error })
	if !ok {
		a.Logger.Info("storage provider has no schema to apply", zap.String("storage", a.Config.Storage.Provider))
		return nil
	}
	if err := migrator.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.Logger.Info("schema applied")
	return nil
}

// NewServer builds the admin HTTP server over the orchestrator.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.Orchestrator, a.Config, a.Logger)
}

// NewScheduler builds the cron scheduler over the orchestrator.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Crawl:        a.Config.Schedule.Crawl,
		Process:      a.Config.Schedule.Process,
		ProcessBatch: a.Config.Schedule.ProcessBatch,
	}, a.Orchestrator, a.Logger)
}

// Close releases every service in reverse order of creation and flushes the logger.
func (a *App) Close() {
	if a == nil {
		return
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Store != nil {
		a.Store.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing application services", zap.Error(err))
	}
	// Sync on a console sink returns EINVAL on Linux.
	_ = a.Logger.Sync()
}
