// Package scheduler triggers periodic crawls and pending-document processing.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/orchestrator"
)

// Jobs is the work the scheduler triggers. *orchestrator.Orchestrator satisfies it.
type Jobs interface {
	CrawlAll(ctx context.Context) ([]orchestrator.Result, error)
	ProcessPending(ctx context.Context, limit int) (orchestrator.BatchResult, error)
}

// Config holds five-field cron expressions. An empty expression disables that job.
type Config struct {
	Crawl        string
	Process      string
	ProcessBatch int
}

// Scheduler runs Jobs on cron schedules. A run still in progress when its next tick
// fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	cfg    Config
	logger *zap.Logger
	ctx    context.Context
}

// New parses the schedules and registers the jobs. Nothing runs until Start.
func New(cfg Config, jobs Jobs, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
		ctx:    context.Background(),
	}
	if cfg.Crawl != "" {
		if _, err := s.cron.AddFunc(cfg.Crawl, s.runCrawl); err != nil {
			return nil, fmt.Errorf("schedule crawl %q: %w", cfg.Crawl, err)
		}
	}
	if cfg.Process != "" {
		if cfg.ProcessBatch <= 0 {
			return nil, fmt.Errorf("process batch must be > 0, got %d", cfg.ProcessBatch)
		}
		if _, err := s.cron.AddFunc(cfg.Process, s.runProcess); err != nil {
			return nil, fmt.Errorf("schedule process %q: %w", cfg.Process, err)
		}
	}
	return s, nil
}

// Start runs the cron loop in the background. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Int("entries", len(s.cron.Entries())),
		zap.String("crawl", s.cfg.Crawl),
		zap.String("process", s.cfg.Process),
	)
}

// Stop halts scheduling and blocks until running jobs return or ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runCrawl() {
	results, err := s.jobs.CrawlAll(s.ctx)
	if err != nil {
		s.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	found, failed := 0, 0
	for _, res := range results {
		found += res.DocumentsFound
		if len(res.Errors) > 0 {
			failed++
		}
	}
	s.logger.Info("scheduled crawl finished",
		zap.Int("organizations", len(results)),
		zap.Int("documents_found", found),
		zap.Int("organizations_with_errors", failed),
	)
}

func (s *Scheduler) runProcess() {
	res, err := s.jobs.ProcessPending(s.ctx, s.cfg.ProcessBatch)
	if err != nil {
		s.logger.Error("scheduled processing failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled processing finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("deferred", res.Deferred),
	)
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
