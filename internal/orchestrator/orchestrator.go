// Package orchestrator sequences feed ingestion, page scraping and document processing
// per organization and records each run as a crawl log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
	"github.com/JakeFAU/insight-crawler/internal/scraper"
)

// FeedIngester is satisfied by *feed.Ingester.
type FeedIngester interface {
	IngestFeed(ctx context.Context, feedURL, organizationID, sourceType string) (int, error)
}

// PageScraper is satisfied by *scraper.Scraper.
type PageScraper interface {
	ScrapePublicationsPage(
		ctx context.Context,
		pageURL, organizationID, sourceType string,
		policy crawler.CrawlPolicy,
	) (scraper.Result, error)
}

// DocumentProcessor is satisfied by *processor.Processor.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) (int, error)
}

// Config bounds fan-out and names the completion topic.
type Config struct {
	// Concurrency caps organizations crawled at once by CrawlAll.
	Concurrency int
	// ProcessConcurrency caps documents processed at once by ProcessPending.
	ProcessConcurrency int
	// CrawlTopic receives a CrawlCompletedEvent per run when a publisher is configured.
	CrawlTopic string
}

// Deps are the orchestrator collaborators. Publisher is optional.
type Deps struct {
	Registry  *crawler.Registry
	Store     crawler.Store
	Ingester  FeedIngester
	Scraper   PageScraper
	Processor DocumentProcessor
	Gate      crawler.ComplianceChecker
	Limiter   crawler.RateLimiter
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Result is the outcome of one crawl run.
type Result struct {
	Slug           string              `json:"slug"`
	CrawlLogID     string              `json:"crawl_log_id,omitempty"`
	Status         crawler.CrawlStatus `json:"status,omitempty"`
	DocumentsFound int                 `json:"documents_found"`
	Errors         []string            `json:"errors"`
}

// BatchResult counts the outcomes of ProcessPending.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	// Deferred documents hit the rate limiter and remain pending.
	Deferred int `json:"deferred"`
	Chunks   int `json:"chunks"`
}

// Orchestrator runs crawls and processing against the injected services.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Store == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("orchestrator requires a registry, store, id generator and clock")
	}
	if deps.Ingester == nil || deps.Scraper == nil || deps.Gate == nil || deps.Limiter == nil {
		return nil, errors.New("orchestrator requires an ingester, scraper, gate and limiter")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ProcessConcurrency <= 0 {
		cfg.ProcessConcurrency = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// InitializeOrganizations upserts every registry entry by slug and returns the stored rows.
func (o *Orchestrator) InitializeOrganizations(ctx context.Context) ([]crawler.Organization, error) {
	specs := o.deps.Registry.All()
	out := make([]crawler.Organization, 0, len(specs))
	for _, spec := range specs {
		org := spec.Organization()
		id, err := o.deps.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate organization id: %w", err)
		}
		org.ID = id
		stored, err := o.deps.Store.UpsertOrganization(ctx, org)
		if err != nil {
			return nil, fmt.Errorf("upsert organization %s: %w", spec.Slug, err)
		}
		out = append(out, stored)
	}
	o.logger.Info("organizations initialized", zap.Int("count", len(out)))
	return out, nil
}

// CrawlOrganization runs the feeds and publications page of one organization. Only a
// missing registry entry or stored row (crawler.ErrNotFound), an inactive organization
// (crawler.ErrInactive) or a crawl log write failure are returned as errors; everything
// else is recorded in Result.Errors and the crawl log.
func (o *Orchestrator) CrawlOrganization(ctx context.Context, slug string) (Result, error) {
	lock := o.lockFor(slug)
	lock.Lock()
	defer lock.Unlock()

	spec, err := o.deps.Registry.Lookup(slug)
	if err != nil {
		return Result{}, err
	}
	org, err := o.deps.Store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return Result{}, fmt.Errorf("load organization: %w", err)
	}
	if !org.IsActive {
		return Result{}, fmt.Errorf("%s: %w", slug, crawler.ErrInactive)
	}

	logID, err := o.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate crawl log id: %w", err)
	}
	entry := crawler.CrawlLog{
		ID:             logID,
		OrganizationID: org.ID,
		CrawlType:      crawler.CrawlTypeFull,
		Status:         crawler.CrawlStarted,
		StartedAt:      o.deps.Clock.Now(),
	}
	if err := o.deps.Store.CreateCrawlLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("create crawl log: %w", err)
	}
	logger := o.logger.With(zap.String("slug", slug), zap.String("crawl_log_id", logID))
	logger.Info("crawl started", zap.Int("feeds", len(spec.FeedURLs)))

	var (
		found int
		errs  []string
	)
	for _, feedURL := range spec.FeedURLs {
		n, err := o.ingestFeed(ctx, org, feedURL)
		found += n
		if err != nil {
			logger.Warn("feed failed", zap.String("feed", feedURL), zap.Error(err))
			errs = append(errs, err.Error())
		}
	}

	n, pageErrs := o.scrapePage(ctx, spec, org)
	found += n
	errs = append(errs, pageErrs...)

	entry.Status = crawler.CrawlCompleted
	if len(errs) > 0 {
		entry.Status = crawler.CrawlCompletedWithErrors
		entry.Errors = errs
	}
	completedAt := o.deps.Clock.Now()
	entry.CompletedAt = &completedAt
	entry.DocumentsFound = found
	if err := o.deps.Store.CompleteCrawlLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("complete crawl log: %w", err)
	}

	metrics.ObserveCrawlRun(slug, string(entry.Status))
	o.publishCompleted(ctx, slug, entry)
	logger.Info("crawl completed",
		zap.String("status", string(entry.Status)),
		zap.Int("documents_found", found),
		zap.Int("errors", len(errs)),
	)
	return Result{
		Slug:           slug,
		CrawlLogID:     logID,
		Status:         entry.Status,
		DocumentsFound: found,
		Errors:         entry.Errors,
	}, nil
}

func (o *Orchestrator) ingestFeed(ctx context.Context, org crawler.Organization, feedURL string) (int, error) {
	host := hostOf(feedURL)
	if !o.deps.Limiter.TryAcquire(host, org.CrawlPolicy.RateLimit) {
		return 0, fmt.Errorf("skip feed %s: %s: %w", feedURL, host, crawler.ErrRateLimited)
	}
	return o.deps.Ingester.IngestFeed(ctx, feedURL, org.ID, org.Slug)
}

// scrapePage gates, rate limits and scrapes the publications index.
func (o *Orchestrator) scrapePage(
	ctx context.Context,
	spec crawler.OrganizationSpec,
	org crawler.Organization,
) (int, []string) {
	pageURL, err := spec.PublicationsURL()
	if err != nil {
		return 0, []string{fmt.Sprintf("publications page: %v", err)}
	}
	if pageURL == "" {
		return 0, nil
	}

	if decision := o.deps.Gate.IsAllowed(ctx, pageURL, org.CrawlPolicy); !decision.Allowed {
		return 0, []string{fmt.Sprintf("publications page %s: %s", pageURL, decision.Reason)}
	}
	host := hostOf(pageURL)
	if !o.deps.Limiter.TryAcquire(host, org.CrawlPolicy.RateLimit) {
		return 0, []string{fmt.Sprintf("skip publications page %s: %s: %v", pageURL, host, crawler.ErrRateLimited)}
	}

	result, err := o.deps.Scraper.ScrapePublicationsPage(ctx, pageURL, org.ID, org.Slug, org.CrawlPolicy)
	errs := append([]string(nil), result.Errors...)
	if err != nil {
		errs = append(errs, err.Error())
	}
	return result.Inserted, errs
}

func (o *Orchestrator) publishCompleted(ctx context.Context, slug string, entry crawler.CrawlLog) {
	if o.deps.Publisher == nil || o.cfg.CrawlTopic == "" {
		return
	}
	event := crawler.CrawlCompletedEvent{
		CrawlLogID:     entry.ID,
		OrganizationID: entry.OrganizationID,
		Slug:           slug,
		Status:         entry.Status,
		DocumentsFound: entry.DocumentsFound,
		Errors:         entry.Errors,
		CompletedAt:    *entry.CompletedAt,
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.CrawlTopic, event); err != nil {
		o.logger.Warn("publish crawl event failed", zap.String("slug", slug), zap.Error(err))
	}
}

// CrawlAll crawls every active registry organization, at most Config.Concurrency at a
// time. Inactive organizations are skipped. A per-organization failure is logged and
// reported in that organization's Result.Errors; it never cancels the others.
func (o *Orchestrator) CrawlAll(ctx context.Context) ([]Result, error) {
	specs := o.deps.Registry.All()
	results := make([]Result, len(specs))
	skipped := make([]bool, len(specs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, spec := range specs {
		if spec.Inactive {
			skipped[i] = true
			continue
		}
		g.Go(func() error {
			res, err := o.CrawlOrganization(gCtx, spec.Slug)
			switch {
			case errors.Is(err, crawler.ErrInactive):
				skipped[i] = true
			case err != nil:
				o.logger.Error("crawl failed", zap.String("slug", spec.Slug), zap.Error(err))
				results[i] = Result{Slug: spec.Slug, Errors: []string{err.Error()}}
			default:
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("crawl all: %w", err)
	}

	out := make([]Result, 0, len(specs))
	for i := range specs {
		if !skipped[i] {
			out = append(out, results[i])
		}
	}
	return out, ctx.Err()
}

// ProcessDocument delegates to the processor.
func (o *Orchestrator) ProcessDocument(ctx context.Context, documentID string) (int, error) {
	if o.deps.Processor == nil {
		return 0, errors.New("no document processor configured")
	}
	n, err := o.deps.Processor.Process(ctx, documentID)
	if err != nil {
		return n, fmt.Errorf("process document %s: %w", documentID, err)
	}
	return n, nil
}

// ProcessPending processes up to limit pending documents, oldest first, with
// Config.ProcessConcurrency workers. Per-document failures are counted, not returned.
func (o *Orchestrator) ProcessPending(ctx context.Context, limit int) (BatchResult, error) {
	if o.deps.Processor == nil {
		return BatchResult{}, errors.New("no document processor configured")
	}
	docs, err := o.deps.Store.ListDocumentsByStatus(ctx, crawler.StatusPending, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list pending documents: %w", err)
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ProcessConcurrency)
	for _, doc := range docs {
		g.Go(func() error {
			n, err := o.deps.Processor.Process(gCtx, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Processed++
				result.Chunks += n
			case errors.Is(err, crawler.ErrRateLimited):
				result.Deferred++
			default:
				result.Failed++
				o.logger.Warn("document processing failed", zap.String("document_id", doc.ID), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("process pending: %w", err)
	}
	o.logger.Info("pending batch processed",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("deferred", result.Deferred),
	)
	return result, nil
}

// GetCrawlStats returns pipeline row counts.
func (o *Orchestrator) GetCrawlStats(ctx context.Context) (crawler.Stats, error) {
	stats, err := o.deps.Store.Stats(ctx)
	if err != nil {
		return crawler.Stats{}, fmt.Errorf("crawl stats: %w", err)
	}
	return stats, nil
}

// ListCrawlLogs returns the most recent crawl logs of an organization, newest first.
func (o *Orchestrator) ListCrawlLogs(ctx context.Context, slug string, limit int) ([]crawler.CrawlLog, error) {
	org, err := o.deps.Store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	logs, err := o.deps.Store.ListCrawlLogs(ctx, org.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list crawl logs: %w", err)
	}
	return logs, nil
}

func (o *Orchestrator) lockFor(slug string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[slug]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[slug] = lock
	}
	return lock
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
