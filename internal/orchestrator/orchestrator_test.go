package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-crawler/internal/clock/system"
	"github.com/JakeFAU/insight-crawler/internal/compliance"
	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/feed"
	"github.com/JakeFAU/insight-crawler/internal/hash/sha256"
	"github.com/JakeFAU/insight-crawler/internal/id/uuid"
	"github.com/JakeFAU/insight-crawler/internal/orchestrator"
	"github.com/JakeFAU/insight-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/insight-crawler/internal/processor"
	pubmem "github.com/JakeFAU/insight-crawler/internal/publisher/memory"
	"github.com/JakeFAU/insight-crawler/internal/scraper"
	"github.com/JakeFAU/insight-crawler/internal/storage/memory"
)

const (
	feedURL    = "https://feeds.acme.test/rss"
	pageURL    = "https://www.acme.test/insights"
	crawlTopic = "crawl.completed"
)

const acmeFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Acme Insights</title>
<item><title>Outlook 2024</title><link>https://www.acme.test/insights/outlook-2024</link>
<pubDate>Mon, 01 Jan 2024 08:00:00 GMT</pubDate></item>
<item><title><![CDATA[Pricing & margins]]></title><link>https://www.acme.test/insights/pricing</link></item>
</channel></rss>`

const acmePage = `<html><body>
<a href="/insights/annual-report">Annual Report 2024</a>
<a href="/insights/outlook-2024">Outlook 2024</a>
<a href="/about">About us</a>
</body></html>`

type stubFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	calls    map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		bodies:   map[string]string{feedURL: acmeFeed, pageURL: acmePage},
		statuses: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if code, ok := f.statuses[req.URL]; ok {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: req.URL, StatusCode: code}
	}
	body, ok := f.bodies[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: req.URL, StatusCode: 404}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *stubFetcher) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

type fixture struct {
	orch      *orchestrator.Orchestrator
	store     *memory.Store
	fetcher   *stubFetcher
	limiter   *ratelimit.Limiter
	publisher *pubmem.Publisher
}

func acmeSpec(policy crawler.CrawlPolicy) crawler.OrganizationSpec {
	return crawler.OrganizationSpec{
		Name:             "Acme Research",
		Slug:             "acme",
		OrgType:          "consulting",
		Tier:             "tier1",
		TrustWeight:      0.8,
		Website:          "https://www.acme.test",
		FeedURLs:         []string{feedURL},
		PublicationsPath: "/insights",
		Policy:           policy,
	}
}

func openPolicy() crawler.CrawlPolicy {
	return crawler.CrawlPolicy{MaxDepth: 2, RateLimit: 10, NoLoginBypass: true, NoPaywallBypass: true}
}

func newFixture(t *testing.T, specs ...crawler.OrganizationSpec) *fixture {
	t.Helper()
	if len(specs) == 0 {
		specs = []crawler.OrganizationSpec{acmeSpec(openPolicy())}
	}
	reg, err := crawler.NewRegistry(specs)
	require.NoError(t, err)

	store := memory.NewStore()
	fetcher := newStubFetcher()
	clk := system.NewManual(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	ids := uuid.NewUUIDGenerator()
	gate := compliance.NewGate(nil, nil)
	limiter := ratelimit.New(ratelimit.Config{}, clk)
	recorder := crawler.NewDocumentRecorder(store, sha256.New(), ids, clk, reg)
	pub := pubmem.New()

	proc, err := processor.New(processor.Config{}, processor.Deps{
		Store: store, Fetcher: fetcher, IDs: ids, Clock: clk,
	})
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Config{Concurrency: 2, ProcessConcurrency: 2, CrawlTopic: crawlTopic}, orchestrator.Deps{
		Registry:  reg,
		Store:     store,
		Ingester:  feed.NewIngester(fetcher, nil, recorder, nil),
		Scraper:   scraper.New(scraper.Config{}, fetcher, nil, gate, recorder, nil),
		Processor: proc,
		Gate:      gate,
		Limiter:   limiter,
		Publisher: pub,
		IDs:       ids,
		Clock:     clk,
	})
	require.NoError(t, err)

	_, err = orch.InitializeOrganizations(context.Background())
	require.NoError(t, err)
	return &fixture{orch: orch, store: store, fetcher: fetcher, limiter: limiter, publisher: pub}
}

func TestCrawlOrganizationFeedsAndPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.CrawlOrganization(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, res.DocumentsFound)
	assert.Nil(t, res.Errors)
	assert.Equal(t, crawler.CrawlCompleted, res.Status)

	logs, err := f.orch.ListCrawlLogs(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.CrawlLogID, logs[0].ID)
	assert.Equal(t, crawler.CrawlCompleted, logs[0].Status)
	assert.Equal(t, crawler.CrawlTypeFull, logs[0].CrawlType)
	assert.Equal(t, 3, logs[0].DocumentsFound)
	assert.Nil(t, logs[0].Errors)
	require.NotNil(t, logs[0].CompletedAt)

	pending, err := f.store.ListDocumentsByStatus(ctx, crawler.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, doc := range pending {
		assert.Equal(t, "acme", doc.SourceType)
		assert.InDelta(t, 0.8, doc.ConfidenceScore, 1e-9)
	}

	msgs := f.publisher.Messages(crawlTopic)
	require.Len(t, msgs, 1)
	var event crawler.CrawlCompletedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, "acme", event.Slug)
	assert.Equal(t, 3, event.DocumentsFound)

	again, err := f.orch.CrawlOrganization(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, again.DocumentsFound)
	assert.Equal(t, crawler.CrawlCompleted, again.Status)
}

func TestCrawlOrganizationRecordsErrors(t *testing.T) {
	t.Parallel()

	policy := openPolicy()
	policy.DenyPaths = []string{"/insights"}
	f := newFixture(t, acmeSpec(policy))
	f.fetcher.statuses[feedURL] = 500

	res, err := f.orch.CrawlOrganization(context.Background(), "acme")
	require.NoError(t, err)
	assert.Zero(t, res.DocumentsFound)
	assert.Equal(t, crawler.CrawlCompletedWithErrors, res.Status)
	assert.Equal(t, []string{
		"fetch feed " + feedURL + ": Failed to fetch: 500",
		"publications page " + pageURL + ": Path blocked by policy: /insights",
	}, res.Errors)
	assert.Zero(t, f.fetcher.callCount(pageURL))

	logs, err := f.orch.ListCrawlLogs(context.Background(), "acme", 1)
	require.NoError(t, err)
	assert.Equal(t, crawler.CrawlCompletedWithErrors, logs[0].Status)
	assert.Equal(t, res.Errors, logs[0].Errors)
}

func TestCrawlOrganizationRateLimitedPage(t *testing.T) {
	t.Parallel()

	policy := openPolicy()
	policy.RateLimit = 1
	f := newFixture(t, acmeSpec(policy))
	require.True(t, f.limiter.TryAcquire("www.acme.test", 1))

	res, err := f.orch.CrawlOrganization(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsFound)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "www.acme.test: rate limit exceeded")
	assert.Zero(t, f.fetcher.callCount(pageURL))
}

func TestCrawlOrganizationLookupFailures(t *testing.T) {
	t.Parallel()

	dormant := crawler.OrganizationSpec{Name: "Dormant", Slug: "dormant", Website: "https://dormant.test", Inactive: true}
	f := newFixture(t, acmeSpec(openPolicy()), dormant)
	ctx := context.Background()

	_, err := f.orch.CrawlOrganization(ctx, "unknown")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = f.orch.CrawlOrganization(ctx, "dormant")
	require.ErrorIs(t, err, crawler.ErrInactive)

	stats, err := f.orch.GetCrawlStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Organizations)
	assert.Zero(t, stats.Documents)
}

func TestCrawlOrganizationNotSeeded(t *testing.T) {
	t.Parallel()

	reg, err := crawler.NewRegistry([]crawler.OrganizationSpec{acmeSpec(openPolicy())})
	require.NoError(t, err)
	clk := system.NewManual(time.Now())
	store := memory.NewStore()
	fetcher := newStubFetcher()
	recorder := crawler.NewDocumentRecorder(store, sha256.New(), uuid.NewUUIDGenerator(), clk, reg)
	gate := compliance.NewGate(nil, nil)
	orch, err := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Registry: reg,
		Store:    store,
		Ingester: feed.NewIngester(fetcher, nil, recorder, nil),
		Scraper:  scraper.New(scraper.Config{}, fetcher, nil, gate, recorder, nil),
		Gate:     gate,
		Limiter:  ratelimit.New(ratelimit.Config{}, clk),
		IDs:      uuid.NewUUIDGenerator(),
		Clock:    clk,
	})
	require.NoError(t, err)

	_, err = orch.CrawlOrganization(context.Background(), "acme")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = orch.ProcessPending(context.Background(), 10)
	require.Error(t, err)
}

func TestInitializeOrganizationsIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	before, err := f.store.GetOrganizationBySlug(ctx, "acme")
	require.NoError(t, err)

	orgs, err := f.orch.InitializeOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, before.ID, orgs[0].ID)
	assert.True(t, orgs[0].IsActive)
	assert.Equal(t, 10, orgs[0].CrawlPolicy.RateLimit)
}

func TestCrawlAllSkipsInactive(t *testing.T) {
	t.Parallel()

	dormant := crawler.OrganizationSpec{Name: "Dormant", Slug: "dormant", Website: "https://dormant.test", Inactive: true}
	f := newFixture(t, acmeSpec(openPolicy()), dormant)

	results, err := f.orch.CrawlAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme", results[0].Slug)
	assert.Equal(t, 3, results[0].DocumentsFound)
}

func TestProcessPendingCountsOutcomes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.CrawlOrganization(ctx, "acme")
	require.NoError(t, err)

	f.fetcher.mu.Lock()
	f.fetcher.bodies["https://www.acme.test/insights/outlook-2024"] = "<p>Demand rose 8% year on year.</p>"
	f.fetcher.bodies["https://www.acme.test/insights/pricing"] = "<p>Pricing pressure eased.</p>"
	f.fetcher.mu.Unlock()

	batch, err := f.orch.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Processed)
	assert.Equal(t, 1, batch.Failed)
	assert.Zero(t, batch.Deferred)
	assert.Equal(t, 2, batch.Chunks)

	stats, err := f.orch.GetCrawlStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Stats{
		Organizations:      1,
		Documents:          3,
		PendingDocuments:   0,
		ProcessedDocuments: 2,
		FailedDocuments:    1,
		Chunks:             2,
	}, stats)
}

func TestProcessDocumentWrapsErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.orch.ProcessDocument(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{})
	require.Error(t, err)
}

type blockingIngester struct {
	mu       sync.Mutex
	inFlight map[string]int
	maxSeen  map[string]int
	started  map[string]chan struct{}
	wait     map[string]string
}

func newBlockingIngester() *blockingIngester {
	return &blockingIngester{
		inFlight: map[string]int{},
		maxSeen:  map[string]int{},
		started:  map[string]chan struct{}{"acme": make(chan struct{}), "beta": make(chan struct{})},
		wait:     map[string]string{},
	}
}

func (b *blockingIngester) IngestFeed(ctx context.Context, _, _, slug string) (int, error) {
	b.mu.Lock()
	b.inFlight[slug]++
	if b.inFlight[slug] > b.maxSeen[slug] {
		b.maxSeen[slug] = b.inFlight[slug]
	}
	if ch := b.started[slug]; ch != nil {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
	other := b.wait[slug]
	b.mu.Unlock()

	if other != "" {
		select {
		case <-b.started[other]:
		case <-time.After(5 * time.Second):
			return 0, errors.New("crawl of " + other + " never overlapped")
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	} else {
		time.Sleep(5 * time.Millisecond)
	}

	b.mu.Lock()
	b.inFlight[slug]--
	b.mu.Unlock()
	return 0, nil
}

func (b *blockingIngester) max(slug string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxSeen[slug]
}

func newSerializationFixture(t *testing.T, ingester *blockingIngester) *orchestrator.Orchestrator {
	t.Helper()
	beta := acmeSpec(openPolicy())
	beta.Name, beta.Slug, beta.Website = "Beta Partners", "beta", "https://www.beta.test"
	specs := []crawler.OrganizationSpec{acmeSpec(openPolicy()), beta}
	for i := range specs {
		specs[i].PublicationsPath = ""
		specs[i].Policy.RateLimit = 100
	}
	reg, err := crawler.NewRegistry(specs)
	require.NoError(t, err)

	clk := system.NewManual(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	fetcher := newStubFetcher()
	recorder := crawler.NewDocumentRecorder(store, sha256.New(), uuid.NewUUIDGenerator(), clk, reg)
	gate := compliance.NewGate(nil, nil)
	orch, err := orchestrator.New(orchestrator.Config{Concurrency: 4}, orchestrator.Deps{
		Registry: reg,
		Store:    store,
		Ingester: ingester,
		Scraper:  scraper.New(scraper.Config{}, fetcher, nil, gate, recorder, nil),
		Gate:     gate,
		Limiter:  ratelimit.New(ratelimit.Config{}, clk),
		IDs:      uuid.NewUUIDGenerator(),
		Clock:    clk,
	})
	require.NoError(t, err)
	_, err = orch.InitializeOrganizations(context.Background())
	require.NoError(t, err)
	return orch
}

func TestCrawlOrganizationSerializesSameSlug(t *testing.T) {
	t.Parallel()

	ingester := newBlockingIngester()
	orch := newSerializationFixture(t, ingester)

	const runs = 6
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := orch.CrawlOrganization(context.Background(), "acme")
			if err == nil && len(res.Errors) > 0 {
				err = errors.New(res.Errors[0])
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, ingester.max("acme"))
	logs, err := orch.ListCrawlLogs(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Len(t, logs, runs)
}

func TestCrawlOrganizationDifferentSlugsOverlap(t *testing.T) {
	t.Parallel()

	ingester := newBlockingIngester()
	ingester.wait["acme"] = "beta"
	ingester.wait["beta"] = "acme"
	orch := newSerializationFixture(t, ingester)

	var wg sync.WaitGroup
	results := make([]orchestrator.Result, 2)
	for i, slug := range []string{"acme", "beta"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := orch.CrawlOrganization(context.Background(), slug)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results {
		assert.Empty(t, res.Errors, "slug %s", res.Slug)
		assert.Equal(t, crawler.CrawlCompleted, res.Status)
	}
}
