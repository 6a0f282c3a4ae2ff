package feed

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
)

// AcceptHeader is sent with every feed request.
const AcceptHeader = "application/rss+xml, application/xml, text/xml"

// Ingester fetches feeds and records unseen items as pending documents.
type Ingester struct {
	fetcher  crawler.Fetcher
	parser   ItemParser
	recorder *crawler.DocumentRecorder
	logger   *zap.Logger
}

// NewIngester wires an Ingester. A nil parser uses ScanParser.
func NewIngester(fetcher crawler.Fetcher, parser ItemParser, recorder *crawler.DocumentRecorder, logger *zap.Logger) *Ingester {
	if parser == nil {
		parser = ScanParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{fetcher: fetcher, parser: parser, recorder: recorder, logger: logger}
}

// IngestFeed fetches feedURL and inserts every item whose link hash is not stored yet.
// It returns the number of newly inserted documents. A non-2xx response is returned as
// *crawler.FetchError; a body that does not parse yields zero items.
func (i *Ingester) IngestFeed(ctx context.Context, feedURL, organizationID, sourceType string) (int, error) {
	resp, err := i.fetcher.Fetch(ctx, crawler.FetchRequest{URL: feedURL, Accept: AcceptHeader})
	if err != nil {
		return 0, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	items, err := i.parser.ParseItems(ctx, resp.Body)
	if err != nil {
		i.logger.Warn("feed did not parse; no items", zap.String("feed", feedURL), zap.Error(err))
		return 0, nil
	}

	inserted := 0
	for _, item := range items {
		if !isAbsoluteHTTP(item.Link) {
			i.logger.Debug("skipping feed item with unusable link", zap.String("feed", feedURL), zap.String("link", item.Link))
			continue
		}
		ok, err := i.recorder.Record(ctx, crawler.Candidate{
			OrganizationID:  organizationID,
			SourceType:      sourceType,
			Title:           item.Title,
			URL:             item.Link,
			DocumentType:    crawler.DocumentInsight,
			PublicationDate: item.Published,
		})
		if err != nil {
			metrics.ObserveDiscovered(sourceType, "feed", inserted)
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	metrics.ObserveDiscovered(sourceType, "feed", inserted)
	i.logger.Info("feed ingested",
		zap.String("feed", feedURL),
		zap.String("source", sourceType),
		zap.Int("items", len(items)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
