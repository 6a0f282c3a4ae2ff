// Package processor turns pending documents into stored text chunks.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
)

// Config tunes chunking and the optional side effects of processing.
type Config struct {
	ChunkSize          int
	Overlap            int
	EnforceCompliance  bool
	ArchivePrefix      string
	ArchiveContentType string
	DocumentTopic      string
}

// Deps are the collaborators of a Processor. Gate, Limiter, Archive and Publisher are optional.
type Deps struct {
	Store     crawler.Store
	Fetcher   crawler.Fetcher
	Gate      crawler.ComplianceChecker
	Limiter   crawler.RateLimiter
	Archive   crawler.BlobStore
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Processor fetches a document, extracts its text and persists the chunks.
type Processor struct {
	cfg     Config
	deps    Deps
	chunker *Chunker
	logger  *zap.Logger
}

// New validates cfg and builds a Processor.
func New(cfg Config, deps Deps) (*Processor, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
		if cfg.Overlap == 0 {
			cfg.Overlap = DefaultOverlap
		}
	}
	chunker, err := NewChunker(cfg.ChunkSize, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Fetcher == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("processor requires a store, fetcher, id generator and clock")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "documents"
	}
	if cfg.ArchiveContentType == "" {
		cfg.ArchiveContentType = "text/html; charset=utf-8"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, deps: deps, chunker: chunker, logger: logger}, nil
}

// Process fetches the document, chunks its text and marks it processed, returning the
// number of chunks written. A fetch failure marks the document failed and returns the
// *crawler.FetchError; no chunks are written and nothing is retried. An already processed
// document is not refetched.
func (p *Processor) Process(ctx context.Context, documentID string) (int, error) {
	doc, err := p.deps.Store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	if doc.ProcessingStatus == crawler.StatusProcessed {
		count, err := p.deps.Store.CountChunks(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("count chunks: %w", err)
		}
		return count, nil
	}

	if p.cfg.EnforceCompliance {
		if err := p.admit(ctx, doc); err != nil {
			return 0, err
		}
	}

	resp, err := p.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: doc.URL, Accept: "text/html,application/xhtml+xml"})
	if err != nil {
		var fetchErr *crawler.FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = &crawler.FetchError{URL: doc.URL, Err: err}
		}
		return 0, p.fail(ctx, doc, fetchErr)
	}

	text := ExtractText(string(resp.Body))
	if text == "" {
		p.logger.Warn("document has no extractable text", zap.String("document_id", doc.ID), zap.String("url", doc.URL))
	}
	chunks, err := p.buildChunks(doc.ID, text)
	if err != nil {
		return 0, err
	}

	archiveURI := p.archive(ctx, doc, resp.Body)
	if err := p.deps.Store.CompleteDocument(ctx, doc.ID, archiveURI, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	metrics.ObserveProcessed(string(crawler.StatusProcessed), len(chunks))
	p.publish(ctx, doc, crawler.StatusProcessed, len(chunks), archiveURI, "")
	p.logger.Info("document processed",
		zap.String("document_id", doc.ID),
		zap.String("url", doc.URL),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// admit applies the owning organization's policy and per-domain budget.
func (p *Processor) admit(ctx context.Context, doc crawler.Document) error {
	org, err := p.deps.Store.GetOrganization(ctx, doc.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization: %w", err)
	}
	if p.deps.Gate != nil {
		if decision := p.deps.Gate.IsAllowed(ctx, doc.URL, org.CrawlPolicy); !decision.Allowed {
			return p.fail(ctx, doc, &crawler.ComplianceError{URL: doc.URL, Reason: decision.Reason})
		}
	}
	if p.deps.Limiter != nil {
		host := hostOf(doc.URL)
		if !p.deps.Limiter.TryAcquire(host, org.CrawlPolicy.RateLimit) {
			metrics.ObserveProcessed("deferred", 0)
			return fmt.Errorf("%s: %w", host, crawler.ErrRateLimited)
		}
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, doc crawler.Document, cause error) error {
	if err := p.deps.Store.MarkDocumentFailed(ctx, doc.ID); err != nil {
		return fmt.Errorf("mark document failed after %v: %w", cause, err)
	}
	metrics.ObserveProcessed(string(crawler.StatusFailed), 0)
	p.publish(ctx, doc, crawler.StatusFailed, 0, "", cause.Error())
	p.logger.Warn("document failed", zap.String("document_id", doc.ID), zap.String("url", doc.URL), zap.Error(cause))
	return cause
}

func (p *Processor) buildChunks(documentID, text string) ([]crawler.DocumentChunk, error) {
	spans := p.chunker.Split(text)
	now := p.deps.Clock.Now()
	chunks := make([]crawler.DocumentChunk, 0, len(spans))
	for i, span := range spans {
		id, err := p.deps.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate chunk id: %w", err)
		}
		chunks = append(chunks, crawler.DocumentChunk{
			ID:           id,
			DocumentID:   documentID,
			ChunkIndex:   i,
			Text:         span.Text,
			StartOffset:  span.Start,
			EndOffset:    span.End,
			HasMetrics:   HasMetrics(span.Text),
			HasCitations: HasCitations(span.Text),
			CreatedAt:    now,
		})
	}
	return chunks, nil
}

// archive stores the raw body; failures are logged and processing continues.
func (p *Processor) archive(ctx context.Context, doc crawler.Document, body []byte) string {
	if p.deps.Archive == nil {
		return ""
	}
	objectPath := path.Join(p.cfg.ArchivePrefix, doc.HashSHA256+".html")
	uri, err := p.deps.Archive.PutObject(ctx, objectPath, p.cfg.ArchiveContentType, bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("archive raw document failed", zap.String("document_id", doc.ID), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Processor) publish(
	ctx context.Context,
	doc crawler.Document,
	status crawler.ProcessingStatus,
	chunks int,
	archiveURI, errText string,
) {
	if p.deps.Publisher == nil || p.cfg.DocumentTopic == "" {
		return
	}
	event := crawler.DocumentProcessedEvent{
		DocumentID:     doc.ID,
		OrganizationID: doc.OrganizationID,
		SourceType:     doc.SourceType,
		URL:            doc.URL,
		Status:         status,
		Chunks:         chunks,
		ArchiveURI:     archiveURI,
		Error:          errText,
		ProcessedAt:    p.deps.Clock.Now(),
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.DocumentTopic, event); err != nil {
		p.logger.Warn("publish document event failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
