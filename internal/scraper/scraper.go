// Package scraper discovers publication links on an organization's publications page.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
)

// DefaultMaxCandidates caps the candidate links taken from one page.
const DefaultMaxCandidates = 20

// Result summarizes one publications page scrape.
type Result struct {
	Inserted   int      `json:"inserted"`
	Candidates int      `json:"candidates"`
	Denied     int      `json:"denied"`
	Errors     []string `json:"errors,omitempty"`
}

// Scraper fetches publications pages and records compliant candidate links.
type Scraper struct {
	fetcher       crawler.Fetcher
	extractor     LinkExtractor
	gate          crawler.ComplianceChecker
	recorder      *crawler.DocumentRecorder
	maxCandidates int
	logger        *zap.Logger
}

// Config tunes the scraper.
type Config struct {
	MaxCandidates int
}

// New wires a Scraper. A nil extractor uses ScanExtractor.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	extractor LinkExtractor,
	gate crawler.ComplianceChecker,
	recorder *crawler.DocumentRecorder,
	logger *zap.Logger,
) *Scraper {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if extractor == nil {
		extractor = ScanExtractor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher:       fetcher,
		extractor:     extractor,
		gate:          gate,
		recorder:      recorder,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger,
	}
}

// ScrapePublicationsPage fetches pageURL, selects candidate publication links, re-checks
// each with the compliance gate and records the allowed ones as pending documents.
// A fetch failure is returned as *crawler.FetchError; per-link failures land in Result.Errors.
func (s *Scraper) ScrapePublicationsPage(
	ctx context.Context,
	pageURL, organizationID, sourceType string,
	policy crawler.CrawlPolicy,
) (Result, error) {
	var result Result
	page, err := url.Parse(pageURL)
	if err != nil {
		return result, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}

	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: pageURL, Accept: "text/html,application/xhtml+xml"})
	if err != nil {
		return result, fmt.Errorf("fetch publications page %s: %w", pageURL, err)
	}

	anchors, err := s.extractor.Anchors(resp.Body)
	if err != nil {
		s.logger.Warn("publications page did not parse", zap.String("url", pageURL), zap.Error(err))
		return result, nil
	}
	if policy.MaxDepth < 1 {
		s.logger.Warn("max depth excludes linked publications", zap.String("url", pageURL))
		result.Errors = append(result.Errors,
			fmt.Sprintf("publications page %s: max_depth %d excludes linked publications", pageURL, policy.MaxDepth))
		return result, nil
	}

	links := SelectCandidates(page, anchors, s.maxCandidates)
	result.Candidates = len(links)
	for _, link := range links {
		if decision := s.gate.IsAllowed(ctx, link.URL, policy); !decision.Allowed {
			result.Denied++
			continue
		}
		title := link.Text
		if title == "" {
			title = link.URL
		}
		inserted, err := s.recorder.Record(ctx, crawler.Candidate{
			OrganizationID: organizationID,
			SourceType:     sourceType,
			Title:          title,
			URL:            link.URL,
			DocumentType:   InferDocumentType(link.Text),
		})
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if inserted {
			result.Inserted++
		}
	}

	metrics.ObserveDiscovered(sourceType, "page", result.Inserted)
	s.logger.Info("publications page scraped",
		zap.String("url", pageURL),
		zap.String("source", sourceType),
		zap.Int("candidates", result.Candidates),
		zap.Int("denied", result.Denied),
		zap.Int("inserted", result.Inserted),
	)
	return result, nil
}

// InferDocumentType classifies a publication by keywords in its link text.
func InferDocumentType(text string) crawler.DocumentType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "report"):
		return crawler.DocumentReport
	case strings.Contains(lower, "benchmark"):
		return crawler.DocumentBenchmark
	case strings.Contains(lower, "analysis"):
		return crawler.DocumentAnalysis
	case strings.Contains(lower, "whitepaper"), strings.Contains(lower, "white paper"):
		return crawler.DocumentWhitepaper
	default:
		return crawler.DocumentInsight
	}
}
