// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// ProcessingStatus represents the lifecycle state of a discovered document.
type ProcessingStatus string

// Document processing states persisted in the document store.
const (
	StatusPending   ProcessingStatus = "pending"
	StatusProcessed ProcessingStatus = "processed"
	StatusFailed    ProcessingStatus = "failed"
)

// CrawlStatus is the state recorded on a crawl log row.
type CrawlStatus string

// Crawl log states.
const (
	CrawlStarted             CrawlStatus = "started"
	CrawlCompleted           CrawlStatus = "completed"
	CrawlCompletedWithErrors CrawlStatus = "completed_with_errors"
)

// DocumentType is the inferred category of a publication.
type DocumentType string

// Known document categories.
const (
	DocumentReport     DocumentType = "report"
	DocumentBenchmark  DocumentType = "benchmark"
	DocumentAnalysis   DocumentType = "analysis"
	DocumentWhitepaper DocumentType = "whitepaper"
	DocumentInsight    DocumentType = "insight"
)

// CrawlTypeFull is the crawl type written by orchestrated runs (feeds + publications page).
const CrawlTypeFull = "full"

// CrawlPolicy governs what may be fetched from an organization's site.
// NoLoginBypass and NoPaywallBypass are enforced structurally: no fetch path sends credentials.
type CrawlPolicy struct {
	AllowPaths      []string `json:"allow_paths" mapstructure:"allow_paths"`
	DenyPaths       []string `json:"deny_paths" mapstructure:"deny_paths"`
	MaxDepth        int      `json:"max_depth" mapstructure:"max_depth"`
	RateLimit       int      `json:"rate_limit" mapstructure:"rate_limit"`
	ObeyRobotsTxt   bool     `json:"obey_robots_txt" mapstructure:"obey_robots_txt"`
	NoLoginBypass   bool     `json:"no_login_bypass" mapstructure:"no_login_bypass"`
	NoPaywallBypass bool     `json:"no_paywall_bypass" mapstructure:"no_paywall_bypass"`
}

// Organization is an external publisher whose content is crawled.
type Organization struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	OrgType     string      `json:"org_type"`
	Tier        string      `json:"tier"`
	TrustWeight float64     `json:"trust_weight"`
	Website     string      `json:"website"`
	CrawlPolicy CrawlPolicy `json:"crawl_policy"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Document is one discovered publication, deduplicated by HashSHA256.
type Document struct {
	ID               string           `json:"id"`
	OrganizationID   string           `json:"organization_id"`
	SourceType       string           `json:"source_type"`
	Title            string           `json:"title"`
	DocumentType     DocumentType     `json:"document_type"`
	URL              string           `json:"url"`
	HashSHA256       string           `json:"hash_sha256"`
	PublicationDate  *time.Time       `json:"publication_date,omitempty"`
	ConfidenceScore  float64          `json:"confidence_score"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ArchiveURI       string           `json:"archive_uri,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DocumentChunk is a bounded slice of a document's extracted plain text.
type DocumentChunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Text         string    `json:"text"`
	StartOffset  int       `json:"start_offset"`
	EndOffset    int       `json:"end_offset"`
	HasMetrics   bool      `json:"has_metrics"`
	HasCitations bool      `json:"has_citations"`
	CreatedAt    time.Time `json:"created_at"`
}

// CrawlLog records one orchestrated crawl run for an organization.
type CrawlLog struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	CrawlType      string      `json:"crawl_type"`
	Status         CrawlStatus `json:"status"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	DocumentsFound int         `json:"documents_found"`
	// Errors is nil when the run had no failures.
	Errors []string `json:"errors"`
}

// Stats aggregates row counts across the pipeline tables.
type Stats struct {
	Organizations      int `json:"organizations"`
	Documents          int `json:"documents"`
	PendingDocuments   int `json:"pending_documents"`
	ProcessedDocuments int `json:"processed_documents"`
	FailedDocuments    int `json:"failed_documents"`
	Chunks             int `json:"chunks"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL    string
	Accept string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}
