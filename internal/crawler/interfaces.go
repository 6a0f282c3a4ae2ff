package crawler

import (
	"context"
	"io"
	"time"
)

// OrganizationStore persists organizations.
type OrganizationStore interface {
	UpsertOrganization(ctx context.Context, org Organization) (Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
}

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	// InsertDocument returns ErrDuplicate when the hash already exists.
	InsertDocument(ctx context.Context, doc Document) error
	DocumentExists(ctx context.Context, hash string) (bool, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	// ListDocumentsByStatus returns the oldest matches first; limit <= 0 means no limit.
	ListDocumentsByStatus(ctx context.Context, status ProcessingStatus, limit int) ([]Document, error)
	// CompleteDocument writes the chunks and marks the document processed atomically.
	CompleteDocument(ctx context.Context, documentID string, archiveURI string, chunks []DocumentChunk) error
	MarkDocumentFailed(ctx context.Context, documentID string) error
	CountChunks(ctx context.Context, documentID string) (int, error)
}

// CrawlLogStore persists crawl run logs.
type CrawlLogStore interface {
	CreateCrawlLog(ctx context.Context, entry CrawlLog) error
	CompleteCrawlLog(ctx context.Context, entry CrawlLog) error
	// ListCrawlLogs returns the newest runs first; limit <= 0 means no limit.
	ListCrawlLogs(ctx context.Context, organizationID string, limit int) ([]CrawlLog, error)
}

// Store is the full persistence boundary used by the pipeline.
type Store interface {
	OrganizationStore
	DocumentStore
	CrawlLogStore
	Stats(ctx context.Context) (Stats, error)
	Close()
}

// Fetcher performs a single HTTP GET and returns the body plus metadata.
// Non-2xx responses are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes pipeline events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes the dedup key for a URL.
type Hasher interface {
	Hash(value string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// ComplianceChecker decides whether a URL may be fetched under a policy.
type ComplianceChecker interface {
	IsAllowed(ctx context.Context, rawURL string, policy CrawlPolicy) Decision
}

// Decision is the outcome of a compliance check. Reason is empty when allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RateLimiter is advisory per-domain admission control; it never blocks.
type RateLimiter interface {
	TryAcquire(domain string, limitPerMinute int) bool
}

// TrustTable maps a source type (organization slug) to its static confidence weight.
type TrustTable interface {
	TrustWeight(sourceType string) float64
}
