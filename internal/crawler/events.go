package crawler

import "time"

// DocumentProcessedEvent is published after a document leaves the pending state.
type DocumentProcessedEvent struct {
	DocumentID     string           `json:"document_id"`
	OrganizationID string           `json:"organization_id"`
	SourceType     string           `json:"source_type"`
	URL            string           `json:"url"`
	Status         ProcessingStatus `json:"status"`
	Chunks         int              `json:"chunks"`
	ArchiveURI     string           `json:"archive_uri,omitempty"`
	Error          string           `json:"error,omitempty"`
	ProcessedAt    time.Time        `json:"processed_at"`
}

// CrawlCompletedEvent is published when a crawl run reaches a terminal status.
type CrawlCompletedEvent struct {
	CrawlLogID     string      `json:"crawl_log_id"`
	OrganizationID string      `json:"organization_id"`
	Slug           string      `json:"slug"`
	Status         CrawlStatus `json:"status"`
	DocumentsFound int         `json:"documents_found"`
	Errors         []string    `json:"errors,omitempty"`
	CompletedAt    time.Time   `json:"completed_at"`
}
