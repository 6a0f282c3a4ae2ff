// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
)

// Store implements crawler.Store in-memory. The document hash index mirrors the
// unique constraint of the relational schema.
type Store struct {
	mu            sync.RWMutex
	organizations map[string]crawler.Organization
	orgBySlug     map[string]string
	documents     map[string]crawler.Document
	docByHash     map[string]string
	chunks        map[string][]crawler.DocumentChunk
	crawlLogs     map[string]crawler.CrawlLog
	logOrder      []string
	now           func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		organizations: make(map[string]crawler.Organization),
		orgBySlug:     make(map[string]string),
		documents:     make(map[string]crawler.Document),
		docByHash:     make(map[string]string),
		chunks:        make(map[string][]crawler.DocumentChunk),
		crawlLogs:     make(map[string]crawler.CrawlLog),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// UpsertOrganization inserts org or updates the row with the same slug, keeping its ID.
func (s *Store) UpsertOrganization(_ context.Context, org crawler.Organization) (crawler.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.orgBySlug[org.Slug]; ok {
		existing := s.organizations[id]
		org.ID = existing.ID
		org.CreatedAt = existing.CreatedAt
	} else {
		if org.ID == "" {
			return crawler.Organization{}, fmt.Errorf("organization %q has no id", org.Slug)
		}
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	s.organizations[org.ID] = org
	s.orgBySlug[org.Slug] = org.ID
	return org, nil
}

// GetOrganizationBySlug returns the organization with slug or crawler.ErrNotFound.
func (s *Store) GetOrganizationBySlug(_ context.Context, slug string) (crawler.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orgBySlug[slug]
	if !ok {
		return crawler.Organization{}, fmt.Errorf("organization %q: %w", slug, crawler.ErrNotFound)
	}
	return s.organizations[id], nil
}

// GetOrganization returns the organization with id or crawler.ErrNotFound.
func (s *Store) GetOrganization(_ context.Context, id string) (crawler.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[id]
	if !ok {
		return crawler.Organization{}, fmt.Errorf("organization %s: %w", id, crawler.ErrNotFound)
	}
	return org, nil
}

// InsertDocument stores doc, returning crawler.ErrDuplicate when its hash exists.
func (s *Store) InsertDocument(_ context.Context, doc crawler.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docByHash[doc.HashSHA256]; exists {
		return fmt.Errorf("document %s: %w", doc.URL, crawler.ErrDuplicate)
	}
	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document id %s: %w", doc.ID, crawler.ErrDuplicate)
	}
	s.documents[doc.ID] = doc
	s.docByHash[doc.HashSHA256] = doc.ID
	return nil
}

// DocumentExists reports whether a document with hash is stored.
func (s *Store) DocumentExists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docByHash[hash]
	return ok, nil
}

// GetDocument returns the document with id or crawler.ErrNotFound.
func (s *Store) GetDocument(_ context.Context, id string) (crawler.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return crawler.Document{}, fmt.Errorf("document %s: %w", id, crawler.ErrNotFound)
	}
	return doc, nil
}

// ListDocumentsByStatus returns up to limit documents with status, oldest first.
func (s *Store) ListDocumentsByStatus(
	_ context.Context,
	status crawler.ProcessingStatus,
	limit int,
) ([]crawler.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Document
	for _, doc := range s.documents {
		if doc.ProcessingStatus == status {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompleteDocument stores chunks and marks the document processed in one step.
func (s *Store) CompleteDocument(
	_ context.Context,
	documentID string,
	archiveURI string,
	chunks []crawler.DocumentChunk,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, crawler.ErrNotFound)
	}
	s.chunks[documentID] = append([]crawler.DocumentChunk(nil), chunks...)
	doc.ProcessingStatus = crawler.StatusProcessed
	if archiveURI != "" {
		doc.ArchiveURI = archiveURI
	}
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return nil
}

// MarkDocumentFailed sets the document status to failed.
func (s *Store) MarkDocumentFailed(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, crawler.ErrNotFound)
	}
	doc.ProcessingStatus = crawler.StatusFailed
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return nil
}

// CountChunks returns how many chunks are stored for a document.
func (s *Store) CountChunks(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[documentID]), nil
}

// Chunks returns a copy of the stored chunks for a document, ordered by index.
func (s *Store) Chunks(documentID string) []crawler.DocumentChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.DocumentChunk(nil), s.chunks[documentID]...)
}

// CreateCrawlLog records a started run.
func (s *Store) CreateCrawlLog(_ context.Context, entry crawler.CrawlLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crawlLogs[entry.ID]; exists {
		return fmt.Errorf("crawl log %s: %w", entry.ID, crawler.ErrDuplicate)
	}
	s.crawlLogs[entry.ID] = entry
	s.logOrder = append(s.logOrder, entry.ID)
	return nil
}

// CompleteCrawlLog overwrites the terminal fields of an existing run.
func (s *Store) CompleteCrawlLog(_ context.Context, entry crawler.CrawlLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.crawlLogs[entry.ID]
	if !ok {
		return fmt.Errorf("crawl log %s: %w", entry.ID, crawler.ErrNotFound)
	}
	existing.Status = entry.Status
	existing.CompletedAt = entry.CompletedAt
	existing.DocumentsFound = entry.DocumentsFound
	existing.Errors = append([]string(nil), entry.Errors...)
	if len(existing.Errors) == 0 {
		existing.Errors = nil
	}
	s.crawlLogs[entry.ID] = existing
	return nil
}

// ListCrawlLogs returns the most recent runs for an organization, newest first.
func (s *Store) ListCrawlLogs(_ context.Context, organizationID string, limit int) ([]crawler.CrawlLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.CrawlLog
	for i := len(s.logOrder) - 1; i >= 0; i-- {
		entry := s.crawlLogs[s.logOrder[i]]
		if entry.OrganizationID != organizationID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Stats returns row counts.
func (s *Store) Stats(_ context.Context) (crawler.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := crawler.Stats{
		Organizations: len(s.organizations),
		Documents:     len(s.documents),
	}
	for _, doc := range s.documents {
		switch doc.ProcessingStatus {
		case crawler.StatusPending:
			stats.PendingDocuments++
		case crawler.StatusProcessed:
			stats.ProcessedDocuments++
		case crawler.StatusFailed:
			stats.FailedDocuments++
		}
	}
	for _, chunks := range s.chunks {
		stats.Chunks += len(chunks)
	}
	return stats, nil
}

// Close is a no-op.
func (s *Store) Close() {}

var _ crawler.Store = (*Store)(nil)
