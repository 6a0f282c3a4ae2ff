package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Candidate is a discovered publication that may become a pending document.
type Candidate struct {
	OrganizationID  string
	SourceType      string
	Title           string
	URL             string
	DocumentType    DocumentType
	PublicationDate *time.Time
}

// DocumentRecorder inserts candidates as pending documents, skipping URLs whose hash is
// already stored. Feed ingestion and page scraping share it.
type DocumentRecorder struct {
	docs   DocumentStore
	hasher Hasher
	ids    IDGenerator
	clock  Clock
	trust  TrustTable
}

// NewDocumentRecorder wires a DocumentRecorder.
func NewDocumentRecorder(docs DocumentStore, hasher Hasher, ids IDGenerator, clock Clock, trust TrustTable) *DocumentRecorder {
	return &DocumentRecorder{docs: docs, hasher: hasher, ids: ids, clock: clock, trust: trust}
}

// Record inserts c unless its URL hash exists. It reports whether a row was inserted.
func (r *DocumentRecorder) Record(ctx context.Context, c Candidate) (bool, error) {
	hash := r.hasher.Hash(c.URL)
	exists, err := r.docs.DocumentExists(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", c.URL, err)
	}
	if exists {
		return false, nil
	}

	id, err := r.ids.NewID()
	if err != nil {
		return false, fmt.Errorf("generate document id: %w", err)
	}
	docType := c.DocumentType
	if docType == "" {
		docType = DocumentInsight
	}
	now := r.clock.Now()
	doc := Document{
		ID:               id,
		OrganizationID:   c.OrganizationID,
		SourceType:       c.SourceType,
		Title:            c.Title,
		DocumentType:     docType,
		URL:              c.URL,
		HashSHA256:       hash,
		PublicationDate:  c.PublicationDate,
		ConfidenceScore:  r.confidence(c.SourceType),
		ProcessingStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.docs.InsertDocument(ctx, doc); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("insert document %s: %w", c.URL, err)
	}
	return true, nil
}

func (r *DocumentRecorder) confidence(sourceType string) float64 {
	if r.trust == nil {
		return DefaultTrustWeight
	}
	return r.trust.TrustWeight(sourceType)
}
