package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
)

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, nil)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS organizations")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	require.Contains(t, Schema(), "hash_sha256       CHAR(64) NOT NULL UNIQUE")
}

func TestUpsertOrganizationReturnsStoredID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	org := crawler.Organization{
		ID:          "new-id",
		Name:        "Acme",
		Slug:        "acme",
		OrgType:     "consulting",
		Tier:        "tier1",
		TrustWeight: 0.9,
		Website:     "https://acme.example",
		CrawlPolicy: crawler.CrawlPolicy{DenyPaths: []string{"/careers"}, RateLimit: 10},
		IsActive:    true,
	}
	policy, err := json.Marshal(org.CrawlPolicy)
	require.NoError(t, err)
	created := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("new-id", "Acme", "acme", "consulting", "tier1", 0.9, "https://acme.example", policy, true, fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("existing-id", created, fixedNow))

	got, err := store.UpsertOrganization(context.Background(), org)
	require.NoError(t, err)
	require.Equal(t, "existing-id", got.ID)
	require.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganizationBySlug(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	columns := []string{"id", "name", "slug", "org_type", "tier", "trust_weight", "website", "crawl_policy", "is_active", "created_at", "updated_at"}
	mock.ExpectQuery("FROM organizations WHERE slug").
		WithArgs("acme").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"org-1", "Acme", "acme", "consulting", "tier1", 0.9, "https://acme.example",
			[]byte(`{"deny_paths":["/careers"],"rate_limit":10,"obey_robots_txt":true}`), true, fixedNow, fixedNow,
		))
	mock.ExpectQuery("FROM organizations WHERE slug").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	org, err := store.GetOrganizationBySlug(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "org-1", org.ID)
	require.Equal(t, []string{"/careers"}, org.CrawlPolicy.DenyPaths)
	require.Equal(t, 10, org.CrawlPolicy.RateLimit)
	require.True(t, org.CrawlPolicy.ObeyRobotsTxt)

	_, err = store.GetOrganizationBySlug(context.Background(), "missing")
	require.True(t, errors.Is(err, crawler.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	doc := crawler.Document{
		ID:               "doc-1",
		OrganizationID:   "org-1",
		SourceType:       "acme",
		Title:            "Report",
		DocumentType:     crawler.DocumentReport,
		URL:              "https://acme.example/reports/1",
		HashSHA256:       "abc",
		ConfidenceScore:  0.9,
		ProcessingStatus: crawler.StatusPending,
		CreatedAt:        fixedNow,
		UpdatedAt:        fixedNow,
	}
	args := []any{
		"doc-1", "org-1", "acme", "Report", "report", "https://acme.example/reports/1", "abc",
		(*time.Time)(nil), 0.9, "pending", fixedNow, fixedNow,
	}
	mock.ExpectExec("INSERT INTO documents").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO documents").WithArgs(args...).WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, store.InsertDocument(context.Background(), doc))
	err := store.InsertDocument(context.Background(), doc)
	require.True(t, errors.Is(err, crawler.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.DocumentExists(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocumentsByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := fixedNow.Add(-48 * time.Hour)
	columns := []string{
		"id", "organization_id", "source_type", "title", "document_type", "url", "hash_sha256",
		"publication_date", "confidence_score", "processing_status", "archive_uri", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM documents WHERE processing_status").
		WithArgs("pending", 5).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("d1", "org-1", "acme", "One", "insight", "https://a/1", "h1", &published, 0.9, "pending", "", fixedNow, fixedNow).
			AddRow("d2", "org-1", "acme", "Two", "report", "https://a/2", "h2", nil, 0.9, "pending", "", fixedNow, fixedNow))

	docs, err := store.ListDocumentsByStatus(context.Background(), crawler.StatusPending, 5)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, crawler.DocumentInsight, docs[0].DocumentType)
	require.NotNil(t, docs[0].PublicationDate)
	require.Equal(t, crawler.DocumentReport, docs[1].DocumentType)
	require.Nil(t, docs[1].PublicationDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocumentsByStatusWithoutLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	columns := []string{
		"id", "organization_id", "source_type", "title", "document_type", "url", "hash_sha256",
		"publication_date", "confidence_score", "processing_status", "archive_uri", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM documents WHERE processing_status").
		WithArgs("failed", nil).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("d9", "org-1", "acme", "Nine", "insight", "https://a/9", "h9", nil, 0.9, "failed", "", fixedNow, fixedNow))

	docs, err := store.ListDocumentsByStatus(context.Background(), crawler.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDocumentCommitsChunksAndStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	chunks := []crawler.DocumentChunk{
		{ID: "c0", ChunkIndex: 0, Text: "first", StartOffset: 0, EndOffset: 5, HasMetrics: true, CreatedAt: fixedNow},
		{ID: "c1", ChunkIndex: 1, Text: "second", StartOffset: 5, EndOffset: 11, HasCitations: true, CreatedAt: fixedNow},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("c0", "doc-1", 0, "first", 0, 5, true, false, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("c1", "doc-1", 1, "second", 5, 11, false, true, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE documents SET processing_status").
		WithArgs("doc-1", "processed", "gs://archive/documents/h.html", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.CompleteDocument(context.Background(), "doc-1", "gs://archive/documents/h.html", chunks)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDocumentRollsBackOnChunkFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_chunks").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.CompleteDocument(context.Background(), "doc-1", "", []crawler.DocumentChunk{{ID: "c0"}})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDocumentFailedMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE documents SET processing_status").
		WithArgs("doc-404", "failed", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.MarkDocumentFailed(context.Background(), "doc-404")
	require.True(t, errors.Is(err, crawler.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlLogLifecycle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := fixedNow.Add(-time.Minute)
	entry := crawler.CrawlLog{
		ID:             "log-1",
		OrganizationID: "org-1",
		CrawlType:      crawler.CrawlTypeFull,
		Status:         crawler.CrawlStarted,
		StartedAt:      started,
	}

	mock.ExpectExec("INSERT INTO crawl_logs").
		WithArgs("log-1", "org-1", "full", "started", started, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateCrawlLog(context.Background(), entry))

	entry.Status = crawler.CrawlCompleted
	entry.CompletedAt = &fixedNow
	entry.DocumentsFound = 3
	mock.ExpectExec("UPDATE crawl_logs").
		WithArgs("log-1", "completed", &fixedNow, 3, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.CompleteCrawlLog(context.Background(), entry))

	entry.Status = crawler.CrawlCompletedWithErrors
	entry.Errors = []string{"Failed to fetch: 500"}
	mock.ExpectExec("UPDATE crawl_logs").
		WithArgs("log-1", "completed_with_errors", &fixedNow, 3, []byte(`["Failed to fetch: 500"]`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.CompleteCrawlLog(context.Background(), entry))

	mock.ExpectQuery("FROM crawl_logs WHERE organization_id").
		WithArgs("org-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "organization_id", "crawl_type", "status", "started_at", "completed_at", "documents_found", "errors",
		}).
			AddRow("log-2", "org-1", "full", "completed", started, &fixedNow, 0, nil).
			AddRow("log-1", "org-1", "full", "completed_with_errors", started, &fixedNow, 3, []byte(`["Failed to fetch: 500"]`)))

	logs, err := store.ListCrawlLogs(context.Background(), "org-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Nil(t, logs[0].Errors)
	require.Equal(t, []string{"Failed to fetch: 500"}, logs[1].Errors)
	require.Equal(t, crawler.CrawlCompletedWithErrors, logs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM organizations")).
		WillReturnRows(pgxmock.NewRows([]string{"o", "d", "p", "pr", "f", "c"}).AddRow(2, 10, 4, 5, 1, 37))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.Stats{
		Organizations:      2,
		Documents:          10,
		PendingDocuments:   4,
		ProcessedDocuments: 5,
		FailedDocuments:    1,
		Chunks:             37,
	}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}
