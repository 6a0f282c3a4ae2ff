// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool used by Store; pgxmock satisfies it in tests.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.Store on Postgres.
type Store struct {
	pool pool
	now  func() time.Time
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, nil)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
// A nil now uses the wall clock in UTC.
func NewWithPool(p pool, now func() time.Time) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{pool: p, now: now}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema applies the embedded schema. Statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded DDL.
func Schema() string {
	return schemaSQL
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return crawler.ErrDuplicate
	}
	return err
}

const organizationColumns = `id, name, slug, org_type, tier, trust_weight, website, crawl_policy, is_active, created_at, updated_at`

// UpsertOrganization inserts org or updates the row with the same slug, keeping its ID.
func (s *Store) UpsertOrganization(ctx context.Context, org crawler.Organization) (crawler.Organization, error) {
	policy, err := json.Marshal(org.CrawlPolicy)
	if err != nil {
		return crawler.Organization{}, fmt.Errorf("marshal crawl policy: %w", err)
	}
	const query = `
INSERT INTO organizations (
	id, name, slug, org_type, tier, trust_weight, website, crawl_policy, is_active, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (slug) DO UPDATE SET
	name = EXCLUDED.name,
	org_type = EXCLUDED.org_type,
	tier = EXCLUDED.tier,
	trust_weight = EXCLUDED.trust_weight,
	website = EXCLUDED.website,
	crawl_policy = EXCLUDED.crawl_policy,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at`

	err = s.pool.QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.OrgType, org.Tier, org.TrustWeight, org.Website, policy, org.IsActive, s.now(),
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return crawler.Organization{}, fmt.Errorf("upsert organization %s: %w", org.Slug, mapError(err))
	}
	return org, nil
}

// GetOrganizationBySlug returns the organization with slug or crawler.ErrNotFound.
func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (crawler.Organization, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
	org, err := scanOrganization(row)
	if err != nil {
		return crawler.Organization{}, fmt.Errorf("get organization %s: %w", slug, mapError(err))
	}
	return org, nil
}

// GetOrganization returns the organization with id or crawler.ErrNotFound.
func (s *Store) GetOrganization(ctx context.Context, id string) (crawler.Organization, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	org, err := scanOrganization(row)
	if err != nil {
		return crawler.Organization{}, fmt.Errorf("get organization %s: %w", id, mapError(err))
	}
	return org, nil
}

func scanOrganization(row pgx.Row) (crawler.Organization, error) {
	var (
		org    crawler.Organization
		policy []byte
	)
	if err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.OrgType, &org.Tier, &org.TrustWeight, &org.Website,
		&policy, &org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	); err != nil {
		return crawler.Organization{}, err
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &org.CrawlPolicy); err != nil {
			return crawler.Organization{}, fmt.Errorf("decode crawl policy: %w", err)
		}
	}
	return org, nil
}

const documentColumns = `id, organization_id, source_type, title, document_type, url, hash_sha256,
	publication_date, confidence_score, processing_status, COALESCE(archive_uri, ''), created_at, updated_at`

// InsertDocument stores doc, returning crawler.ErrDuplicate when its hash exists.
func (s *Store) InsertDocument(ctx context.Context, doc crawler.Document) error {
	const query = `
INSERT INTO documents (
	id, organization_id, source_type, title, document_type, url, hash_sha256,
	publication_date, confidence_score, processing_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		doc.ID, doc.OrganizationID, doc.SourceType, doc.Title, string(doc.DocumentType), doc.URL, doc.HashSHA256,
		doc.PublicationDate, doc.ConfidenceScore, string(doc.ProcessingStatus), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.URL, mapError(err))
	}
	return nil
}

// DocumentExists reports whether a document with hash is stored.
func (s *Store) DocumentExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE hash_sha256 = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document hash: %w", err)
	}
	return exists, nil
}

// GetDocument returns the document with id or crawler.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (crawler.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("get document %s: %w", id, mapError(err))
	}
	return doc, nil
}

// ListDocumentsByStatus returns up to limit documents with status, oldest first.
// A limit <= 0 returns every match.
func (s *Store) ListDocumentsByStatus(
	ctx context.Context,
	status crawler.ProcessingStatus,
	limit int,
) ([]crawler.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE processing_status = $1 ORDER BY created_at, id LIMIT $2`,
		string(status), limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []crawler.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// limitArg binds LIMIT; NULL means no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func scanDocument(row pgx.Row) (crawler.Document, error) {
	var (
		doc     crawler.Document
		docType string
		status  string
	)
	if err := row.Scan(
		&doc.ID, &doc.OrganizationID, &doc.SourceType, &doc.Title, &docType, &doc.URL, &doc.HashSHA256,
		&doc.PublicationDate, &doc.ConfidenceScore, &status, &doc.ArchiveURI, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return crawler.Document{}, err
	}
	doc.DocumentType = crawler.DocumentType(docType)
	doc.ProcessingStatus = crawler.ProcessingStatus(status)
	return doc, nil
}

// CompleteDocument inserts chunks and marks the document processed in one transaction.
func (s *Store) CompleteDocument(
	ctx context.Context,
	documentID string,
	archiveURI string,
	chunks []crawler.DocumentChunk,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertChunk = `
INSERT INTO document_chunks (
	id, document_id, chunk_index, text, start_offset, end_offset, has_metrics, has_citations, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, insertChunk,
			c.ID, documentID, c.ChunkIndex, c.Text, c.StartOffset, c.EndOffset, c.HasMetrics, c.HasCitations, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, mapError(err))
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE documents SET processing_status = $2, archive_uri = COALESCE(NULLIF($3, ''), archive_uri), updated_at = $4 WHERE id = $1`,
		documentID, string(crawler.StatusProcessed), archiveURI, s.now(),
	)
	if err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark document %s processed: %w", documentID, crawler.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// MarkDocumentFailed sets the document status to failed.
func (s *Store) MarkDocumentFailed(ctx context.Context, documentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET processing_status = $2, updated_at = $3 WHERE id = $1`,
		documentID, string(crawler.StatusFailed), s.now(),
	)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark document %s failed: %w", documentID, crawler.ErrNotFound)
	}
	return nil
}

// CountChunks returns how many chunks are stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// CreateCrawlLog records a started run.
func (s *Store) CreateCrawlLog(ctx context.Context, entry crawler.CrawlLog) error {
	const query = `
INSERT INTO crawl_logs (id, organization_id, crawl_type, status, started_at, documents_found)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.OrganizationID, entry.CrawlType, string(entry.Status), entry.StartedAt, entry.DocumentsFound,
	)
	if err != nil {
		return fmt.Errorf("create crawl log: %w", mapError(err))
	}
	return nil
}

// CompleteCrawlLog writes the terminal fields of a run. Empty errors are stored as NULL.
func (s *Store) CompleteCrawlLog(ctx context.Context, entry crawler.CrawlLog) error {
	var errorsJSON []byte
	if len(entry.Errors) > 0 {
		var err error
		if errorsJSON, err = json.Marshal(entry.Errors); err != nil {
			return fmt.Errorf("marshal crawl errors: %w", err)
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_logs SET status = $2, completed_at = $3, documents_found = $4, errors = $5 WHERE id = $1`,
		entry.ID, string(entry.Status), entry.CompletedAt, entry.DocumentsFound, errorsJSON,
	)
	if err != nil {
		return fmt.Errorf("complete crawl log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete crawl log %s: %w", entry.ID, crawler.ErrNotFound)
	}
	return nil
}

// ListCrawlLogs returns the most recent runs for an organization, newest first.
// A limit <= 0 returns every run.
func (s *Store) ListCrawlLogs(ctx context.Context, organizationID string, limit int) ([]crawler.CrawlLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, organization_id, crawl_type, status, started_at, completed_at, documents_found, errors
FROM crawl_logs WHERE organization_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`,
		organizationID, limitArg(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list crawl logs: %w", err)
	}
	defer rows.Close()

	var logs []crawler.CrawlLog
	for rows.Next() {
		var (
			entry      crawler.CrawlLog
			status     string
			errorsJSON []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.CrawlType, &status, &entry.StartedAt,
			&entry.CompletedAt, &entry.DocumentsFound, &errorsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan crawl log: %w", err)
		}
		entry.Status = crawler.CrawlStatus(status)
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &entry.Errors); err != nil {
				return nil, fmt.Errorf("decode crawl errors: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl logs: %w", err)
	}
	return logs, nil
}

// Stats returns row counts across the pipeline tables.
func (s *Store) Stats(ctx context.Context) (crawler.Stats, error) {
	const query = `
SELECT
	(SELECT count(*) FROM organizations),
	(SELECT count(*) FROM documents),
	(SELECT count(*) FROM documents WHERE processing_status = 'pending'),
	(SELECT count(*) FROM documents WHERE processing_status = 'processed'),
	(SELECT count(*) FROM documents WHERE processing_status = 'failed'),
	(SELECT count(*) FROM document_chunks)`
	var stats crawler.Stats
	if err := s.pool.QueryRow(ctx, query).Scan(
		&stats.Organizations, &stats.Documents, &stats.PendingDocuments,
		&stats.ProcessedDocuments, &stats.FailedDocuments, &stats.Chunks,
	); err != nil {
		return crawler.Stats{}, fmt.Errorf("collect stats: %w", err)
	}
	return stats, nil
}

var _ crawler.Store = (*Store)(nil)
