package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// postgresUniqueViolation is the SQLSTATE Postgres reports for a unique
// constraint violation.
const postgresUniqueViolation = "23505"

// PostgresCrawlEvidenceStore implements CrawlEvidenceStore against the
// crawl_evidence table, whose (job_id, url) uniqueness constraint is the
// storage-level enforcement of spec.md §3/§6's dedup guarantee.
type PostgresCrawlEvidenceStore struct {
	conn *Connection
}

// NewPostgresCrawlEvidenceStore wraps an existing Connection as a
// CrawlEvidenceStore.
func NewPostgresCrawlEvidenceStore(conn *Connection) *PostgresCrawlEvidenceStore {
	return &PostgresCrawlEvidenceStore{conn: conn}
}

// Append inserts a CrawlEvidence row, translating a (job_id, url) unique
// violation into ErrDuplicateEvidence so callers (C7) can ignore it rather
// than failing the sub-task.
func (s *PostgresCrawlEvidenceStore) Append(ctx context.Context, evidence *CrawlEvidence) error {
	query := `
		INSERT INTO crawl_evidence (
			id, job_id, url, title, stance, snippet, source_category,
			reliability, sentiment, bias, community_score, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.conn.ExecContext(
		ctx,
		query,
		evidence.ID,
		evidence.JobID,
		evidence.URL,
		evidence.Title,
		evidence.Stance,
		evidence.Snippet,
		evidence.SourceCategory,
		evidence.Signals.Reliability,
		evidence.Signals.Sentiment,
		evidence.Signals.Bias,
		evidence.Signals.CommunityScore,
		evidence.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == postgresUniqueViolation {
			return ErrDuplicateEvidence
		}

		return fmt.Errorf("failed to insert crawl_evidence: %w", err)
	}

	return nil
}

// ListByJob returns every CrawlEvidence row for jobID, in insertion order.
func (s *PostgresCrawlEvidenceStore) ListByJob(ctx context.Context, jobID string) ([]*CrawlEvidence, error) {
	query := `
		SELECT
			id, job_id, url, title, stance, snippet, source_category,
			reliability, sentiment, bias, community_score, created_at
		FROM crawl_evidence
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl_evidence: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	evidence := make([]*CrawlEvidence, 0)

	for rows.Next() {
		var e CrawlEvidence

		if err := rows.Scan(
			&e.ID, &e.JobID, &e.URL, &e.Title, &e.Stance, &e.Snippet, &e.SourceCategory,
			&e.Signals.Reliability, &e.Signals.Sentiment, &e.Signals.Bias, &e.Signals.CommunityScore,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan crawl_evidence row: %w", err)
		}

		evidence = append(evidence, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crawl_evidence rows: %w", err)
	}

	return evidence, nil
}
