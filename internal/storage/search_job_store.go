package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/newsintel/searchcore/internal/failure"
)

// PostgresSearchJobStore implements SearchJobStore against the
// search_job table created by migrations/0001_create_search_core_schema.
type PostgresSearchJobStore struct {
	conn *Connection
}

// NewPostgresSearchJobStore wraps an existing Connection as a SearchJobStore.
func NewPostgresSearchJobStore(conn *Connection) *PostgresSearchJobStore {
	return &PostgresSearchJobStore{conn: conn}
}

// Create inserts a new SearchJob row. Version starts at 1.
func (s *PostgresSearchJobStore) Create(ctx context.Context, job *SearchJob) error {
	query := `
		INSERT INTO search_job (job_id, status, query, window, priority_urls, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
	`

	_, err := s.conn.ExecContext(
		ctx,
		query,
		job.JobID,
		job.Status,
		job.Query,
		job.Window,
		pq.Array(job.PriorityURLs),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert search_job: %w", err)
	}

	job.Version = 1

	return nil
}

// Get fetches a SearchJob by its id.
func (s *PostgresSearchJobStore) Get(ctx context.Context, jobID string) (*SearchJob, error) {
	query := `
		SELECT job_id, status, query, window, priority_urls, created_at, completed_at,
		       failure_code, failure_category, version
		FROM search_job
		WHERE job_id = $1
	`

	var job SearchJob

	var (
		failureCode     *string
		failureCategory *string
	)

	err := s.conn.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&job.Status,
		&job.Query,
		&job.Window,
		pq.Array(&job.PriorityURLs),
		&job.CreatedAt,
		&job.CompletedAt,
		&failureCode,
		&failureCategory,
		&job.Version,
	)
	if err != nil {
		return nil, translateNotFound(err, ErrNotFound)
	}

	if failureCode != nil {
		code := failure.Code(*failureCode)
		job.FailureCode = &code
	}

	if failureCategory != nil {
		category := failure.Category(*failureCategory)
		job.FailureCategory = &category
	}

	return &job, nil
}

// UpdateStatus performs a CAS transition scoped to (jobID, expectedVersion).
func (s *PostgresSearchJobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	expectedVersion int,
	status SearchJobStatus,
	reason *failure.Reason,
	completedAt *time.Time,
) error {
	var (
		code     *string
		category *string
	)

	if reason != nil {
		c := string(reason.Code)
		cat := string(reason.Category)
		code, category = &c, &cat
	}

	query := `
		UPDATE search_job
		SET status = $1, failure_code = $2, failure_category = $3, completed_at = $4, version = version + 1
		WHERE job_id = $5 AND version = $6
	`

	result, err := s.conn.ExecContext(ctx, query, status, code, category, completedAt, jobID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update search_job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrVersionConflict
	}

	return nil
}

// ListNonTerminalOlderThan returns every non-terminal SearchJob created
// before cutoff, for the sweeper's overall-timeout pass.
func (s *PostgresSearchJobStore) ListNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*SearchJob, error) {
	query := `
		SELECT job_id, status, query, window, priority_urls, created_at, completed_at,
		       failure_code, failure_category, version
		FROM search_job
		WHERE status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED', 'TIMEOUT')
		  AND created_at < $1
	`

	rows, err := s.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal search_job rows: %w", err)
	}
	defer rows.Close()

	var jobs []*SearchJob

	for rows.Next() {
		var (
			job             SearchJob
			failureCode     *string
			failureCategory *string
		)

		if err := rows.Scan(
			&job.JobID,
			&job.Status,
			&job.Query,
			&job.Window,
			pq.Array(&job.PriorityURLs),
			&job.CreatedAt,
			&job.CompletedAt,
			&failureCode,
			&failureCategory,
			&job.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search_job row: %w", err)
		}

		if failureCode != nil {
			code := failure.Code(*failureCode)
			job.FailureCode = &code
		}

		if failureCategory != nil {
			category := failure.Category(*failureCategory)
			job.FailureCategory = &category
		}

		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// PurgeTerminalBefore deletes terminal SearchJob rows whose completedAt
// predates cutoff.
func (s *PostgresSearchJobStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM search_job WHERE completed_at IS NOT NULL AND completed_at < $1`

	result, err := s.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge search_job rows: %w", err)
	}

	return result.RowsAffected()
}
