package storage

import (
	"context"
	"fmt"
	"time"
)

// PostgresAiJobStore implements AiJobStore against the ai_job table.
type PostgresAiJobStore struct {
	conn *Connection
}

// NewPostgresAiJobStore wraps an existing Connection as an AiJobStore.
func NewPostgresAiJobStore(conn *Connection) *PostgresAiJobStore {
	return &PostgresAiJobStore{conn: conn}
}

// Create inserts a new AiJob row. Version starts at 1.
func (s *PostgresAiJobStore) Create(ctx context.Context, job *AiJob) error {
	query := `
		INSERT INTO ai_job (job_id, overall_status, topic, base_url, created_at, version)
		VALUES ($1, $2, $3, $4, $5, 1)
	`

	_, err := s.conn.ExecContext(ctx, query, job.JobID, job.OverallStatus, job.Topic, job.BaseURL, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ai_job: %w", err)
	}

	job.Version = 1

	return nil
}

// Get fetches an AiJob by its id.
func (s *PostgresAiJobStore) Get(ctx context.Context, jobID string) (*AiJob, error) {
	query := `
		SELECT job_id, overall_status, topic, base_url, created_at, completed_at, version
		FROM ai_job
		WHERE job_id = $1
	`

	var job AiJob

	err := s.conn.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&job.OverallStatus,
		&job.Topic,
		&job.BaseURL,
		&job.CreatedAt,
		&job.CompletedAt,
		&job.Version,
	)
	if err != nil {
		return nil, translateNotFound(err, ErrNotFound)
	}

	return &job, nil
}

// UpdateStatus performs a CAS transition scoped to (jobID, expectedVersion).
// Called by the orchestrator's parent re-evaluation step, never directly by
// a callback handler.
func (s *PostgresAiJobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	expectedVersion int,
	status AiJobStatus,
	completedAt *time.Time,
) error {
	query := `
		UPDATE ai_job
		SET overall_status = $1, completed_at = $2, version = version + 1
		WHERE job_id = $3 AND version = $4
	`

	result, err := s.conn.ExecContext(ctx, query, status, completedAt, jobID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update ai_job status: %w", err)
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

// ListNonTerminalOlderThan returns every non-terminal AiJob created before
// cutoff, for the sweeper's overall-timeout pass.
func (s *PostgresAiJobStore) ListNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*AiJob, error) {
	query := `
		SELECT job_id, overall_status, topic, base_url, created_at, completed_at, version
		FROM ai_job
		WHERE overall_status NOT IN ('COMPLETED', 'PARTIAL_SUCCESS', 'FAILED', 'TIMEOUT', 'CANCELLED')
		  AND created_at < $1
	`

	rows, err := s.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-terminal ai_job rows: %w", err)
	}
	defer rows.Close()

	var jobs []*AiJob

	for rows.Next() {
		var job AiJob

		if err := rows.Scan(&job.JobID, &job.OverallStatus, &job.Topic, &job.BaseURL, &job.CreatedAt, &job.CompletedAt, &job.Version); err != nil {
			return nil, fmt.Errorf("failed to scan ai_job row: %w", err)
		}

		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// PurgeTerminalBefore deletes terminal AiJob rows whose completedAt predates
// cutoff. ai_sub_task and crawl_evidence rows cascade via FK.
func (s *PostgresAiJobStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM ai_job WHERE completed_at IS NOT NULL AND completed_at < $1`

	result, err := s.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge ai_job rows: %w", err)
	}

	return result.RowsAffected()
}
