package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/newsintel/searchcore/internal/failure"
)

// PostgresAiSubTaskStore implements AiSubTaskStore against the
// ai_sub_task table.
type PostgresAiSubTaskStore struct {
	conn *Connection
}

// NewPostgresAiSubTaskStore wraps an existing Connection as an AiSubTaskStore.
func NewPostgresAiSubTaskStore(conn *Connection) *PostgresAiSubTaskStore {
	return &PostgresAiSubTaskStore{conn: conn}
}

// Create inserts a new AiSubTask row. Version starts at 1. callbackTokenHash
// must already be a bcrypt hash (storage.HashSecret); the caller never
// persists a plaintext token.
func (s *PostgresAiSubTaskStore) Create(ctx context.Context, task *AiSubTask) error {
	query := `
		INSERT INTO ai_sub_task
			(sub_task_id, job_id, provider_id, task_type, status, retry_count, created_at, callback_token_hash, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
	`

	_, err := s.conn.ExecContext(
		ctx,
		query,
		task.SubTaskID,
		task.JobID,
		task.ProviderID,
		task.TaskType,
		task.Status,
		task.RetryCount,
		task.CreatedAt,
		task.CallbackTokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ai_sub_task: %w", err)
	}

	task.Version = 1

	return nil
}

// Get fetches an AiSubTask by its id.
func (s *PostgresAiSubTaskStore) Get(ctx context.Context, subTaskID string) (*AiSubTask, error) {
	query := `
		SELECT sub_task_id, job_id, provider_id, task_type, status, retry_count, result_json,
		       error_message, failure_code, created_at, completed_at, callback_token_hash, version
		FROM ai_sub_task
		WHERE sub_task_id = $1
	`

	task, err := scanAiSubTask(s.conn.QueryRowContext(ctx, query, subTaskID))
	if err != nil {
		return nil, translateNotFound(err, ErrNotFound)
	}

	return task, nil
}

// ListByJob returns every AiSubTask owned by jobID, in creation order.
func (s *PostgresAiSubTaskStore) ListByJob(ctx context.Context, jobID string) ([]*AiSubTask, error) {
	query := `
		SELECT sub_task_id, job_id, provider_id, task_type, status, retry_count, result_json,
		       error_message, failure_code, created_at, completed_at, callback_token_hash, version
		FROM ai_sub_task
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ai_sub_task: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	tasks := make([]*AiSubTask, 0)

	for rows.Next() {
		task, err := scanAiSubTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai_sub_task row: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ai_sub_task rows: %w", err)
	}

	return tasks, nil
}

// Transition performs a CAS move scoped to (subTaskID, expectedVersion).
// The first terminal transition wins: callers must pass the version they
// last observed, and a zero-row update means either a concurrent writer
// already moved this row to a terminal state or the id doesn't exist.
func (s *PostgresAiSubTaskStore) Transition(
	ctx context.Context,
	subTaskID string,
	expectedVersion int,
	status AiSubTaskStatus,
	resultJSON, errorMessage *string,
	failureCode *failure.Code,
	completedAt *time.Time,
) error {
	var code *string
	if failureCode != nil {
		c := string(*failureCode)
		code = &c
	}

	query := `
		UPDATE ai_sub_task
		SET status = $1, result_json = $2, error_message = $3, failure_code = $4,
		    completed_at = $5, version = version + 1
		WHERE sub_task_id = $6 AND version = $7
	`

	result, err := s.conn.ExecContext(
		ctx, query, status, resultJSON, errorMessage, code, completedAt, subTaskID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to transition ai_sub_task: %w", err)
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

// Retry re-arms subTaskID for redispatch: resets status to PENDING,
// increments retry_count, clears the prior terminal fields, and installs
// newCallbackTokenHash. Scoped to (subTaskID, expectedVersion) like every
// other mutation, so a racing callback or sweeper timeout still wins if
// it lands first.
func (s *PostgresAiSubTaskStore) Retry(ctx context.Context, subTaskID string, expectedVersion int, newCallbackTokenHash string) error {
	query := `
		UPDATE ai_sub_task
		SET status = $1, retry_count = retry_count + 1, result_json = NULL,
		    error_message = NULL, failure_code = NULL, completed_at = NULL,
		    callback_token_hash = $2, version = version + 1
		WHERE sub_task_id = $3 AND version = $4
	`

	result, err := s.conn.ExecContext(ctx, query, AiSubTaskPending, newCallbackTokenHash, subTaskID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to retry ai_sub_task: %w", err)
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

// ListInProgressOlderThan returns every IN_PROGRESS AiSubTask created before
// cutoff, for the sweeper's per-sub-task timeout pass.
func (s *PostgresAiSubTaskStore) ListInProgressOlderThan(ctx context.Context, cutoff time.Time) ([]*AiSubTask, error) {
	query := `
		SELECT sub_task_id, job_id, provider_id, task_type, status, retry_count, result_json,
		       error_message, failure_code, created_at, completed_at, callback_token_hash, version
		FROM ai_sub_task
		WHERE status = $1 AND created_at < $2
	`

	rows, err := s.conn.QueryContext(ctx, query, AiSubTaskInProgress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress ai_sub_task rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	tasks := make([]*AiSubTask, 0)

	for rows.Next() {
		task, err := scanAiSubTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai_sub_task row: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ai_sub_task rows: %w", err)
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanAiSubTask serve Get and ListByJob identically.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAiSubTask(row rowScanner) (*AiSubTask, error) {
	var (
		task         AiSubTask
		resultJSON   *string
		errorMessage *string
		failureCode  *string
	)

	err := row.Scan(
		&task.SubTaskID,
		&task.JobID,
		&task.ProviderID,
		&task.TaskType,
		&task.Status,
		&task.RetryCount,
		&resultJSON,
		&errorMessage,
		&failureCode,
		&task.CreatedAt,
		&task.CompletedAt,
		&task.CallbackTokenHash,
		&task.Version,
	)
	if err != nil {
		return nil, err
	}

	task.ResultJSON = resultJSON
	task.ErrorMessage = errorMessage

	if failureCode != nil {
		code := failure.Code(*failureCode)
		task.FailureCode = &code
	}

	return &task, nil
}
