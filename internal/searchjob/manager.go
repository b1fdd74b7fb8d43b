package searchjob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/storage"
)

// TerminalPayload is the event body carried by a SearchJob's terminal
// Journal event, per spec.md §4.5's failure reporting contract.
type TerminalPayload struct {
	Status          storage.SearchJobStatus `json:"status"`
	FailureCode     *failure.Code           `json:"failureReason.code,omitempty"`
	FailureCategory *failure.Category       `json:"failureReason.category,omitempty"`
	Summary         string                  `json:"summary"`
}

// Manager owns the SearchJob state machine: it assigns jobIds, starts the
// async execution's first transition, owns the job's Journal via bus, and
// persists every status change.
type Manager struct {
	store storage.SearchJobStore
	bus   *eventbus.Bus
}

// NewManager wires store and bus into a Manager.
func NewManager(store storage.SearchJobStore, bus *eventbus.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// CreateJob assigns a jobId, opens its Journal, and persists the initial
// PENDING record.
func (m *Manager) CreateJob(ctx context.Context, query, window string, priorityURLs []string) (*storage.SearchJob, error) {
	job := &storage.SearchJob{
		JobID:        uuid.NewString(),
		Status:       storage.SearchJobPending,
		Query:        query,
		Window:       window,
		PriorityURLs: priorityURLs,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create search job: %w", err)
	}

	m.bus.CreateJournal(job.JobID)

	return job, nil
}

// Start transitions a job from PENDING to RUNNING on first source
// dispatch.
func (m *Manager) Start(ctx context.Context, jobID string, expectedVersion int) error {
	return m.transition(ctx, jobID, expectedVersion, storage.SearchJobRunning, nil, nil)
}

// Complete transitions a job to COMPLETED and publishes its terminal
// Journal event.
func (m *Manager) Complete(ctx context.Context, jobID string, expectedVersion int, summary string) error {
	return m.terminalTransition(ctx, jobID, expectedVersion, storage.SearchJobCompleted, nil, summary)
}

// Fail transitions a job to FAILED with the aggregate failure reason and
// publishes its terminal Journal event.
func (m *Manager) Fail(ctx context.Context, jobID string, expectedVersion int, reason failure.Reason, summary string) error {
	return m.terminalTransition(ctx, jobID, expectedVersion, storage.SearchJobFailed, &reason, summary)
}

// Cancel moves a non-terminal job to CANCELLED, per the "cancel on
// client detach" policy or an explicit admin action.
func (m *Manager) Cancel(ctx context.Context, jobID string, expectedVersion int) error {
	return m.terminalTransition(ctx, jobID, expectedVersion, storage.SearchJobCancelled, nil, "cancelled")
}

// Timeout moves a non-terminal job to TIMEOUT when its overall deadline
// is exceeded. Called by the sweeper (C8).
func (m *Manager) Timeout(ctx context.Context, jobID string, expectedVersion int) error {
	reason := failure.New(failure.CodeTimeoutJobOverall)

	return m.terminalTransition(ctx, jobID, expectedVersion, storage.SearchJobTimeout, &reason, "overall deadline exceeded")
}

func (m *Manager) terminalTransition(
	ctx context.Context,
	jobID string,
	expectedVersion int,
	status storage.SearchJobStatus,
	reason *failure.Reason,
	summary string,
) error {
	if err := m.transition(ctx, jobID, expectedVersion, status, reason, nil); err != nil {
		return err
	}

	payload := TerminalPayload{Status: status, Summary: summary}
	if reason != nil {
		payload.FailureCode = &reason.Code
		payload.FailureCategory = &reason.Category
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal terminal payload: %w", err)
	}

	if _, err := m.bus.Append(jobID, terminalEventType(status), data); err != nil {
		return fmt.Errorf("publish terminal event: %w", err)
	}

	return nil
}

func (m *Manager) transition(
	ctx context.Context,
	jobID string,
	expectedVersion int,
	status storage.SearchJobStatus,
	reason *failure.Reason,
	completedAt *time.Time,
) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load search job: %w", err)
	}

	if err := ValidateTransition(job.Status, status); err != nil {
		return err
	}

	if completedAt == nil && status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	return m.store.UpdateStatus(ctx, jobID, expectedVersion, status, reason, completedAt)
}

// terminalEventType decides which Journal terminal event type a status
// maps to: FAILED/TIMEOUT are reported as "error", COMPLETED/CANCELLED
// are reported as "done" (cancellation is an outcome, not a failure).
func terminalEventType(status storage.SearchJobStatus) string {
	switch status {
	case storage.SearchJobFailed, storage.SearchJobTimeout:
		return eventbus.EventTypeError
	default:
		return eventbus.EventTypeDone
	}
}
