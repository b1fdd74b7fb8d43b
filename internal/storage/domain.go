package storage

import (
	"context"
	"errors"
	"time"

	"github.com/newsintel/searchcore/internal/enrich"
	"github.com/newsintel/searchcore/internal/failure"
)

// Errors shared by every domain store in this package.
var (
	// ErrNotFound is returned when a lookup by primary key matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a CAS update's WHERE id=... AND
	// version=... affects zero rows: either the record is gone or another
	// writer already advanced its version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateEvidence is returned when a CrawlEvidence insert violates
	// the (job_id, url) uniqueness constraint.
	ErrDuplicateEvidence = errors.New("duplicate crawl evidence for job and url")
)

type (
	// SearchJobStatus is the closed status enum for SearchJob (spec.md §3).
	SearchJobStatus string

	// AiJobStatus is the closed overall-status enum for AiJob, including
	// PARTIAL_SUCCESS which no sub-task status carries.
	AiJobStatus string

	// AiSubTaskStatus is the closed status enum for AiSubTask.
	AiSubTaskStatus string

	// Stance is the closed enum CrawlEvidence carries for its source's
	// position relative to the deep-search topic.
	Stance string

	// SourceCategory classifies a CrawlEvidence's originating source.
	SourceCategory string
)

const (
	SearchJobPending    SearchJobStatus = "PENDING"
	SearchJobRunning    SearchJobStatus = "RUNNING"
	SearchJobCompleted  SearchJobStatus = "COMPLETED"
	SearchJobFailed     SearchJobStatus = "FAILED"
	SearchJobTimeout    SearchJobStatus = "TIMEOUT"
	SearchJobCancelled  SearchJobStatus = "CANCELLED"
)

const (
	AiJobPending        AiJobStatus = "PENDING"
	AiJobInProgress     AiJobStatus = "IN_PROGRESS"
	AiJobCompleted      AiJobStatus = "COMPLETED"
	AiJobPartialSuccess AiJobStatus = "PARTIAL_SUCCESS"
	AiJobFailed         AiJobStatus = "FAILED"
	AiJobTimeout        AiJobStatus = "TIMEOUT"
	AiJobCancelled      AiJobStatus = "CANCELLED"
)

const (
	AiSubTaskPending    AiSubTaskStatus = "PENDING"
	AiSubTaskInProgress AiSubTaskStatus = "IN_PROGRESS"
	AiSubTaskCompleted  AiSubTaskStatus = "COMPLETED"
	AiSubTaskFailed     AiSubTaskStatus = "FAILED"
	AiSubTaskTimeout    AiSubTaskStatus = "TIMEOUT"
	AiSubTaskCancelled  AiSubTaskStatus = "CANCELLED"
)

const (
	StancePro     Stance = "PRO"
	StanceCon     Stance = "CON"
	StanceNeutral Stance = "NEUTRAL"
)

const (
	SourceNews      SourceCategory = "NEWS"
	SourceCommunity SourceCategory = "COMMUNITY"
	SourceBlog      SourceCategory = "BLOG"
	SourceOfficial  SourceCategory = "OFFICIAL"
	SourceAcademic  SourceCategory = "ACADEMIC"
)

// terminalSearchJobStatuses and terminalAiSubTaskStatuses back IsTerminal;
// declared once so every caller (stores, sweeper, job manager) agrees on
// the same closed set.
var terminalSearchJobStatuses = map[SearchJobStatus]bool{
	SearchJobCompleted: true,
	SearchJobFailed:    true,
	SearchJobTimeout:   true,
	SearchJobCancelled: true,
}

var terminalAiJobStatuses = map[AiJobStatus]bool{
	AiJobCompleted:      true,
	AiJobPartialSuccess: true,
	AiJobFailed:         true,
	AiJobTimeout:        true,
	AiJobCancelled:      true,
}

var terminalAiSubTaskStatuses = map[AiSubTaskStatus]bool{
	AiSubTaskCompleted: true,
	AiSubTaskFailed:    true,
	AiSubTaskTimeout:   true,
	AiSubTaskCancelled: true,
}

// IsTerminal reports whether status is one of SearchJob's terminal states.
func (s SearchJobStatus) IsTerminal() bool { return terminalSearchJobStatuses[s] }

// IsTerminal reports whether status is one of AiJob's terminal states.
func (s AiJobStatus) IsTerminal() bool { return terminalAiJobStatuses[s] }

// IsTerminal reports whether status is one of AiSubTask's terminal states.
func (s AiSubTaskStatus) IsTerminal() bool { return terminalAiSubTaskStatuses[s] }

type (
	// Article is a corpus document indexed for search (generated search
	// vector lives in storage, not in this struct).
	Article struct {
		ID            string
		Title         string
		Content       string
		URL           string
		PublishedDate *time.Time
		CollectedAt   time.Time
		// Signals holds whatever a pluggable enrich.SignalEnricher has
		// attached post-hoc; the zero value means "never enriched".
		Signals enrich.Signals
	}

	// SearchJob is the persisted record backing a /search/jobs request.
	SearchJob struct {
		JobID           string
		Status          SearchJobStatus
		Query           string
		Window          string
		PriorityURLs    []string
		CreatedAt       time.Time
		CompletedAt     *time.Time
		FailureCode     *failure.Code
		FailureCategory *failure.Category
		Version         int
	}

	// AiJob is the parent record of a deep-search run.
	AiJob struct {
		JobID         string
		OverallStatus AiJobStatus
		Topic         string
		BaseURL       string
		CreatedAt     time.Time
		CompletedAt   *time.Time
		Version       int
	}

	// AiSubTask is one provider dispatch within an AiJob.
	AiSubTask struct {
		SubTaskID         string
		JobID             string
		ProviderID        string
		TaskType          string
		Status            AiSubTaskStatus
		RetryCount        int
		ResultJSON        *string
		ErrorMessage      *string
		FailureCode       *failure.Code
		CreatedAt         time.Time
		CompletedAt       *time.Time
		CallbackTokenHash string
		Version           int
	}

	// CrawlEvidence is one source row gathered by a completed AiSubTask.
	CrawlEvidence struct {
		ID             string
		JobID          string
		URL            string
		Title          string
		Stance         Stance
		Snippet        string
		SourceCategory SourceCategory
		Signals        enrich.Signals
		CreatedAt      time.Time
	}
)

type (
	// SearchJobStore persists SearchJob records with CAS-guarded updates.
	SearchJobStore interface {
		Create(ctx context.Context, job *SearchJob) error
		Get(ctx context.Context, jobID string) (*SearchJob, error)
		// UpdateStatus performs a CAS transition: the UPDATE is scoped to
		// (jobID, expectedVersion); ErrVersionConflict signals a lost race.
		UpdateStatus(
			ctx context.Context,
			jobID string,
			expectedVersion int,
			status SearchJobStatus,
			reason *failure.Reason,
			completedAt *time.Time,
		) error
		// ListNonTerminalOlderThan returns every non-terminal SearchJob
		// created before cutoff, for the sweeper's overall-timeout pass.
		ListNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*SearchJob, error)
		// PurgeTerminalBefore deletes terminal SearchJob rows whose
		// completedAt predates cutoff, returning the number removed.
		PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// AiJobStore persists AiJob parent records with CAS-guarded updates.
	AiJobStore interface {
		Create(ctx context.Context, job *AiJob) error
		Get(ctx context.Context, jobID string) (*AiJob, error)
		UpdateStatus(
			ctx context.Context,
			jobID string,
			expectedVersion int,
			status AiJobStatus,
			completedAt *time.Time,
		) error
		// ListNonTerminalOlderThan returns every non-terminal AiJob created
		// before cutoff, for the sweeper's overall-timeout pass.
		ListNonTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]*AiJob, error)
		// PurgeTerminalBefore deletes terminal AiJob rows whose completedAt
		// predates cutoff. ai_sub_task and crawl_evidence rows cascade via
		// their FK, so this also purges the job's children.
		PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// AiSubTaskStore persists AiSubTask records with CAS-guarded updates.
	AiSubTaskStore interface {
		Create(ctx context.Context, task *AiSubTask) error
		Get(ctx context.Context, subTaskID string) (*AiSubTask, error)
		ListByJob(ctx context.Context, jobID string) ([]*AiSubTask, error)
		// Transition performs a CAS move to a terminal or in-progress
		// status, optionally recording a result/error/failure code.
		Transition(
			ctx context.Context,
			subTaskID string,
			expectedVersion int,
			status AiSubTaskStatus,
			resultJSON, errorMessage *string,
			failureCode *failure.Code,
			completedAt *time.Time,
		) error
		// Retry re-arms a terminally-failed sub-task for redispatch: resets
		// status to PENDING, increments retry_count, and replaces the
		// callback token hash with a fresh one.
		Retry(ctx context.Context, subTaskID string, expectedVersion int, newCallbackTokenHash string) error
		// ListInProgressOlderThan returns every IN_PROGRESS AiSubTask
		// created before cutoff, for the sweeper's per-sub-task timeout pass.
		ListInProgressOlderThan(ctx context.Context, cutoff time.Time) ([]*AiSubTask, error)
	}

	// CrawlEvidenceStore appends CrawlEvidence rows, rejecting duplicates
	// on the (jobID, url) uniqueness constraint.
	CrawlEvidenceStore interface {
		Append(ctx context.Context, evidence *CrawlEvidence) error
		ListByJob(ctx context.Context, jobID string) ([]*CrawlEvidence, error)
	}
)
