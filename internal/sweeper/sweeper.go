// Package sweeper implements C8: a ticker-driven background loop that
// times out stalled search jobs, AI jobs, and sub-tasks, and purges
// terminal state past its retention window.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/newsintel/searchcore/internal/aijob"
	"github.com/newsintel/searchcore/internal/searchjob"
	"github.com/newsintel/searchcore/internal/storage"
)

const (
	// DefaultInterval is how often the sweeper loop runs when Config
	// leaves Interval unset.
	DefaultInterval = 30 * time.Second
	// DefaultRetentionWindow is how long terminal job/sub-task/evidence
	// rows are kept before being purged.
	DefaultRetentionWindow = 24 * time.Hour
)

// Config bounds the sweeper's three timeout dimensions plus its loop
// cadence and retention window (spec.md §5's "Timeouts" and §4.8).
type Config struct {
	Interval             time.Duration
	RetentionWindow      time.Duration
	OverallSearchTimeout time.Duration
	OverallAiTimeout     time.Duration
	PerSubTaskTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.RetentionWindow <= 0 {
		c.RetentionWindow = DefaultRetentionWindow
	}

	return c
}

// Sweeper is the only actor permitted to produce TIMEOUT transitions
// (spec.md §4.8's guarantee); everything else is a callback- or
// client-driven transition.
type Sweeper struct {
	cfg Config

	searchJobs    storage.SearchJobStore
	aiJobs        storage.AiJobStore
	aiSubTasks    storage.AiSubTaskStore
	searchManager *searchjob.Manager
	orchestrator  *aijob.Orchestrator

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// New wires a Sweeper's dependencies. searchManager/orchestrator own the
// state-machine transitions and Journal events; the raw stores back the
// listing/purge queries the orchestrator layer has no reason to expose.
func New(
	cfg Config,
	searchJobs storage.SearchJobStore,
	aiJobs storage.AiJobStore,
	aiSubTasks storage.AiSubTaskStore,
	searchManager *searchjob.Manager,
	orchestrator *aijob.Orchestrator,
) *Sweeper {
	return &Sweeper{
		cfg:           cfg.withDefaults(),
		searchJobs:    searchJobs,
		aiJobs:        aiJobs,
		aiSubTasks:    aiSubTasks,
		searchManager: searchManager,
		orchestrator:  orchestrator,
		done:          make(chan struct{}),
	}
}

// Start runs the sweeper loop in a background goroutine until Stop is
// called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.cfg.Interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					slog.Error("sweeper pass failed", "error", err)
				}
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the loop. Idempotent.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}

		close(s.done)
	})
}

// RunOnce executes a single sweep pass: per-sub-task timeouts, per-job
// overall timeouts for both SearchJob and AiJob, then retention purge.
// Exported so cmd/searchd and tests can drive a deterministic pass
// without waiting on the ticker.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	if err := s.sweepSubTaskTimeouts(ctx, now); err != nil {
		return err
	}

	if err := s.sweepSearchJobTimeouts(ctx, now); err != nil {
		return err
	}

	if err := s.sweepAiJobTimeouts(ctx, now); err != nil {
		return err
	}

	return s.purgeRetention(ctx, now)
}

func (s *Sweeper) sweepSubTaskTimeouts(ctx context.Context, now time.Time) error {
	if s.cfg.PerSubTaskTimeout <= 0 {
		return nil
	}

	cutoff := now.Add(-s.cfg.PerSubTaskTimeout)

	tasks, err := s.aiSubTasks.ListInProgressOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if err := s.orchestrator.TimeoutSubTask(ctx, task); err != nil {
			slog.Error("timeout ai sub-task failed", "subTaskId", task.SubTaskID, "error", err)
		}
	}

	return nil
}

func (s *Sweeper) sweepSearchJobTimeouts(ctx context.Context, now time.Time) error {
	if s.cfg.OverallSearchTimeout <= 0 {
		return nil
	}

	cutoff := now.Add(-s.cfg.OverallSearchTimeout)

	jobs, err := s.searchJobs.ListNonTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := s.searchManager.Timeout(ctx, job.JobID, job.Version); err != nil && err != storage.ErrVersionConflict {
			slog.Error("timeout search job failed", "jobId", job.JobID, "error", err)
		}
	}

	return nil
}

func (s *Sweeper) sweepAiJobTimeouts(ctx context.Context, now time.Time) error {
	if s.cfg.OverallAiTimeout <= 0 {
		return nil
	}

	cutoff := now.Add(-s.cfg.OverallAiTimeout)

	jobs, err := s.aiJobs.ListNonTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := s.orchestrator.Timeout(ctx, job.JobID); err != nil {
			slog.Error("timeout ai job failed", "jobId", job.JobID, "error", err)
		}
	}

	return nil
}

func (s *Sweeper) purgeRetention(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.RetentionWindow)

	if _, err := s.searchJobs.PurgeTerminalBefore(ctx, cutoff); err != nil {
		return err
	}

	// ai_sub_task and crawl_evidence rows cascade via FK from ai_job.
	if _, err := s.aiJobs.PurgeTerminalBefore(ctx, cutoff); err != nil {
		return err
	}

	return nil
}
