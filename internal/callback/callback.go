// Package callback implements callback ingress (C7): verifying a
// provider's callback token, applying an idempotent sub-task transition,
// appending crawl evidence, and triggering parent re-evaluation.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsintel/searchcore/internal/enrich"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/storage"
)

// Result classifies how a callback was handled. Only Rejected should be
// surfaced to the caller as an error response; every other outcome is
// acknowledged as success so a retrying provider doesn't keep hammering
// the endpoint (spec.md §4.7 step 1/3).
type Result int

const (
	// Accepted means the callback produced a real sub-task transition.
	Accepted Result = iota
	// Ignored means the sub-task id is unknown.
	Ignored
	// Duplicate means the sub-task was already terminal; acknowledged
	// without mutation.
	Duplicate
	// Rejected means the callback token didn't match.
	Rejected
)

// EvidenceItem is one piece of crawl evidence a provider's callback may
// carry alongside its COMPLETED status.
type EvidenceItem struct {
	URL            string                 `json:"url"`
	Title          string                 `json:"title"`
	Stance         storage.Stance         `json:"stance,omitempty"`
	Snippet        string                 `json:"snippet,omitempty"`
	SourceCategory storage.SourceCategory `json:"sourceCategory,omitempty"`
}

// Request is the onCallback payload from spec.md §4.7.
type Request struct {
	SubTaskID     string
	Status        storage.AiSubTaskStatus
	ResultJSON    *string
	ErrorMessage  *string
	CallbackToken string
	Evidence      []EvidenceItem
}

// Reevaluator recomputes a parent AiJob's aggregate status after a
// sub-task transition. internal/aijob.Orchestrator implements this.
type Reevaluator interface {
	Reevaluate(ctx context.Context, jobID string) error
}

// Processor handles inbound provider callbacks.
type Processor struct {
	subTasks storage.AiSubTaskStore
	evidence storage.CrawlEvidenceStore
	parent   Reevaluator
	bus      *eventbus.Bus
	enricher enrich.SignalEnricher
}

// NewProcessor wires a Processor's dependencies. bus is the same Journal
// bus the owning Orchestrator publishes task_dispatched/done/error to, so
// a callback's task_completed and evidence events land on the same
// per-job stream (spec.md §4.6). Evidence is attached to an enrich.Noop
// enricher by default; call WithEnricher to plug in a real one.
func NewProcessor(subTasks storage.AiSubTaskStore, evidence storage.CrawlEvidenceStore, parent Reevaluator, bus *eventbus.Bus) *Processor {
	return &Processor{subTasks: subTasks, evidence: evidence, parent: parent, bus: bus, enricher: enrich.Noop{}}
}

// WithEnricher swaps in a non-default SignalEnricher, e.g. one backed by
// a real reliability/sentiment/bias model host.
func (p *Processor) WithEnricher(enricher enrich.SignalEnricher) *Processor {
	p.enricher = enricher

	return p
}

// Handle applies req per spec.md §4.7's six-step contract. It never
// returns an error for a duplicate or unknown sub-task: those are
// expressed via the Result, not an error, so callers don't confuse a
// processing fault with a no-op acknowledgement.
func (p *Processor) Handle(ctx context.Context, req Request) (Result, error) {
	task, err := p.subTasks.Get(ctx, req.SubTaskID)
	if err != nil {
		if err == storage.ErrNotFound {
			return Ignored, nil
		}

		return Ignored, fmt.Errorf("load ai sub-task: %w", err)
	}

	if !storage.CompareSecretHash(task.CallbackTokenHash, req.CallbackToken) {
		return Rejected, nil
	}

	if task.Status.IsTerminal() {
		return Duplicate, nil
	}

	if err := p.applyTransition(ctx, task, req); err != nil {
		if err == storage.ErrVersionConflict {
			return Duplicate, nil
		}

		return Ignored, err
	}

	if req.Status.IsTerminal() {
		if err := p.publishTaskCompleted(task.JobID, task.SubTaskID, req.Status); err != nil {
			return Accepted, fmt.Errorf("publish task_completed event: %w", err)
		}
	}

	if err := p.appendEvidence(ctx, task.JobID, req.Evidence); err != nil {
		return Accepted, err
	}

	if err := p.parent.Reevaluate(ctx, task.JobID); err != nil {
		return Accepted, fmt.Errorf("reevaluate parent after callback: %w", err)
	}

	return Accepted, nil
}

func (p *Processor) applyTransition(ctx context.Context, task *storage.AiSubTask, req Request) error {
	var (
		failureCode *failure.Code
		completedAt *time.Time
	)

	if req.Status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	if req.Status == storage.AiSubTaskFailed && req.ErrorMessage != nil {
		reason := failure.Infer(*req.ErrorMessage)
		failureCode = &reason.Code
	}

	return p.subTasks.Transition(
		ctx, task.SubTaskID, task.Version, req.Status, req.ResultJSON, req.ErrorMessage, failureCode, completedAt,
	)
}

func (p *Processor) appendEvidence(ctx context.Context, jobID string, items []EvidenceItem) error {
	for _, item := range items {
		stance := item.Stance
		if stance == "" {
			stance = storage.StanceNeutral
		}

		category := categorizeURL(item.URL, item.SourceCategory)

		signals, err := p.enricher.Enrich(ctx, enrich.Subject{
			URL:            item.URL,
			Title:          item.Title,
			Snippet:        item.Snippet,
			SourceCategory: string(category),
		})
		if err != nil {
			return fmt.Errorf("enrich crawl evidence: %w", err)
		}

		ev := &storage.CrawlEvidence{
			ID:             uuid.NewString(),
			JobID:          jobID,
			URL:            item.URL,
			Title:          item.Title,
			Stance:         stance,
			Snippet:        item.Snippet,
			SourceCategory: category,
			Signals:        signals,
			CreatedAt:      time.Now().UTC(),
		}

		if err := p.evidence.Append(ctx, ev); err != nil {
			if err == storage.ErrDuplicateEvidence {
				continue
			}

			return fmt.Errorf("append crawl evidence: %w", err)
		}

		if err := p.publishEvidence(jobID, ev); err != nil {
			return fmt.Errorf("publish evidence event: %w", err)
		}
	}

	return nil
}

// publishTaskCompleted emits a task_completed event carrying subTaskID's
// terminal status (spec.md §4.6). A journal that's already terminal
// (raced by a sweeper timeout or a concurrent callback finishing the job
// first) is not an error: the callback itself still succeeded.
func (p *Processor) publishTaskCompleted(jobID, subTaskID string, status storage.AiSubTaskStatus) error {
	_, err := p.bus.Append(jobID, eventbus.EventTypeTaskCompleted, mustMarshal(map[string]string{
		"subTaskId": subTaskID,
		"status":    string(status),
	}))

	return ignoreTerminalJournal(err)
}

// publishEvidence emits one evidence event per appended CrawlEvidence row.
func (p *Processor) publishEvidence(jobID string, ev *storage.CrawlEvidence) error {
	_, err := p.bus.Append(jobID, eventbus.EventTypeEvidence, mustMarshal(map[string]interface{}{
		"id":             ev.ID,
		"url":            ev.URL,
		"title":          ev.Title,
		"stance":         ev.Stance,
		"sourceCategory": ev.SourceCategory,
	}))

	return ignoreTerminalJournal(err)
}

func ignoreTerminalJournal(err error) error {
	if err == eventbus.ErrJournalTerminal || err == eventbus.ErrJournalClosed {
		return nil
	}

	return err
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}

	return data
}
