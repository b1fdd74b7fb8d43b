package aijob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsintel/searchcore/internal/dispatch"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/storage"
)

// DefaultMaxRetries bounds how many times a sub-task may be redispatched
// after a retryable failure.
const DefaultMaxRetries = 2

// CallbackURLFunc builds the callback URL a dispatched sub-task's
// provider should call back to, given its subTaskId.
type CallbackURLFunc func(subTaskID string) string

// Orchestrator implements C6: plans an AiJob's sub-tasks from the
// routing table, dispatches them, and recomputes the parent's aggregate
// status after every sub-task transition.
type Orchestrator struct {
	jobs       storage.AiJobStore
	subTasks   storage.AiSubTaskStore
	bus        *eventbus.Bus
	publisher  dispatch.Publisher
	routing    *RoutingTable
	maxRetries int
	callbackURL CallbackURLFunc
}

// SetMaxRetries overrides DefaultMaxRetries, e.g. from operator config.
func (o *Orchestrator) SetMaxRetries(n int) {
	o.maxRetries = n
}

// NewOrchestrator wires an Orchestrator's dependencies.
func NewOrchestrator(
	jobs storage.AiJobStore,
	subTasks storage.AiSubTaskStore,
	bus *eventbus.Bus,
	publisher dispatch.Publisher,
	routing *RoutingTable,
	callbackURL CallbackURLFunc,
) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		subTasks:    subTasks,
		bus:         bus,
		publisher:   publisher,
		routing:     routing,
		maxRetries:  DefaultMaxRetries,
		callbackURL: callbackURL,
	}
}

// CreateJob creates the AiJob parent, plans its sub-tasks from the
// routing table for topic, and dispatches every planned sub-task.
func (o *Orchestrator) CreateJob(ctx context.Context, topic, baseURL string) (*storage.AiJob, []*storage.AiSubTask, error) {
	job := &storage.AiJob{
		JobID:         uuid.NewString(),
		OverallStatus: storage.AiJobPending,
		Topic:         topic,
		BaseURL:       baseURL,
		CreatedAt:     time.Now().UTC(),
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create ai job: %w", err)
	}

	o.bus.CreateJournal(job.JobID)

	routes := o.routing.RouteFor(topic)

	tasks := make([]*storage.AiSubTask, 0, len(routes))

	for _, route := range routes {
		task, err := o.createAndDispatch(ctx, job, route)
		if err != nil {
			return job, tasks, err
		}

		tasks = append(tasks, task)
	}

	if len(tasks) > 0 {
		if err := o.jobs.UpdateStatus(ctx, job.JobID, job.Version, storage.AiJobInProgress, nil); err != nil {
			return job, tasks, fmt.Errorf("mark ai job in progress: %w", err)
		}

		job.OverallStatus = storage.AiJobInProgress
		job.Version++
	}

	return job, tasks, nil
}

func (o *Orchestrator) createAndDispatch(ctx context.Context, job *storage.AiJob, route ProviderRoute) (*storage.AiSubTask, error) {
	plaintextToken := uuid.NewString()

	tokenHash, err := storage.HashSecret(plaintextToken)
	if err != nil {
		return nil, fmt.Errorf("hash callback token: %w", err)
	}

	task := &storage.AiSubTask{
		SubTaskID:         uuid.NewString(),
		JobID:             job.JobID,
		ProviderID:        route.ProviderID,
		TaskType:          route.TaskType,
		Status:            storage.AiSubTaskPending,
		CreatedAt:         time.Now().UTC(),
		CallbackTokenHash: tokenHash,
	}

	if err := o.subTasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create ai sub-task: %w", err)
	}

	req := dispatch.TaskRequest{
		JobID:         job.JobID,
		SubTaskID:     task.SubTaskID,
		ProviderID:    route.ProviderID,
		TaskType:      route.TaskType,
		Topic:         job.Topic,
		BaseURL:       job.BaseURL,
		CallbackToken: plaintextToken,
		CallbackURL:   o.callbackURL(task.SubTaskID),
		DispatchedAt:  time.Now().UTC(),
	}

	if err := o.publisher.Dispatch(ctx, req); err != nil {
		return nil, fmt.Errorf("dispatch ai sub-task: %w", err)
	}

	if err := o.subTasks.Transition(ctx, task.SubTaskID, task.Version, storage.AiSubTaskInProgress, nil, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("mark ai sub-task in progress: %w", err)
	}

	task.Status = storage.AiSubTaskInProgress
	task.Version++

	if _, err := o.bus.Append(job.JobID, eventbus.EventTypeTaskDispatched, mustMarshal(map[string]string{
		"subTaskId":  task.SubTaskID,
		"providerId": task.ProviderID,
	})); err != nil {
		return nil, fmt.Errorf("publish task_dispatched event: %w", err)
	}

	return task, nil
}

// Reevaluate recomputes jobID's parent status from its sub-tasks' current
// statuses, after a sub-task transition (callback or sweeper timeout).
// Retryable failures are redispatched instead of counting toward the
// aggregate immediately.
func (o *Orchestrator) Reevaluate(ctx context.Context, jobID string) error {
	tasks, err := o.subTasks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list ai sub-tasks: %w", err)
	}

	for _, task := range tasks {
		if task.Status == storage.AiSubTaskFailed && task.FailureCode != nil {
			reason := failure.New(*task.FailureCode)
			if IsRetryable(reason) && task.RetryCount < o.maxRetries {
				if err := o.retry(ctx, jobID, task); err != nil {
					return err
				}
			}
		}
	}

	tasks, err = o.subTasks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list ai sub-tasks: %w", err)
	}

	statuses := make([]storage.AiSubTaskStatus, len(tasks))
	for i, task := range tasks {
		statuses[i] = task.Status
	}

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load ai job: %w", err)
	}

	newStatus := AggregateStatus(statuses)
	if newStatus == job.OverallStatus {
		return nil
	}

	var completedAt *time.Time
	if newStatus.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	if err := o.jobs.UpdateStatus(ctx, jobID, job.Version, newStatus, completedAt); err != nil {
		return fmt.Errorf("update ai job status: %w", err)
	}

	if newStatus.IsTerminal() {
		return o.publishTerminal(jobID, newStatus, tasks)
	}

	return nil
}

func (o *Orchestrator) retry(ctx context.Context, jobID string, task *storage.AiSubTask) error {
	plaintextToken := uuid.NewString()

	tokenHash, err := storage.HashSecret(plaintextToken)
	if err != nil {
		return fmt.Errorf("hash retry callback token: %w", err)
	}

	if err := o.subTasks.Retry(ctx, task.SubTaskID, task.Version, tokenHash); err != nil {
		return fmt.Errorf("retry ai sub-task: %w", err)
	}

	req := dispatch.TaskRequest{
		JobID:         jobID,
		SubTaskID:     task.SubTaskID,
		ProviderID:    task.ProviderID,
		TaskType:      task.TaskType,
		CallbackToken: plaintextToken,
		CallbackURL:   o.callbackURL(task.SubTaskID),
		DispatchedAt:  time.Now().UTC(),
	}

	if err := o.publisher.Dispatch(ctx, req); err != nil {
		return fmt.Errorf("redispatch ai sub-task: %w", err)
	}

	if err := o.subTasks.Transition(ctx, task.SubTaskID, task.Version+1, storage.AiSubTaskInProgress, nil, nil, nil, nil); err != nil {
		return fmt.Errorf("mark retried ai sub-task in progress: %w", err)
	}

	_, err = o.bus.Append(jobID, eventbus.EventTypeTaskDispatched, mustMarshal(map[string]string{
		"subTaskId":  task.SubTaskID,
		"providerId": task.ProviderID,
	}))

	return err
}

// Cancel moves jobID and every active sub-task to CANCELLED, per
// spec.md §3's "explicit cancel propagates to active sub-tasks" rule.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load ai job: %w", err)
	}

	if job.OverallStatus.IsTerminal() {
		return nil
	}

	tasks, err := o.subTasks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list ai sub-tasks: %w", err)
	}

	now := time.Now().UTC()

	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}

		if err := o.subTasks.Transition(ctx, task.SubTaskID, task.Version, storage.AiSubTaskCancelled, nil, nil, nil, &now); err != nil && err != storage.ErrVersionConflict {
			return fmt.Errorf("cancel ai sub-task: %w", err)
		}
	}

	if err := o.jobs.UpdateStatus(ctx, jobID, job.Version, storage.AiJobCancelled, &now); err != nil {
		return fmt.Errorf("cancel ai job: %w", err)
	}

	return o.publishTerminal(jobID, storage.AiJobCancelled, tasks)
}

// Timeout moves jobID and its active sub-tasks per spec.md §4.8: the job
// itself becomes TIMEOUT while its still-active sub-tasks are marked
// CANCELLED (the sweeper, not the provider, is ending them). Only the
// sweeper calls this.
func (o *Orchestrator) Timeout(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load ai job: %w", err)
	}

	if job.OverallStatus.IsTerminal() {
		return nil
	}

	tasks, err := o.subTasks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list ai sub-tasks: %w", err)
	}

	now := time.Now().UTC()

	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}

		if err := o.subTasks.Transition(ctx, task.SubTaskID, task.Version, storage.AiSubTaskCancelled, nil, nil, nil, &now); err != nil && err != storage.ErrVersionConflict {
			return fmt.Errorf("cancel ai sub-task on timeout: %w", err)
		}
	}

	if err := o.jobs.UpdateStatus(ctx, jobID, job.Version, storage.AiJobTimeout, &now); err != nil {
		return fmt.Errorf("timeout ai job: %w", err)
	}

	return o.publishTerminal(jobID, storage.AiJobTimeout, tasks)
}

// TimeoutSubTask marks a single stalled sub-task TIMEOUT (spec.md §4.8's
// per-sub-task pass) and triggers parent re-evaluation. The caller supplies
// the version it observed; a lost CAS race (the sub-task already moved,
// e.g. via a racing callback) is treated as a no-op, not an error.
func (o *Orchestrator) TimeoutSubTask(ctx context.Context, task *storage.AiSubTask) error {
	now := time.Now().UTC()
	code := failure.CodeTimeoutPerSubtask

	err := o.subTasks.Transition(ctx, task.SubTaskID, task.Version, storage.AiSubTaskTimeout, nil, nil, &code, &now)
	if err != nil {
		if err == storage.ErrVersionConflict {
			return nil
		}

		return fmt.Errorf("timeout ai sub-task: %w", err)
	}

	return o.Reevaluate(ctx, task.JobID)
}

func (o *Orchestrator) publishTerminal(jobID string, status storage.AiJobStatus, tasks []*storage.AiSubTask) error {
	eventType := eventbus.EventTypeDone
	if status == storage.AiJobFailed || status == storage.AiJobTimeout {
		eventType = eventbus.EventTypeError
	}

	categories := make([]failure.Category, 0, len(tasks))
	for _, task := range tasks {
		if task.FailureCode != nil {
			categories = append(categories, failure.CategoryFor(*task.FailureCode))
		}
	}

	payload := map[string]interface{}{
		"status": status,
	}

	if cat := failure.AggregateCategory(categories); cat != "" {
		payload["failureReason.category"] = cat
	}

	_, err := o.bus.Append(jobID, eventType, mustMarshal(payload))

	return err
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}

	return data
}
