package aijob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsintel/searchcore/internal/dispatch"
	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/storage"
)

type fakeAiJobStore struct {
	mu   sync.Mutex
	jobs map[string]*storage.AiJob
}

func newFakeAiJobStore() *fakeAiJobStore {
	return &fakeAiJobStore{jobs: make(map[string]*storage.AiJob)}
}

func (f *fakeAiJobStore) Create(_ context.Context, job *storage.AiJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job.Version = 1
	cp := *job
	f.jobs[job.JobID] = &cp

	return nil
}

func (f *fakeAiJobStore) Get(_ context.Context, jobID string) (*storage.AiJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *job

	return &cp, nil
}

func (f *fakeAiJobStore) UpdateStatus(_ context.Context, jobID string, expectedVersion int, status storage.AiJobStatus, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}

	if job.Version != expectedVersion {
		return storage.ErrVersionConflict
	}

	job.OverallStatus = status
	job.CompletedAt = completedAt
	job.Version++

	return nil
}

type fakeAiSubTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*storage.AiSubTask
}

func newFakeAiSubTaskStore() *fakeAiSubTaskStore {
	return &fakeAiSubTaskStore{tasks: make(map[string]*storage.AiSubTask)}
}

func (f *fakeAiSubTaskStore) Create(_ context.Context, task *storage.AiSubTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	task.Version = 1
	cp := *task
	f.tasks[task.SubTaskID] = &cp

	return nil
}

func (f *fakeAiSubTaskStore) Get(_ context.Context, subTaskID string) (*storage.AiSubTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[subTaskID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *task

	return &cp, nil
}

func (f *fakeAiSubTaskStore) ListByJob(_ context.Context, jobID string) ([]*storage.AiSubTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*storage.AiSubTask

	for _, task := range f.tasks {
		if task.JobID == jobID {
			cp := *task
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (f *fakeAiSubTaskStore) Transition(
	_ context.Context,
	subTaskID string,
	expectedVersion int,
	status storage.AiSubTaskStatus,
	resultJSON, errorMessage *string,
	failureCode *failure.Code,
	completedAt *time.Time,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[subTaskID]
	if !ok {
		return storage.ErrNotFound
	}

	if task.Version != expectedVersion {
		return storage.ErrVersionConflict
	}

	task.Status = status
	task.ResultJSON = resultJSON
	task.ErrorMessage = errorMessage
	task.FailureCode = failureCode
	task.CompletedAt = completedAt
	task.Version++

	return nil
}

func (f *fakeAiSubTaskStore) Retry(_ context.Context, subTaskID string, expectedVersion int, newCallbackTokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[subTaskID]
	if !ok {
		return storage.ErrNotFound
	}

	if task.Version != expectedVersion {
		return storage.ErrVersionConflict
	}

	task.Status = storage.AiSubTaskPending
	task.RetryCount++
	task.ResultJSON = nil
	task.ErrorMessage = nil
	task.FailureCode = nil
	task.CompletedAt = nil
	task.CallbackTokenHash = newCallbackTokenHash
	task.Version++

	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	requests []dispatch.TaskRequest
}

func (f *fakePublisher) Dispatch(_ context.Context, req dispatch.TaskRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	return nil
}

func newTestOrchestrator(t *testing.T, routing *RoutingTable) (*Orchestrator, *fakeAiJobStore, *fakeAiSubTaskStore, *fakePublisher, *eventbus.Bus) {
	t.Helper()

	jobs := newFakeAiJobStore()
	subTasks := newFakeAiSubTaskStore()
	pub := &fakePublisher{}
	bus := eventbus.NewBus(eventbus.Config{})
	t.Cleanup(bus.Stop)

	orch := NewOrchestrator(jobs, subTasks, bus, pub, routing, func(subTaskID string) string {
		return "https://searchcore.example/callbacks/" + subTaskID
	})

	return orch, jobs, subTasks, pub, bus
}

func twoProviderRouting() *RoutingTable {
	return &RoutingTable{
		Rules: []Rule{
			{Providers: []ProviderRoute{
				{ProviderID: "provider-a", TaskType: "crawl"},
				{ProviderID: "provider-b", TaskType: "crawl"},
			}},
		},
	}
}

func TestOrchestrator_CreateJobDispatchesEverySubTask(t *testing.T) {
	orch, jobs, _, pub, _ := newTestOrchestrator(t, twoProviderRouting())
	ctx := context.Background()

	job, tasks, err := orch.CreateJob(ctx, "renewable energy policy", "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiJobInProgress, fetched.OverallStatus)

	assert.Len(t, pub.requests, 2)
	for _, task := range tasks {
		assert.Equal(t, storage.AiSubTaskInProgress, task.Status)
	}
}

func TestOrchestrator_ReevaluateAllCompletedMarksJobCompleted(t *testing.T) {
	orch, jobs, subTasks, _, bus := newTestOrchestrator(t, twoProviderRouting())
	ctx := context.Background()

	job, tasks, err := orch.CreateJob(ctx, "ev battery supply chains", "")
	require.NoError(t, err)

	ch, unsubscribe, err := bus.Subscribe(job.JobID, 0)
	require.NoError(t, err)
	defer unsubscribe()

	for _, task := range tasks {
		require.NoError(t, subTasks.Transition(ctx, task.SubTaskID, task.Version, storage.AiSubTaskCompleted, nil, nil, nil, nil))
	}

	require.NoError(t, orch.Reevaluate(ctx, job.JobID))

	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiJobCompleted, fetched.OverallStatus)

	// Subscribing from seq 0 replays CreateJob's task_dispatched events first.
	for range tasks {
		assert.Equal(t, eventbus.EventTypeTaskDispatched, (<-ch).EventType)
	}

	select {
	case ev := <-ch:
		assert.Equal(t, eventbus.EventTypeDone, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func TestOrchestrator_ReevaluateMixedOutcomeIsPartialSuccess(t *testing.T) {
	orch, jobs, subTasks, _, _ := newTestOrchestrator(t, twoProviderRouting())
	ctx := context.Background()

	job, tasks, err := orch.CreateJob(ctx, "ev battery supply chains", "")
	require.NoError(t, err)

	require.NoError(t, subTasks.Transition(ctx, tasks[0].SubTaskID, tasks[0].Version, storage.AiSubTaskCompleted, nil, nil, nil, nil))

	nonRetryable := failure.CodeParseError
	require.NoError(t, subTasks.Transition(ctx, tasks[1].SubTaskID, tasks[1].Version, storage.AiSubTaskFailed, nil, nil, &nonRetryable, nil))

	require.NoError(t, orch.Reevaluate(ctx, job.JobID))

	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiJobPartialSuccess, fetched.OverallStatus)
}

func TestOrchestrator_ReevaluateRetriesRetryableFailureInsteadOfFailingJob(t *testing.T) {
	orch, jobs, subTasks, pub, _ := newTestOrchestrator(t, twoProviderRouting())
	ctx := context.Background()

	job, tasks, err := orch.CreateJob(ctx, "ev battery supply chains", "")
	require.NoError(t, err)

	require.NoError(t, subTasks.Transition(ctx, tasks[0].SubTaskID, tasks[0].Version, storage.AiSubTaskCompleted, nil, nil, nil, nil))

	retryable := failure.CodeConnectionRefused
	require.NoError(t, subTasks.Transition(ctx, tasks[1].SubTaskID, tasks[1].Version, storage.AiSubTaskFailed, nil, nil, &retryable, nil))

	require.NoError(t, orch.Reevaluate(ctx, job.JobID))

	retried, err := subTasks.Get(ctx, tasks[1].SubTaskID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiSubTaskInProgress, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)

	// Job must not have been finalized: the retry is still outstanding.
	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.False(t, fetched.OverallStatus.IsTerminal())

	assert.Len(t, pub.requests, 3) // 2 initial dispatches + 1 retry
}

func TestOrchestrator_CancelMovesActiveSubTasksAndJobToCancelled(t *testing.T) {
	orch, jobs, subTasks, _, bus := newTestOrchestrator(t, twoProviderRouting())
	ctx := context.Background()

	job, tasks, err := orch.CreateJob(ctx, "ev battery supply chains", "")
	require.NoError(t, err)

	ch, unsubscribe, err := bus.Subscribe(job.JobID, 0)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, orch.Cancel(ctx, job.JobID))

	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiJobCancelled, fetched.OverallStatus)

	for _, task := range tasks {
		reFetched, err := subTasks.Get(ctx, task.SubTaskID)
		require.NoError(t, err)
		assert.Equal(t, storage.AiSubTaskCancelled, reFetched.Status)
	}

	var sawDone bool

	for i := 0; i < 10; i++ {
		select {
		case ev := <-ch:
			if ev.EventType == eventbus.EventTypeDone {
				sawDone = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}

		if sawDone {
			break
		}
	}

	assert.True(t, sawDone)
}
