package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/newsintel/searchcore/internal/config"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/storage"
)

func newAiJobConnection(ctx context.Context, t *testing.T) *storage.Connection {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	return storage.WrapConnection(testDB.Connection)
}

func TestPostgresAiJobStore_CreateGetAndCASUpdate(t *testing.T) {
	ctx := context.Background()
	conn := newAiJobConnection(ctx, t)
	jobs := storage.NewPostgresAiJobStore(conn)

	job := &storage.AiJob{
		JobID:         uuid.NewString(),
		OverallStatus: storage.AiJobPending,
		Topic:         "renewable energy policy",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, jobs.Create(ctx, job))
	assert.Equal(t, 1, job.Version)

	fetched, err := jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiJobPending, fetched.OverallStatus)

	completedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, jobs.UpdateStatus(ctx, job.JobID, fetched.Version, storage.AiJobPartialSuccess, &completedAt))

	err = jobs.UpdateStatus(ctx, job.JobID, fetched.Version, storage.AiJobFailed, nil)
	require.ErrorIs(t, err, storage.ErrVersionConflict)
}

func TestPostgresAiSubTaskStore_CreateListAndTransition(t *testing.T) {
	ctx := context.Background()
	conn := newAiJobConnection(ctx, t)
	jobs := storage.NewPostgresAiJobStore(conn)
	subTasks := storage.NewPostgresAiSubTaskStore(conn)

	job := &storage.AiJob{
		JobID:         uuid.NewString(),
		OverallStatus: storage.AiJobPending,
		Topic:         "ev battery supply chains",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, jobs.Create(ctx, job))

	tokenHash, err := storage.HashSecret(uuid.NewString())
	require.NoError(t, err)

	task := &storage.AiSubTask{
		SubTaskID:         uuid.NewString(),
		JobID:             job.JobID,
		ProviderID:        "provider-a",
		TaskType:          "crawl",
		Status:            storage.AiSubTaskPending,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
		CallbackTokenHash: tokenHash,
	}
	require.NoError(t, subTasks.Create(ctx, task))
	assert.Equal(t, 1, task.Version)

	list, err := subTasks.ListByJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.SubTaskID, list[0].SubTaskID)

	result := `{"evidenceCount":3}`
	completedAt := time.Now().UTC().Truncate(time.Second)
	err = subTasks.Transition(
		ctx, task.SubTaskID, task.Version, storage.AiSubTaskCompleted, &result, nil, nil, &completedAt,
	)
	require.NoError(t, err)

	fetched, err := subTasks.Get(ctx, task.SubTaskID)
	require.NoError(t, err)
	assert.Equal(t, storage.AiSubTaskCompleted, fetched.Status)
	require.NotNil(t, fetched.ResultJSON)
	assert.Equal(t, result, *fetched.ResultJSON)
	assert.Equal(t, 2, fetched.Version)

	// Second transition against the now-stale version is a no-op CAS
	// failure: the first terminal transition already won.
	errMsg := "late duplicate callback"
	code := failure.CodeDuplicateCallback
	err = subTasks.Transition(
		ctx, task.SubTaskID, task.Version, storage.AiSubTaskFailed, nil, &errMsg, &code, &completedAt,
	)
	require.ErrorIs(t, err, storage.ErrVersionConflict)
}
