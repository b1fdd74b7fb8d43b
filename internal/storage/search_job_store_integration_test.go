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

func newSearchJobConnection(ctx context.Context, t *testing.T) *storage.Connection {
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

func TestPostgresSearchJobStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	conn := newSearchJobConnection(ctx, t)
	store := storage.NewPostgresSearchJobStore(conn)

	job := &storage.SearchJob{
		JobID:     uuid.NewString(),
		Status:    storage.SearchJobPending,
		Query:     "bitcoin",
		Window:    "7d",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, store.Create(ctx, job))
	assert.Equal(t, 1, job.Version)

	fetched, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.SearchJobPending, fetched.Status)
	assert.Equal(t, "bitcoin", fetched.Query)
	assert.Equal(t, 1, fetched.Version)
	assert.Nil(t, fetched.FailureCode)
}

func TestPostgresSearchJobStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	conn := newSearchJobConnection(ctx, t)
	store := storage.NewPostgresSearchJobStore(conn)

	_, err := store.Get(ctx, uuid.NewString())

	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresSearchJobStore_UpdateStatus_CASSuccess(t *testing.T) {
	ctx := context.Background()
	conn := newSearchJobConnection(ctx, t)
	store := storage.NewPostgresSearchJobStore(conn)

	job := &storage.SearchJob{
		JobID:     uuid.NewString(),
		Status:    storage.SearchJobPending,
		Query:     "bitcoin",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Create(ctx, job))

	completedAt := time.Now().UTC().Truncate(time.Second)
	err := store.UpdateStatus(ctx, job.JobID, job.Version, storage.SearchJobCompleted, nil, &completedAt)
	require.NoError(t, err)

	fetched, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, storage.SearchJobCompleted, fetched.Status)
	assert.Equal(t, 2, fetched.Version)
}

func TestPostgresSearchJobStore_UpdateStatus_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	conn := newSearchJobConnection(ctx, t)
	store := storage.NewPostgresSearchJobStore(conn)

	job := &storage.SearchJob{
		JobID:     uuid.NewString(),
		Status:    storage.SearchJobPending,
		Query:     "bitcoin",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Create(ctx, job))

	// First writer wins.
	require.NoError(t, store.UpdateStatus(ctx, job.JobID, 1, storage.SearchJobRunning, nil, nil))

	// Second writer, still using the stale version, loses the race.
	err := store.UpdateStatus(ctx, job.JobID, 1, storage.SearchJobFailed, nil, nil)
	require.ErrorIs(t, err, storage.ErrVersionConflict)
}

func TestPostgresSearchJobStore_UpdateStatus_RecordsFailureReason(t *testing.T) {
	ctx := context.Background()
	conn := newSearchJobConnection(ctx, t)
	store := storage.NewPostgresSearchJobStore(conn)

	job := &storage.SearchJob{
		JobID:     uuid.NewString(),
		Status:    storage.SearchJobPending,
		Query:     "bitcoin",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Create(ctx, job))

	reason := failure.New(failure.CodeServiceUnavailable)
	require.NoError(t, store.UpdateStatus(ctx, job.JobID, job.Version, storage.SearchJobFailed, &reason, nil))

	fetched, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, fetched.FailureCode)
	assert.Equal(t, failure.CodeServiceUnavailable, *fetched.FailureCode)
	require.NotNil(t, fetched.FailureCategory)
	assert.Equal(t, failure.CategoryService, *fetched.FailureCategory)
}
