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
	"github.com/newsintel/searchcore/internal/storage"
)

func newCrawlEvidenceConnection(ctx context.Context, t *testing.T) *storage.Connection {
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

func seedAiJobForEvidence(ctx context.Context, t *testing.T, conn *storage.Connection) string {
	t.Helper()

	jobID := uuid.NewString()
	jobs := storage.NewPostgresAiJobStore(conn)
	job := &storage.AiJob{
		JobID:         jobID,
		OverallStatus: storage.AiJobInProgress,
		Topic:         "topic",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, jobs.Create(ctx, job))

	return jobID
}

func TestPostgresCrawlEvidenceStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	conn := newCrawlEvidenceConnection(ctx, t)
	store := storage.NewPostgresCrawlEvidenceStore(conn)

	jobID := seedAiJobForEvidence(ctx, t, conn)

	e1 := &storage.CrawlEvidence{
		ID:             uuid.NewString(),
		JobID:          jobID,
		URL:            "https://example.com/a",
		Title:          "Article A",
		Stance:         storage.StancePro,
		Snippet:        "supports the claim",
		SourceCategory: storage.SourceNews,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Append(ctx, e1))

	e2 := &storage.CrawlEvidence{
		ID:             uuid.NewString(),
		JobID:          jobID,
		URL:            "https://example.com/b",
		Title:          "Article B",
		Stance:         storage.StanceCon,
		Snippet:        "disputes the claim",
		SourceCategory: storage.SourceBlog,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Append(ctx, e2))

	list, err := store.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://example.com/a", list[0].URL)
	assert.Equal(t, "https://example.com/b", list[1].URL)
}

func TestPostgresCrawlEvidenceStore_DuplicateURLRejected(t *testing.T) {
	ctx := context.Background()
	conn := newCrawlEvidenceConnection(ctx, t)
	store := storage.NewPostgresCrawlEvidenceStore(conn)

	jobID := seedAiJobForEvidence(ctx, t, conn)

	e := &storage.CrawlEvidence{
		ID:             uuid.NewString(),
		JobID:          jobID,
		URL:            "https://example.com/dup",
		Title:          "Dup",
		Stance:         storage.StanceNeutral,
		Snippet:        "snippet",
		SourceCategory: storage.SourceOfficial,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Append(ctx, e))

	dup := *e
	dup.ID = uuid.NewString()
	err := store.Append(ctx, &dup)

	require.ErrorIs(t, err, storage.ErrDuplicateEvidence)
}
