package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)

	run, err := repo.Create(ctx, "skiwebshop")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	err = repo.Finish(ctx, run.ID, RunUpdate{
		Status:       RunStatusCompleted,
		StopReason:   "exhausted",
		PagesFetched: 5,
		PagesFailed:  1,
		RecordsKept:  42,
		Duplicates:   7,
		Incomplete:   3,
	})
	require.NoError(t, err)

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, runs)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, "exhausted", got.StopReason)
	assert.Equal(t, 42, got.RecordsKept)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.After(got.StartedAt))
}

func TestRunRepositoryFinishFailedRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)

	run, err := repo.Create(ctx, "skiwebshop")
	require.NoError(t, err)

	err = repo.Finish(ctx, run.ID, RunUpdate{
		Status:       RunStatusFailed,
		StopReason:   "first_page_failed",
		ErrorMessage: "failed to fetch page 1: connection refused",
	})
	require.NoError(t, err)

	runs, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Contains(t, *runs[0].ErrorMessage, "connection refused")
}

func TestRunRepositoryFinishUnknownRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)

	err := repo.Finish(ctx, uuid.New(), RunUpdate{Status: RunStatusCompleted})
	assert.ErrorContains(t, err, "run not found")
}
