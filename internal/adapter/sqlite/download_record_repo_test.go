package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "history.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Ping(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Ping())
}

func TestStore_RecordLifecycle(t *testing.T) {
	store := openTestStore(t)

	record := domain.NewDownloadRecord("job-1", "task-1", "http://host/a.jar", "/games/a.jar", 8, 1)
	require.NoError(t, store.CreateRecord(record))
	require.NotZero(t, record.ID)

	got, err := store.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusRunning, got.Status)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 8, got.Threads)
	assert.Nil(t, got.FinishedAt)

	record.MarkFinished(100, 100)
	require.NoError(t, store.UpdateRecord(record))

	got, err = store.GetRecord(record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusFinished, got.Status)
	assert.Equal(t, int64(100), got.BytesDownloaded)
	require.NotNil(t, got.FinishedAt)
}

func TestStore_GetRecordNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRecord(404)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	missing := &domain.DownloadRecord{ID: 404}
	assert.ErrorIs(t, store.UpdateRecord(missing), domain.ErrNotFound)
}

func TestStore_ListRecords(t *testing.T) {
	store := openTestStore(t)
	for i, job := range []string{"a", "b", "a", "a"} {
		r := domain.NewDownloadRecord(job, "t", "http://host/f", "/f", 1, i+1)
		require.NoError(t, store.CreateRecord(r))
	}

	all, err := store.ListRecords("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[1].ID)

	jobA, err := store.ListRecords("a", 2)
	require.NoError(t, err)
	require.Len(t, jobA, 2)
	assert.Equal(t, 4, jobA[0].Attempt)
}

func TestStore_MarkInterrupted(t *testing.T) {
	store := openTestStore(t)

	running := domain.NewDownloadRecord("j", "t1", "u", "p", 1, 1)
	require.NoError(t, store.CreateRecord(running))
	done := domain.NewDownloadRecord("j", "t2", "u", "p", 1, 1)
	done.MarkFinished(1, 1)
	require.NoError(t, store.CreateRecord(done))

	n, err := store.MarkInterrupted()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetRecord(running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusInterrupted, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestStore_DeleteClosedBefore(t *testing.T) {
	store := openTestStore(t)

	old := domain.NewDownloadRecord("j", "old", "u", "p", 1, 1)
	old.MarkFailed("boom")
	past := time.Now().Add(-48 * time.Hour)
	old.FinishedAt = &past
	require.NoError(t, store.CreateRecord(old))

	recent := domain.NewDownloadRecord("j", "recent", "u", "p", 1, 1)
	recent.MarkFinished(1, 1)
	require.NoError(t, store.CreateRecord(recent))

	running := domain.NewDownloadRecord("j", "running", "u", "p", 1, 1)
	require.NoError(t, store.CreateRecord(running))

	n, err := store.DeleteClosedBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetRecord(old.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetRecord(recent.ID)
	assert.NoError(t, err)
}

func TestStore_GetHistoryStats(t *testing.T) {
	store := openTestStore(t)

	finished := domain.NewDownloadRecord("j", "1", "u", "p", 1, 1)
	finished.MarkFinished(300, 300)
	incomplete := domain.NewDownloadRecord("j", "2", "u", "p", 1, 1)
	incomplete.MarkFinished(50, 100)
	failed := domain.NewDownloadRecord("j", "3", "u", "p", 1, 1)
	failed.MarkFailed("nope")
	canceled := domain.NewDownloadRecord("j", "4", "u", "p", 1, 1)
	canceled.MarkCanceled(7)
	for _, r := range []*domain.DownloadRecord{finished, incomplete, failed, canceled} {
		require.NoError(t, store.CreateRecord(r))
	}

	stats, err := store.GetHistoryStats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRecords)
	assert.Equal(t, 1, stats.FinishedCount)
	assert.Equal(t, 1, stats.IncompleteCount)
	assert.Equal(t, 1, stats.FailedCount)
	assert.Equal(t, 1, stats.CanceledCount)
	assert.Equal(t, int64(357), stats.BytesDownloaded)
}
