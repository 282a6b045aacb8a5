package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRecordRepository implements port.DownloadRecordRepository for testing
type mockRecordRepository struct {
	mu                sync.Mutex
	interruptedCount  int
	interruptedErr    error
	interruptedCalled int
	deleteCount       int
	deleteErr         error
	deleteCalled      int
	lastCutoff        time.Time
}

func (m *mockRecordRepository) CreateRecord(*domain.DownloadRecord) error { return nil }
func (m *mockRecordRepository) UpdateRecord(*domain.DownloadRecord) error { return nil }
func (m *mockRecordRepository) GetRecord(int64) (*domain.DownloadRecord, error) {
	return nil, domain.ErrNotFound
}
func (m *mockRecordRepository) ListRecords(string, int) ([]*domain.DownloadRecord, error) {
	return nil, nil
}
func (m *mockRecordRepository) GetHistoryStats() (*domain.HistoryStats, error) {
	return &domain.HistoryStats{}, nil
}
func (m *mockRecordRepository) MarkInterrupted() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interruptedCalled++
	return m.interruptedCount, m.interruptedErr
}
func (m *mockRecordRepository) DeleteClosedBefore(t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalled++
	m.lastCutoff = t
	return m.deleteCount, m.deleteErr
}

func (m *mockRecordRepository) calls() (interrupted, deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interruptedCalled, m.deleteCalled
}

// mockDirCleaner counts CleanEmptyDirs calls
type mockDirCleaner struct {
	mu     sync.Mutex
	err    error
	called int
}

func (m *mockDirCleaner) CleanEmptyDirs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	return m.err
}

func (m *mockDirCleaner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

func TestService_New(t *testing.T) {
	records := &mockRecordRepository{}

	s := New(nil, records, nil, nil)
	require.NotNil(t, s)
	assert.Equal(t, time.Hour, s.config.CleanupInterval)
	assert.Equal(t, 30*24*time.Hour, s.config.RecordRetention)

	s = New(&Config{CleanupInterval: 2 * time.Minute}, records, nil, zap.NewNop())
	assert.Equal(t, 2*time.Minute, s.config.CleanupInterval)
	assert.Equal(t, 30*24*time.Hour, s.config.RecordRetention)
}

func TestService_StartStop(t *testing.T) {
	records := &mockRecordRepository{interruptedCount: 2, deleteCount: 1}
	dirs := &mockDirCleaner{}
	s := New(&Config{CleanupInterval: 10 * time.Millisecond, RecordRetention: time.Hour}, records, dirs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		_, deleted := records.calls()
		return deleted > 0 && dirs.calls() > 0
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	interrupted, _ := records.calls()
	assert.Equal(t, 1, interrupted)
}

func TestService_DoubleStart(t *testing.T) {
	s := New(nil, &mockRecordRepository{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)
	assert.Error(t, s.Start(ctx))
	s.Stop()
}

func TestService_RunOnceUsesRetention(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	records := &mockRecordRepository{}
	dirs := &mockDirCleaner{}
	s := New(&Config{CleanupInterval: time.Hour, RecordRetention: 48 * time.Hour}, records, dirs, zap.NewNop())
	s.now = func() time.Time { return now }

	s.RunOnce()

	assert.Equal(t, now.Add(-48*time.Hour), records.lastCutoff)
	assert.Equal(t, 1, dirs.calls())
}

func TestService_ErrorsDoNotStopCleanup(t *testing.T) {
	records := &mockRecordRepository{
		interruptedErr: errors.New("db locked"),
		deleteErr:      errors.New("db locked"),
	}
	dirs := &mockDirCleaner{err: errors.New("permission denied")}
	s := New(&Config{CleanupInterval: 10 * time.Millisecond}, records, dirs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		_, deleted := records.calls()
		return deleted >= 2 && dirs.calls() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestService_NilDirCleaner(t *testing.T) {
	records := &mockRecordRepository{}
	s := New(nil, records, nil, zap.NewNop())
	s.RunOnce()

	_, deleted := records.calls()
	assert.Equal(t, 1, deleted)
}
