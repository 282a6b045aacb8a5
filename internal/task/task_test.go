package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func waitDone(t *testing.T, tk Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(testTimeout):
		t.Fatalf("task %s did not complete (status %s)", tk.ID(), tk.Status())
	}
}

// blockUntilCanceled returns a body that signals started and then waits for ctx
func blockUntilCanceled(started chan<- struct{}) Func[struct{}] {
	return func(ctx context.Context, _ func(float64)) (struct{}, error) {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	}
}

func TestFuncTask_FinishesWithResult(t *testing.T) {
	tk := NewFuncTask(func(ctx context.Context, report func(float64)) (int, error) {
		report(0.5)
		return 42, nil
	}, WithName("answer"))

	assert.Equal(t, StatusInited, tk.Status())
	assert.NotEmpty(t, tk.ID())
	assert.Equal(t, "answer", tk.Name())

	require.NoError(t, tk.Start())
	waitDone(t, tk)

	assert.Equal(t, StatusFinished, tk.Status())
	assert.Equal(t, 1.0, tk.Progress())
	assert.Equal(t, 42, tk.Result())
	assert.NoError(t, tk.Err())
}

func TestStart_Twice(t *testing.T) {
	tk := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, tk.Start())

	err := tk.Start()
	assert.ErrorIs(t, err, domain.ErrAlreadyStarted)

	require.NoError(t, tk.Cancel())
	waitDone(t, tk)
}

func TestStart_AfterCancel(t *testing.T) {
	tk := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, tk.Cancel())

	waitDone(t, tk)
	assert.Equal(t, StatusCanceled, tk.Status())
	assert.ErrorIs(t, tk.Start(), domain.ErrInvalidState)
}

func TestCancel_Twice(t *testing.T) {
	var cancels atomic.Int32
	tk := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, tk.OnCancel(func(Task) { cancels.Add(1) }))
	require.NoError(t, tk.Start())

	require.NoError(t, tk.Cancel())
	assert.ErrorIs(t, tk.Cancel(), domain.ErrAlreadyCanceled)

	waitDone(t, tk)
	assert.Equal(t, StatusCanceled, tk.Status())
	assert.Equal(t, int32(1), cancels.Load())
}

func TestCancel_AfterFinish(t *testing.T) {
	tk := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, tk.Start())
	waitDone(t, tk)

	assert.ErrorIs(t, tk.Cancel(), domain.ErrInvalidState)
	assert.Equal(t, StatusFinished, tk.Status())
}

func TestCancellationIsSwallowed(t *testing.T) {
	started := make(chan struct{})
	var exceptions atomic.Int32
	var finished atomic.Bool

	tk := NewFuncTask(blockUntilCanceled(started))
	require.NoError(t, tk.OnException(func(error) { exceptions.Add(1) }))
	require.NoError(t, tk.OnFinish(func(Task) { finished.Store(true) }))
	require.NoError(t, tk.Start())

	<-started
	require.NoError(t, tk.Cancel())
	waitDone(t, tk)

	// give the body goroutine time to return after ctx was canceled
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusCanceled, tk.Status())
	assert.Zero(t, exceptions.Load())
	assert.False(t, finished.Load())
}

func TestReportException_CancelsAndNotifies(t *testing.T) {
	boom := errors.New("boom")
	var (
		mu  sync.Mutex
		got []error
	)
	var canceled atomic.Bool

	tk := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, boom
	})
	require.NoError(t, tk.OnException(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	}))
	require.NoError(t, tk.OnCancel(func(Task) { canceled.Store(true) }))
	require.NoError(t, tk.Start())
	waitDone(t, tk)

	assert.Equal(t, StatusCanceled, tk.Status())
	assert.True(t, canceled.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], boom)
}

func TestFinishCallbackPanicIsRecovered(t *testing.T) {
	var second atomic.Bool
	tk := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, tk.OnFinish(func(Task) { panic("subscriber bug") }))
	require.NoError(t, tk.OnFinish(func(Task) { second.Store(true) }))
	require.NoError(t, tk.Start())
	waitDone(t, tk)

	assert.Equal(t, StatusFinished, tk.Status())
	assert.Equal(t, 1.0, tk.Progress())
	assert.True(t, second.Load())
}

func TestSubscribeAfterStart(t *testing.T) {
	tk := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, tk.Start())

	assert.ErrorIs(t, tk.OnReport(func(float64) {}), domain.ErrSubscribeAfterStart)
	assert.ErrorIs(t, tk.OnFinish(func(Task) {}), domain.ErrSubscribeAfterStart)
	assert.ErrorIs(t, tk.OnException(func(error) {}), domain.ErrSubscribeAfterStart)

	require.NoError(t, tk.Cancel())
	waitDone(t, tk)
}

func TestOnStartFiresBeforeBody(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	tk := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		record("body")
		return struct{}{}, nil
	})
	require.NoError(t, tk.OnStart(func(Task) { record("start") }))
	require.NoError(t, tk.OnFinish(func(Task) { record("finish") }))
	require.NoError(t, tk.Start())
	waitDone(t, tk)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"start", "body", "finish"}, order)
}

func TestReportProgress_Clamps(t *testing.T) {
	tk := NewFuncTask[struct{}](nil)

	tk.ReportProgress(-1)
	assert.Equal(t, 0.0, tk.Progress())
	tk.ReportProgress(2)
	assert.Equal(t, 1.0, tk.Progress())
	tk.ReportProgress(0.25)
	assert.Equal(t, 0.25, tk.Progress())
}

func TestWait_ContextTimeout(t *testing.T) {
	tk := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, tk.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tk.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, tk.Cancel())
	assert.NoError(t, tk.Wait(context.Background()))
}

func TestBase_UninitializedIsIniting(t *testing.T) {
	var b Base

	assert.Equal(t, StatusIniting, b.Status())
	assert.ErrorIs(t, b.Start(), domain.ErrInvalidState)
	assert.ErrorIs(t, b.Cancel(), domain.ErrInvalidState)
	assert.Equal(t, StatusIniting, b.Status())
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIniting, "initing"},
		{StatusInited, "inited"},
		{StatusRunning, "running"},
		{StatusCanceled, "canceled"},
		{StatusFinished, "finished"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			text, err := tt.status.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(text))
		})
	}
	assert.Less(t, StatusRunning, StatusCanceled)
	assert.Less(t, StatusCanceled, StatusFinished)
}
