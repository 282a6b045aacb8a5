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

// gatedTask reports half progress and then waits for release or cancellation
func gatedTask(release <-chan struct{}, reported chan<- struct{}) *FuncTask[struct{}] {
	return NewFuncTask(func(ctx context.Context, report func(float64)) (struct{}, error) {
		report(0.5)
		reported <- struct{}{}
		select {
		case <-release:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
}

func TestAsync_ProgressIsMeanOfChildren(t *testing.T) {
	release := make(chan struct{})
	reported := make(chan struct{}, 2)

	group := NewAsync[*FuncTask[struct{}]]()
	first := gatedTask(release, reported)
	second := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, group.Add(first))
	require.NoError(t, group.Add(second))

	require.NoError(t, group.Start())
	<-reported
	waitDone(t, second)

	// (0.5 + 1.0) / 2
	assert.InDelta(t, 0.75, group.Progress(), 1e-9)

	close(release)
	waitDone(t, group)
	assert.Equal(t, StatusFinished, group.Status())
	assert.Equal(t, 1.0, group.Progress())
}

func TestAsync_Empty(t *testing.T) {
	group := NewAsync[Task]()
	require.NoError(t, group.Start())
	waitDone(t, group)

	assert.Equal(t, StatusFinished, group.Status())
	assert.Equal(t, 1.0, group.Progress())
}

func TestGroup_AddAfterStart(t *testing.T) {
	group := NewAsync[Task]()
	require.NoError(t, group.Add(NewFuncTask(blockUntilCanceled(nil))))
	require.NoError(t, group.Start())

	err := group.Add(NewFuncTask(blockUntilCanceled(nil)))
	assert.ErrorIs(t, err, domain.ErrAddAfterStart)

	require.NoError(t, group.Cancel())
	waitDone(t, group)
}

func TestGroup_ChildCannotHaveTwoParents(t *testing.T) {
	child := NewFuncTask(blockUntilCanceled(nil))
	a := NewAsync[Task]()
	b := NewSequence[Task]()

	require.NoError(t, a.Add(child))
	assert.ErrorIs(t, b.Add(child), domain.ErrInvalidState)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestGroup_AddStartedChild(t *testing.T) {
	child := NewFuncTask(blockUntilCanceled(nil))
	require.NoError(t, child.Start())

	group := NewAsync[Task]()
	assert.ErrorIs(t, group.Add(child), domain.ErrAddAfterStart)

	require.NoError(t, child.Cancel())
	waitDone(t, child)
}

func TestAsync_CancelCascades(t *testing.T) {
	group := NewAsync[*FuncTask[struct{}]]()
	started := make([]chan struct{}, 3)
	for i := range started {
		started[i] = make(chan struct{})
		require.NoError(t, group.Add(NewFuncTask(blockUntilCanceled(started[i]))))
	}

	require.NoError(t, group.Start())
	for _, ch := range started {
		<-ch
	}
	require.NoError(t, group.Cancel())
	waitDone(t, group)

	assert.Equal(t, StatusCanceled, group.Status())
	for _, c := range group.Children() {
		waitDone(t, c)
		assert.Equal(t, StatusCanceled, c.Status())
	}
}

func TestAsync_CancelSkipsFinishedChildren(t *testing.T) {
	group := NewAsync[*FuncTask[struct{}]]()
	done := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	started := make(chan struct{})
	blocked := NewFuncTask(blockUntilCanceled(started))
	require.NoError(t, group.Add(done))
	require.NoError(t, group.Add(blocked))

	require.NoError(t, group.Start())
	waitDone(t, done)
	<-started

	require.NoError(t, group.Cancel())
	waitDone(t, group)
	assert.Equal(t, StatusFinished, done.Status())
	assert.Equal(t, StatusCanceled, blocked.Status())
}

func TestAsync_ChildFailureForwardedWithoutCancelingSiblings(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	reported := make(chan struct{}, 1)

	group := NewAsync[*FuncTask[struct{}]]()
	failing := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, boom
	})
	healthy := gatedTask(release, reported)
	require.NoError(t, group.Add(failing))
	require.NoError(t, group.Add(healthy))

	errs := make(chan error, 1)
	require.NoError(t, group.OnException(func(err error) { errs <- err }))
	require.NoError(t, group.Start())

	assert.ErrorIs(t, <-errs, boom)
	<-reported
	assert.Equal(t, StatusRunning, healthy.Status())
	assert.Equal(t, StatusRunning, group.Status())

	close(release)
	waitDone(t, group)
	assert.Equal(t, StatusCanceled, failing.Status())
	assert.Equal(t, StatusFinished, healthy.Status())
	assert.Equal(t, StatusFinished, group.Status())
}

func TestAsync_EscalationCancelsGroup(t *testing.T) {
	boom := errors.New("boom")
	group := NewAsync[*FuncTask[struct{}]](WithEscalation())
	started := make(chan struct{})
	sibling := NewFuncTask(blockUntilCanceled(started))
	failing := NewFuncTask(func(ctx context.Context, _ func(float64)) (struct{}, error) {
		<-started
		return struct{}{}, boom
	})
	require.NoError(t, group.Add(sibling))
	require.NoError(t, group.Add(failing))

	var got atomic.Value
	require.NoError(t, group.OnException(func(err error) { got.Store(err) }))
	require.NoError(t, group.Start())
	waitDone(t, group)

	assert.Equal(t, StatusCanceled, group.Status())
	waitDone(t, sibling)
	assert.Equal(t, StatusCanceled, sibling.Status())
	err, _ := got.Load().(error)
	assert.ErrorIs(t, err, boom)
}

func TestSequence_RunsInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	seq := NewSequence[*FuncTask[int]]()
	for i := 0; i < 4; i++ {
		i := i
		require.NoError(t, seq.Add(NewFuncTask(func(context.Context, func(float64)) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})))
	}

	require.NoError(t, seq.Start())
	waitDone(t, seq)

	assert.Equal(t, StatusFinished, seq.Status())
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	for i, c := range seq.Children() {
		assert.Equal(t, i, c.Result())
	}
}

func TestSequence_NextChildWaitsForPrevious(t *testing.T) {
	release := make(chan struct{})
	reported := make(chan struct{}, 1)
	var secondStarted atomic.Bool

	seq := NewSequence[*FuncTask[struct{}]]()
	first := gatedTask(release, reported)
	second := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		secondStarted.Store(true)
		return struct{}{}, nil
	})
	require.NoError(t, seq.Add(first))
	require.NoError(t, seq.Add(second))

	require.NoError(t, seq.Start())
	<-reported

	assert.Never(t, secondStarted.Load, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StatusRunning, first.Status())
	assert.Equal(t, StatusInited, second.Status())
	assert.InDelta(t, 0.25, seq.Progress(), 1e-9)

	close(release)
	waitDone(t, seq)
	assert.True(t, secondStarted.Load())
	assert.Equal(t, StatusFinished, first.Status())
	assert.Equal(t, StatusFinished, second.Status())
}

func TestAsync_StartsAllChildrenBeforeAnyCompletes(t *testing.T) {
	const n = 3
	release := make(chan struct{})
	reported := make(chan struct{}, n)

	group := NewAsync[*FuncTask[struct{}]]()
	for i := 0; i < n; i++ {
		require.NoError(t, group.Add(gatedTask(release, reported)))
	}
	require.NoError(t, group.Start())

	// every child is blocked on release, so all of them started concurrently
	for i := 0; i < n; i++ {
		select {
		case <-reported:
		case <-time.After(testTimeout):
			t.Fatalf("only %d of %d children started", i, n)
		}
	}
	for _, c := range group.Children() {
		assert.Equal(t, StatusRunning, c.Status())
	}
	assert.Equal(t, StatusRunning, group.Status())

	close(release)
	waitDone(t, group)
	assert.Equal(t, StatusFinished, group.Status())
	for _, c := range group.Children() {
		assert.Equal(t, StatusFinished, c.Status())
	}
}

func TestSequence_CancelStopsLaterChildren(t *testing.T) {
	started := make(chan struct{})
	var laterRan atomic.Bool

	seq := NewSequence[*FuncTask[struct{}]]()
	first := NewFuncTask(blockUntilCanceled(started))
	later := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		laterRan.Store(true)
		return struct{}{}, nil
	})
	require.NoError(t, seq.Add(first))
	require.NoError(t, seq.Add(later))

	require.NoError(t, seq.Start())
	<-started
	require.NoError(t, seq.Cancel())
	waitDone(t, seq)
	waitDone(t, later)

	assert.Equal(t, StatusCanceled, seq.Status())
	assert.Equal(t, StatusCanceled, first.Status())
	assert.Equal(t, StatusCanceled, later.Status())
	assert.False(t, laterRan.Load())
}

func TestSequence_ContinuesAfterChildFailure(t *testing.T) {
	boom := errors.New("boom")
	seq := NewSequence[*FuncTask[struct{}]]()
	require.NoError(t, seq.Add(NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, boom
	})))
	second := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, seq.Add(second))

	errs := make(chan error, 1)
	require.NoError(t, seq.OnException(func(err error) { errs <- err }))
	require.NoError(t, seq.Start())
	waitDone(t, seq)

	assert.ErrorIs(t, <-errs, boom)
	assert.Equal(t, StatusFinished, second.Status())
	assert.Equal(t, StatusFinished, seq.Status())
}

func TestSequence_EscalationStopsSequence(t *testing.T) {
	boom := errors.New("boom")
	seq := NewSequence[*FuncTask[struct{}]](WithEscalation())
	require.NoError(t, seq.Add(NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, boom
	})))
	var secondRan atomic.Bool
	second := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		secondRan.Store(true)
		return struct{}{}, nil
	})
	require.NoError(t, seq.Add(second))

	require.NoError(t, seq.Start())
	waitDone(t, seq)
	waitDone(t, second)

	assert.Equal(t, StatusCanceled, seq.Status())
	assert.False(t, secondRan.Load())
}

func TestSequence_SkipsPreCanceledChild(t *testing.T) {
	seq := NewSequence[*FuncTask[struct{}]]()
	skipped := NewFuncTask(blockUntilCanceled(nil))
	last := NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, seq.Add(skipped))
	require.NoError(t, seq.Add(last))
	require.NoError(t, skipped.Cancel())

	require.NoError(t, seq.Start())
	waitDone(t, seq)

	assert.Equal(t, StatusCanceled, skipped.Status())
	assert.Equal(t, StatusFinished, last.Status())
	assert.Equal(t, StatusFinished, seq.Status())
}

func TestNestedGroups_ProgressBubblesUp(t *testing.T) {
	inner := NewSequence[*FuncTask[struct{}]]()
	for i := 0; i < 2; i++ {
		require.NoError(t, inner.Add(NewFuncTask(func(context.Context, func(float64)) (struct{}, error) {
			return struct{}{}, nil
		})))
	}
	outer := NewAsync[Task]()
	require.NoError(t, outer.Add(inner))

	var reports atomic.Int32
	require.NoError(t, outer.OnReport(func(float64) { reports.Add(1) }))
	require.NoError(t, outer.Start())
	waitDone(t, outer)

	assert.Equal(t, StatusFinished, inner.Status())
	assert.Equal(t, 1.0, outer.Progress())
	assert.Positive(t, reports.Load())
}
