package task

import (
	"context"
	"sync"

	"github.com/launchkit/launchkit/internal/domain"
	"go.uber.org/zap"
)

// Func is the body of a FuncTask. It should return promptly once ctx is
// canceled and may call report with its progress in [0, 1].
type Func[T any] func(ctx context.Context, report func(progress float64)) (T, error)

// FuncTask runs a single function as a task and keeps its result.
//
// A cancellation error returned by the function is swallowed. Any other error
// is reported through ReportException.
type FuncTask[T any] struct {
	Base

	fn Func[T]

	resultMu sync.Mutex
	result   T
	err      error
}

// NewFuncTask creates a task running fn
func NewFuncTask[T any](fn Func[T], opts ...Option) *FuncTask[T] {
	t := &FuncTask[T]{}
	t.Init(t, fn, opts...)
	return t
}

// Init prepares a FuncTask embedded in another task type
func (t *FuncTask[T]) Init(self Task, fn Func[T], opts ...Option) {
	t.fn = fn
	t.Base.Init(self, t.run, opts...)
}

func (t *FuncTask[T]) run(ctx context.Context) {
	if t.fn == nil {
		return
	}
	value, err := t.fn(ctx, t.ReportProgress)

	t.resultMu.Lock()
	t.result = value
	t.err = err
	t.resultMu.Unlock()

	if err == nil {
		return
	}
	if domain.IsCancellation(err) {
		t.logger.Debug("task body stopped on cancellation", zap.Error(err))
		return
	}
	t.ReportException(err)
}

// Result returns the value produced by the function. It is the zero value
// until the task is done.
func (t *FuncTask[T]) Result() T {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	return t.result
}

// Err returns the error returned by the function, if any
func (t *FuncTask[T]) Err() error {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	return t.err
}
