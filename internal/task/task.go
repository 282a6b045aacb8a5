// Package task implements a tree of cancellable, progress-reporting
// asynchronous work units.
//
// A Task is constructed in StatusInited, moves to StatusRunning on Start and
// ends in exactly one of StatusCanceled or StatusFinished. Composite tasks
// (Async, Sequence) own their children: progress and failures flow up the
// tree, cancellation flows down.
package task

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/launchkit/launchkit/internal/domain"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a task. The order of the constants is
// significant: a task's status never decreases.
type Status int32

const (
	// StatusIniting is the zero value, held by a task whose Init has not run.
	// Such a task can be neither started nor canceled.
	StatusIniting Status = iota
	StatusInited
	StatusRunning
	StatusCanceled
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIniting:
		return "initing"
	case StatusInited:
		return "inited"
	case StatusRunning:
		return "running"
	case StatusCanceled:
		return "canceled"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Task is a cancellable unit of asynchronous work reporting progress in [0, 1].
// Every implementation embeds Base.
type Task interface {
	ID() string
	Name() string

	// Start schedules the task body and returns without waiting for it.
	Start() error
	// Cancel requests cooperative cancellation and releases waiters.
	Cancel() error
	// ReportException cancels the task and notifies exception subscribers.
	ReportException(err error)
	ReportProgress(progress float64)

	Status() Status
	Progress() float64
	// Done is closed exactly once, when the task finished or was canceled.
	Done() <-chan struct{}
	Wait(ctx context.Context) error

	OnReport(fn func(progress float64)) error
	OnStart(fn func(Task)) error
	OnCancel(fn func(Task)) error
	OnFinish(fn func(Task)) error
	OnException(fn func(err error)) error

	core() *Base
}

// Base carries the state machine shared by every task.
type Base struct {
	id       string
	name     string
	logger   *zap.Logger
	escalate bool

	mu              sync.Mutex
	status          Status
	cancelRequested bool
	finishing       bool
	owned           bool
	onReport        []func(float64)
	onStart         []func(Task)
	onCancel        []func(Task)
	onFinish        []func(Task)
	onException     []func(error)

	reportMu sync.Mutex
	progress atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	self         Task
	body         func(ctx context.Context)
	beforeCancel func()
}

// Init prepares the state machine and must be called once by every
// constructor. self is the outermost task value, handed to callbacks.
// body runs in its own goroutine on Start; a nil body finishes immediately.
func (b *Base) Init(self Task, body func(ctx context.Context), opts ...Option) {
	o := newOptions(opts)
	b.id = o.id
	b.name = o.name
	b.logger = o.logger.With(zap.String("task_id", o.id))
	if o.name != "" {
		b.logger = b.logger.With(zap.String("task", o.name))
	}
	b.escalate = o.escalate
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.done = make(chan struct{})
	b.self = self
	b.body = body
	b.status = StatusInited
}

func (b *Base) core() *Base { return b }

// ID returns the unique task id
func (b *Base) ID() string { return b.id }

// Name returns the optional human-readable name
func (b *Base) Name() string { return b.name }

// Logger returns the task-scoped logger
func (b *Base) Logger() *zap.Logger { return b.logger }

// Status returns the current lifecycle state
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Progress returns the last reported progress
func (b *Base) Progress() float64 {
	return math.Float64frombits(b.progress.Load())
}

// Done returns the completion channel
func (b *Base) Done() <-chan struct{} { return b.done }

// Wait blocks until the task completes or ctx is done
func (b *Base) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context returns the cancellation context handed to the task body
func (b *Base) Context() context.Context { return b.ctx }

// Start moves the task to StatusRunning and runs its body in a new goroutine.
func (b *Base) Start() error {
	if err := b.begin(); err != nil {
		return err
	}
	b.launch()
	return nil
}

func (b *Base) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case StatusInited:
		b.status = StatusRunning
		return nil
	case StatusRunning, StatusFinished:
		return domain.ErrAlreadyStarted
	default:
		return fmt.Errorf("%w: cannot start a %s task", domain.ErrInvalidState, b.status)
	}
}

func (b *Base) launch() {
	b.mu.Lock()
	callbacks := b.onStart
	b.mu.Unlock()
	for _, fn := range callbacks {
		fn(b.self)
	}
	go b.execute()
}

func (b *Base) execute() {
	if b.body != nil {
		b.body(b.ctx)
	}
	b.finish()

	// a canceled task is released by whoever canceled it, once its cancel
	// callbacks returned
	if !b.CancelRequested() {
		b.markDone()
	}
}

// finish runs only when the body settled without a cancellation request.
func (b *Base) finish() {
	b.mu.Lock()
	if b.cancelRequested || b.status != StatusRunning {
		b.mu.Unlock()
		return
	}
	b.finishing = true
	callbacks := b.onFinish
	b.mu.Unlock()

	for _, fn := range callbacks {
		b.safeFinishCallback(fn)
	}
	b.ReportProgress(1)

	b.mu.Lock()
	b.status = StatusFinished
	b.mu.Unlock()
}

func (b *Base) safeFinishCallback(fn func(Task)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("finish callback panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn(b.self)
}

func (b *Base) markDone() {
	b.doneOnce.Do(func() { close(b.done) })
}

// Cancel requests cancellation. Composite tasks cancel their children first.
func (b *Base) Cancel() error {
	if err := b.requestCancel(); err != nil {
		return err
	}
	b.markDone()
	return nil
}

func (b *Base) requestCancel() error {
	b.mu.Lock()
	if b.cancelRequested {
		b.mu.Unlock()
		return domain.ErrAlreadyCanceled
	}
	if b.finishing || b.status == StatusIniting || b.status >= StatusCanceled {
		status := b.status
		b.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel a %s task", domain.ErrInvalidState, status)
	}
	b.cancelRequested = true
	callbacks := b.onCancel
	b.mu.Unlock()

	if b.beforeCancel != nil {
		b.beforeCancel()
	}
	b.cancel()
	for _, fn := range callbacks {
		fn(b.self)
	}

	b.mu.Lock()
	b.status = StatusCanceled
	b.mu.Unlock()
	return nil
}

// CancelRequested reports whether Cancel was called
func (b *Base) CancelRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelRequested
}

// ReportException cancels the task and then notifies exception subscribers.
// Done is closed only after the subscribers returned.
func (b *Base) ReportException(err error) {
	cerr := b.requestCancel()
	if cerr != nil {
		b.logger.Debug("cancel on exception skipped", zap.Error(cerr))
	}
	b.emitException(err)
	if cerr == nil {
		b.markDone()
	}
}

func (b *Base) emitException(err error) {
	b.mu.Lock()
	callbacks := b.onException
	b.mu.Unlock()
	for _, fn := range callbacks {
		fn(err)
	}
}

// ReportProgress stores progress and notifies report subscribers. It is safe
// to call from several goroutines.
func (b *Base) ReportProgress(progress float64) {
	b.report(func() float64 { return progress })
}

// report computes and publishes progress under reportMu, so concurrent
// reporters are applied in the order they computed their values.
func (b *Base) report(compute func() float64) {
	b.reportMu.Lock()
	defer b.reportMu.Unlock()

	progress := compute()
	switch {
	case progress < 0 || math.IsNaN(progress):
		progress = 0
	case progress > 1:
		progress = 1
	}

	b.progress.Store(math.Float64bits(progress))
	b.mu.Lock()
	callbacks := b.onReport
	b.mu.Unlock()
	for _, fn := range callbacks {
		fn(progress)
	}
}

// adopt marks the task as owned by a parent group
func (b *Base) adopt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owned {
		return fmt.Errorf("%w: task %s already has a parent", domain.ErrInvalidState, b.id)
	}
	if b.status > StatusInited {
		return domain.ErrAddAfterStart
	}
	b.owned = true
	return nil
}

func (b *Base) subscribe(add func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status > StatusInited {
		return domain.ErrSubscribeAfterStart
	}
	add()
	return nil
}

// OnReport subscribes to progress reports
func (b *Base) OnReport(fn func(progress float64)) error {
	return b.subscribe(func() { b.onReport = append(b.onReport, fn) })
}

// OnStart subscribes to the start event
func (b *Base) OnStart(fn func(Task)) error {
	return b.subscribe(func() { b.onStart = append(b.onStart, fn) })
}

// OnCancel subscribes to the cancel event
func (b *Base) OnCancel(fn func(Task)) error {
	return b.subscribe(func() { b.onCancel = append(b.onCancel, fn) })
}

// OnFinish subscribes to the finish event. A panicking subscriber is logged
// and does not prevent the task from finishing.
func (b *Base) OnFinish(fn func(Task)) error {
	return b.subscribe(func() { b.onFinish = append(b.onFinish, fn) })
}

// OnException subscribes to reported failures
func (b *Base) OnException(fn func(err error)) error {
	return b.subscribe(func() { b.onException = append(b.onException, fn) })
}
