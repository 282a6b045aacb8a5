package task

import (
	"context"
	"errors"
	"sync"

	"github.com/launchkit/launchkit/internal/domain"
	"go.uber.org/zap"
)

// Group is the shared part of composite tasks. Its progress is the unweighted
// mean of its children's progress.
type Group[T Task] struct {
	Base

	childMu  sync.RWMutex
	children []T
}

func (g *Group[T]) initGroup(self Task, body func(ctx context.Context), opts []Option) {
	g.Base.Init(self, body, opts...)
	g.beforeCancel = g.cancelChildren
}

// Add appends a child. Children can only be added while the group is inited.
// A child's failures are forwarded to the group and its progress reports
// update the group's progress.
func (g *Group[T]) Add(child T) error {
	// g.mu keeps Add and Start mutually exclusive
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status > StatusInited {
		return domain.ErrAddAfterStart
	}
	c := child.core()
	if c == &g.Base {
		return domain.ErrInvalidInput
	}
	if err := c.adopt(); err != nil {
		return err
	}
	if err := c.OnException(g.childFailed); err != nil {
		return err
	}
	if err := c.OnReport(func(float64) { g.aggregate() }); err != nil {
		return err
	}

	g.childMu.Lock()
	g.children = append(g.children, child)
	g.childMu.Unlock()
	return nil
}

// Children returns a snapshot of the children in insertion order
func (g *Group[T]) Children() []T {
	g.childMu.RLock()
	defer g.childMu.RUnlock()
	out := make([]T, len(g.children))
	copy(out, g.children)
	return out
}

// Len returns the number of children
func (g *Group[T]) Len() int {
	g.childMu.RLock()
	defer g.childMu.RUnlock()
	return len(g.children)
}

func (g *Group[T]) aggregate() {
	if g.Len() == 0 {
		return
	}
	g.report(g.mean)
}

func (g *Group[T]) mean() float64 {
	children := g.Children()
	if len(children) == 0 {
		return 0
	}
	var sum float64
	for _, c := range children {
		sum += c.Progress()
	}
	return sum / float64(len(children))
}

func (g *Group[T]) childFailed(err error) {
	if g.escalate {
		g.ReportException(err)
		return
	}
	g.emitException(err)
}

func (g *Group[T]) cancelChildren() {
	for _, c := range g.Children() {
		if c.Status() >= StatusCanceled {
			continue
		}
		if err := c.Cancel(); err != nil && !errors.Is(err, domain.ErrAlreadyCanceled) {
			g.logger.Debug("child cancel skipped",
				zap.String("child_id", c.ID()),
				zap.Error(err))
		}
	}
}

// startChild starts c. A child that refuses to start while still inited
// would never complete, so it is failed instead.
func (g *Group[T]) startChild(c T) {
	err := c.Start()
	if err == nil {
		return
	}
	if c.Status() == StatusInited {
		c.ReportException(err)
		return
	}
	g.logger.Debug("child not started",
		zap.String("child_id", c.ID()),
		zap.String("child_status", c.Status().String()),
		zap.Error(err))
}

func (g *Group[T]) waitChildren() {
	for _, c := range g.Children() {
		<-c.Done()
	}
}

// Async runs all of its children concurrently and completes when every
// child is done.
type Async[T Task] struct {
	Group[T]
}

// NewAsync creates an empty concurrent group
func NewAsync[T Task](opts ...Option) *Async[T] {
	a := &Async[T]{}
	a.Init(a, opts...)
	return a
}

// Init prepares an Async embedded in another task type
func (a *Async[T]) Init(self Task, opts ...Option) {
	a.initGroup(self, a.run, opts)
}

// Start starts every inited child, then the group itself.
func (a *Async[T]) Start() error {
	if err := a.begin(); err != nil {
		return err
	}
	for _, c := range a.Children() {
		if c.Status() != StatusInited {
			continue
		}
		a.startChild(c)
	}
	a.launch()
	return nil
}

func (a *Async[T]) run(_ context.Context) {
	a.waitChildren()
}

// Sequence runs its children one after another in insertion order. Once the
// sequence is canceled no further child is started.
type Sequence[T Task] struct {
	Group[T]
}

// NewSequence creates an empty sequential group
func NewSequence[T Task](opts ...Option) *Sequence[T] {
	s := &Sequence[T]{}
	s.Init(s, opts...)
	return s
}

// Init prepares a Sequence embedded in another task type
func (s *Sequence[T]) Init(self Task, opts ...Option) {
	s.initGroup(self, s.run, opts)
}

func (s *Sequence[T]) run(ctx context.Context) {
	for _, c := range s.Children() {
		if ctx.Err() != nil {
			break
		}
		s.startChild(c)
		<-c.Done()
	}
	s.waitChildren()
}
