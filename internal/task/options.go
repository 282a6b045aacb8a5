package task

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures a task at construction
type Option func(*options)

type options struct {
	id       string
	name     string
	logger   *zap.Logger
	escalate bool
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// WithName sets a human-readable task name used in logs and snapshots
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithID overrides the generated task id
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the task logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEscalation makes a group treat a child failure as its own failure:
// the group reports the exception, which cancels the whole group.
// Without it, a child failure only reaches the group's exception subscribers
// and the remaining children keep running.
func WithEscalation() Option {
	return func(o *options) { o.escalate = true }
}
