// Package fetcher runs download jobs: it builds the task tree of a job,
// persists per-file history, dispatches events and retries transient
// failures.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/domain/event"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/port"
	"go.uber.org/zap"
)

// Config contains fetcher configuration
type Config struct {
	// Threads is the range thread count of a single-file job
	Threads int
	// ThreadBudget is the lane count of a multi-file job
	ThreadBudget int
	// FailFast cancels the whole tree on the first file failure
	FailFast bool
	// MaxRetries is the number of extra attempts for retryable failures
	MaxRetries          int
	RetryBaseDelay      time.Duration
	MaxRetryWait        time.Duration
	ProgressLogInterval time.Duration
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		Threads:             8,
		ThreadBudget:        download.DefaultThreadBudget,
		MaxRetries:          3,
		RetryBaseDelay:      time.Second,
		MaxRetryWait:        30 * time.Second,
		ProgressLogInterval: 5 * time.Second,
	}
}

// Service runs download jobs
type Service struct {
	cfg      *Config
	env      download.Env
	records  port.DownloadRecordRepository
	events   event.EventDispatcher
	registry *Registry
	logger   *zap.Logger
}

// New creates a new Service. records and events may be nil. env.FS is
// required; env.Space, when set, is consulted before a job starts and after
// every file is sized.
func New(cfg *Config, env download.Env, records port.DownloadRecordRepository, events event.EventDispatcher, logger *zap.Logger) (*Service, error) {
	if env.FS == nil {
		return nil, domain.ErrNoFileSystem
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 8
	}
	if cfg.ThreadBudget <= 0 {
		cfg.ThreadBudget = download.DefaultThreadBudget
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = 30 * time.Second
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:      cfg,
		env:      env,
		records:  records,
		events:   events,
		registry: NewRegistry(DefaultKeepFinished),
		logger:   logger,
	}, nil
}

// Registry returns the registry of submitted jobs
func (s *Service) Registry() *Registry {
	return s.registry
}

// Submit validates job, starts its tree and returns without waiting.
// Canceling ctx cancels the job.
func (s *Service) Submit(ctx context.Context, job *domain.Job) (*Handle, error) {
	if job == nil {
		return nil, domain.ErrEmptyJob
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Name == "" {
		job.Name = "job-" + strings.SplitN(job.ID, "-", 2)[0]
	}
	if _, exists := s.registry.Get(job.ID); exists {
		return nil, fmt.Errorf("job %s already submitted: %w", job.ID, domain.ErrInvalidInput)
	}

	if s.env.Space != nil && len(job.Files) > 0 {
		res, err := s.env.Space.CheckSpace(0)
		if err != nil {
			return nil, fmt.Errorf("space check failed: %w", err)
		}
		if !res.HasSpace {
			return nil, fmt.Errorf("%w: %d bytes free, %d reserved",
				domain.ErrInsufficientSpace, res.FreeBytes, res.MinFreeBytes)
		}
	}

	h, err := newHandle(s, job)
	if err != nil {
		return nil, err
	}
	if err := s.launch(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// launch starts the job tree and registers h once it is running
func (s *Service) launch(ctx context.Context, h *Handle) error {
	if err := h.root.Start(); err != nil {
		return fmt.Errorf("job %s: %w", h.ID(), err)
	}
	s.registry.Add(h)

	h.logger.Info("job submitted",
		zap.Int("files", len(h.job.Files)),
		zap.Int("commands", len(h.job.Commands)))
	go h.supervise(ctx)
	return nil
}

// Run submits job and waits for its result. The error is non-nil when the
// job did not finish.
func (s *Service) Run(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	h, err := s.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	<-h.Done()
	result := h.Result()

	switch result.Status {
	case JobStatusFinished:
		return result, nil
	case JobStatusCanceled:
		if err := ctx.Err(); err != nil {
			return result, err
		}
		return result, domain.ErrCanceled
	default:
		return result, fmt.Errorf("job %s failed: %w", job.Name, h.Err())
	}
}

// Cancel cancels a submitted job
func (s *Service) Cancel(id string) error {
	h, ok := s.registry.Get(id)
	if !ok {
		return domain.ErrJobNotFound
	}
	return h.Cancel()
}
