package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/domain/event"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/task"
	"github.com/launchkit/launchkit/internal/util/ratelimiter"
	"go.uber.org/zap"
)

// Job status values reported by snapshots and results
const (
	JobStatusRunning  = "running"
	JobStatusFinished = "finished"
	JobStatusFailed   = "failed"
	JobStatusCanceled = "canceled"
)

// tree is the download task of one attempt
type tree interface {
	task.Task
	download.Tracker
}

// Handle is a submitted job. The task tree is a sequence of a download phase
// and the job's commands; a failure in either phase cancels the rest.
type Handle struct {
	svc       *Service
	job       *domain.Job
	id        string
	logger    *zap.Logger
	startedAt time.Time
	progress  *ratelimiter.Limiter

	root      *task.Sequence[task.Task]
	downloads *task.FuncTask[struct{}]
	commands  *task.Sequence[*task.CommandTask]

	mu           sync.Mutex
	current      tree
	currentFiles []int
	outcomes     map[int]outcome
	errs         []error
	userCanceled bool
	closed       bool
	bodies       sync.WaitGroup
	result       *domain.JobResult
	done         chan struct{}
}

func newHandle(svc *Service, job *domain.Job) (*Handle, error) {
	h := &Handle{
		svc:       svc,
		job:       job,
		id:        job.ID,
		logger:    svc.logger.With(zap.String("job_id", job.ID), zap.String("job", job.Name)),
		startedAt: time.Now(),
		progress:  ratelimiter.New(svc.cfg.ProgressLogInterval),
		outcomes:  make(map[int]outcome, len(job.Files)),
		done:      make(chan struct{}),
	}

	h.root = task.NewSequence[task.Task](
		task.WithID(job.ID),
		task.WithName(job.Name),
		task.WithLogger(svc.logger),
		task.WithEscalation())
	if err := h.root.OnException(h.addError); err != nil {
		return nil, err
	}

	if len(job.Files) > 0 {
		h.downloads = task.NewFuncTask(h.runDownloads, task.WithName("downloads"), task.WithLogger(h.logger))
		if err := h.root.Add(h.downloads); err != nil {
			return nil, err
		}
	}
	if len(job.Commands) > 0 {
		h.commands = task.NewSequence[*task.CommandTask](task.WithName("commands"), task.WithLogger(h.logger), task.WithEscalation())
		for _, c := range job.Commands {
			dir := svc.env.FS.RootDir()
			if c.Dir != "" {
				dir = svc.env.FS.Resolve(c.Dir)
			}
			cmd := task.NewCommandTask(c.Name, c.Args, dir, task.WithName(c.Name), task.WithLogger(h.logger))
			if err := h.commands.Add(cmd); err != nil {
				return nil, err
			}
		}
		if err := h.root.Add(h.commands); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ID returns the job id
func (h *Handle) ID() string { return h.id }

// Job returns the submitted job
func (h *Handle) Job() *domain.Job { return h.job }

// Root returns the root task of the job tree
func (h *Handle) Root() task.Task { return h.root }

// Done is closed once the job's result is available
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the job is done or ctx ends
func (h *Handle) Wait(ctx context.Context) (*domain.JobResult, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel cancels the job tree
func (h *Handle) Cancel() error {
	h.mu.Lock()
	h.userCanceled = true
	h.mu.Unlock()
	return h.root.Cancel()
}

// Result returns the job result, nil while the job runs
func (h *Handle) Result() *domain.JobResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Tracker returns the download task of the current attempt, nil before the
// downloads started.
func (h *Handle) Tracker() download.Tracker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	return h.current
}

// Err joins the failures reported by the job tree
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.errs...)
}

func (h *Handle) addError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

// enter registers a running download body. It fails once the job is
// being closed so no body outlives the result.
func (h *Handle) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.bodies.Add(1)
	return true
}

func (h *Handle) runDownloads(ctx context.Context, report func(float64)) (struct{}, error) {
	if !h.enter() {
		return struct{}{}, domain.ErrCanceled
	}
	defer h.bodies.Done()

	cfg := h.svc.cfg
	total := len(h.job.Files)
	pending := make([]int, total)
	for i := range pending {
		pending[i] = i
	}

	for attempt := 1; ; attempt++ {
		base := float64(total-len(pending)) / float64(total)
		scale := float64(len(pending)) / float64(total)
		results, err := h.runAttempt(ctx, pending, attempt, func(p float64) { report(base + p*scale) })
		if err != nil {
			return struct{}{}, err
		}

		var (
			retry    []int
			wait     time.Duration
			failures []error
			canceled int
		)
		h.mu.Lock()
		for _, r := range results {
			h.outcomes[r.index] = r
			switch r.kind {
			case outcomeFailed:
				if r.retryable && attempt <= cfg.MaxRetries && !cfg.FailFast {
					retry = append(retry, r.index)
					wait = max(wait, r.retryAfter)
					continue
				}
				failures = append(failures, fmt.Errorf("%s: %w", h.job.Files[r.index].URL, r.err))
			case outcomeCanceled:
				canceled++
			}
		}
		h.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		if len(retry) == 0 {
			if len(failures) > 0 {
				return struct{}{}, fmt.Errorf("%d of %d files failed: %w", len(failures), total, errors.Join(failures...))
			}
			if canceled > 0 {
				return struct{}{}, fmt.Errorf("%d of %d files were not downloaded: %w", canceled, total, domain.ErrIncomplete)
			}
			return struct{}{}, nil
		}

		if wait <= 0 {
			wait = time.Duration(attempt) * cfg.RetryBaseDelay
		}
		wait = min(wait, cfg.MaxRetryWait)
		h.logger.Info("retrying failed downloads",
			zap.Int("files", len(retry)),
			zap.Int("next_attempt", attempt+1),
			zap.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return struct{}{}, ctx.Err()
		case <-timer.C:
		}
		pending = retry
	}
}

// runAttempt downloads the files at indexes and returns their outcomes
func (h *Handle) runAttempt(ctx context.Context, indexes []int, attempt int, report func(float64)) ([]outcome, error) {
	t, files, err := h.buildTree(indexes, attempt)
	if err != nil {
		return nil, err
	}

	watches := make([]*fileWatch, len(files))
	for i, f := range files {
		if watches[i], err = h.watch(f, indexes[i], attempt); err != nil {
			return nil, err
		}
	}
	if err := t.OnReport(func(p float64) {
		report(p)
		h.progress.Do(func(int64) { h.logProgress() })
	}); err != nil {
		return nil, err
	}
	if h.svc.cfg.FailFast {
		if err := t.OnException(func(error) { _ = t.Cancel() }); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	h.current = t
	h.currentFiles = indexes
	h.mu.Unlock()

	if err := t.Start(); err != nil {
		return nil, err
	}
	select {
	case <-t.Done():
	case <-ctx.Done():
		_ = t.Cancel()
		<-t.Done()
	}

	results := make([]outcome, len(watches))
	for i, w := range watches {
		results[i] = w.outcome()
	}
	return results, nil
}

// buildTree creates a FileDownloadTask for a single file and a
// MultiFileDownloadTask otherwise.
func (h *Handle) buildTree(indexes []int, attempt int) (tree, []*download.FileDownloadTask, error) {
	cfg := h.svc.cfg
	env := h.svc.env
	env.Logger = h.logger
	name := fmt.Sprintf("attempt-%d", attempt)

	if len(indexes) == 1 && len(h.job.Files) == 1 {
		threads := h.job.Threads
		if threads <= 0 {
			threads = cfg.Threads
		}
		f := h.job.Files[indexes[0]]
		t, err := download.NewFileDownloadTask(env, f.URL, f.Path, threads, task.WithName(name))
		if err != nil {
			return nil, nil, err
		}
		return t, []*download.FileDownloadTask{t}, nil
	}

	budget := h.job.ThreadBudget
	if budget <= 0 {
		budget = cfg.ThreadBudget
	}
	urls := make([]string, len(indexes))
	paths := make([]string, len(indexes))
	for i, idx := range indexes {
		urls[i] = h.job.Files[idx].URL
		paths[i] = h.job.Files[idx].Path
	}
	t, err := download.NewMultiFileDownloadTask(env, urls, paths, budget, task.WithName(name))
	if err != nil {
		return nil, nil, err
	}
	return t, t.Files(), nil
}

func (h *Handle) logProgress() {
	s := h.Snapshot()
	h.logger.Info("job progress",
		zap.String("progress", fmt.Sprintf("%.1f%%", s.Progress*100)),
		zap.String("downloaded", humanize.IBytes(uint64(s.DownloadedBytes))),
		zap.String("size", humanize.IBytes(uint64(s.Size))),
		zap.Int("files_done", s.DownloadedFiles),
		zap.Int("files_total", s.TotalFiles))
}

// supervise waits for the tree, then settles the result
func (h *Handle) supervise(ctx context.Context) {
	select {
	case <-h.root.Done():
	case <-ctx.Done():
		if err := h.root.Cancel(); err != nil {
			h.logger.Debug("job cancel skipped", zap.Error(err))
		}
		<-h.root.Done()
	}

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.bodies.Wait()

	result := h.buildResult(ctx)
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()

	h.progress.Force(func(int64) { h.logProgress() })
	h.svc.events.Dispatch(event.NewJobCompleted(result.JobID, h.job.Name, result.Status,
		result.FinishedFiles, result.FailedFiles, result.TotalFiles, result.BytesDownloaded, result.Duration))
	close(h.done)
}

func (h *Handle) buildResult(ctx context.Context) *domain.JobResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := &domain.JobResult{
		JobID:      h.id,
		TotalFiles: len(h.job.Files),
		Duration:   time.Since(h.startedAt),
	}
	for _, o := range h.outcomes {
		result.BytesDownloaded += o.bytes
		result.Size += o.size
		switch o.kind {
		case outcomeFinished:
			result.FinishedFiles++
		case outcomeFailed:
			result.FailedFiles++
		}
	}
	result.CanceledFiles = result.TotalFiles - result.FinishedFiles - result.FailedFiles
	for _, err := range h.errs {
		result.Errors = append(result.Errors, err.Error())
	}

	switch {
	case h.root.Status() == task.StatusFinished:
		result.Status = JobStatusFinished
	case len(h.errs) == 0 || h.userCanceled || ctx.Err() != nil:
		result.Status = JobStatusCanceled
	default:
		result.Status = JobStatusFailed
	}
	return result
}
