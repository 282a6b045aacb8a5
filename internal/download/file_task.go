package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// FileDownloadTask downloads one file with parallel range requests.
//
// It is a sequence of phases: sizing discovers the content length and assigns
// ranges, then all threads run concurrently against one output file. A
// server that sends no Content-Length gets a single streamed request instead
// of the threads. A failed sizing request cancels the task. On cancel the
// partial file is removed; on finish the file is closed and left in place.
type FileDownloadTask struct {
	task.Sequence[task.Task]

	env         Env
	path        string
	threadCount int

	mu  sync.Mutex
	url string

	size    atomic.Int64
	out     *output
	sizing  *task.FuncTask[int64]
	threads *task.Async[*DownloadThread]
	stream  *SimpleFileDownloadTask
}

var _ Tracker = (*FileDownloadTask)(nil)

// NewFileDownloadTask creates a download of url into path using threads range
// requests. A threads value <= 0 selects DefaultThreads. url may be empty and
// set later with SetURL.
func NewFileDownloadTask(env Env, url, path string, threads int, opts ...task.Option) (*FileDownloadTask, error) {
	env = env.normalize()
	if err := env.requireFS(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("destination path is required: %w", domain.ErrInvalidInput)
	}
	if threads <= 0 {
		threads = DefaultThreads
	}

	resolved := env.FS.Resolve(path)
	streamEnv := env
	env.Logger = env.Logger.With(zap.String("path", resolved))

	t := &FileDownloadTask{
		env:         env,
		path:        resolved,
		threadCount: threads,
		url:         url,
		out:         newOutput(env.FS, resolved),
	}
	opts = append([]task.Option{task.WithLogger(env.Logger)}, opts...)
	t.Sequence.Init(t, append(opts, task.WithEscalation())...)

	t.sizing = task.NewFuncTask(t.prepare, task.WithName("sizing"), task.WithLogger(env.Logger))
	t.threads = task.NewAsync[*DownloadThread](task.WithName("threads"), task.WithLogger(env.Logger))
	for i := 0; i < threads; i++ {
		th := newDownloadThread(env, t.out, task.WithLogger(env.Logger))
		if err := t.threads.Add(th); err != nil {
			return nil, err
		}
	}
	stream, err := NewSimpleFileDownloadTask(streamEnv, url, resolved, task.WithName("stream"))
	if err != nil {
		return nil, err
	}
	t.stream = stream
	if err := t.stream.OnFinish(func(task.Task) { t.size.Store(t.stream.DownloadedBytes()) }); err != nil {
		return nil, err
	}

	for _, phase := range []task.Task{t.sizing, t.threads, t.stream} {
		if err := t.Add(phase); err != nil {
			return nil, err
		}
	}

	if err := t.OnCancel(func(task.Task) { t.discard() }); err != nil {
		return nil, err
	}
	if err := t.OnFinish(func(task.Task) { t.complete() }); err != nil {
		return nil, err
	}
	return t, nil
}

// Start fails with domain.ErrEmptyURL when no url was set
func (t *FileDownloadTask) Start() error {
	if t.URL() == "" {
		return domain.ErrEmptyURL
	}
	return t.Sequence.Start()
}

// SetURL replaces the url before the task starts
func (t *FileDownloadTask) SetURL(url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.Status(); s != task.StatusInited {
		return fmt.Errorf("%w: cannot change the url of a %s download", domain.ErrInvalidState, s)
	}
	t.url = url
	return nil
}

// URL returns the download url
func (t *FileDownloadTask) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Path returns the resolved destination path
func (t *FileDownloadTask) Path() string { return t.path }

// ThreadCount returns the number of range threads
func (t *FileDownloadTask) ThreadCount() int { return t.threadCount }

// Threads returns the range threads
func (t *FileDownloadTask) Threads() []*DownloadThread {
	return t.threads.Children()
}

// Size returns the content length, 0 before sizing finished. A streamed
// download reports its length once the stream finished.
func (t *FileDownloadTask) Size() int64 {
	return t.size.Load()
}

// Streamed reports whether the file is fetched with one streamed request
// because the server sent no Content-Length
func (t *FileDownloadTask) Streamed() bool {
	return t.stream.Status() != task.StatusCanceled && t.threads.Status() == task.StatusCanceled
}

// DownloadedBytes returns the bytes written by all threads or the stream
func (t *FileDownloadTask) DownloadedBytes() int64 {
	n := t.stream.DownloadedBytes()
	for _, th := range t.threads.Children() {
		n += th.DownloadedBytes()
	}
	return n
}

// DownloadedFiles returns 1 once the task finished
func (t *FileDownloadTask) DownloadedFiles() int {
	if t.Status() == task.StatusFinished {
		return 1
	}
	return 0
}

// TotalFiles always returns 1
func (t *FileDownloadTask) TotalFiles() int { return 1 }

// Complete reports whether the task finished with every byte written
func (t *FileDownloadTask) Complete() bool {
	return t.Status() == task.StatusFinished && t.DownloadedBytes() == t.Size()
}

func (t *FileDownloadTask) prepare(ctx context.Context, report func(float64)) (int64, error) {
	url := t.URL()
	resp, err := t.env.get(ctx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", url, err)
	}
	size := resp.ContentLength
	resp.Body.Close()

	if size == 0 {
		return 0, fmt.Errorf("size of %s: %w", url, domain.ErrEmptyResource)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if size < 0 {
		if err := t.streamInstead(url); err != nil {
			return 0, err
		}
		report(1)
		return 0, nil
	}
	if err := t.env.reserve(size); err != nil {
		return 0, fmt.Errorf("size of %s: %w", url, err)
	}

	t.size.Store(size)
	if err := t.out.open(); err != nil {
		return 0, err
	}
	ranges := SplitRanges(size, t.threadCount)
	for i, th := range t.threads.Children() {
		if err := th.SetURL(url, ranges[i].Start, ranges[i].End); err != nil {
			return 0, err
		}
	}
	if err := skip(t.stream); err != nil {
		return 0, err
	}
	t.Logger().Debug("ranges assigned",
		zap.Int64("size", size),
		zap.Int("threads", t.threadCount))
	report(1)
	return size, nil
}

// streamInstead skips the range threads and lets the stream phase fetch url
// in one request
func (t *FileDownloadTask) streamInstead(url string) error {
	if err := t.env.reserve(0); err != nil {
		return fmt.Errorf("size of %s: %w", url, err)
	}
	if err := t.stream.setURL(url); err != nil {
		return err
	}
	if err := skip(t.threads); err != nil {
		return err
	}
	t.Logger().Debug("length unknown, streaming in one request")
	return nil
}

// skip cancels a phase that has not started and counts it as complete in the
// progress mean. It only fails when the task itself is being canceled.
func skip(phase task.Task) error {
	if err := phase.Cancel(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCanceled, err)
	}
	phase.ReportProgress(1)
	return nil
}

func (t *FileDownloadTask) discard() {
	if err := t.out.discard(); err != nil {
		t.Logger().Warn("failed to remove partial file", zap.Error(err))
		return
	}
	t.Logger().Debug("partial file removed")
}

func (t *FileDownloadTask) complete() {
	if err := t.out.close(); err != nil {
		t.Logger().Warn("failed to close output file", zap.Error(err))
	}
	if got, want := t.DownloadedBytes(), t.Size(); got != want {
		t.Logger().Warn("download incomplete",
			zap.Int64("downloaded", got),
			zap.Int64("size", want),
			zap.Error(domain.ErrIncomplete))
	}
}
