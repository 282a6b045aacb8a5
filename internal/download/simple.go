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

// SimpleFileDownloadTask streams a whole response body into a file with one
// request. It suits resources without a known length; progress is reported
// only when the server sends Content-Length. A failure or cancellation removes
// the partial file.
type SimpleFileDownloadTask struct {
	task.FuncTask[int64]

	env        Env
	path       string
	mu         sync.Mutex
	url        string
	out        *output
	downloaded atomic.Int64
}

var _ Tracker = (*SimpleFileDownloadTask)(nil)

// NewSimpleFileDownloadTask creates a download of url into path
func NewSimpleFileDownloadTask(env Env, url, path string, opts ...task.Option) (*SimpleFileDownloadTask, error) {
	env = env.normalize()
	if err := env.requireFS(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("destination path is required: %w", domain.ErrInvalidInput)
	}

	resolved := env.FS.Resolve(path)
	env.Logger = env.Logger.With(zap.String("path", resolved))
	t := &SimpleFileDownloadTask{
		env:  env,
		url:  url,
		path: resolved,
		out:  newOutput(env.FS, resolved),
	}
	opts = append([]task.Option{task.WithLogger(env.Logger)}, opts...)
	t.FuncTask.Init(t, t.fetch, opts...)

	if err := t.OnCancel(func(task.Task) {
		if err := t.out.discard(); err != nil {
			t.Logger().Warn("failed to remove partial file", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	if err := t.OnFinish(func(task.Task) {
		if err := t.out.close(); err != nil {
			t.Logger().Warn("failed to close output file", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Start fails with domain.ErrEmptyURL when the url is empty
func (t *SimpleFileDownloadTask) Start() error {
	if t.URL() == "" {
		return domain.ErrEmptyURL
	}
	return t.FuncTask.Start()
}

// URL returns the download url
func (t *SimpleFileDownloadTask) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *SimpleFileDownloadTask) setURL(url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.Status(); s != task.StatusInited {
		return fmt.Errorf("%w: cannot change the url of a %s download", domain.ErrInvalidState, s)
	}
	t.url = url
	return nil
}

// Path returns the resolved destination path
func (t *SimpleFileDownloadTask) Path() string { return t.path }

// DownloadedBytes returns the bytes written so far
func (t *SimpleFileDownloadTask) DownloadedBytes() int64 { return t.downloaded.Load() }

// Size is unknown up front and always 0
func (t *SimpleFileDownloadTask) Size() int64 { return 0 }

// DownloadedFiles returns 1 once the task finished
func (t *SimpleFileDownloadTask) DownloadedFiles() int {
	if t.Status() == task.StatusFinished {
		return 1
	}
	return 0
}

// TotalFiles always returns 1
func (t *SimpleFileDownloadTask) TotalFiles() int { return 1 }

func (t *SimpleFileDownloadTask) fetch(ctx context.Context, report func(float64)) (int64, error) {
	url := t.URL()
	resp, err := t.env.get(ctx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := t.out.open(); err != nil {
		return 0, err
	}
	length := resp.ContentLength
	n, err := t.env.copyBody(ctx, resp.Body, -1, func(p []byte, off int64) error {
		if _, err := t.out.WriteAt(p, off); err != nil {
			return err
		}
		n := t.downloaded.Add(int64(len(p)))
		if length > 0 {
			report(float64(n) / float64(length))
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}
