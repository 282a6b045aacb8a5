package download

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// DownloadThread fetches one byte range of a resource into a shared output.
//
// Failures are logged at warn level and never reported: the thread finishes
// with whatever it wrote, and the owning FileDownloadTask detects the
// shortfall.
type DownloadThread struct {
	task.Base

	env Env
	out *output

	mu  sync.Mutex
	url string
	rng ByteRange

	downloaded atomic.Int64
}

func newDownloadThread(env Env, out *output, opts ...task.Option) *DownloadThread {
	t := &DownloadThread{env: env, out: out, rng: ByteRange{Start: 0, End: -1}}
	t.Init(t, t.run, opts...)
	return t
}

// SetURL assigns the url and inclusive range. It is only allowed before the
// thread starts.
func (t *DownloadThread) SetURL(url string, start, end int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.Status(); s != task.StatusInited {
		return fmt.Errorf("%w: cannot reconfigure a %s thread", domain.ErrInvalidState, s)
	}
	t.url = url
	t.rng = ByteRange{Start: start, End: end}
	return nil
}

// URL returns the assigned url
func (t *DownloadThread) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Range returns the assigned byte range
func (t *DownloadThread) Range() ByteRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng
}

// DownloadedBytes returns the bytes written so far
func (t *DownloadThread) DownloadedBytes() int64 {
	return t.downloaded.Load()
}

// Size returns the length of the assigned range
func (t *DownloadThread) Size() int64 {
	return t.Range().Len()
}

func (t *DownloadThread) run(ctx context.Context) {
	t.mu.Lock()
	url, rng := t.url, t.rng
	t.mu.Unlock()

	// more threads than bytes
	if rng.Len() == 0 {
		return
	}

	written, err := t.download(ctx, url, rng)
	if err == nil {
		return
	}
	if ctx.Err() != nil || domain.IsCancellation(err) {
		t.Logger().Debug("range download stopped", zap.Int64("written", written))
		return
	}
	t.Logger().Warn("range download failed",
		zap.String("url", url),
		zap.Int64("start", rng.Start),
		zap.Int64("end", rng.End),
		zap.Int64("written", written),
		zap.Error(err))
}

func (t *DownloadThread) download(ctx context.Context, url string, rng ByteRange) (int64, error) {
	if url == "" {
		return 0, domain.ErrEmptyURL
	}
	resp, err := t.env.get(ctx, url, &rng)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	size := rng.Len()
	// a server ignoring Range is only usable when the range is the whole body
	if resp.StatusCode != http.StatusPartialContent &&
		!(rng.Start == 0 && resp.ContentLength == size) {
		return 0, fmt.Errorf("%w: range %s answered with %s",
			domain.ErrUnexpectedStatus, rng.Header(), resp.Status)
	}

	return t.env.copyBody(ctx, resp.Body, size, func(p []byte, off int64) error {
		if _, err := t.out.WriteAt(p, rng.Start+off); err != nil {
			return err
		}
		n := t.downloaded.Add(int64(len(p)))
		t.ReportProgress(float64(n) / float64(size))
		return nil
	})
}
