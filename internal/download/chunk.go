package download

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// ChunkDownloadTask fetches a single byte range into memory. Like
// DownloadThread, a failed transfer is logged and the task finishes with the
// bytes received so far; Failure returns what went wrong.
type ChunkDownloadTask struct {
	task.FuncTask[[]byte]

	env        Env
	url        string
	rng        ByteRange
	downloaded atomic.Int64

	mu      sync.Mutex
	failure error
}

// NewChunkDownloadTask creates a fetch of [start, end] of url. A negative end
// selects a DefaultChunkSize range.
func NewChunkDownloadTask(env Env, url string, start, end int64, opts ...task.Option) (*ChunkDownloadTask, error) {
	env = env.normalize()
	if start < 0 {
		return nil, fmt.Errorf("negative range start: %w", domain.ErrInvalidInput)
	}
	if end < 0 {
		end = start + DefaultChunkSize - 1
	}
	if end < start {
		return nil, fmt.Errorf("range end %d before start %d: %w", end, start, domain.ErrInvalidInput)
	}

	t := &ChunkDownloadTask{env: env, url: url, rng: ByteRange{Start: start, End: end}}
	opts = append([]task.Option{task.WithLogger(env.Logger)}, opts...)
	t.FuncTask.Init(t, t.fetch, opts...)
	return t, nil
}

// Start fails with domain.ErrEmptyURL when the url is empty
func (t *ChunkDownloadTask) Start() error {
	if t.url == "" {
		return domain.ErrEmptyURL
	}
	return t.FuncTask.Start()
}

// Range returns the requested range
func (t *ChunkDownloadTask) Range() ByteRange { return t.rng }

// Size returns the length of the requested range
func (t *ChunkDownloadTask) Size() int64 { return t.rng.Len() }

// DownloadedBytes returns the bytes received so far
func (t *ChunkDownloadTask) DownloadedBytes() int64 { return t.downloaded.Load() }

// Failure returns the error that cut the transfer short, nil after a complete
// transfer or a cancellation
func (t *ChunkDownloadTask) Failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

func (t *ChunkDownloadTask) fetch(ctx context.Context, report func(float64)) ([]byte, error) {
	var buf bytes.Buffer
	err := t.receive(ctx, &buf, report)
	if err == nil {
		return buf.Bytes(), nil
	}
	if ctx.Err() != nil || domain.IsCancellation(err) {
		return buf.Bytes(), domain.ErrCanceled
	}
	t.mu.Lock()
	t.failure = err
	t.mu.Unlock()
	t.Logger().Warn("chunk download failed",
		zap.String("url", t.url),
		zap.Int64("start", t.rng.Start),
		zap.Int64("end", t.rng.End),
		zap.Int64("written", int64(buf.Len())),
		zap.Error(err))
	return buf.Bytes(), nil
}

func (t *ChunkDownloadTask) receive(ctx context.Context, buf *bytes.Buffer, report func(float64)) error {
	resp, err := t.env.get(ctx, t.url, &t.rng)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	limit := t.rng.Len()
	// without range support the body starts at offset 0
	if resp.StatusCode != http.StatusPartialContent && t.rng.Start != 0 {
		return fmt.Errorf("%w: range %s answered with %s",
			domain.ErrUnexpectedStatus, t.rng.Header(), resp.Status)
	}

	_, err = t.env.copyBody(ctx, resp.Body, limit, func(p []byte, _ int64) error {
		buf.Write(p)
		n := t.downloaded.Add(int64(len(p)))
		report(float64(n) / float64(limit))
		return nil
	})
	return err
}
