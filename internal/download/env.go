// Package download implements HTTP download tasks on top of package task:
// ranged multi-threaded single-file downloads, lane-scheduled multi-file
// downloads and simple whole-body or in-memory chunk variants.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/port"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultThreads is the range thread count of a FileDownloadTask
	DefaultThreads = 64
	// DefaultThreadBudget is the lane count of a MultiFileDownloadTask
	DefaultThreadBudget = 8
	// DefaultBufferSize is the read size of the download loops
	DefaultBufferSize = 8 << 10
	// DefaultChunkSize is the range length of a ChunkDownloadTask without an end
	DefaultChunkSize = 1 << 20
	// DefaultUserAgent is sent when Env.UserAgent is empty
	DefaultUserAgent = "launchkit/1.0"
)

// Env holds the collaborators shared by every download task of a tree
type Env struct {
	Client port.HTTPClient
	FS     port.FileSystem

	// Limiter caps the total read bandwidth of all tasks sharing it. Nil means
	// unlimited.
	Limiter *rate.Limiter

	// Space, when set, is asked for room once a file's size is known
	Space port.SpaceManager

	Logger     *zap.Logger
	UserAgent  string
	BufferSize int
}

func (e Env) normalize() Env {
	if e.Client == nil {
		e.Client = http.DefaultClient
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.UserAgent == "" {
		e.UserAgent = DefaultUserAgent
	}
	if e.BufferSize <= 0 {
		e.BufferSize = DefaultBufferSize
	}
	return e
}

func (e Env) reserve(size int64) error {
	if e.Space == nil {
		return nil
	}
	res, err := e.Space.CheckSpace(size)
	if err != nil {
		return fmt.Errorf("space check failed: %w", err)
	}
	if !res.HasSpace {
		return fmt.Errorf("%w: need %d bytes, %d free, %d reserved",
			domain.ErrInsufficientSpace, res.RequiredBytes, res.FreeBytes, res.MinFreeBytes)
	}
	return nil
}

func (e Env) requireFS() error {
	if e.FS == nil {
		return domain.ErrNoFileSystem
	}
	return nil
}

// NewBandwidthLimiter returns a limiter for bytesPerSecond, or nil when the
// limit is not positive.
func NewBandwidthLimiter(bytesPerSecond int64, bufferSize int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if burst < bufferSize {
		burst = bufferSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// get issues a GET and returns once the response headers are read. Non-2xx
// responses are returned as errors; 5xx and 429 are retryable.
func (e Env) get(ctx context.Context, url string, rng *ByteRange) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.UserAgent)
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	err := fmt.Errorf("%w: %s", domain.ErrUnexpectedStatus, resp.Status)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return domain.NewRetryableError(err, retryAfter)
	}
	return err
}

func (e Env) throttle(ctx context.Context, n int) error {
	if e.Limiter == nil {
		return nil
	}
	burst := e.Limiter.Burst()
	if burst <= 0 {
		return nil
	}
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := e.Limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// copyBody streams body in BufferSize reads, calling write with each chunk and
// its offset relative to the start of the body. A negative limit reads to EOF.
// Cancellation is checked before every read.
func (e Env) copyBody(ctx context.Context, body io.Reader, limit int64, write func(p []byte, off int64) error) (int64, error) {
	buf := make([]byte, e.BufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			p := buf[:n]
			if limit >= 0 && written+int64(n) > limit {
				p = p[:limit-written]
			}
			if err := e.throttle(ctx, len(p)); err != nil {
				return written, err
			}
			if err := write(p, written); err != nil {
				return written, err
			}
			written += int64(len(p))
			if limit >= 0 && written >= limit {
				return written, nil
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Tracker is implemented by download tasks that count bytes and files
type Tracker interface {
	DownloadedBytes() int64
	Size() int64
	DownloadedFiles() int
	TotalFiles() int
}
