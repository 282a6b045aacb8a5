package fetcher

import (
	"sync"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/domain/event"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

type outcomeKind int

const (
	outcomeCanceled outcomeKind = iota
	outcomeFinished
	outcomeFailed
)

// outcome is the settled state of one file download attempt
type outcome struct {
	index      int
	kind       outcomeKind
	err        error
	retryable  bool
	retryAfter time.Duration
	bytes      int64
	size       int64
}

// fileWatch follows one FileDownloadTask: it opens a history record when the
// task starts and closes it once the task is done.
type fileWatch struct {
	h       *Handle
	file    *download.FileDownloadTask
	index   int
	attempt int

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	err       error
	record    *domain.DownloadRecord
	settled   chan struct{}
	result    outcome
}

func (h *Handle) watch(file *download.FileDownloadTask, index, attempt int) (*fileWatch, error) {
	w := &fileWatch{
		h:       h,
		file:    file,
		index:   index,
		attempt: attempt,
		settled: make(chan struct{}),
	}
	if err := file.OnStart(w.onStart); err != nil {
		return nil, err
	}
	if err := file.OnException(w.onException); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *fileWatch) onStart(task.Task) {
	w.mu.Lock()
	w.started = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	h := w.h
	if h.svc.records != nil {
		record := domain.NewDownloadRecord(h.id, w.file.ID(), w.file.URL(), w.file.Path(), w.file.ThreadCount(), w.attempt)
		if err := h.svc.records.CreateRecord(record); err != nil {
			h.logger.Warn("failed to create download record",
				zap.String("path", w.file.Path()),
				zap.Error(err))
		} else {
			w.mu.Lock()
			w.record = record
			w.mu.Unlock()
		}
	}
	h.svc.events.Dispatch(event.NewDownloadStarted(h.id, w.file.ID(), w.file.URL(), w.file.Path(), w.file.ThreadCount(), w.attempt))

	go w.settle()
}

// onException keeps the first failure. Several threads of one file may fail.
func (w *fileWatch) onException(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *fileWatch) settle() {
	<-w.file.Done()
	defer close(w.settled)

	h := w.h
	w.mu.Lock()
	err := w.err
	record := w.record
	startedAt := w.startedAt
	w.mu.Unlock()

	res := outcome{
		index: w.index,
		bytes: w.file.DownloadedBytes(),
		size:  w.file.Size(),
	}
	switch {
	case err != nil:
		res.kind = outcomeFailed
	case w.file.Status() == task.StatusFinished && res.bytes == res.size:
		res.kind = outcomeFinished
	case w.file.Status() == task.StatusFinished:
		// the server closed a range early
		res.kind = outcomeFailed
		err = domain.NewRetryableError(domain.ErrIncomplete, 0)
	default:
		res.kind = outcomeCanceled
	}
	if res.kind == outcomeFailed {
		res.err = err
		res.retryable = domain.IsRetryable(err)
		res.retryAfter, _ = domain.GetRetryAfter(err)
	}
	w.result = res

	if record != nil {
		switch res.kind {
		case outcomeFinished:
			record.MarkFinished(res.bytes, res.size)
		case outcomeFailed:
			record.Size = res.size
			record.BytesDownloaded = res.bytes
			record.MarkFailed(err.Error())
		default:
			record.MarkCanceled(res.bytes)
		}
		if uerr := h.svc.records.UpdateRecord(record); uerr != nil {
			h.logger.Warn("failed to update download record",
				zap.Int64("record_id", record.ID),
				zap.Error(uerr))
		}
	}

	switch res.kind {
	case outcomeFinished:
		h.svc.events.Dispatch(event.NewDownloadFinished(h.id, w.file.ID(), w.file.Path(), res.size, time.Since(startedAt)))
	case outcomeFailed:
		h.svc.events.Dispatch(event.NewDownloadFailed(h.id, w.file.ID(), w.file.URL(), w.file.Path(), err.Error(), w.attempt, res.retryable))
	default:
		h.svc.events.Dispatch(event.NewDownloadCanceled(h.id, w.file.ID(), w.file.Path(), res.bytes))
	}
}

// outcome waits for a started file to settle. A file that never started was
// canceled with its lane.
func (w *fileWatch) outcome() outcome {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return outcome{index: w.index, kind: outcomeCanceled}
	}
	<-w.settled
	return w.result
}
