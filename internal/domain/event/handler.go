package event

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadStarted:
		h.logger.Debug("download started",
			zap.String("job_id", e.JobID),
			zap.String("task_id", e.TaskID),
			zap.String("url", e.URL),
			zap.String("path", e.Path),
			zap.Int("threads", e.Threads),
			zap.Int("attempt", e.Attempt),
		)
	case DownloadFinished:
		h.logger.Info("download finished",
			zap.String("job_id", e.JobID),
			zap.String("path", e.Path),
			zap.String("size", humanize.IBytes(uint64(e.Size))),
			zap.Duration("duration", e.Duration),
		)
	case DownloadCanceled:
		h.logger.Info("download canceled",
			zap.String("job_id", e.JobID),
			zap.String("path", e.Path),
			zap.Int64("downloaded", e.Downloaded),
		)
	case DownloadFailed:
		h.logger.Warn("download failed",
			zap.String("job_id", e.JobID),
			zap.String("url", e.URL),
			zap.String("path", e.Path),
			zap.String("error", e.Error),
			zap.Int("attempt", e.Attempt),
			zap.Bool("can_retry", e.CanRetry),
		)
	case JobCompleted:
		h.logger.Info("job completed",
			zap.String("job_id", e.JobID),
			zap.String("name", e.Name),
			zap.String("status", e.Status),
			zap.Int("finished_files", e.FinishedFiles),
			zap.Int("failed_files", e.FailedFiles),
			zap.Int("total_files", e.TotalFiles),
			zap.String("downloaded", humanize.IBytes(uint64(e.BytesDownloaded))),
			zap.Duration("duration", e.Duration),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// MetricsHandler collects metrics from events
type MetricsHandler struct {
	mu sync.Mutex

	downloadsStarted  int64
	downloadsFinished int64
	downloadsCanceled int64
	downloadsFailed   int64
	retryableFailures int64
	bytesDownloaded   int64
	jobsCompleted     int64
	jobsFailed        int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := event.(type) {
	case DownloadStarted:
		h.downloadsStarted++
	case DownloadFinished:
		h.downloadsFinished++
		h.bytesDownloaded += e.Size
	case DownloadCanceled:
		h.downloadsCanceled++
		h.bytesDownloaded += e.Downloaded
	case DownloadFailed:
		h.downloadsFailed++
		if e.CanRetry {
			h.retryableFailures++
		}
	case JobCompleted:
		h.jobsCompleted++
		if e.FailedFiles > 0 {
			h.jobsFailed++
		}
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameDownloadStarted,
		NameDownloadFinished,
		NameDownloadCanceled,
		NameDownloadFailed,
		NameJobCompleted,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]int64{
		"downloads_started":  h.downloadsStarted,
		"downloads_finished": h.downloadsFinished,
		"downloads_canceled": h.downloadsCanceled,
		"downloads_failed":   h.downloadsFailed,
		"retryable_failures": h.retryableFailures,
		"bytes_downloaded":   h.bytesDownloaded,
		"jobs_completed":     h.jobsCompleted,
		"jobs_failed":        h.jobsFailed,
	}
}
