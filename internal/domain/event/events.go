package event

import (
	"time"
)

// Event names
const (
	NameDownloadStarted  = "download.started"
	NameDownloadFinished = "download.finished"
	NameDownloadCanceled = "download.canceled"
	NameDownloadFailed   = "download.failed"
	NameJobCompleted     = "job.completed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// DownloadStarted is raised when a file download task starts
type DownloadStarted struct {
	BaseEvent
	JobID   string
	TaskID  string
	URL     string
	Path    string
	Threads int
	Attempt int
}

// EventName returns the event name
func (e DownloadStarted) EventName() string {
	return NameDownloadStarted
}

// NewDownloadStarted creates a new DownloadStarted event
func NewDownloadStarted(jobID, taskID, url, path string, threads, attempt int) DownloadStarted {
	return DownloadStarted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		JobID:     jobID,
		TaskID:    taskID,
		URL:       url,
		Path:      path,
		Threads:   threads,
		Attempt:   attempt,
	}
}

// DownloadFinished is raised when every byte of a file was written
type DownloadFinished struct {
	BaseEvent
	JobID    string
	TaskID   string
	Path     string
	Size     int64
	Duration time.Duration
}

// EventName returns the event name
func (e DownloadFinished) EventName() string {
	return NameDownloadFinished
}

// NewDownloadFinished creates a new DownloadFinished event
func NewDownloadFinished(jobID, taskID, path string, size int64, duration time.Duration) DownloadFinished {
	return DownloadFinished{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		JobID:     jobID,
		TaskID:    taskID,
		Path:      path,
		Size:      size,
		Duration:  duration,
	}
}

// DownloadCanceled is raised when a file download was canceled without a
// failure of its own
type DownloadCanceled struct {
	BaseEvent
	JobID      string
	TaskID     string
	Path       string
	Downloaded int64
}

// EventName returns the event name
func (e DownloadCanceled) EventName() string {
	return NameDownloadCanceled
}

// NewDownloadCanceled creates a new DownloadCanceled event
func NewDownloadCanceled(jobID, taskID, path string, downloaded int64) DownloadCanceled {
	return DownloadCanceled{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		JobID:      jobID,
		TaskID:     taskID,
		Path:       path,
		Downloaded: downloaded,
	}
}

// DownloadFailed is raised when a file download reported an exception
type DownloadFailed struct {
	BaseEvent
	JobID    string
	TaskID   string
	URL      string
	Path     string
	Error    string
	Attempt  int
	CanRetry bool
}

// EventName returns the event name
func (e DownloadFailed) EventName() string {
	return NameDownloadFailed
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(jobID, taskID, url, path, err string, attempt int, canRetry bool) DownloadFailed {
	return DownloadFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		JobID:     jobID,
		TaskID:    taskID,
		URL:       url,
		Path:      path,
		Error:     err,
		Attempt:   attempt,
		CanRetry:  canRetry,
	}
}

// JobCompleted is raised when a job tree is done, whatever its outcome
type JobCompleted struct {
	BaseEvent
	JobID           string
	Name            string
	Status          string
	FinishedFiles   int
	FailedFiles     int
	TotalFiles      int
	BytesDownloaded int64
	Duration        time.Duration
}

// EventName returns the event name
func (e JobCompleted) EventName() string {
	return NameJobCompleted
}

// NewJobCompleted creates a new JobCompleted event
func NewJobCompleted(jobID, name, status string, finished, failed, total int, bytes int64, duration time.Duration) JobCompleted {
	return JobCompleted{
		BaseEvent:       BaseEvent{Timestamp: time.Now()},
		JobID:           jobID,
		Name:            name,
		Status:          status,
		FinishedFiles:   finished,
		FailedFiles:     failed,
		TotalFiles:      total,
		BytesDownloaded: bytes,
		Duration:        duration,
	}
}
