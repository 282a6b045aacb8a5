package domain

import "time"

// Record status constants
const (
	RecordStatusRunning     = "running"
	RecordStatusFinished    = "finished"
	RecordStatusIncomplete  = "incomplete"
	RecordStatusCanceled    = "canceled"
	RecordStatusFailed      = "failed"
	RecordStatusInterrupted = "interrupted"
)

// DownloadRecord is the persisted history of one file download task.
type DownloadRecord struct {
	ID     int64
	TaskID string
	JobID  string
	URL    string
	Path   string

	// State
	Status          string
	Size            int64
	BytesDownloaded int64
	Threads         int
	Attempt         int
	LastError       string

	// Timestamps
	StartedAt  time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

// NewDownloadRecord creates a running record for a file task
func NewDownloadRecord(jobID, taskID, url, path string, threads, attempt int) *DownloadRecord {
	now := time.Now()
	return &DownloadRecord{
		TaskID:    taskID,
		JobID:     jobID,
		URL:       url,
		Path:      path,
		Status:    RecordStatusRunning,
		Threads:   threads,
		Attempt:   attempt,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// MarkFinished closes the record. A finished task that wrote fewer bytes than
// the discovered size is recorded as incomplete.
func (r *DownloadRecord) MarkFinished(downloaded, size int64) {
	r.BytesDownloaded = downloaded
	r.Size = size
	if size > 0 && downloaded < size {
		r.Status = RecordStatusIncomplete
		r.LastError = ErrIncomplete.Error()
	} else {
		r.Status = RecordStatusFinished
	}
	r.close()
}

// MarkCanceled closes the record as canceled
func (r *DownloadRecord) MarkCanceled(downloaded int64) {
	r.BytesDownloaded = downloaded
	if r.Status == RecordStatusRunning {
		r.Status = RecordStatusCanceled
	}
	r.close()
}

// MarkFailed records a failure. The record stays failed even if the task is
// canceled afterwards.
func (r *DownloadRecord) MarkFailed(err string) {
	r.Status = RecordStatusFailed
	r.LastError = err
	r.close()
}

// IsTerminal returns true once the record no longer tracks a running task
func (r *DownloadRecord) IsTerminal() bool {
	return r.Status != RecordStatusRunning
}

func (r *DownloadRecord) close() {
	now := time.Now()
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// HistoryStats summarizes persisted download records
type HistoryStats struct {
	TotalRecords    int
	FinishedCount   int
	FailedCount     int
	CanceledCount   int
	IncompleteCount int
	BytesDownloaded int64
}
