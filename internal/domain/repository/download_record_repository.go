package repository

import (
	"time"

	"github.com/launchkit/launchkit/internal/domain"
)

// DownloadRecordRepository persists the history of file download tasks
type DownloadRecordRepository interface {
	// CreateRecord inserts a record and sets its ID
	CreateRecord(record *domain.DownloadRecord) error

	// UpdateRecord updates a record's state
	UpdateRecord(record *domain.DownloadRecord) error

	// GetRecord retrieves a record by ID
	// Returns domain.ErrNotFound if it does not exist
	GetRecord(id int64) (*domain.DownloadRecord, error)

	// ListRecords returns the newest records first. An empty jobID lists all jobs.
	ListRecords(jobID string, limit int) ([]*domain.DownloadRecord, error)

	// MarkInterrupted closes records left running by a process that died
	MarkInterrupted() (int, error)

	// DeleteClosedBefore removes terminal records finished before t
	DeleteClosedBefore(t time.Time) (int, error)

	// GetHistoryStats returns aggregated record statistics
	GetHistoryStats() (*domain.HistoryStats, error)
}
