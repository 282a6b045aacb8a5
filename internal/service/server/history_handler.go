package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type recordView struct {
	ID              int64      `json:"id"`
	JobID           string     `json:"job_id"`
	TaskID          string     `json:"task_id"`
	URL             string     `json:"url"`
	Path            string     `json:"path"`
	Status          string     `json:"status"`
	Size            int64      `json:"size"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	Threads         int        `json:"threads"`
	Attempt         int        `json:"attempt"`
	LastError       string     `json:"last_error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func newRecordView(r *domain.DownloadRecord) recordView {
	return recordView{
		ID:              r.ID,
		JobID:           r.JobID,
		TaskID:          r.TaskID,
		URL:             r.URL,
		Path:            r.Path,
		Status:          r.Status,
		Size:            r.Size,
		BytesDownloaded: r.BytesDownloaded,
		Threads:         r.Threads,
		Attempt:         r.Attempt,
		LastError:       r.LastError,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

// handleHistory lists persisted download records: /api/history?job=<id>&limit=<n>
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidInput)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.store.ListRecords(r.URL.Query().Get("job"), limit)
	if err != nil {
		s.logger.Error("failed to list download records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]recordView, len(records))
	for i, rec := range records {
		views[i] = newRecordView(rec)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleMetrics returns event counters and history statistics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"running_jobs": s.jobs.Registry().Running(),
	}
	if s.metrics != nil {
		response["events"] = s.metrics.GetMetrics()
	}
	if s.store != nil {
		stats, err := s.store.GetHistoryStats()
		if err != nil {
			s.logger.Error("failed to get history stats", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		response["history"] = map[string]any{
			"total_records":    stats.TotalRecords,
			"finished":         stats.FinishedCount,
			"incomplete":       stats.IncompleteCount,
			"failed":           stats.FailedCount,
			"canceled":         stats.CanceledCount,
			"bytes_downloaded": stats.BytesDownloaded,
		}
	}
	writeJSON(w, http.StatusOK, response)
}
