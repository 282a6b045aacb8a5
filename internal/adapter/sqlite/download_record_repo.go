package sqlite

import (
	"database/sql"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
)

const recordColumns = `id, task_id, job_id, url, path, status, size, bytes_downloaded,
	threads, attempt, last_error, started_at, finished_at, updated_at`

// CreateRecord inserts a download record
func (s *Store) CreateRecord(record *domain.DownloadRecord) error {
	query := `
		INSERT INTO download_records (
			task_id, job_id, url, path, status, size, bytes_downloaded,
			threads, attempt, last_error, started_at, finished_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		record.TaskID, record.JobID, record.URL, record.Path, record.Status,
		record.Size, record.BytesDownloaded, record.Threads, record.Attempt,
		nullString(record.LastError), record.StartedAt.UTC(), utcPtr(record.FinishedAt), record.UpdatedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = id
	return nil
}

// UpdateRecord updates a record's state
func (s *Store) UpdateRecord(record *domain.DownloadRecord) error {
	record.UpdatedAt = time.Now()
	query := `
		UPDATE download_records
		SET status = ?, size = ?, bytes_downloaded = ?, last_error = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		record.Status, record.Size, record.BytesDownloaded, nullString(record.LastError),
		utcPtr(record.FinishedAt), record.UpdatedAt.UTC(), record.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetRecord retrieves a record by ID
func (s *Store) GetRecord(id int64) (*domain.DownloadRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM download_records WHERE id = ?`
	return scanRecord(s.db.QueryRow(query, id))
}

// ListRecords returns the newest records first
func (s *Store) ListRecords(jobID string, limit int) ([]*domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if jobID == "" {
		rows, err = s.db.Query(`SELECT `+recordColumns+`
			FROM download_records ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+recordColumns+`
			FROM download_records WHERE job_id = ? ORDER BY id DESC LIMIT ?`, jobID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkInterrupted closes records left running by a previous process
func (s *Store) MarkInterrupted() (int, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE download_records
		SET status = ?, finished_at = ?, updated_at = ?
		WHERE status = ?
	`, domain.RecordStatusInterrupted, now, now, domain.RecordStatusRunning)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// DeleteClosedBefore removes terminal records finished before t
func (s *Store) DeleteClosedBefore(t time.Time) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM download_records
		WHERE status != ? AND finished_at IS NOT NULL AND finished_at < ?
	`, domain.RecordStatusRunning, t.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// GetHistoryStats returns aggregated record statistics
func (s *Store) GetHistoryStats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM download_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.TotalRecords += count
		switch status {
		case domain.RecordStatusFinished:
			stats.FinishedCount = count
		case domain.RecordStatusFailed:
			stats.FailedCount = count
		case domain.RecordStatusCanceled, domain.RecordStatusInterrupted:
			stats.CanceledCount += count
		case domain.RecordStatusIncomplete:
			stats.IncompleteCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(bytes_downloaded) FROM download_records`).Scan(&total); err != nil {
		return nil, err
	}
	stats.BytesDownloaded = total.Int64
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.DownloadRecord, error) {
	record := &domain.DownloadRecord{}
	var lastError sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&record.ID, &record.TaskID, &record.JobID, &record.URL, &record.Path,
		&record.Status, &record.Size, &record.BytesDownloaded,
		&record.Threads, &record.Attempt, &lastError,
		&record.StartedAt, &finishedAt, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		record.LastError = lastError.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		record.FinishedAt = &t
	}
	return record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// times are stored in UTC so text comparison orders them
func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
