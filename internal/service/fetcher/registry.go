package fetcher

import (
	"sort"
	"sync"
	"time"
)

// DefaultKeepFinished is the number of completed jobs a Registry remembers
const DefaultKeepFinished = 50

// Snapshot is a point-in-time view of a job
type Snapshot struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	Size            int64     `json:"size"`
	DownloadedFiles int       `json:"downloaded_files"`
	TotalFiles      int       `json:"total_files"`
	StartedAt       time.Time `json:"started_at"`
	Elapsed         string    `json:"elapsed"`
	Errors          []string  `json:"errors,omitempty"`
}

// Snapshot returns the current state of the job
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	cur := h.current
	inCurrent := make(map[int]bool, len(h.currentFiles))
	for _, i := range h.currentFiles {
		inCurrent[i] = true
	}
	s := Snapshot{
		ID:         h.id,
		Name:       h.job.Name,
		Status:     JobStatusRunning,
		TotalFiles: len(h.job.Files),
		StartedAt:  h.startedAt,
	}
	for idx, o := range h.outcomes {
		if inCurrent[idx] || o.kind != outcomeFinished {
			continue
		}
		s.DownloadedBytes += o.bytes
		s.Size += o.size
		s.DownloadedFiles++
	}
	result := h.result
	h.mu.Unlock()

	if cur != nil {
		s.DownloadedBytes += cur.DownloadedBytes()
		s.Size += cur.Size()
		s.DownloadedFiles += cur.DownloadedFiles()
	}
	s.Progress = h.root.Progress()
	if result != nil {
		s.Status = result.Status
		s.Errors = result.Errors
		s.Elapsed = result.Duration.Round(time.Millisecond).String()
	} else {
		s.Elapsed = time.Since(h.startedAt).Round(time.Millisecond).String()
	}
	return s
}

// Registry tracks submitted jobs. Completed jobs are kept until more than
// keep of them accumulated, oldest first out.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Handle
	keep int
}

// NewRegistry creates a new Registry
func NewRegistry(keep int) *Registry {
	if keep <= 0 {
		keep = DefaultKeepFinished
	}
	return &Registry{
		jobs: make(map[string]*Handle),
		keep: keep,
	}
}

// Add registers a job
func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[h.ID()] = h
	r.pruneLocked()
}

// Get returns the job with id
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.jobs[id]
	return h, ok
}

// List returns snapshots of all known jobs, newest first
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.jobs))
	for _, h := range r.jobs {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].startedAt.After(handles[j].startedAt)
	})
	out := make([]Snapshot, len(handles))
	for i, h := range handles {
		out[i] = h.Snapshot()
	}
	return out
}

// Running returns the number of jobs without a result
func (r *Registry) Running() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, h := range r.jobs {
		if h.Result() == nil {
			n++
		}
	}
	return n
}

func (r *Registry) pruneLocked() {
	var finished []*Handle
	for _, h := range r.jobs {
		if h.Result() != nil {
			finished = append(finished, h)
		}
	}
	if len(finished) <= r.keep {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].startedAt.Before(finished[j].startedAt)
	})
	for _, h := range finished[:len(finished)-r.keep] {
		delete(r.jobs, h.ID())
	}
}
