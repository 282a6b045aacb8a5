package download

import (
	"fmt"
	"sync"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// Lane runs its file downloads one after another
type Lane = task.Sequence[*FileDownloadTask]

// MultiFileDownloadTask downloads many files with bounded concurrency.
//
// Files are dealt round-robin into at most budget lanes. Lanes run
// concurrently and every file is fetched by a single range thread, so at most
// budget connections are open at a time. A failed file is reported to the
// task's exception subscribers and its lane moves on to the next file.
type MultiFileDownloadTask struct {
	task.Async[*Lane]

	env    Env
	budget int

	mu    sync.Mutex
	set   bool
	files []*FileDownloadTask
}

var _ Tracker = (*MultiFileDownloadTask)(nil)

// NewMultiFileDownloadTask creates a download of urls[i] into paths[i] for
// every i. A budget <= 0 selects DefaultThreadBudget. With no urls the file
// list can be provided later with Set.
func NewMultiFileDownloadTask(env Env, urls, paths []string, budget int, opts ...task.Option) (*MultiFileDownloadTask, error) {
	env = env.normalize()
	if err := env.requireFS(); err != nil {
		return nil, err
	}
	if len(urls) != len(paths) {
		return nil, fmt.Errorf("%d urls, %d paths: %w", len(urls), len(paths), domain.ErrLengthMismatch)
	}
	if budget <= 0 {
		budget = DefaultThreadBudget
	}

	m := &MultiFileDownloadTask{env: env, budget: budget}
	opts = append([]task.Option{task.WithLogger(env.Logger)}, opts...)
	m.Async.Init(m, opts...)

	if len(urls) > 0 {
		if err := m.Set(urls, paths); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Set provides the file list. It may be called once, before the task starts.
func (m *MultiFileDownloadTask) Set(urls, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.set {
		return fmt.Errorf("%w: file list already set", domain.ErrInvalidState)
	}
	if m.Status() != task.StatusInited {
		return domain.ErrAddAfterStart
	}
	if len(urls) != len(paths) {
		return fmt.Errorf("%d urls, %d paths: %w", len(urls), len(paths), domain.ErrLengthMismatch)
	}
	for i := range urls {
		if urls[i] == "" {
			return fmt.Errorf("file %d: %w", i, domain.ErrEmptyURL)
		}
		if paths[i] == "" {
			return fmt.Errorf("file %d: destination path is required: %w", i, domain.ErrInvalidInput)
		}
	}

	laneCount := m.budget
	if len(urls) < laneCount {
		laneCount = len(urls)
	}
	lanes := make([]*Lane, laneCount)
	for i := range lanes {
		lanes[i] = task.NewSequence[*FileDownloadTask](
			task.WithName(fmt.Sprintf("lane-%d", i)),
			task.WithLogger(m.env.Logger))
	}

	files := make([]*FileDownloadTask, 0, len(urls))
	for i := range urls {
		f, err := NewFileDownloadTask(m.env, urls[i], paths[i], 1)
		if err != nil {
			return err
		}
		if err := lanes[i%laneCount].Add(f); err != nil {
			return err
		}
		files = append(files, f)
	}
	for _, lane := range lanes {
		if err := m.Add(lane); err != nil {
			return err
		}
	}

	m.files = files
	m.set = true
	m.Logger().Debug("files assigned to lanes",
		zap.Int("files", len(files)),
		zap.Int("lanes", laneCount))
	return nil
}

// Lanes returns the lanes in order
func (m *MultiFileDownloadTask) Lanes() []*Lane {
	return m.Children()
}

// Files returns the file downloads in input order
func (m *MultiFileDownloadTask) Files() []*FileDownloadTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*FileDownloadTask, len(m.files))
	copy(out, m.files)
	return out
}

// DownloadedBytes sums the bytes written for every file
func (m *MultiFileDownloadTask) DownloadedBytes() int64 {
	var n int64
	for _, f := range m.Files() {
		n += f.DownloadedBytes()
	}
	return n
}

// Size sums the known file sizes. Files not sized yet count as 0.
func (m *MultiFileDownloadTask) Size() int64 {
	var n int64
	for _, f := range m.Files() {
		n += f.Size()
	}
	return n
}

// DownloadedFiles counts the finished files
func (m *MultiFileDownloadTask) DownloadedFiles() int {
	var n int
	for _, f := range m.Files() {
		n += f.DownloadedFiles()
	}
	return n
}

// TotalFiles returns the number of files
func (m *MultiFileDownloadTask) TotalFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
