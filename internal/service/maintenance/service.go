package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/launchkit/launchkit/internal/port"
	"go.uber.org/zap"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// RecordRetention is how long closed download records are kept
	RecordRetention time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		RecordRetention: 30 * 24 * time.Hour,
	}
}

// DirCleaner removes empty directories left behind by canceled downloads
type DirCleaner interface {
	CleanEmptyDirs() error
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	records port.DownloadRecordRepository
	dirs    DirCleaner
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. dirs may be nil.
func New(cfg *Config, records port.DownloadRecordRepository, dirs DirCleaner, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.RecordRetention == 0 {
		cfg.RecordRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		records: records,
		dirs:    dirs,
		logger:  logger,
		now:     time.Now,
	}
}

// Start closes records left running by a previous process, then runs cleanup
// every CleanupInterval until ctx is canceled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("record_retention", s.config.RecordRetention))

	s.markInterrupted()

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce runs one cleanup pass
func (s *Service) RunOnce() {
	s.cleanupRecords()
	s.cleanupDirs()
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.RunOnce()
		}
	}
}

// markInterrupted closes records of downloads that were running when the
// previous process exited
func (s *Service) markInterrupted() {
	closed, err := s.records.MarkInterrupted()
	if err != nil {
		s.logger.Error("failed to close interrupted records", zap.Error(err))
	} else if closed > 0 {
		s.logger.Info("closed interrupted download records", zap.Int("count", closed))
	}
}

// cleanupRecords removes closed records older than the retention
func (s *Service) cleanupRecords() {
	cutoff := s.now().Add(-s.config.RecordRetention)
	deleted, err := s.records.DeleteClosedBefore(cutoff)
	if err != nil {
		s.logger.Error("failed to cleanup download records", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("cleaned up old download records",
			zap.Int("count", deleted),
			zap.Time("cutoff", cutoff))
	}
}

// cleanupDirs removes empty directories from the download root
func (s *Service) cleanupDirs() {
	if s.dirs == nil {
		return
	}
	if err := s.dirs.CleanEmptyDirs(); err != nil {
		s.logger.Error("failed to cleanup empty directories", zap.Error(err))
	}
}
