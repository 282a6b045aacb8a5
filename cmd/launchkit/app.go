package main

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/launchkit/launchkit/internal/adapter/filesystem"
	"github.com/launchkit/launchkit/internal/adapter/sqlite"
	"github.com/launchkit/launchkit/internal/config"
	"github.com/launchkit/launchkit/internal/domain/event"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/logger"
	"github.com/launchkit/launchkit/internal/service/fetcher"
	"go.uber.org/zap"
)

// app holds the components shared by every command
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	fs      *filesystem.Manager
	store   *sqlite.Store
	env     download.Env
	metrics *event.MetricsHandler
	fetcher *fetcher.Service
}

func newApp(configPath string) (*app, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.Get()
	zapLogger.Debug("configuration loaded",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.String("root_dir", cfg.Download.RootDir))

	// Initialize filesystem manager
	fsManager, err := filesystem.NewManager(cfg.Download.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	// Open database
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(fsManager.RootDir(), ".launchkit", "history.db")
	}
	store, err := sqlite.Open(dbPath, cfg.Database.BusyTimeoutMs)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	env := download.Env{
		Client:     &http.Client{Timeout: cfg.Download.GetTimeout()},
		FS:         fsManager,
		Limiter:    download.NewBandwidthLimiter(cfg.Download.GetBandwidthLimit(), cfg.Download.GetBufferSize()),
		Space:      fetcher.NewSpaceManager(fsManager, cfg.Download.GetMinFreeSpace()),
		Logger:     zapLogger,
		UserAgent:  cfg.Download.UserAgent,
		BufferSize: cfg.Download.GetBufferSize(),
	}

	// Events feed the log and the counters of /api/metrics
	metrics := event.NewMetricsHandler()
	dispatcher := event.NewInMemoryDispatcher(false, zapLogger)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	dispatcher.Subscribe(metrics)

	fetcherCfg := &fetcher.Config{
		Threads:             cfg.Download.Threads,
		ThreadBudget:        cfg.Download.ThreadBudget,
		FailFast:            cfg.Download.FailFast,
		MaxRetries:          cfg.Download.MaxRetries,
		ProgressLogInterval: cfg.Download.GetProgressLogInterval(),
	}
	svc, err := fetcher.New(fetcherCfg, env, store, dispatcher, zapLogger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  zapLogger,
		fs:      fsManager,
		store:   store,
		env:     env,
		metrics: metrics,
		fetcher: svc,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = logger.Sync()
}
