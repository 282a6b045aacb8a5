package main

import (
	"context"
	"errors"
	"time"

	"github.com/launchkit/launchkit/internal/service/maintenance"
	"github.com/launchkit/launchkit/internal/service/server"
	"go.uber.org/zap"
)

// runServe runs the HTTP API and history maintenance until ctx ends
func (a *app) runServe(ctx context.Context) error {
	if !a.cfg.HTTP.Enabled {
		return errors.New("http is disabled in the configuration")
	}

	// Create maintenance service
	maintenanceCfg := &maintenance.Config{
		CleanupInterval: a.cfg.Maintenance.GetCleanupInterval(),
		RecordRetention: a.cfg.Maintenance.GetRecordRetention(),
	}
	maintenanceService := maintenance.New(maintenanceCfg, a.store, a.fs, a.logger)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:         a.cfg.HTTP.BindAddr,
		AdminUsername:    a.cfg.HTTP.AdminUsername,
		AdminPassword:    a.cfg.HTTP.AdminPassword,
		ReadTimeout:      a.cfg.HTTP.GetReadTimeout(),
		WriteTimeout:     a.cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:      a.cfg.HTTP.GetIdleTimeout(),
		ProgressInterval: 500 * time.Millisecond,
	}
	httpServer := server.New(serverCfg, a.fetcher, a.store, a.metrics, a.fs, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	// Start maintenance service
	go func() {
		if err := maintenanceService.Start(ctx); err != nil {
			a.logger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	a.logger.Info("launchkit started",
		zap.String("version", version),
		zap.String("http_addr", a.cfg.HTTP.BindAddr),
		zap.String("root_dir", a.fs.RootDir()))

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, stopping services...")
	case serveErr = <-errCh:
		a.logger.Error("HTTP server failed", zap.Error(serveErr))
	}

	maintenanceService.Stop()

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	// Jobs submitted over HTTP were canceled by Stop
	for _, s := range a.fetcher.Registry().List() {
		if h, ok := a.fetcher.Registry().Get(s.ID); ok {
			if _, err := h.Wait(shutdownCtx); err != nil {
				a.logger.Warn("job did not stop in time", zap.String("job_id", s.ID))
			}
		}
	}

	a.logger.Info("launchkit stopped")
	return serveErr
}
