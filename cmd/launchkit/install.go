package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/launchkit/launchkit/internal/install"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// installProgress sums the byte counters of the install parts
type installProgress struct {
	parts []byteProgress
}

func (p installProgress) DownloadedBytes() int64 {
	var n int64
	for _, part := range p.parts {
		n += part.DownloadedBytes()
	}
	return n
}

func (p installProgress) Size() int64 {
	var n int64
	for _, part := range p.parts {
		n += part.Size()
	}
	return n
}

// loadVersion reads a version manifest from a file or an http(s) url
func (a *app) loadVersion(ctx context.Context, source string) (*install.Version, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return install.FetchVersion(ctx, a.env, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read version manifest: %w", err)
	}
	return install.ParseVersion(data)
}

// runInstall completes the libraries and assets of a version manifest
func (a *app) runInstall(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	assetsDir := fs.String("assets", "assets", "Assets directory, relative to the download root")
	librariesDir := fs.String("libraries", "libraries", "Libraries directory, relative to the download root")
	resourceBase := fs.String("resources", install.DefaultResourceBase, "Asset object server")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one version manifest")
	}

	version, err := a.loadVersion(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	budget := a.cfg.Download.ThreadBudget
	root := task.NewAsync[task.Task](task.WithName("install"), task.WithLogger(a.logger))

	libraries, err := install.NewLibraryCompletion(a.env, version.Libraries, a.fs.Resolve(*librariesDir), budget)
	if err != nil {
		return err
	}
	if err := root.Add(libraries); err != nil {
		return err
	}
	progress := installProgress{parts: []byteProgress{libraries}}

	var assets *install.AssetsCompletion
	if version.AssetIndex.ID != "" {
		assets, err = install.NewAssetsCompletion(a.env, version.AssetIndex, a.fs.Resolve(*assetsDir),
			*resourceBase, a.cfg.Download.Threads, budget)
		if err != nil {
			return err
		}
		if err := root.Add(assets); err != nil {
			return err
		}
		progress.parts = append(progress.parts, assets)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	if err := root.OnException(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}); err != nil {
		return err
	}

	started := time.Now()
	if err := root.Start(); err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			if err := root.Cancel(); err != nil {
				a.logger.Debug("install cancel skipped", zap.Error(err))
			}
		case <-root.Done():
		}
	}()

	showProgress(ctx, root.Done(), "install", func() byteProgress { return progress })
	<-root.Done()

	status := root.Status().String()
	files, total := libraries.DownloadedFiles(), libraries.TotalFiles()
	if assets != nil {
		files += assets.DownloadedFiles()
		total += assets.TotalFiles()
	}
	printSummary(status, files, total, progress.DownloadedBytes(), time.Since(started))

	mu.Lock()
	defer mu.Unlock()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
