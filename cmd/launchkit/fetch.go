package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/manifest"
	"github.com/launchkit/launchkit/internal/service/fetcher"
)

// runFetch runs the job described by a manifest file
func (a *app) runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one manifest file")
	}

	job, err := manifest.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	return a.runJob(ctx, job)
}

// runGet downloads one url to path
func (a *app) runGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	threads := fs.Int("threads", a.cfg.Download.Threads, "Range threads for the download")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("expected <url> <path>")
	}

	path := fs.Arg(1)
	// jobs only accept paths relative to the download root
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(a.fs.RootDir(), path)
		if err != nil {
			return fmt.Errorf("path %s is outside the download root %s", path, a.fs.RootDir())
		}
		path = rel
	}

	job := &domain.Job{
		Name:    fs.Arg(1),
		Threads: *threads,
		Files:   []domain.FileSpec{{URL: fs.Arg(0), Path: path}},
	}
	return a.runJob(ctx, job)
}

func (a *app) runJob(ctx context.Context, job *domain.Job) error {
	h, err := a.fetcher.Submit(ctx, job)
	if err != nil {
		return err
	}

	if len(job.Files) > 0 {
		showProgress(ctx, h.Done(), job.Name, func() byteProgress {
			s := h.Snapshot()
			return snapshotProgress{downloaded: s.DownloadedBytes, size: s.Size}
		})
	}

	<-h.Done()
	result := h.Result()
	printSummary(result.Status, result.FinishedFiles, result.TotalFiles, result.BytesDownloaded, result.Duration)

	switch result.Status {
	case fetcher.JobStatusFinished:
		return nil
	case fetcher.JobStatusCanceled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ErrCanceled
	default:
		return h.Err()
	}
}

type snapshotProgress struct {
	downloaded, size int64
}

func (s snapshotProgress) DownloadedBytes() int64 { return s.downloaded }
func (s snapshotProgress) Size() int64            { return s.size }

// runHistory prints the newest download records
func (a *app) runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	jobID := fs.String("job", "", "Only show records of this job")
	limit := fs.Int("limit", 20, "Maximum number of records")
	fs.Parse(args)

	records, err := a.store.ListRecords(*jobID, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tSIZE\tATTEMPT\tPATH\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			r.Status,
			humanize.IBytes(uint64(r.BytesDownloaded)),
			r.Attempt,
			r.Path,
			r.LastError)
	}
	return w.Flush()
}
