package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// byteProgress is what a progress bar needs from a running download
type byteProgress interface {
	DownloadedBytes() int64
	Size() int64
}

// showProgress drives a byte progress bar from p until done is closed or ctx
// ends. p may return nil while the download has not started.
func showProgress(ctx context.Context, done <-chan struct{}, description string, p func() byteProgress) {
	bar := progressbar.DefaultBytes(-1, description)
	update := func() {
		cur := p()
		if cur == nil {
			return
		}
		if size := cur.Size(); size > 0 && size != bar.GetMax64() {
			bar.ChangeMax64(size)
		}
		_ = bar.Set64(cur.DownloadedBytes())
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			update()
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
			return
		case <-ctx.Done():
			_ = bar.Clear()
			fmt.Fprintln(os.Stderr)
			return
		case <-ticker.C:
			update()
		}
	}
}

func printSummary(status string, files, total int, bytes int64, elapsed time.Duration) {
	rate := ""
	if secs := elapsed.Seconds(); secs > 0 && bytes > 0 {
		rate = fmt.Sprintf(" (%s/s)", humanize.IBytes(uint64(float64(bytes)/secs)))
	}
	fmt.Printf("%s: %d/%d files, %s in %s%s\n",
		status, files, total, humanize.IBytes(uint64(bytes)), elapsed.Round(time.Millisecond), rate)
}
