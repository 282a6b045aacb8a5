package download

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/port"
)

var errOutputClosed = errors.New("output file closed")

// output is the destination file of one download, shared by its threads.
// Every write is seek+write under mu, so threads never interleave.
type output struct {
	fs   port.FileSystem
	path string

	mu      sync.Mutex
	file    port.OutputFile
	created bool
	closed  bool
}

func newOutput(fs port.FileSystem, path string) *output {
	return &output{fs: fs, path: path}
}

// open creates the file on first use
func (o *output) open() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return domain.ErrCanceled
	}
	if o.file != nil {
		return nil
	}
	f, err := o.fs.Create(o.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", o.path, err)
	}
	o.file = f
	o.created = true
	return nil
}

func (o *output) WriteAt(p []byte, off int64) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.file == nil {
		return 0, errOutputClosed
	}
	if _, err := o.file.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek: %w", err)
	}
	return o.file.Write(p)
}

func (o *output) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

// discard closes the file and removes it if this output created it
func (o *output) discard() error {
	closeErr := o.close()

	o.mu.Lock()
	created := o.created
	o.mu.Unlock()
	if !created {
		return closeErr
	}
	if err := o.fs.Remove(o.path); err != nil {
		return err
	}
	return closeErr
}
