package port

import (
	"io"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// OutputFile is a destination opened for positioned writes
type OutputFile interface {
	io.WriteSeeker
	io.Closer
}

// FileSystem defines the interface for download destination operations
type FileSystem interface {
	// RootDir returns the download root directory
	RootDir() string

	// Resolve maps a job path to a local path. Relative paths are placed
	// under RootDir.
	Resolve(path string) string

	// Create creates or truncates a file, creating parent directories
	Create(path string) (OutputFile, error)

	// Remove deletes a file. A missing file is not an error.
	Remove(path string) error

	// Exists checks if a file exists
	Exists(path string) bool

	// FileSize returns the size of a file
	FileSize(path string) (int64, error)

	// DiskUsage returns disk usage statistics for RootDir
	DiskUsage() (*DiskUsage, error)
}
