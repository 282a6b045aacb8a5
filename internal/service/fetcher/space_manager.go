package fetcher

import (
	"fmt"

	"github.com/launchkit/launchkit/internal/port"
)

// SpaceManager checks that downloads leave a minimum of free disk space
type SpaceManager struct {
	fs           port.FileSystem
	minFreeBytes int64
}

// NewSpaceManager creates a new SpaceManager
func NewSpaceManager(fs port.FileSystem, minFreeBytes int64) *SpaceManager {
	return &SpaceManager{
		fs:           fs,
		minFreeBytes: minFreeBytes,
	}
}

// CheckSpace checks if size more bytes fit while keeping the minimum free
func (sm *SpaceManager) CheckSpace(size int64) (*port.SpaceCheckResult, error) {
	result := &port.SpaceCheckResult{
		RequiredBytes: size,
		MinFreeBytes:  sm.minFreeBytes,
	}

	usage, err := sm.fs.DiskUsage()
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage: %w", err)
	}
	result.FreeBytes = int64(usage.Free)
	result.DiskUsedPct = usage.UsedPct

	result.HasSpace = result.FreeBytes-size >= sm.minFreeBytes
	return result, nil
}

// HasSpace returns true if there's enough space for the given size
func (sm *SpaceManager) HasSpace(size int64) (bool, error) {
	result, err := sm.CheckSpace(size)
	if err != nil {
		return false, err
	}
	return result.HasSpace, nil
}

// Ensure SpaceManager implements port.SpaceManager
var _ port.SpaceManager = (*SpaceManager)(nil)
