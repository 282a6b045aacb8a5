package port

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace      bool
	RequiredBytes int64
	FreeBytes     int64
	MinFreeBytes  int64
	DiskUsedPct   float64
}

// SpaceManager defines the interface for space management operations
type SpaceManager interface {
	// CheckSpace checks if downloading size more bytes keeps the configured
	// minimum free space and returns detailed information
	CheckSpace(size int64) (*SpaceCheckResult, error)
}
