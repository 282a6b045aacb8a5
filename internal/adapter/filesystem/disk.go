package filesystem

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/launchkit/launchkit/internal/port"
)

// DiskUsage returns disk usage for the root directory
func (m *Manager) DiskUsage() (*port.DiskUsage, error) {
	stat, err := disk.Usage(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	return &port.DiskUsage{
		Total:   stat.Total,
		Used:    stat.Used,
		Free:    stat.Free,
		UsedPct: stat.UsedPercent,
	}, nil
}
