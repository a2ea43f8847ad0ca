// Package hostmetrics samples resource utilisation of the host the agent runs
// on, so operators can tell a resource-starved host from an application fault.
package hostmetrics

import (
	"context"
	"fmt"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
)

const collectTimeout = 5 * time.Second

// System call wrappers for testing
var (
	cpuCounts     = gocpu.CountsWithContext
	cpuPercent    = gocpu.PercentWithContext
	loadAvg       = goload.AvgWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
)

// Snapshot represents a host resource utilisation sample.
type Snapshot struct {
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	CPUCount        int       `json:"cpu_count"`
	LoadAverage     []float64 `json:"load_average,omitempty"`
	MemoryTotal     uint64    `json:"memory_total_bytes"`
	MemoryUsed      uint64    `json:"memory_used_bytes"`
	MemoryUsage     float64   `json:"memory_usage_percent"`
}

// Collect gathers a point-in-time snapshot. Only memory is mandatory; CPU and
// load figures are best effort since not every platform exposes them.
func Collect(ctx context.Context) (Snapshot, error) {
	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	var snapshot Snapshot

	if n, err := cpuCounts(collectCtx, true); err == nil {
		snapshot.CPUCount = n
	}

	// Zero interval compares against the previous call instead of blocking.
	if usage, err := cpuPercent(collectCtx, 0, false); err == nil && len(usage) > 0 {
		snapshot.CPUUsagePercent = usage[0]
	}

	if avg, err := loadAvg(collectCtx); err == nil && avg != nil {
		snapshot.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	memStats, err := virtualMemory(collectCtx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory stats: %w", err)
	}
	snapshot.MemoryTotal = memStats.Total
	snapshot.MemoryUsed = memStats.Used
	snapshot.MemoryUsage = memStats.UsedPercent

	return snapshot, nil
}
