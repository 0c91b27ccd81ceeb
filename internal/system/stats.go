package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a point-in-time view of machine load.
type HostStats struct {
	CPUPercent float64
	MemPercent float64
	MemUsedMB  uint64
}

// SampleHost reads CPU and memory usage. CPU usage is measured since the
// previous call, so the first sample of a process may read 0.
func SampleHost(ctx context.Context) (HostStats, error) {
	var s HostStats
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemPercent = vm.UsedPercent
	s.MemUsedMB = vm.Used / 1024 / 1024
	return s, nil
}
