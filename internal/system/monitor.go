// Package system samples host resource usage for the status endpoint.
package system

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is host resource usage in whole percent
type Stats struct {
	CPU    int `json:"cpu"`
	Memory int `json:"memory"`
	Disk   int `json:"disk"`
}

// Sampler takes one Stats reading
type Sampler func(diskPath string) Stats

// Monitor keeps the latest Stats, refreshed in the background
type Monitor struct {
	diskPath string
	interval time.Duration
	sample   Sampler

	mu    sync.RWMutex
	stats Stats
	once  sync.Once
}

// NewMonitor creates a monitor reporting disk usage for the partition
// holding diskPath
func NewMonitor(diskPath string) *Monitor {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Monitor{
		diskPath: diskPath,
		interval: 5 * time.Second,
		sample:   Sample,
	}
}

// Start begins background sampling until ctx is done. Later calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.once.Do(func() {
		go m.loop(ctx)
	})
}

func (m *Monitor) loop(ctx context.Context) {
	m.collect()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) collect() {
	stats := m.sample(m.diskPath)

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the latest reading; zero until the first sample lands
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Sample reads CPU, memory and disk usage. CPU is measured over one second.
// A metric that cannot be read stays zero.
func Sample(diskPath string) Stats {
	var stats Stats

	if cpuPercent, err := cpu.Percent(time.Second, false); err == nil && len(cpuPercent) > 0 {
		stats.CPU = int(math.Round(cpuPercent[0]))
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		stats.Memory = int(math.Round(memStats.UsedPercent))
	}
	if diskStats, err := disk.Usage(diskPath); err == nil {
		stats.Disk = int(math.Round(diskStats.UsedPercent))
	}

	return stats
}
