package worker

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

// HostStats is one sample of host-level load.
type HostStats struct {
	CPUPercent float64
	MemPercent float64
}

// LoadMonitor samples host CPU and memory so the executor can stop pulling
// new tasks when the box is saturated instead of queueing work it cannot
// finish before the lease expires.
type LoadMonitor struct {
	logger   logging.Logger
	interval time.Duration
	maxCPU   float64
	maxMem   float64

	mu   sync.RWMutex
	last HostStats
}

func NewLoadMonitor(logger logging.Logger, interval time.Duration, maxCPU, maxMem float64) *LoadMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LoadMonitor{
		logger:   logger,
		interval: interval,
		maxCPU:   maxCPU,
		maxMem:   maxMem,
	}
}

// Start samples until the context is cancelled. Sampling errors are logged
// and skipped; the previous sample stays in effect.
func (m *LoadMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

func (m *LoadMonitor) sample() {
	var stats HostStats

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil || len(cpuPercent) == 0 {
		m.logger.Warnf("[LoadMonitor] cpu sample failed: %v", err)
		return
	}
	stats.CPUPercent = cpuPercent[0]

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Warnf("[LoadMonitor] memory sample failed: %v", err)
		return
	}
	stats.MemPercent = memInfo.UsedPercent

	m.mu.Lock()
	m.last = stats
	m.mu.Unlock()
}

func (m *LoadMonitor) Snapshot() HostStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Overloaded reports whether either threshold is exceeded. Zero thresholds
// never trip.
func (m *LoadMonitor) Overloaded() bool {
	stats := m.Snapshot()
	if m.maxCPU > 0 && stats.CPUPercent > m.maxCPU {
		return true
	}
	if m.maxMem > 0 && stats.MemPercent > m.maxMem {
		return true
	}
	return false
}
