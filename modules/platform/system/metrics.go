package system

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"

	"focustrack/modules/platform/logger"
)

// Metrics holds resource usage of the daemon process
type Metrics struct {
	PID          int       `json:"pid"`
	CPUPercent   float64   `json:"cpuPercent"` // Since the previous sample
	RSSMB        float64   `json:"rssMB"`
	NumGoroutine int       `json:"goroutines"`
	UptimeSec    int64     `json:"uptimeSeconds"`
	LoadAvg1     float64   `json:"loadAvg1"` // 0 where unsupported
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MetricsCollector samples the current process periodically
type MetricsCollector struct {
	mu          sync.RWMutex
	metrics     Metrics
	refreshRate time.Duration
	proc        *process.Process
	startedAt   time.Time
}

// NewMetricsCollector creates a collector for the running process.
// Refresh rates under a second are raised to one second.
func NewMetricsCollector(refreshRate time.Duration) (*MetricsCollector, error) {
	if refreshRate < time.Second {
		refreshRate = time.Second
	}
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	return &MetricsCollector{
		refreshRate: refreshRate,
		proc:        proc,
		startedAt:   time.Now(),
		metrics:     Metrics{PID: pid},
	}, nil
}

// Run samples once per refresh period until ctx is done
func (mc *MetricsCollector) Run(ctx context.Context) error {
	mc.collect()

	ticker := time.NewTicker(mc.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mc.collect()
		}
	}
}

// Get returns the latest sample
func (mc *MetricsCollector) Get() Metrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.metrics
}

func (mc *MetricsCollector) collect() {
	m := Metrics{
		PID:          int(mc.proc.Pid),
		NumGoroutine: runtime.NumGoroutine(),
		UptimeSec:    int64(time.Since(mc.startedAt) / time.Second),
		UpdatedAt:    time.Now(),
	}

	if pct, err := mc.proc.Percent(0); err == nil {
		m.CPUPercent = pct
	} else {
		logger.Debug("CPU sample failed: %v", err)
	}
	if mem, err := mc.proc.MemoryInfo(); err == nil {
		m.RSSMB = float64(mem.RSS) / 1024 / 1024
	} else {
		logger.Debug("Memory sample failed: %v", err)
	}
	// Load average not available on Windows
	if avg, err := load.Avg(); err == nil {
		m.LoadAvg1 = avg.Load1
	}

	mc.mu.Lock()
	mc.metrics = m
	mc.mu.Unlock()
}
