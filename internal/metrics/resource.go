package metrics

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSample holds CPU and memory usage of the core process.
type ResourceSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// ResourceCollector periodically samples resource usage of a single managed
// process. There is only ever one core process, so no per-name labelling is
// needed; gauges are reset when the PID source reports 0.
type ResourceCollector struct {
	interval time.Duration

	mu     sync.RWMutex
	latest ResourceSample
	has    bool

	cpuPercent prometheus.Gauge
	memoryMB   prometheus.Gauge
	numThreads prometheus.Gauge
	numFDs     prometheus.Gauge
}

// NewResourceCollector returns a collector sampling every interval
// (default 5s).
func NewResourceCollector(interval time.Duration) *ResourceCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ResourceCollector{
		interval: interval,
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coremgr", Subsystem: "core", Name: "cpu_percent",
			Help: "CPU usage percentage of the core process.",
		}),
		memoryMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coremgr", Subsystem: "core", Name: "memory_mb",
			Help: "Resident memory of the core process in MB.",
		}),
		numThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coremgr", Subsystem: "core", Name: "num_threads",
			Help: "Thread count of the core process.",
		}),
		numFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coremgr", Subsystem: "core", Name: "num_fds",
			Help: "Open file descriptors of the core process (Unix only).",
		}),
	}
}

// RegisterMetrics registers the resource gauges with r.
func (c *ResourceCollector) RegisterMetrics(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{c.cpuPercent, c.memoryMB, c.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, c.numFDs)
	}
	for _, col := range collectors {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples until ctx is cancelled. pidFn reports the current core PID, or
// 0 when no core process is running.
func (c *ResourceCollector) Run(ctx context.Context, pidFn func() int32) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pid := pidFn()
			if pid <= 0 {
				c.clear()
				continue
			}
			c.collect(pid)
		}
	}
}

// Latest returns the most recent sample, if any.
func (c *ResourceCollector) Latest() (ResourceSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.has
}

func (c *ResourceCollector) collect(pid int32) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		slog.Debug("resource sample failed", "pid", pid, "error", err)
		return
	}
	sample := ResourceSample{PID: pid, Timestamp: time.Now()}
	if cpu, err := proc.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		slog.Debug("resource sample failed", "pid", pid, "error", err)
		return
	}
	sample.MemoryRSS = memInfo.RSS
	sample.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	if n, err := proc.NumThreads(); err == nil {
		sample.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			sample.NumFDs = n
		}
	}

	c.cpuPercent.Set(sample.CPUPercent)
	c.memoryMB.Set(sample.MemoryMB)
	c.numThreads.Set(float64(sample.NumThreads))
	if runtime.GOOS != "windows" {
		c.numFDs.Set(float64(sample.NumFDs))
	}

	c.mu.Lock()
	c.latest = sample
	c.has = true
	c.mu.Unlock()
}

func (c *ResourceCollector) clear() {
	c.cpuPercent.Set(0)
	c.memoryMB.Set(0)
	c.numThreads.Set(0)
	if runtime.GOOS != "windows" {
		c.numFDs.Set(0)
	}
	c.mu.Lock()
	c.has = false
	c.mu.Unlock()
}
