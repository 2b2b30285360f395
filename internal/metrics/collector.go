// Package metrics logs host and process load while a long assembly runs,
// together with counters the pipeline registers as probes.
package metrics

import (
	"context"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	defaultInterval = 30 * time.Second
	gib             = 1 << 30
	mib             = 1 << 20
)

// SystemMetrics is one sample. Percentages are 0-100 except
// ProcessCPUPercent, which counts every core and can pass 100.
type SystemMetrics struct {
	CPUPercent        float64
	ProcessCPUPercent float64
	IOWaitPercent     float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskWriteMBps     float64
	DiskBusyPercent   float64
	Timestamp         time.Time
}

// Probe reports run counters logged next to the system metrics, such as
// bytes read or pending relations. It runs on the collector goroutine.
type Probe func() []zap.Field

// Collector samples the host on an interval and logs each sample.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process
	probes   []Probe

	// Baselines for rates; only touched by the collector goroutine.
	prevDisk     map[string]disk.IOCountersStat
	prevDiskTime time.Time
	prevCPU      *cpu.TimesStat

	mu   sync.RWMutex
	last *SystemMetrics
}

// NewCollector creates a collector. Intervals under a second fall back to
// 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = defaultInterval
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// AddProbe registers p. Call before Start.
func (c *Collector) AddProbe(p Probe) {
	c.probes = append(c.probes, p)
}

// Start samples once right away and then on every tick until ctx is
// cancelled. It always returns nil, so it can run in an errgroup.
func (c *Collector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return nil
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the latest sample, or nil before the first one.
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	m := c.sample()

	c.mu.Lock()
	c.last = m
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.Float64("iowait", m.IOWaitPercent),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_used", formatGB(m.MemoryUsedGB)),
		zap.String("disk_r", formatMBps(m.DiskReadMBps)),
		zap.String("disk_w", formatMBps(m.DiskWriteMBps)),
		zap.Float64("disk_busy", m.DiskBusyPercent),
	}
	for _, p := range c.probes {
		fields = append(fields, p()...)
	}
	c.logger.Info("System metrics", fields...)
}

// sample reads every source it can; failing sources leave zeros.
func (c *Collector) sample() *SystemMetrics {
	m := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
	}
	m.IOWaitPercent = c.iowait()

	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vm.UsedPercent
		m.MemoryUsedGB = float64(vm.Used) / gib
		m.MemoryTotalGB = float64(vm.Total) / gib
	}

	m.DiskReadMBps, m.DiskWriteMBps, m.DiskBusyPercent = c.diskRates(m.Timestamp)
	return m
}

// iowait is the share of CPU time spent waiting on I/O since the previous
// sample. The first sample only sets the baseline.
func (c *Collector) iowait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	cur := times[0]
	prev := c.prevCPU
	c.prevCPU = &cur
	if prev == nil {
		return 0
	}

	total := (cur.User - prev.User) +
		(cur.System - prev.System) +
		(cur.Idle - prev.Idle) +
		(cur.Iowait - prev.Iowait) +
		(cur.Irq - prev.Irq) +
		(cur.Softirq - prev.Softirq) +
		(cur.Steal - prev.Steal)
	if total <= 0 {
		return 0
	}
	return (cur.Iowait - prev.Iowait) / total * 100
}

// diskRates sums read and write throughput over all disks since the
// previous sample. Busy time is capped at 100%.
func (c *Collector) diskRates(now time.Time) (readMBps, writeMBps, busyPct float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0, 0
	}
	prev, prevTime := c.prevDisk, c.prevDiskTime
	if prev != nil && now.Sub(prevTime) < 100*time.Millisecond {
		return 0, 0, 0
	}
	c.prevDisk, c.prevDiskTime = counters, now
	if prev == nil {
		return 0, 0, 0
	}

	var read, write, ioMillis uint64
	for name, cur := range counters {
		old, ok := prev[name]
		if !ok {
			continue
		}
		read += grown(old.ReadBytes, cur.ReadBytes)
		write += grown(old.WriteBytes, cur.WriteBytes)
		ioMillis += grown(old.IoTime, cur.IoTime)
	}

	elapsed := now.Sub(prevTime).Seconds()
	readMBps = float64(read) / elapsed / mib
	writeMBps = float64(write) / elapsed / mib
	busyPct = math.Min(float64(ioMillis)/(elapsed*1000)*100, 100)
	return readMBps, writeMBps, busyPct
}

// grown is the increase from old to cur, or 0 when the counter wrapped.
func grown(old, cur uint64) uint64 {
	if cur < old {
		return 0
	}
	return cur - old
}

func formatGB(gb float64) string {
	return formatFloat(gb) + " GB"
}

func formatMBps(mbps float64) string {
	return formatFloat(mbps) + " MB/s"
}

// formatFloat formats a non-negative value with one decimal, rounding down.
func formatFloat(f float64) string {
	if f < 0.1 {
		return "0.0"
	}
	return strconv.FormatFloat(math.Floor(f*10)/10, 'f', 1, 64)
}
