package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmrel-go/internal/handler"
)

// ProgressTracker tracks progress for long-running operations
type ProgressTracker struct {
	totalBytes  int64
	startTime   time.Time
	description string
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(totalBytes int64, description string) *ProgressTracker {
	return &ProgressTracker{
		totalBytes:  totalBytes,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress holds current progress information
type Progress struct {
	Current     int64
	Total       int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // units per second
	Description string
}

// Calculate returns current progress metrics given the current count and bytes processed
func (p *ProgressTracker) Calculate(currentCount int64, bytesProcessed int64) Progress {
	elapsed := time.Since(p.startTime)

	var percentage float64
	var eta time.Duration

	if p.totalBytes > 0 && bytesProcessed > 0 {
		percentage = float64(bytesProcessed) / float64(p.totalBytes) * 100
		if percentage > 0 && percentage < 100 {
			// Estimate remaining time based on bytes processed
			bytesPerSecond := float64(bytesProcessed) / elapsed.Seconds()
			remainingBytes := p.totalBytes - bytesProcessed
			if bytesPerSecond > 0 {
				eta = time.Duration(float64(remainingBytes)/bytesPerSecond) * time.Second
			}
		}
	}

	// Calculate throughput (items per second)
	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(currentCount) / elapsed.Seconds()
	}

	return Progress{
		Current:     currentCount,
		Total:       p.totalBytes,
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		Throughput:  throughput,
		Description: p.description,
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", itemsPerSec)
}

// FormatBytes formats bytes in a human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// objectCounter counts objects for the progress reporter. Unlike
// handler.Counter it may be read from another goroutine.
type objectCounter struct {
	handler.Base
	n atomic.Int64
}

func (c *objectCounter) Node(context.Context, *osm.Node) error {
	c.n.Add(1)
	return nil
}

func (c *objectCounter) Way(context.Context, *osm.Way) error {
	c.n.Add(1)
	return nil
}

func (c *objectCounter) Relation(context.Context, *osm.Relation) error {
	c.n.Add(1)
	return nil
}

func (c *objectCounter) Changeset(context.Context, *osm.Changeset) error {
	c.n.Add(1)
	return nil
}

// pass is the state the progress reporter reads while a pass runs.
type pass struct {
	name    string
	objects objectCounter
	tracker *ProgressTracker
}

// progressReporter logs the current pass every interval until ctx ends.
type progressReporter struct {
	interval time.Duration
	bytes    func() int64
	current  atomic.Pointer[pass]
	log      *zap.Logger
}

func (r *progressReporter) begin(name string, total int64) *pass {
	p := &pass{name: name, tracker: NewProgressTracker(total, name)}
	r.current.Store(p)
	return p
}

func (r *progressReporter) run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p := r.current.Load()
			if p == nil {
				continue
			}
			prog := p.tracker.Calculate(p.objects.n.Load(), r.bytes())
			r.log.Info("Progress",
				zap.String("pass", prog.Description),
				zap.Int64("objects", prog.Current),
				zap.String("pct", fmt.Sprintf("%.1f%%", prog.Percentage)),
				zap.String("rate", FormatThroughput(prog.Throughput)),
				zap.String("eta", FormatETA(prog.ETA)),
				zap.Duration("elapsed", prog.Elapsed))
		}
	}
}
