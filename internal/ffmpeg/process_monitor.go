package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for a decode process.
type ProcessStats struct {
	PID int32 `json:"pid"`

	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`

	// Bytes read from the decoder's stdout, tracked via CountingReader.
	BytesRead   uint64  `json:"bytes_read"`
	ReadRateBps float64 `json:"read_rate_bps"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples CPU and memory usage of a decode process and tracks
// the byte rate coming off its stdout pipe.
type ProcessMonitor struct {
	pid       int32
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	bytesRead atomic.Uint64

	lastBytesRead  uint64
	lastBytesCheck time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int32) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetInterval sets the sampling interval.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

// Start begins sampling on a background goroutine.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	pm.lastBytesCheck = time.Now()
	interval := pm.interval
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.loop(interval)
}

// Stop stops sampling. Idempotent.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the latest sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.BytesRead = pm.bytesRead.Load()
	return stats
}

// AddBytesRead adds to the bytes-read counter.
func (pm *ProcessMonitor) AddBytesRead(n uint64) {
	pm.bytesRead.Add(n)
}

func (pm *ProcessMonitor) loop(interval time.Duration) {
	defer pm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.sample()
	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

// sample takes one snapshot. Sampling errors are ignored; the process may
// already have exited.
func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if proc, err := process.NewProcessWithContext(pm.ctx, pm.pid); err == nil {
		if cpu, err := proc.CPUPercentWithContext(pm.ctx); err == nil {
			pm.stats.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfoWithContext(pm.ctx); err == nil && mem != nil {
			pm.stats.MemoryRSSBytes = mem.RSS
			pm.stats.MemoryRSSMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	currentBytes := pm.bytesRead.Load()
	if elapsed := now.Sub(pm.lastBytesCheck); elapsed > 0 {
		pm.stats.ReadRateBps = float64(currentBytes-pm.lastBytesRead) / elapsed.Seconds()
	}
	pm.stats.BytesRead = currentBytes
	pm.lastBytesRead = currentBytes
	pm.lastBytesCheck = now
}

// CountingReader wraps an io.Reader and reports bytes read to a monitor.
type CountingReader struct {
	r       io.Reader
	monitor *ProcessMonitor
}

// NewCountingReader creates a reader that counts bytes into the monitor.
func NewCountingReader(r io.Reader, monitor *ProcessMonitor) *CountingReader {
	return &CountingReader{
		r:       r,
		monitor: monitor,
	}
}

// Read implements io.Reader.
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	if n > 0 && cr.monitor != nil {
		cr.monitor.AddBytesRead(uint64(n))
	}
	return n, err
}
