package profiling

import (
	"runtime"
	"time"

	"github.com/golang/glog"
)

// MemoryProfiler logs memory usage at a fixed interval
type MemoryProfiler struct {
	interval time.Duration
	stopChan chan struct{}
}

// NewMemoryProfiler creates a new memory profiler
func NewMemoryProfiler(interval time.Duration) *MemoryProfiler {
	return &MemoryProfiler{
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins memory profiling
func (mp *MemoryProfiler) Start() {
	go func() {
		ticker := time.NewTicker(mp.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				LogMemStats()
			case <-mp.stopChan:
				return
			}
		}
	}()
}

// Stop ends memory profiling. It must be called at most once.
func (mp *MemoryProfiler) Stop() {
	close(mp.stopChan)
}

// LogMemStats logs current memory statistics
func LogMemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	glog.Infof("Memory: Alloc=%.2fMB, TotalAlloc=%.2fMB, Sys=%.2fMB, GC=%d, Goroutines=%d",
		bToMb(m.Alloc), bToMb(m.TotalAlloc), bToMb(m.Sys), m.NumGC, runtime.NumGoroutine())
}

// GCStats provides garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	PauseRecent  time.Duration
	LastGC       time.Time
	GCCPUPercent float64
}

// GetGCStats returns current garbage collection statistics
func GetGCStats() GCStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var recentPause time.Duration
	if m.NumGC > 0 {
		recentPause = time.Duration(m.PauseNs[(m.NumGC+255)%256])
	}

	return GCStats{
		NumGC:        m.NumGC,
		PauseTotal:   time.Duration(m.PauseTotalNs),
		PauseRecent:  recentPause,
		LastGC:       time.Unix(0, int64(m.LastGC)),
		GCCPUPercent: m.GCCPUFraction * 100,
	}
}

// LogGCStats logs garbage collection statistics
func LogGCStats() {
	stats := GetGCStats()
	glog.Infof("GC: Runs=%d, TotalPause=%.2fms, RecentPause=%.2fus, CPU=%.2f%%, LastGC=%s",
		stats.NumGC,
		msec(stats.PauseTotal),
		float64(stats.PauseRecent.Nanoseconds())/1000.0,
		stats.GCCPUPercent,
		stats.LastGC.Format("15:04:05"))
}

// ForceGC triggers garbage collection and returns the statistics after it
func ForceGC() GCStats {
	before := GetGCStats()
	runtime.GC()
	after := GetGCStats()

	glog.Infof("Forced GC: %d->%d runs, pause: %.2fus",
		before.NumGC, after.NumGC,
		float64(after.PauseRecent.Nanoseconds())/1000.0)
	return after
}

func msec(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func bToMb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
