package profiling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/golang/glog"
	"go.opencensus.io/stats/view"

	"github.com/kacperjurak/gooptcore/pkg/config"
)

// Profiler manages the pprof and runtime statistics server
type Profiler struct {
	config *config.ServerConfig
	server *http.Server
	memory *MemoryProfiler
}

// New creates a new profiler instance
func New(cfg *config.ServerConfig) *Profiler {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	return &Profiler{
		config: cfg,
	}
}

// Handler returns the profiling routes.
func (p *Profiler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/debug/info", p.infoHandler)
	mux.HandleFunc("/debug/stats", p.statsHandler)
	mux.HandleFunc("/debug/metrics", p.metricsHandler)
	return mux
}

// Start starts the profiling server on a separate port
func (p *Profiler) Start() error {
	if !p.config.EnableProfiling {
		glog.V(1).Info("Profiling disabled")
		return nil
	}

	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)

	p.server = &http.Server{
		Addr:              ":" + p.config.ProfilingPort,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	glog.Infof("Starting profiling server on port %s", p.config.ProfilingPort)
	glog.Infof("  - Full Index:     http://localhost:%s/debug/pprof/", p.config.ProfilingPort)
	glog.Infof("  - Runtime Info:   http://localhost:%s/debug/info", p.config.ProfilingPort)
	glog.Infof("  - Runtime Stats:  http://localhost:%s/debug/stats", p.config.ProfilingPort)
	glog.Infof("  - Metrics:        http://localhost:%s/debug/metrics", p.config.ProfilingPort)

	p.memory = NewMemoryProfiler(time.Minute)
	p.memory.Start()

	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("Profiling server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the profiling server
func (p *Profiler) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	glog.Info("Shutting down profiling server...")
	p.memory.Stop()

	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("while shutting down profiling server: %w", err)
	}
	p.server = nil
	return nil
}

// RuntimeInfo is the body served by /debug/info.
type RuntimeInfo struct {
	Timestamp  string     `json:"timestamp"`
	Goroutines int        `json:"goroutines"`
	GOMAXPROCS int        `json:"gomaxprocs"`
	NumCPU     int        `json:"num_cpu"`
	Version    string     `json:"version"`
	Memory     MemoryInfo `json:"memory"`
	GC         GCInfo     `json:"gc"`
}

// MemoryInfo summarizes runtime.MemStats in megabytes.
type MemoryInfo struct {
	AllocMB      float64 `json:"alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	HeapObjects  uint64  `json:"heap_objects"`
	StackInUseMB float64 `json:"stack_in_use_mb"`
	StackSysMB   float64 `json:"stack_sys_mb"`
}

// GCInfo summarizes garbage collector activity.
type GCInfo struct {
	Runs          uint32  `json:"gc_runs"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	PauseRecentUS float64 `json:"pause_recent_us"`
	CPUPercent    float64 `json:"cpu_percent"`
	LastGC        string  `json:"last_gc"`
}

// NewGCInfo converts collector statistics for the JSON surface.
func NewGCInfo(s GCStats) GCInfo {
	return GCInfo{
		Runs:          s.NumGC,
		PauseTotalMS:  msec(s.PauseTotal),
		PauseRecentUS: float64(s.PauseRecent.Nanoseconds()) / 1000.0,
		CPUPercent:    s.GCCPUPercent,
		LastGC:        s.LastGC.Format(time.RFC3339),
	}
}

// ReadRuntimeInfo samples the runtime.
func ReadRuntimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeInfo{
		Timestamp:  time.Now().Format(time.RFC3339),
		Goroutines: runtime.NumGoroutine(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		NumCPU:     runtime.NumCPU(),
		Version:    runtime.Version(),
		Memory: MemoryInfo{
			AllocMB:      bToMb(m.Alloc),
			TotalAllocMB: bToMb(m.TotalAlloc),
			SysMB:        bToMb(m.Sys),
			HeapAllocMB:  bToMb(m.HeapAlloc),
			HeapSysMB:    bToMb(m.HeapSys),
			HeapObjects:  m.HeapObjects,
			StackInUseMB: bToMb(m.StackInuse),
			StackSysMB:   bToMb(m.StackSys),
		},
		GC: NewGCInfo(GetGCStats()),
	}
}

// infoHandler provides runtime information
func (p *Profiler) infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ReadRuntimeInfo()); err != nil {
		glog.Errorf("Writing runtime info: %v", err)
	}
}

// statsHandler streams runtime statistics once per second. The n query
// parameter sets the number of samples.
func (p *Profiler) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	samples := 30
	if n, err := fmt.Sscan(r.URL.Query().Get("n"), &samples); n != 1 || err != nil || samples < 1 {
		samples = 30
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for i := 0; i < samples; i++ {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		fmt.Fprintf(w, "=== Runtime Stats [%02d] ===\n", i+1)
		fmt.Fprintf(w, "Timestamp: %s\n", time.Now().Format("15:04:05"))
		fmt.Fprintf(w, "Goroutines: %d\n", runtime.NumGoroutine())
		fmt.Fprintf(w, "Memory Allocated: %.2f MB\n", bToMb(m.Alloc))
		fmt.Fprintf(w, "Total Allocations: %.2f MB\n", bToMb(m.TotalAlloc))
		fmt.Fprintf(w, "System Memory: %.2f MB\n", bToMb(m.Sys))
		fmt.Fprintf(w, "GC Runs: %d\n", m.NumGC)
		fmt.Fprintf(w, "Heap Objects: %d\n\n", m.HeapObjects)

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if i == samples-1 {
			break
		}
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// metricsHandler dumps the current rows of every registered view.
func (p *Profiler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Snapshot()); err != nil {
		glog.Errorf("Writing metrics: %v", err)
	}
}

// MetricRow is one aggregated view row.
type MetricRow struct {
	Tags  map[string]string `json:"tags"`
	Count int64             `json:"count"`
	Mean  float64           `json:"mean,omitempty"`
}

// Snapshot reads the rows of Views. Views that are not registered are
// skipped.
func Snapshot() map[string][]MetricRow {
	out := make(map[string][]MetricRow, len(Views))
	for _, v := range Views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		list := make([]MetricRow, 0, len(rows))
		for _, row := range rows {
			mr := MetricRow{Tags: make(map[string]string, len(row.Tags))}
			for _, t := range row.Tags {
				mr.Tags[t.Key.Name()] = t.Value
			}
			switch d := row.Data.(type) {
			case *view.CountData:
				mr.Count = d.Value
			case *view.DistributionData:
				mr.Count = d.Count
				mr.Mean = d.Mean
			}
			list = append(list, mr)
		}
		out[v.Name] = list
	}
	return out
}
