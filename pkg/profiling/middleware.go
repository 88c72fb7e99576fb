package profiling

import (
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// Middleware adds per-request profiling headers and opencensus metrics to
// HTTP handlers
type Middleware struct {
	enableProfiling bool
	enableMetrics   bool
}

// NewMiddleware creates a new profiling middleware
func NewMiddleware(enableProfiling, enableMetrics bool) *Middleware {
	return &Middleware{
		enableProfiling: enableProfiling,
		enableMetrics:   enableMetrics,
	}
}

// ProfiledHandler wraps an HTTP handler. Metrics are recorded under name;
// with profiling on, runtime deltas are reported in X- headers.
func (m *Middleware) ProfiledHandler(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enableProfiling && !m.enableMetrics {
			handler.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		if !m.enableProfiling {
			handler.ServeHTTP(wrapped, r)
			RecordRequest(r.Context(), name, wrapped.statusCode, time.Since(startTime))
			return
		}

		prof := NewRequestProfiler(name)
		startGoroutines := runtime.NumGoroutine()

		// Headers set after the handler writes its status are never sent, so
		// the deltas go out as trailers.
		w.Header().Set("X-Profiling-Enabled", "true")
		w.Header().Set("X-Handler-Name", name)
		w.Header().Set("X-Start-Time", startTime.Format(time.RFC3339Nano))
		w.Header().Set("X-Start-Goroutines", strconv.Itoa(startGoroutines))
		w.Header().Set("Trailer", "X-Duration-Ms, X-Memory-Delta-Bytes, X-Goroutine-Delta")

		handler.ServeHTTP(wrapped, r)

		metrics := prof.Finish()
		if m.enableMetrics {
			RecordRequest(r.Context(), name, wrapped.statusCode, metrics.Duration)
		}

		w.Header().Set("X-Duration-Ms", strconv.FormatFloat(msec(metrics.Duration), 'f', 3, 64))
		w.Header().Set("X-Memory-Delta-Bytes", strconv.FormatInt(metrics.MemoryDelta, 10))
		w.Header().Set("X-Goroutine-Delta", strconv.Itoa(metrics.Goroutines-startGoroutines))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestProfiler samples time and heap around a unit of work
type RequestProfiler struct {
	StartTime   time.Time
	StartMemory uint64
	Name        string
}

// NewRequestProfiler creates a new request profiler
func NewRequestProfiler(name string) *RequestProfiler {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &RequestProfiler{
		StartTime:   time.Now(),
		StartMemory: m.Alloc,
		Name:        name,
	}
}

// Finish completes the profiling and returns metrics
func (rp *RequestProfiler) Finish() ProfileMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ProfileMetrics{
		Name:        rp.Name,
		Duration:    time.Since(rp.StartTime),
		MemoryDelta: int64(m.Alloc) - int64(rp.StartMemory),
		FinalMemory: m.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
}

// ProfileMetrics holds profiling metrics for a request
type ProfileMetrics struct {
	Name        string
	Duration    time.Duration
	MemoryDelta int64
	FinalMemory uint64
	Goroutines  int
}
