package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/kacperjurak/gooptcore/internal/processing"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/handlers"
	"github.com/kacperjurak/gooptcore/pkg/profiling"
	"github.com/kacperjurak/gooptcore/pkg/webhook"
	"github.com/kacperjurak/gooptcore/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config        *config.Config
	serverConfig  *config.ServerConfig
	processor     *processing.QueryProcessor
	workerPool    *worker.Pool
	webhookClient *webhook.Client
	httpServer    *http.Server
	profiler      *profiling.Profiler
	middleware    *profiling.Middleware
	limiter       *rate.Limiter
	handler       http.Handler
}

// Options holds configuration for creating a new server
type Options struct {
	Config       *config.Config
	ServerConfig *config.ServerConfig
	// Processor defaults to one built from Config.
	Processor *processing.QueryProcessor
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.ServerConfig == nil {
		opts.ServerConfig = config.DefaultServerConfig()
	}
	if opts.Processor == nil {
		p, err := processing.NewQueryProcessor(opts.Config)
		if err != nil {
			return nil, fmt.Errorf("while building query processor: %w", err)
		}
		opts.Processor = p
	}
	if opts.ServerConfig.EnableMetrics {
		if err := profiling.RegisterViews(); err != nil {
			return nil, fmt.Errorf("while registering metric views: %w", err)
		}
	}

	webhookClient := webhook.NewClient(opts.ServerConfig.WebhookURL, opts.Config)
	workerPool := worker.New(worker.Options{
		Workers:   opts.ServerConfig.WorkerCount,
		Processor: opts.Processor.ProcessorFunc(),
		Sender:    webhookClient,
	})

	var limiter *rate.Limiter
	if opts.ServerConfig.RateLimit > 0 {
		burst := max(opts.ServerConfig.RateBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.ServerConfig.RateLimit), burst)
	}

	server := &Server{
		config:        opts.Config,
		serverConfig:  opts.ServerConfig,
		processor:     opts.Processor,
		workerPool:    workerPool,
		webhookClient: webhookClient,
		profiler:      profiling.New(opts.ServerConfig),
		middleware:    profiling.NewMiddleware(opts.ServerConfig.EnableProfiling, opts.ServerConfig.EnableMetrics),
		limiter:       limiter,
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	queryHandler := handlers.NewQueryHandler(s.config, s.processor)
	batchHandler := handlers.NewBatchHandler(s.config, s.workerPool, s.serverConfig.TimingFile)
	presetsHandler := handlers.NewPresetsHandler()

	mux.Handle("/query", s.limit(s.middleware.ProfiledHandler("query", queryHandler)))
	mux.Handle("/query/batch", s.limit(s.middleware.ProfiledHandler("query-batch", batchHandler)))
	mux.Handle("/presets", s.middleware.ProfiledHandler("presets", presetsHandler))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/debug/gc", s.gcHandler)
	mux.HandleFunc("/debug/memory", s.memoryHandler)

	s.handler = mux
	s.httpServer = &http.Server{
		Addr:         ":" + s.serverConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// limit rejects requests beyond the configured rate with 429
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"Rate limit exceeded"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"workers":   s.serverConfig.WorkerCount,
		"webhook":   s.webhookClient.URL() != "",
	})
}

// gcHandler triggers garbage collection and returns stats
func (s *Server) gcHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, profiling.NewGCInfo(profiling.ForceGC()))
}

// memoryHandler logs and returns current memory statistics
func (s *Server) memoryHandler(w http.ResponseWriter, r *http.Request) {
	profiling.LogGCStats()
	profiling.LogMemStats()
	writeJSON(w, profiling.ReadRuntimeInfo())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("Writing response: %v", err)
	}
}

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after a graceful Shutdown.
func (s *Server) Start() error {
	if err := s.profiler.Start(); err != nil {
		glog.Errorf("Failed to start profiler: %v", err)
	}

	glog.Infof("Starting HTTP server on port %s", s.serverConfig.Port)
	glog.Infof("  - Single:  http://localhost:%s/query", s.serverConfig.Port)
	glog.Infof("  - Batch:   http://localhost:%s/query/batch", s.serverConfig.Port)
	glog.Infof("  - Presets: http://localhost:%s/presets", s.serverConfig.Port)
	glog.Infof("  - Health:  http://localhost:%s/health", s.serverConfig.Port)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("while serving: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// ends and then drains the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	glog.Info("Shutting down server...")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("while shutting down http server: %w", err))
	}
	if err := s.profiler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	s.workerPool.Shutdown()

	glog.Info("Server shutdown complete")
	return errors.Join(errs...)
}
