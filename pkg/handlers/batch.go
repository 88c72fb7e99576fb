package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/internal/utils"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/models"
)

// MaxBatchQueries bounds the size of one batch request.
const MaxBatchQueries = 10000

// Runner executes batches, e.g. a worker.Pool.
type Runner interface {
	Run(ctx context.Context, batchID string, queries []models.Query) ([]models.WorkResult, error)
	QueueWebhook(report models.BatchReport) bool
}

// BatchHandler handles batch query requests. Batches run asynchronously and
// report through the webhook unless the request carries ?sync=true.
type BatchHandler struct {
	config     *config.Config
	timingFile string
	runner     Runner
}

// NewBatchHandler creates a new batch handler. A non-empty timingFile
// receives one CSV row per finished batch.
func NewBatchHandler(cfg *config.Config, runner Runner, timingFile string) *BatchHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &BatchHandler{config: cfg, runner: runner, timingFile: timingFile}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}

	var batch models.QueryBatch
	if !decode(w, r, &batch) {
		return
	}
	if len(batch.Queries) == 0 {
		writeError(w, "No queries provided in batch", http.StatusBadRequest)
		return
	}
	if len(batch.Queries) > MaxBatchQueries {
		writeError(w, fmt.Sprintf("Batch of %d queries exceeds the limit of %d", len(batch.Queries), MaxBatchQueries),
			http.StatusRequestEntityTooLarge)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}
	if batch.Timestamp.IsZero() {
		batch.Timestamp = time.Now()
	}

	if !h.config.Quiet {
		glog.Infof("Batch processing started - ID: %s, queries: %d", batch.BatchID, len(batch.Queries))
	}

	if r.URL.Query().Get("sync") == "true" {
		report, err := h.process(r.Context(), batch)
		if err != nil {
			writeError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	go h.processAsync(batch)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":  true,
		"batch_id": batch.BatchID,
		"queries":  len(batch.Queries),
		"message":  "Batch processing started with worker pool",
	})
}

// processAsync runs a batch detached from the request and queues its report
// for webhook delivery
func (h *BatchHandler) processAsync(batch models.QueryBatch) {
	report, err := h.process(context.Background(), batch)
	if err != nil {
		glog.Errorf("Batch %s aborted: %v", batch.BatchID, err)
		return
	}
	h.runner.QueueWebhook(report)
}

func (h *BatchHandler) process(ctx context.Context, batch models.QueryBatch) (models.BatchReport, error) {
	start := time.Now()
	results, err := h.runner.Run(ctx, batch.BatchID, batch.Queries)
	if err != nil {
		return models.BatchReport{}, err
	}
	report := BuildReport(batch.BatchID, results, time.Since(start))

	if h.timingFile != "" {
		if err := saveTiming(h.timingFile, report); err != nil {
			glog.Errorf("Saving timing for batch %s: %v", batch.BatchID, err)
		}
	}
	glog.Infof("Batch processing completed - ID: %s, total time: %.2f ms, failures: %d, violations: %d",
		report.BatchID, report.DurationMS, report.Failures, report.Violations)
	return report, nil
}

// BuildReport summarizes the results of a batch
func BuildReport(batchID string, results []models.WorkResult, total time.Duration) models.BatchReport {
	report := models.BatchReport{
		BatchID:    batchID,
		Time:       time.Now().Format(time.RFC3339Nano),
		Total:      len(results),
		DurationMS: float64(total.Nanoseconds()) / 1e6,
		Results:    make([]models.QueryResponse, len(results)),
		Timings:    make([]models.QueryTiming, len(results)),
	}
	for i, r := range results {
		report.Results[i] = r.Response
		report.Timings[i] = models.QueryTiming{
			Index:          i,
			Action:         r.Response.Action,
			ProcessingTime: r.ProcessingTime,
			Success:        r.Success,
			Conserved:      r.Response.EnergyConserved,
		}
		switch {
		case !r.Success:
			report.Failures++
		case !r.Response.EnergyConserved:
			report.Violations++
		}
	}
	return report
}

var timingHeader = []string{
	"Timestamp",
	"BatchID",
	"TotalQueries",
	"TotalBatchTime_ms",
	"AvgQueryTime_ms",
	"MinQueryTime_ms",
	"MaxQueryTime_ms",
	"SuccessRate",
	"Violations",
	"QueriesPerSecond",
}

// saveTiming appends one CSV row of batch statistics, writing the header
// when the file is new
func saveTiming(filename string, report models.BatchReport) error {
	n := len(report.Timings)
	if n == 0 {
		return nil
	}
	var writeHeader bool
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		writeHeader = true
	}

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("while opening timing file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(timingHeader); err != nil {
			return fmt.Errorf("while writing timing header: %w", err)
		}
	}

	var sum time.Duration
	minTime, maxTime := time.Duration(1<<63-1), time.Duration(0)
	successful := 0
	for _, t := range report.Timings {
		sum += t.ProcessingTime
		minTime = min(minTime, t.ProcessingTime)
		maxTime = max(maxTime, t.ProcessingTime)
		if t.Success {
			successful++
		}
	}
	ms := func(d time.Duration) string { return fmt.Sprintf("%.3f", float64(d.Nanoseconds())/1e6) }
	perSecond := 0.0
	if report.DurationMS > 0 {
		perSecond = float64(n) / (report.DurationMS / 1000)
	}

	record := []string{
		time.Now().Format(time.RFC3339),
		report.BatchID,
		fmt.Sprintf("%d", n),
		fmt.Sprintf("%.3f", report.DurationMS),
		ms(sum / time.Duration(n)),
		ms(minTime),
		ms(maxTime),
		fmt.Sprintf("%.1f", float64(successful)/float64(n)*100),
		fmt.Sprintf("%d", report.Violations),
		fmt.Sprintf("%.2f", perSecond),
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("while writing timing record: %w", err)
	}
	writer.Flush()
	return writer.Error()
}
