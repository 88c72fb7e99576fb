package profiling

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyPath   = tag.MustNewKey("path")
	keyStatus = tag.MustNewKey("status")
	keyAction = tag.MustNewKey("action")
	keyResult = tag.MustNewKey("result")
)

var (
	requestCount     = stats.Int64("goopt/requests", "HTTP requests served", stats.UnitDimensionless)
	requestLatency   = stats.Float64("goopt/request_latency", "HTTP request latency", stats.UnitMilliseconds)
	queryCount       = stats.Int64("goopt/queries", "Queries processed", stats.UnitDimensionless)
	energyViolations = stats.Int64("goopt/energy_violations", "Query results whose R+T+A missed 1 by more than epsilon", stats.UnitDimensionless)
	jobLatency       = stats.Float64("goopt/job_latency", "Worker pool job latency", stats.UnitMilliseconds)
	webhookLatency   = stats.Float64("goopt/webhook_latency", "Webhook delivery latency", stats.UnitMilliseconds)
)

var latencyBuckets = view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000)

// Views are the metric views exported by the server.
var Views = []*view.View{
	{
		Name:        "goopt/requests",
		Description: "Counter of requests that have been handled",
		TagKeys:     []tag.Key{keyPath, keyStatus},
		Measure:     requestCount,
		Aggregation: view.Count(),
	},
	{
		Name:        "goopt/request_latency",
		Description: "Distribution of request latency",
		TagKeys:     []tag.Key{keyPath},
		Measure:     requestLatency,
		Aggregation: latencyBuckets,
	},
	{
		Name:        "goopt/queries",
		Description: "Counter of queries by action and outcome",
		TagKeys:     []tag.Key{keyAction, keyResult},
		Measure:     queryCount,
		Aggregation: view.Count(),
	},
	{
		Name:        "goopt/energy_violations",
		Description: "Counter of energy conservation violations by action",
		TagKeys:     []tag.Key{keyAction},
		Measure:     energyViolations,
		Aggregation: view.Count(),
	},
	{
		Name:        "goopt/job_latency",
		Description: "Distribution of worker pool job latency by action and outcome",
		TagKeys:     []tag.Key{keyAction, keyResult},
		Measure:     jobLatency,
		Aggregation: latencyBuckets,
	},
	{
		Name:        "goopt/webhook_latency",
		Description: "Distribution of webhook delivery latency by outcome",
		TagKeys:     []tag.Key{keyResult},
		Measure:     webhookLatency,
		Aggregation: latencyBuckets,
	},
}

var registerOnce sync.Once

// RegisterViews registers Views once per process.
func RegisterViews() error {
	var err error
	registerOnce.Do(func() {
		err = view.Register(Views...)
	})
	return err
}

// RecordRequest records one served HTTP request.
func RecordRequest(ctx context.Context, path string, status int, d time.Duration) {
	err := stats.RecordWithOptions(ctx,
		stats.WithTags(
			tag.Upsert(keyPath, path),
			tag.Upsert(keyStatus, strconv.Itoa(status)),
		),
		stats.WithMeasurements(
			requestCount.M(1),
			requestLatency.M(msec(d)),
		))
	if err != nil {
		glog.V(2).Infof("Recording request metrics: %v", err)
	}
}

// RecordQuery records a processed query and, when it broke energy
// conservation, a violation.
func RecordQuery(ctx context.Context, action string, failed, conserved bool) {
	result := outcome(!failed)
	ms := []stats.Measurement{queryCount.M(1)}
	if !failed && !conserved {
		ms = append(ms, energyViolations.M(1))
	}
	err := stats.RecordWithOptions(ctx,
		stats.WithTags(tag.Upsert(keyAction, action), tag.Upsert(keyResult, result)),
		stats.WithMeasurements(ms...))
	if err != nil {
		glog.V(2).Infof("Recording query metrics: %v", err)
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordJob records how long a pool worker spent on one job.
func RecordJob(ctx context.Context, action string, ok bool, d time.Duration) {
	err := stats.RecordWithOptions(ctx,
		stats.WithTags(tag.Upsert(keyAction, action), tag.Upsert(keyResult, outcome(ok))),
		stats.WithMeasurements(jobLatency.M(msec(d))))
	if err != nil {
		glog.V(2).Infof("Recording job metrics: %v", err)
	}
}

// RecordWebhook records one webhook delivery attempt.
func RecordWebhook(ctx context.Context, ok bool, d time.Duration) {
	err := stats.RecordWithOptions(ctx,
		stats.WithTags(tag.Upsert(keyResult, outcome(ok))),
		stats.WithMeasurements(webhookLatency.M(msec(d))))
	if err != nil {
		glog.V(2).Infof("Recording webhook metrics: %v", err)
	}
}
