package profiling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareProfilingTrailers(t *testing.T) {
	require.NoError(t, RegisterViews())
	m := NewMiddleware(true, true)
	h := m.ProfiledHandler("teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("{}"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	res := rec.Result()
	defer res.Body.Close()

	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	assert.Equal(t, "teapot", res.Header.Get("X-Handler-Name"))
	assert.NotEmpty(t, res.Trailer.Get("X-Duration-Ms"))

	rows := Snapshot()["goopt/requests"]
	found := false
	for _, row := range rows {
		if row.Tags["path"] == "teapot" && row.Tags["status"] == "418" {
			found = row.Count >= 1
		}
	}
	assert.True(t, found, "request not recorded: %+v", rows)
}

func TestMiddlewarePassThrough(t *testing.T) {
	called := false
	h := NewMiddleware(false, false).ProfiledHandler("plain", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("X-Profiling-Enabled"))
}

func TestRecordQueryCountsViolations(t *testing.T) {
	require.NoError(t, RegisterViews())
	RecordQuery(context.Background(), "violation_action", false, false)
	RecordQuery(context.Background(), "violation_action", true, false)

	var violations int64
	for _, row := range Snapshot()["goopt/energy_violations"] {
		if row.Tags["action"] == "violation_action" {
			violations += row.Count
		}
	}
	assert.Equal(t, int64(1), violations)
}

func TestRecordJobAndWebhookLatency(t *testing.T) {
	require.NoError(t, RegisterViews())
	RecordJob(context.Background(), "latency_action", true, 20*time.Millisecond)
	RecordJob(context.Background(), "latency_action", false, 40*time.Millisecond)
	RecordWebhook(context.Background(), false, 5*time.Millisecond)

	jobs := map[string]MetricRow{}
	for _, row := range Snapshot()["goopt/job_latency"] {
		if row.Tags["action"] == "latency_action" {
			jobs[row.Tags["result"]] = row
		}
	}
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(1), jobs["ok"].Count)
	assert.InDelta(t, 20.0, jobs["ok"].Mean, 1e-9)
	assert.Equal(t, int64(1), jobs["error"].Count)

	var failed int64
	for _, row := range Snapshot()["goopt/webhook_latency"] {
		if row.Tags["result"] == "error" {
			failed += row.Count
		}
	}
	assert.GreaterOrEqual(t, failed, int64(1))
}

func TestInfoHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	New(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info RuntimeInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Positive(t, info.NumCPU)
	assert.Positive(t, info.Goroutines)
}

func TestForceGC(t *testing.T) {
	before := GetGCStats()
	after := ForceGC()
	assert.Greater(t, after.NumGC, before.NumGC)
}
