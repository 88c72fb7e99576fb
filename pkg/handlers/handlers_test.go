package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/internal/processing"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/worker"
)

var quiet = &config.Config{Quiet: true}

func newProcessor(t *testing.T) *processing.QueryProcessor {
	t.Helper()
	p, err := processing.NewQueryProcessor(nil)
	require.NoError(t, err)
	return p
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return rec
}

func TestQueryHandlerEvaluates(t *testing.T) {
	h := NewQueryHandler(quiet, newProcessor(t))
	rec := post(t, h, "/query", `{"action":"evaluate_bsdf","material":{"kind":"dielectric","ior":1.5}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp models.QueryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	require.NotNil(t, resp.Response)
	assert.InDelta(t, 0.04, resp.Response.Reflectance, 1e-9)
	assert.True(t, resp.EnergyConserved)
}

func TestQueryHandlerErrors(t *testing.T) {
	h := NewQueryHandler(quiet, newProcessor(t))
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad angle", `{"action":"evaluate_bsdf","preset":"glass","angle_deg":120}`, http.StatusBadRequest},
		{"unknown preset", `{"action":"evaluate_bsdf","preset":"unobtainium"}`, http.StatusBadRequest},
		{"no action", `{"preset":"glass"}`, http.StatusBadRequest},
		{"unknown field", `{"action":"evaluate_bsdf","colour":1}`, http.StatusBadRequest},
		{"not json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/query", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestMethodHandling(t *testing.T) {
	h := NewQueryHandler(quiet, newProcessor(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/query", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(gooptcore.ErrParameterOutOfRange))
	assert.Equal(t, http.StatusBadRequest, statusFor(gooptcore.ErrUnsupportedComposition))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(gooptcore.ErrNumericalInstability))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(gooptcore.ErrEnergyConservation))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func newPool(t *testing.T, p *processing.QueryProcessor) *worker.Pool {
	t.Helper()
	pool := worker.New(worker.Options{Workers: 2, Processor: p.ProcessorFunc()})
	t.Cleanup(pool.Shutdown)
	return pool
}

func TestBatchHandlerSync(t *testing.T) {
	timing := filepath.Join(t.TempDir(), "timing.csv")
	h := NewBatchHandler(quiet, newPool(t, newProcessor(t)), timing)

	body := `{"batch_id":"b-sync","queries":[
		{"action":"evaluate_bsdf","preset":"glass"},
		{"action":"evaluate_bsdf","preset":"glass","angle_deg":200},
		{"action":"list_presets"}
	]}`
	rec := post(t, h, "/query/batch?sync=true", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.BatchReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "b-sync", report.BatchID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 0, report.Violations)
	require.Len(t, report.Results, 3)
	assert.InDelta(t, 0.042, report.Results[0].Response.Reflectance, 5e-3)
	assert.NotEmpty(t, report.Results[1].Error)
	assert.Equal(t, models.ActionListPresets, report.Results[2].Action)

	post(t, h, "/query/batch?sync=true", body)
	f, err := os.Open(timing)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, timingHeader, rows[0])
	assert.Equal(t, "b-sync", rows[1][1])
}

type fakeRunner struct {
	reports chan models.BatchReport
}

func (f *fakeRunner) Run(ctx context.Context, batchID string, queries []models.Query) ([]models.WorkResult, error) {
	out := make([]models.WorkResult, len(queries))
	for i, q := range queries {
		out[i] = models.WorkResult{
			ID:       i,
			BatchID:  batchID,
			Response: models.QueryResponse{ID: q.ID, Action: q.Action, EnergyConserved: i%2 == 0},
			Success:  true,
		}
	}
	return out, nil
}

func (f *fakeRunner) QueueWebhook(report models.BatchReport) bool {
	f.reports <- report
	return true
}

func TestBatchHandlerAsync(t *testing.T) {
	runner := &fakeRunner{reports: make(chan models.BatchReport, 1)}
	h := NewBatchHandler(quiet, runner, "")

	rec := post(t, h, "/query/batch", `{"queries":[{"action":"list_presets"},{"action":"list_presets"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.Equal(t, true, ack["success"])
	assert.EqualValues(t, 2, ack["queries"])

	select {
	case report := <-runner.reports:
		assert.Equal(t, ack["batch_id"], report.BatchID)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Violations)
	case <-time.After(5 * time.Second):
		t.Fatal("report was not queued")
	}
}

func TestBatchHandlerRejects(t *testing.T) {
	h := NewBatchHandler(quiet, &fakeRunner{}, "")
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/query/batch", `{"queries":[]}`).Code)

	queries := make([]models.Query, MaxBatchQueries+1)
	for i := range queries {
		queries[i].Action = models.ActionListPresets
	}
	body, err := json.Marshal(models.QueryBatch{Queries: queries})
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(t, h, "/query/batch", string(body)).Code)
}

func TestSaveTimingSkipsEmptyReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timing.csv")
	require.NoError(t, saveTiming(path, models.BatchReport{BatchID: "empty"}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPresetsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPresetsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presets", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var c Catalog
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Len(t, c.Materials, len(gooptcore.PresetNames()))
	assert.Contains(t, c.Metals, "gold")
	assert.NotEmpty(t, c.Coatings)
	assert.NotEmpty(t, c.Dispersion)
	assert.Equal(t, models.Actions, c.Actions)

	kinds := map[string]gooptcore.Kind{}
	for _, m := range c.Materials {
		kinds[m.Name] = m.Kind
	}
	assert.Equal(t, gooptcore.KindDielectric, kinds["glass"])
	assert.Equal(t, gooptcore.KindConductor, kinds["gold"])
}
