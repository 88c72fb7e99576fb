package webhook

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/models"
)

func TestSendPostsReport(t *testing.T) {
	var got models.BatchReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &config.Config{Quiet: true})
	err := c.Send(models.BatchReport{
		BatchID: "b1",
		Total:   1,
		Results: []models.QueryResponse{{
			Action:    models.ActionEvaluateBSDF,
			Values:    []float64{0.04, math.NaN(), 0.96},
			Deviation: math.Inf(1),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BatchID)
	assert.NotEmpty(t, got.Time)
	require.Len(t, got.Results, 1)
	assert.Equal(t, []float64{0.04, 0, 0.96}, got.Results[0].Values)
	assert.Equal(t, 0.0, got.Results[0].Deviation)
}

func TestSendReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil).Send(models.BatchReport{BatchID: "b2"})
	assert.ErrorContains(t, err, "502")
}

func TestSendWithoutURL(t *testing.T) {
	assert.NoError(t, NewClient("", nil).Send(models.BatchReport{BatchID: "b3"}))
}
