package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore"
)

func TestSanitizedReportEncodes(t *testing.T) {
	nan := math.NaN()
	report := BatchReport{
		BatchID: "b",
		Results: []QueryResponse{{
			Action:    ActionEvaluateBSDF,
			Values:    []float64{nan, 0.5},
			Response:  &gooptcore.BSDFResponse{Reflectance: nan, Transmittance: 0.5, Absorption: math.Inf(1)},
			Scalars:   map[string]float64{"x": math.Inf(-1)},
			Deviation: math.Inf(1),
		}},
	}
	_, err := json.Marshal(report)
	require.Error(t, err)

	clean := report.Sanitized()
	_, err = json.Marshal(clean)
	require.NoError(t, err)

	got := clean.Results[0]
	assert.Equal(t, []float64{0, 0.5}, got.Values)
	assert.Equal(t, gooptcore.BSDFResponse{Transmittance: 0.5}, *got.Response)
	assert.Equal(t, 0.0, got.Scalars["x"])
	assert.Equal(t, 0.0, got.Deviation)

	// The original is untouched.
	assert.True(t, math.IsNaN(report.Results[0].Values[0]))
	assert.True(t, math.IsNaN(report.Results[0].Response.Reflectance))
}

func TestQueryParam(t *testing.T) {
	q := Query{Params: map[string]float64{"g": 0.3}}
	assert.Equal(t, 0.3, q.Param("g", 0))
	assert.Equal(t, 1.5, q.Param("n", 1.5))
}
