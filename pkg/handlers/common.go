package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/models"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Processor answers a single query
type Processor interface {
	Process(ctx context.Context, q models.Query) (models.QueryResponse, error)
}

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// preflight handles OPTIONS and rejects other methods than want. It reports
// whether the handler should continue.
func preflight(w http.ResponseWriter, r *http.Request, want string) bool {
	setupCORS(w, want+", OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != want {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gooptcore.ErrParameterOutOfRange), errors.Is(err, gooptcore.ErrUnsupportedComposition):
		return http.StatusBadRequest
	case errors.Is(err, gooptcore.ErrNumericalInstability), errors.Is(err, gooptcore.ErrEnergyConservation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v with status. Query responses and batch reports are
// sanitized first since encoding/json rejects NaN and Inf.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	switch t := v.(type) {
	case models.QueryResponse:
		v = t.Sanitized()
	case models.BatchReport:
		v = t.Sanitized()
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("Writing response: %v", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
