package handlers

import (
	"net/http"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/internal/utils"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/models"
)

// QueryHandler answers single queries synchronously
type QueryHandler struct {
	config    *config.Config
	processor Processor
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(cfg *config.Config, processor Processor) *QueryHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &QueryHandler{config: cfg, processor: processor}
}

// ServeHTTP implements the http.Handler interface
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}

	var q models.Query
	if !decode(w, r, &q) {
		return
	}
	if q.Action == "" {
		writeError(w, "No action provided", http.StatusBadRequest)
		return
	}
	if q.ID == "" {
		q.ID = utils.GenerateID()
	}

	if !h.config.Quiet {
		glog.Infof("Query received - ID: %s, action: %s", q.ID, q.Action)
	}

	resp, err := h.processor.Process(r.Context(), q)
	if err != nil {
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
