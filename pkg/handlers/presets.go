package handlers

import (
	"net/http"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/dispersion"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

// PresetEntry names a material preset and its kind.
type PresetEntry struct {
	Name string         `json:"name"`
	Kind gooptcore.Kind `json:"kind"`
}

// Catalog lists every name a query may refer to.
type Catalog struct {
	Materials  []PresetEntry   `json:"materials"`
	Metals     []string        `json:"metals"`
	Coatings   []string        `json:"coatings"`
	Dispersion []string        `json:"dispersion"`
	Actions    []models.Action `json:"actions"`
}

// NewCatalog collects the preset tables.
func NewCatalog() Catalog {
	names := gooptcore.PresetNames()
	materials := make([]PresetEntry, 0, len(names))
	for _, name := range names {
		m, err := gooptcore.Preset(name)
		if err != nil {
			glog.Warningf("Preset %q listed but not buildable: %v", name, err)
			continue
		}
		materials = append(materials, PresetEntry{Name: name, Kind: m.Kind()})
	}
	return Catalog{
		Materials:  materials,
		Metals:     cior.PresetNames(),
		Coatings:   thinfilm.PresetNames(),
		Dispersion: dispersion.PresetNames(),
		Actions:    models.Actions,
	}
}

// PresetsHandler serves the preset catalog
type PresetsHandler struct {
	catalog Catalog
}

// NewPresetsHandler creates a new presets handler
func NewPresetsHandler() *PresetsHandler {
	return &PresetsHandler{catalog: NewCatalog()}
}

// ServeHTTP implements the http.Handler interface
func (h *PresetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.catalog)
}
