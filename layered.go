package gooptcore

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// LayeredPolicy selects how the layers of a Layered material combine.
type LayeredPolicy int

const (
	// LayeredPolicySingleBounce passes the transmitted flux of each layer to
	// the next one. Light reflected by a lower layer is counted on the way
	// down and not attenuated again on the way up.
	LayeredPolicySingleBounce LayeredPolicy = iota
	// LayeredPolicyMultiBounce sums the inter-reflections between layers
	// with the adding rule, assuming each layer reflects equally from both
	// sides.
	LayeredPolicyMultiBounce
)

func (p LayeredPolicy) String() string {
	if p == LayeredPolicyMultiBounce {
		return "multi-bounce"
	}
	return "single-bounce"
}

// ParseLayeredPolicy accepts "single-bounce" and "multi-bounce".
func ParseLayeredPolicy(s string) (LayeredPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single", "single-bounce":
		return LayeredPolicySingleBounce, nil
	case "multi", "multi-bounce":
		return LayeredPolicyMultiBounce, nil
	}
	return 0, fmt.Errorf("layered policy %q: %w", s, opterr.ErrUnsupportedComposition)
}

func (e *Evaluator) layered(m Layered, ctx EvaluationContext) (BSDFResponse, error) {
	layers := make([]BSDFResponse, len(m.Layers))
	sound := true
	for i, layer := range m.Layers {
		if layer.Kind() == KindLayered {
			return BSDFResponse{}, fmt.Errorf("layer %d is itself layered: %w", i, opterr.ErrUnsupportedComposition)
		}
		r, err := e.evaluate(layer, ctx)
		if err != nil {
			return BSDFResponse{}, fmt.Errorf("layer %d (%s): %w", i, layer.Kind(), err)
		}
		layers[i] = r
		sound = sound && r.Conserves(e.epsilon)
	}

	var out BSDFResponse
	switch e.policy {
	case LayeredPolicyMultiBounce:
		out = addLayers(layers)
	default:
		out = singleBounce(layers)
	}

	// A broken layer stays visible in the composite.
	if d := out.Deviation(); sound && d > e.epsilon {
		glog.V(1).Infof("layered: renormalising, R+T+A off by %g", d)
		out = out.renormalize(e.epsilon)
	}
	return out, nil
}

func singleBounce(layers []BSDFResponse) BSDFResponse {
	flux := 1.0
	var r, a float64
	for _, l := range layers {
		r += flux * l.Reflectance
		a += flux * l.Absorption
		flux *= l.Transmittance
		if flux == 0 {
			break
		}
	}
	return BSDFResponse{Reflectance: r, Transmittance: flux, Absorption: a}
}

// addLayers folds layers top-down with
//
//	R = R1 + T1²·R2/(1 − R1·R2),  T = T1·T2/(1 − R1·R2).
func addLayers(layers []BSDFResponse) BSDFResponse {
	r, t := layers[0].Reflectance, layers[0].Transmittance
	for _, l := range layers[1:] {
		if t == 0 {
			break
		}
		den := 1 - r*l.Reflectance
		if den <= 1e-12 {
			return newResponse(1, 0)
		}
		r, t = r+t*t*l.Reflectance/den, t*l.Transmittance/den
	}
	return newResponse(r, t)
}
