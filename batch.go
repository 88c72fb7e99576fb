package gooptcore

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// minShard is the smallest slice handed to one goroutine.
const minShard = 64

// BatchResult holds one entry per input, in input order. A failed item has
// a zero response and a non-nil error; the rest of the batch still runs.
// Energy violations are not errors: the response is kept and the violation
// shows up in Diagnostics.
type BatchResult struct {
	Responses   []BSDFResponse
	Errors      []error
	Diagnostics []Diagnostic
}

// Failures counts items that returned an error.
func (b BatchResult) Failures() int {
	n := 0
	for _, err := range b.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Violations counts successful items that did not conserve energy.
func (b BatchResult) Violations() int {
	n := 0
	for i, d := range b.Diagnostics {
		if b.Errors[i] == nil && !d.Conserved {
			n++
		}
	}
	return n
}

// Flat packs responses as [R0, T0, A0, R1, ...].
func (b BatchResult) Flat() []float64 {
	out := make([]float64, 0, 3*len(b.Responses))
	for _, r := range b.Responses {
		out = append(out, r.Reflectance, r.Transmittance, r.Absorption)
	}
	return out
}

// EvaluateBatch evaluates materials[i] under contexts[i]. The returned
// error is non-nil only when the inputs are mismatched.
func (e *Evaluator) EvaluateBatch(materials []Material, contexts []EvaluationContext) (BatchResult, error) {
	res := BatchResult{
		Responses:   make([]BSDFResponse, len(materials)),
		Errors:      make([]error, len(materials)),
		Diagnostics: make([]Diagnostic, len(materials)),
	}
	if err := e.EvaluateBatchInto(res.Responses, res.Errors, materials, contexts); err != nil {
		return BatchResult{}, err
	}
	for i, r := range res.Responses {
		if res.Errors[i] == nil {
			res.Diagnostics[i] = r.Diagnose(e.epsilon)
		}
	}
	return res, nil
}

// EvaluateBatchInto writes into caller-owned slices, which must all be as
// long as materials. errs[i] is set only when item i could not be
// evaluated; an item that breaks energy conservation keeps its response and
// a nil error, and BSDFResponse.Diagnose tells it apart.
func (e *Evaluator) EvaluateBatchInto(dst []BSDFResponse, errs []error, materials []Material, contexts []EvaluationContext) error {
	n := len(materials)
	if len(contexts) != n || len(dst) != n || len(errs) != n {
		return fmt.Errorf("batch sizes differ: %d materials, %d contexts, %d outputs, %d error slots: %w",
			n, len(contexts), len(dst), len(errs), opterr.ErrParameterOutOfRange)
	}

	run := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			dst[i], _, errs[i] = e.diagnose(materials[i], contexts[i])
		}
	}

	shards := e.workers
	if limit := n / minShard; shards > limit {
		shards = limit
	}
	if shards <= 1 {
		run(0, n)
		return nil
	}

	var g errgroup.Group
	g.SetLimit(shards)
	size := (n + shards - 1) / shards
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			run(lo, hi)
			return nil
		})
	}
	return g.Wait()
}
