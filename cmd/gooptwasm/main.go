//go:build js && wasm

// Command gooptwasm registers the engine on the JavaScript global object as
// `goopt`. Every function returns {value} on success and {error} on failure.
package main

import (
	"syscall/js"

	"github.com/kacperjurak/gooptcore/pkg/binding"
)

func jsFloats(v []float64) js.Value {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return js.ValueOf(out)
}

func jsStrings(v []string) js.Value {
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return js.ValueOf(out)
}

func floatArgs(v js.Value) []float64 {
	out := make([]float64, v.Length())
	for i := range out {
		out[i] = v.Index(i).Float()
	}
	return out
}

func stringArgs(v js.Value) []string {
	out := make([]string, v.Length())
	for i := range out {
		out[i] = v.Index(i).String()
	}
	return out
}

func result(v []float64, err error) any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"value": jsFloats(v)}
}

func main() {
	b := binding.New(nil)

	api := map[string]any{
		"presets": js.FuncOf(func(js.Value, []js.Value) any {
			return map[string]any{"value": jsStrings(b.Presets())}
		}),
		"bsdf": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return result(b.BSDF(args[0].String(), args[1].Float(), args[2].Float()))
		}),
		"reflectance": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return result(b.Reflectance(args[0].String(), args[1].Float()))
		}),
		"spectrum": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return result(b.Spectrum(args[0].String(), args[1].Float()))
		}),
		"color": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return result(b.Color(args[0].String(), args[1].Float()))
		}),
		"batch": js.FuncOf(func(_ js.Value, args []js.Value) any {
			flat, errs, err := b.Batch(stringArgs(args[0]), floatArgs(args[1]), floatArgs(args[2]))
			if err != nil {
				return map[string]any{"error": err.Error()}
			}
			return map[string]any{"value": jsFloats(flat), "errors": jsStrings(errs)}
		}),
		"metalIOR": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return result(binding.MetalIOR(args[0].String(), floatArgs(args[1])))
		}),
		"wavelengths": js.FuncOf(func(js.Value, []js.Value) any {
			return result(binding.Wavelengths(), nil)
		}),
	}
	js.Global().Set("goopt", js.ValueOf(api))

	select {}
}
