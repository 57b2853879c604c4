// Package onnx is the library entry point of onnx-inspect.
//
// It prints what an ONNX model declares (inputs, outputs, initializers and
// graph nodes) and can run the model once on a zero-filled input to check
// that it executes, reporting output statistics and a per-channel
// activation ranking.
//
// # Example Usage
//
//	import "github.com/born-ml/onnx-inspect/onnx"
//
//	err := onnx.Inspect(ctx, os.Stdout, "segmenter.onnx", onnx.Options{
//	    InferShapes: true,
//	    TestRun:     true,
//	    Dims:        map[string]int{"height": 256, "width": 256},
//	})
//	if err != nil {
//	    log.Fatal(err) // the model could not be loaded
//	}
//
// A failed test run is part of the report, not an error.
//
// Use [ListSupportedOps] to see which operators the built-in executor runs.
package onnx

import (
	"context"
	"io"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	internalonnx "github.com/born-ml/onnx-inspect/internal/onnx"
)

// ModelProto is a decoded ONNX model file.
type ModelProto = internalonnx.ModelProto

// LoadError is returned when a model file is missing or cannot be decoded.
type LoadError = inspect.LoadError

// DefaultWallClass is the channel reported by the class ranking unless
// Options.WallClass says otherwise.
const DefaultWallClass = inspect.DefaultWallClass

// Options configures Inspect.
type Options struct {
	// InferShapes fills in missing shapes before printing.
	InferShapes bool
	// TestRun runs the model once on a zero-filled first input.
	TestRun bool
	// Dims adds or overrides symbolic dimension sizes for the test run.
	Dims map[string]int
	// WallClass is the channel whose rank is reported; nil means
	// DefaultWallClass.
	WallClass *int
	// ShowOps prints a table of the operator types in the graph.
	ShowOps bool
	// Engine runs the test; nil uses the built-in executor.
	Engine Engine
}

// Inspect writes the report for the model at path to w. It returns a
// *LoadError when the model cannot be read and the first write error
// otherwise; test-run failures are reported in the text.
func Inspect(ctx context.Context, w io.Writer, path string, opts Options) error {
	m, err := inspect.LoadGraph(path, inspect.LoadOptions{InferShapes: opts.InferShapes})
	if err != nil {
		return err
	}

	r := inspect.NewReporter(w)
	if opts.WallClass != nil {
		r.WallClass = *opts.WallClass
	}
	r.Model(m)
	if opts.ShowOps {
		r.OpsTable(m)
	}
	if opts.TestRun {
		var engine inspect.Engine = &inspect.NativeEngine{}
		if opts.Engine != nil {
			engine = engineAdapter{opts.Engine}
		}
		r.RuntimeTest(inspect.NewRunner(engine, inspect.NewResolver(opts.Dims)).Run(ctx, m))
	}
	return r.Err()
}

// ParseFile decodes an ONNX model file without preparing it for execution.
//
// Example:
//
//	proto, err := onnx.ParseFile("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Producer:", proto.ProducerName)
func ParseFile(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}

// ListSupportedOps returns all ONNX operators the built-in executor runs.
//
// Example:
//
//	for _, op := range onnx.ListSupportedOps() {
//	    fmt.Println(op)
//	}
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
