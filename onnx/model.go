package onnx

import (
	"context"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// Engine executes a model once for Inspect's test run.
//
// This interface keeps callers independent of the internal packages and
// allows for:
//   - Easy mocking in tests
//   - Plugging in other runtimes (remote servers, accelerators)
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Run executes the model file at path with x bound to input and returns
	// the tensor produced for output.
	Run(ctx context.Context, path, input string, x *tensor.RawTensor, output string) (*tensor.RawTensor, error)
}

type engineAdapter struct{ e Engine }

func (a engineAdapter) Name() string { return a.e.Name() }

func (a engineAdapter) Run(
	ctx context.Context, m *inspect.Model, input string, x *tensor.RawTensor, output string,
) (*tensor.RawTensor, error) {
	return a.e.Run(ctx, m.Path, input, x, output)
}

// ModelInfo summarizes a model without running it.
type ModelInfo struct {
	ProducerName string
	IRVersion    int64
	OpsetVersion int64
	InputNames   []string // runtime inputs; initializers are excluded
	OutputNames  []string
	Operators    []string // distinct operator types, most used first
	Unsupported  []string // operator types the built-in executor lacks
}

// GetModelInfo reads the model at path and summarizes it.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Unsupported: %v\n", info.Unsupported)
func GetModelInfo(path string) (*ModelInfo, error) {
	m, err := inspect.LoadGraph(path, inspect.LoadOptions{})
	if err != nil {
		return nil, err
	}

	info := &ModelInfo{
		ProducerName: m.Producer,
		IRVersion:    m.IRVersion,
		OpsetVersion: m.OpsetVersion,
	}
	for _, in := range m.Inputs {
		info.InputNames = append(info.InputNames, in.Name)
	}
	for _, out := range m.Outputs {
		info.OutputNames = append(info.OutputNames, out.Name)
	}
	for _, c := range m.OpCounts() {
		info.Operators = append(info.Operators, c.OpType)
		if !c.Supported {
			info.Unsupported = append(info.Unsupported, c.OpType)
		}
	}
	return info, nil
}
