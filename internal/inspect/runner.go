package inspect

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/onnx"
	"github.com/born-ml/onnx-inspect/internal/onnx/operators"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// Engine executes a model once: x is bound to input and only output is
// fetched.
type Engine interface {
	Name() string
	Run(ctx context.Context, m *Model, input string, x *tensor.RawTensor, output string) (*tensor.RawTensor, error)
}

// RuntimeResult is the outcome of a successful dummy forward pass.
type RuntimeResult struct {
	InputName  string
	OutputName string
	InputShape []int
	Shape      []int
	DType      tensor.DataType
	Values     []float64
}

// RuntimeExecutionError wraps any failure of the dummy forward pass.
type RuntimeExecutionError struct {
	Input      string
	Output     string
	InputShape []int
	Err        error
}

func (e *RuntimeExecutionError) Error() string {
	return e.Err.Error()
}

func (e *RuntimeExecutionError) Unwrap() error { return e.Err }

// RunOutcome holds exactly one of Result and Err.
type RunOutcome struct {
	Result *RuntimeResult
	Err    *RuntimeExecutionError
}

// OK reports whether the run succeeded.
func (o RunOutcome) OK() bool { return o.Err == nil }

// Runner performs the dummy forward pass.
type Runner struct {
	Engine   Engine
	Resolver *Resolver
}

// NewRunner returns a runner; a nil resolver means the default symbol table.
func NewRunner(engine Engine, resolver *Resolver) *Runner {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Runner{Engine: engine, Resolver: resolver}
}

// Run builds a zero tensor for the first declared input, executes the model
// and returns the first declared output. Engine errors and panics come back
// in RunOutcome.Err.
func (r *Runner) Run(ctx context.Context, m *Model) (outcome RunOutcome) {
	if len(m.Inputs) == 0 {
		return failed(&RuntimeExecutionError{Err: ErrNoInputs})
	}
	if len(m.Outputs) == 0 {
		return failed(&RuntimeExecutionError{Input: m.Inputs[0].Name, Err: ErrNoOutputs})
	}

	in, out := m.Inputs[0], m.Outputs[0]
	shape := r.resolver().Resolve(in.Shape)
	rerr := &RuntimeExecutionError{Input: in.Name, Output: out.Name, InputShape: shape}

	dtype, ok := operators.ElemTypeToDataType(int32(in.ElemType))
	if !ok {
		rerr.Err = fmt.Errorf("input %s has unsupported element type %s", in.Name, in.ElemType)
		return failed(rerr)
	}
	x, err := tensor.Zeros(shape, dtype)
	if err != nil {
		rerr.Err = err
		return failed(rerr)
	}

	defer func() {
		if p := recover(); p != nil {
			rerr.Err = fmt.Errorf("engine panic: %v", p)
			outcome = failed(rerr)
		}
	}()

	klog.V(1).Infof("running %s engine: %s %v -> %s", r.Engine.Name(), in.Name, shape, out.Name)
	y, err := r.Engine.Run(ctx, m, in.Name, x, out.Name)
	if err != nil {
		rerr.Err = err
		return failed(rerr)
	}
	if y == nil {
		rerr.Err = fmt.Errorf("engine returned no value for %s", out.Name)
		return failed(rerr)
	}

	return RunOutcome{Result: &RuntimeResult{
		InputName:  in.Name,
		OutputName: out.Name,
		InputShape: shape,
		Shape:      append([]int(nil), y.Shape()...),
		DType:      y.DType(),
		Values:     y.Float64s(),
	}}
}

func (r *Runner) resolver() *Resolver {
	if r.Resolver == nil {
		return NewResolver(nil)
	}
	return r.Resolver
}

func failed(err *RuntimeExecutionError) RunOutcome {
	return RunOutcome{Err: err}
}

// NativeEngine runs models on the built-in CPU executor.
type NativeEngine struct {
	// CustomOps adds or replaces operator handlers.
	CustomOps map[string]operators.OpHandler
}

// Name returns "native".
func (e *NativeEngine) Name() string { return "native" }

// Run executes the graph, reusing the parsed proto when the model has one.
func (e *NativeEngine) Run(
	ctx context.Context, m *Model, input string, x *tensor.RawTensor, output string,
) (*tensor.RawTensor, error) {
	opts := onnx.LoadOptions{CustomOps: e.CustomOps}

	var model *onnx.Model
	var err error
	if m.proto != nil {
		model, err = onnx.LoadFromProto(m.proto, opts)
	} else {
		model, err = onnx.Load(m.Path, opts)
	}
	if err != nil {
		return nil, err
	}
	outputs, err := model.ForwardNamed(ctx, map[string]*tensor.RawTensor{input: x}, output)
	if err != nil {
		return nil, err
	}
	return outputs[output], nil
}

func nativeVersion() string {
	return fmt.Sprintf("native executor (%d operators)", len(onnx.ListSupportedOps()))
}
