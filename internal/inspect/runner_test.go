package inspect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
	"github.com/born-ml/onnx-inspect/internal/onnx/operators"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

func loadIdentity(t *testing.T, dims ...onnxtest.Dim) *Model {
	t.Helper()
	m, err := LoadGraph(onnxtest.WriteFile(t, onnxtest.Identity(dims...)), LoadOptions{InferShapes: true})
	require.NoError(t, err)
	return m
}

func TestRunnerIdentity(t *testing.T) {
	m := loadIdentity(t, onnxtest.D(-1), onnxtest.D(3), onnxtest.D(32), onnxtest.D(32))

	out := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)

	res := out.Result
	assert.Equal(t, "x", res.InputName)
	assert.Equal(t, "y", res.OutputName)
	assert.Equal(t, []int{1, 3, 32, 32}, res.InputShape)
	assert.Equal(t, []int{1, 3, 32, 32}, res.Shape)
	assert.Equal(t, tensor.Float32, res.DType)
	require.Len(t, res.Values, 3*32*32)
	for _, v := range res.Values {
		require.Zero(t, v)
	}

	st := Summarize(res.Values)
	assert.Equal(t, Stats{}, st)
}

func TestRunnerSymbolicInput(t *testing.T) {
	m := loadIdentity(t, onnxtest.P("batch_size"), onnxtest.P("num_channels"), onnxtest.P("height"), onnxtest.P("width"))

	out := NewRunner(&NativeEngine{}, NewResolver(map[string]int{"height": 8})).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)
	assert.Equal(t, []int{1, 3, 8, 32}, out.Result.Shape)
}

func TestRunnerInputElemType(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(2))
	model.Inputs[0].ElemType = onnxtest.Int64
	model.Outputs[0].ElemType = onnxtest.Int64
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	out := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)
	assert.Equal(t, tensor.Int64, out.Result.DType)
	assert.Equal(t, []float64{0, 0}, out.Result.Values)
}

func TestRunnerUntypedInputDefaultsToFloat32(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(2))
	model.Inputs[0].NoType = true
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	out := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)
	assert.Equal(t, tensor.Float32, out.Result.DType)
	assert.Equal(t, []int{}, out.Result.InputShape)
}

func TestRunnerUnsupportedOp(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(1), onnxtest.D(4))
	model.Nodes[0].OpType = "FancyOp"
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	out := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.False(t, out.OK())
	assert.Nil(t, out.Result)
	assert.ErrorIs(t, out.Err, operators.ErrUnsupportedOp)
	assert.Equal(t, "x", out.Err.Input)
	assert.Equal(t, "y", out.Err.Output)
	assert.Equal(t, []int{1, 4}, out.Err.InputShape)
}

func TestRunnerCustomOp(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(3))
	model.Nodes[0].OpType = "PlusOne"
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	engine := &NativeEngine{CustomOps: map[string]operators.OpHandler{
		"PlusOne": func(_ *operators.Context, _ *operators.Node, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
			y := in[0].Clone()
			for i := range y.AsFloat32() {
				y.AsFloat32()[i]++
			}
			return []*tensor.RawTensor{y}, nil
		},
	}}
	out := NewRunner(engine, nil).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)
	assert.Equal(t, []float64{1, 1, 1}, out.Result.Values)
}

func TestRunnerNoInputsOrOutputs(t *testing.T) {
	runner := NewRunner(&NativeEngine{}, nil)

	out := runner.Run(context.Background(), &Model{Outputs: []TensorSpec{{Name: "y"}}})
	require.False(t, out.OK())
	assert.ErrorIs(t, out.Err, ErrNoInputs)

	out = runner.Run(context.Background(), &Model{Inputs: []TensorSpec{{Name: "x"}}})
	require.False(t, out.OK())
	assert.ErrorIs(t, out.Err, ErrNoOutputs)
}

func TestRunnerCanceled(t *testing.T) {
	m := loadIdentity(t, onnxtest.D(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewRunner(&NativeEngine{}, nil).Run(ctx, m)
	require.False(t, out.OK())
	assert.ErrorIs(t, out.Err, context.Canceled)
}

type panicEngine struct{}

func (panicEngine) Name() string { return "panic" }

func (panicEngine) Run(context.Context, *Model, string, *tensor.RawTensor, string) (*tensor.RawTensor, error) {
	panic("segfault in kernel")
}

type nilEngine struct{}

func (nilEngine) Name() string { return "nil" }

func (nilEngine) Run(context.Context, *Model, string, *tensor.RawTensor, string) (*tensor.RawTensor, error) {
	return nil, nil
}

func TestRunnerEngineFaults(t *testing.T) {
	m := loadIdentity(t, onnxtest.D(2))

	out := NewRunner(panicEngine{}, nil).Run(context.Background(), m)
	require.False(t, out.OK())
	assert.Contains(t, out.Err.Error(), "segfault in kernel")

	out = NewRunner(nilEngine{}, nil).Run(context.Background(), m)
	require.False(t, out.OK())
	assert.Contains(t, out.Err.Error(), "no value for y")
}

func TestRunnerSessionModel(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(2), onnxtest.D(2)))
	s, err := NewGraphSession(path)
	require.NoError(t, err)

	// Without the cached proto the engine parses the file again.
	m := FromSession(s)
	m.proto = nil

	out := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.True(t, out.OK(), "run failed: %v", out.Err)
	assert.Equal(t, []int{2, 2}, out.Result.Shape)

	var rerr *RuntimeExecutionError
	m.Path = "/does/not/exist.onnx"
	out = NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)
	require.False(t, out.OK())
	assert.True(t, errors.As(out.Err, &rerr))
}
