package operators

import (
	"fmt"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// registerUtilityOps adds pass-through, constant and type operators.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleDropout)
	r.Register("Constant", handleConstant)
	r.Register("ConstantOfShape", handleConstantOfShape)
	r.Register("Shape", handleShape)
	r.Register("Cast", handleCast)
}

func handleIdentity(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("identity", inputs, 1, 1); err != nil {
		return nil, err
	}
	return one(inputs[0]), nil
}

// handleDropout is inference-mode: the data passes through and the mask is all true.
func handleDropout(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("dropout", inputs, 1, 3); err != nil {
		return nil, err
	}
	if len(node.Outputs) < 2 {
		return one(inputs[0]), nil
	}
	mask, err := tensor.NewRaw(inputs[0].Shape(), tensor.Bool)
	if err != nil {
		return nil, fmt.Errorf("dropout: %w", err)
	}
	for i := range mask.AsBool() {
		mask.AsBool()[i] = true
	}
	return []*tensor.RawTensor{inputs[0], mask}, nil
}

func handleConstant(_ *Context, node *Node, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	a := node.attr("value")
	if a != nil && a.T != nil {
		return one(a.T), nil
	}
	if a := node.attr("value_float"); a != nil {
		t, err := tensor.FromFloat32(tensor.Shape{}, []float32{a.F})
		if err != nil {
			return nil, err
		}
		return one(t), nil
	}
	if a := node.attr("value_floats"); a != nil {
		t, err := tensor.FromFloat32(tensor.Shape{len(a.Floats)}, a.Floats)
		if err != nil {
			return nil, err
		}
		return one(t), nil
	}
	if a := node.attr("value_int"); a != nil {
		t, err := tensor.FromInt64(tensor.Shape{}, []int64{a.I})
		if err != nil {
			return nil, err
		}
		return one(t), nil
	}
	if a := node.attr("value_ints"); a != nil {
		t, err := tensor.FromInt64(tensor.Shape{len(a.Ints)}, a.Ints)
		if err != nil {
			return nil, err
		}
		return one(t), nil
	}
	return nil, fmt.Errorf("constant %q: no supported value attribute", node.Name)
}

func handleConstantOfShape(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("constantOfShape", inputs, 1, 1); err != nil {
		return nil, err
	}
	shape, err := ints(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("constantOfShape: %w", err)
	}

	dtype, fill := tensor.Float32, 0.0
	if a := node.attr("value"); a != nil && a.T != nil {
		dtype, fill = a.T.DType(), scalar(a.T)
	}
	vals := make([]float64, tensor.Shape(shape).NumElements())
	for i := range vals {
		vals[i] = fill
	}
	result, err := tensor.FromFloat64s(shape, dtype, vals)
	if err != nil {
		return nil, fmt.Errorf("constantOfShape: %w", err)
	}
	return one(result), nil
}

func handleShape(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("shape", inputs, 1, 1); err != nil {
		return nil, err
	}
	shape := inputs[0].Shape()
	start, end := int(GetAttrInt(node, "start", 0)), int(GetAttrInt(node, "end", int64(len(shape))))
	if start < 0 {
		start += len(shape)
	}
	if end < 0 {
		end += len(shape)
	}
	start = min(max(start, 0), len(shape))
	end = min(max(end, start), len(shape))

	dims := make([]int64, 0, end-start)
	for _, d := range shape[start:end] {
		dims = append(dims, int64(d))
	}
	result, err := tensor.FromInt64(tensor.Shape{len(dims)}, dims)
	if err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}
	return one(result), nil
}

func handleCast(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("cast", inputs, 1, 1); err != nil {
		return nil, err
	}
	to := GetAttrInt(node, "to", TensorProtoFloat)
	dtype, ok := ElemTypeToDataType(int32(to)) //nolint:gosec // G115: ONNX element types fit in int32.
	if !ok {
		return nil, fmt.Errorf("cast: unsupported target type %d", to)
	}
	result, err := tensor.Cast(inputs[0], dtype)
	if err != nil {
		return nil, fmt.Errorf("cast: %w", err)
	}
	return one(result), nil
}
