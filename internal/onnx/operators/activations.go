package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// registerActivations adds activation operators to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unaryHandler("relu", func(x float64) float64 { return math.Max(x, 0) }))
	r.Register("Sigmoid", unaryHandler("sigmoid", sigmoid))
	r.Register("Tanh", unaryHandler("tanh", math.Tanh))
	r.Register("Gelu", unaryHandler("gelu", func(x float64) float64 {
		return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
	}))
	r.Register("LeakyRelu", handleLeakyRelu)
	r.Register("HardSigmoid", handleHardSigmoid)
	r.Register("HardSwish", unaryHandler("hardSwish", func(x float64) float64 {
		return x * math.Max(0, math.Min(1, x/6+0.5))
	}))
	r.Register("PRelu", binaryHandler("pRelu", func(x, slope float64) float64 {
		if x < 0 {
			return slope * x
		}
		return x
	}))
	r.Register("Softmax", handleSoftmax)
	r.Register("LogSoftmax", handleSoftmax)
	r.Register("Clip", handleClip)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func handleLeakyRelu(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("leakyRelu", inputs, 1, 1); err != nil {
		return nil, err
	}
	alpha := float64(GetAttrFloat(node, "alpha", 0.01))
	result, err := unary(inputs[0], func(x float64) float64 {
		if x < 0 {
			return alpha * x
		}
		return x
	})
	if err != nil {
		return nil, fmt.Errorf("leakyRelu: %w", err)
	}
	return one(result), nil
}

func handleHardSigmoid(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("hardSigmoid", inputs, 1, 1); err != nil {
		return nil, err
	}
	alpha := float64(GetAttrFloat(node, "alpha", 0.2))
	beta := float64(GetAttrFloat(node, "beta", 0.5))
	result, err := unary(inputs[0], func(x float64) float64 {
		return math.Max(0, math.Min(1, alpha*x+beta))
	})
	if err != nil {
		return nil, fmt.Errorf("hardSigmoid: %w", err)
	}
	return one(result), nil
}

// handleSoftmax serves Softmax and LogSoftmax. Opset 13 normalizes along a
// single axis (default -1); earlier opsets flatten from axis (default 1).
func handleSoftmax(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs(node.OpType, inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()

	defaultAxis := int64(-1)
	if ctx != nil && ctx.Opset > 0 && ctx.Opset < 13 {
		defaultAxis = 1
	}
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", defaultAxis)), len(shape))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.OpType, err)
	}

	// View the tensor as [outer, n, inner] and normalize over n.
	outer, n, inner := 1, shape[axis], 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	if ctx != nil && ctx.Opset > 0 && ctx.Opset < 13 {
		n *= inner
		inner = 1
	}

	logOut := node.OpType == "LogSoftmax"
	vals := x.Float64s()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			maxV := math.Inf(-1)
			for j := 0; j < n; j++ {
				maxV = math.Max(maxV, vals[base+j*inner])
			}
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += math.Exp(vals[base+j*inner] - maxV)
			}
			for j := 0; j < n; j++ {
				v := vals[base+j*inner] - maxV
				if logOut {
					vals[base+j*inner] = v - math.Log(sum)
				} else {
					vals[base+j*inner] = math.Exp(v) / sum
				}
			}
		}
	}

	result, err := tensor.FromFloat64s(shape, x.DType(), vals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.OpType, err)
	}
	return one(result), nil
}

// handleClip reads min/max from inputs (opset 11+) or attributes (older).
func handleClip(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("clip", inputs, 1, 3); err != nil {
		return nil, err
	}

	minVal := float64(GetAttrFloat(node, "min", -math.MaxFloat32))
	maxVal := float64(GetAttrFloat(node, "max", math.MaxFloat32))
	if t := optional(inputs, 1); t != nil {
		minVal = scalar(t)
	}
	if t := optional(inputs, 2); t != nil {
		maxVal = scalar(t)
	}

	result, err := unary(inputs[0], func(x float64) float64 {
		return math.Min(math.Max(x, minVal), maxVal)
	})
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	return one(result), nil
}
