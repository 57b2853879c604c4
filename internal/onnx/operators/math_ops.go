package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", binaryHandler("add", func(x, y float64) float64 { return x + y }))
	r.Register("Sub", binaryHandler("sub", func(x, y float64) float64 { return x - y }))
	r.Register("Mul", binaryHandler("mul", func(x, y float64) float64 { return x * y }))
	r.Register("Div", handleDiv)
	r.Register("Pow", binaryHandler("pow", math.Pow))
	r.Register("Max", variadicHandler("max", math.Max))
	r.Register("Min", variadicHandler("min", math.Min))
	r.Register("Sum", variadicHandler("sum", func(x, y float64) float64 { return x + y }))
	r.Register("Sqrt", unaryHandler("sqrt", math.Sqrt))
	r.Register("Exp", unaryHandler("exp", math.Exp))
	r.Register("Log", unaryHandler("log", math.Log))
	r.Register("Neg", unaryHandler("neg", func(x float64) float64 { return -x }))
	r.Register("Abs", unaryHandler("abs", math.Abs))
	r.Register("Reciprocal", unaryHandler("reciprocal", func(x float64) float64 { return 1 / x }))
	r.Register("Floor", unaryHandler("floor", math.Floor))
	r.Register("Ceil", unaryHandler("ceil", math.Ceil))
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
}

func unaryHandler(name string, fn func(float64) float64) OpHandler {
	return func(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := wantInputs(name, inputs, 1, 1); err != nil {
			return nil, err
		}
		result, err := unary(inputs[0], fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return one(result), nil
	}
}

func binaryHandler(name string, fn func(x, y float64) float64) OpHandler {
	return func(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := wantInputs(name, inputs, 2, 2); err != nil {
			return nil, err
		}
		result, err := binary(inputs[0], inputs[1], fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return one(result), nil
	}
}

func variadicHandler(name string, fn func(x, y float64) float64) OpHandler {
	return func(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if len(inputs) == 0 {
			return nil, fmt.Errorf("%s requires at least 1 input", name)
		}
		result := inputs[0]
		for _, in := range inputs[1:] {
			var err error
			if result, err = binary(result, in, fn); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		return one(result), nil
	}
}

// handleDiv truncates toward zero for integer tensors, like ONNX Runtime.
func handleDiv(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("div", inputs, 2, 2); err != nil {
		return nil, err
	}
	isFloat := inputs[0].DType().IsFloat()
	result, err := binary(inputs[0], inputs[1], func(x, y float64) float64 {
		if isFloat {
			return x / y
		}
		if y == 0 {
			return 0
		}
		return math.Trunc(x / y)
	})
	if err != nil {
		return nil, fmt.Errorf("div: %w", err)
	}
	return one(result), nil
}

// handleMatMul implements numpy.matmul for rank >= 1 with batch broadcasting.
func handleMatMul(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("matMul", inputs, 2, 2); err != nil {
		return nil, err
	}
	result, err := matmul(inputs[0], inputs[1])
	if err != nil {
		return nil, fmt.Errorf("matMul: %w", err)
	}
	return one(result), nil
}

func matmul(a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	aShape, bShape := a.Shape().Clone(), b.Shape().Clone()
	if len(aShape) == 0 || len(bShape) == 0 {
		return nil, fmt.Errorf("scalars are not allowed")
	}
	// Promote vectors the numpy way, and drop the added axis afterwards.
	squeezeA, squeezeB := len(aShape) == 1, len(bShape) == 1
	if squeezeA {
		aShape = tensor.Shape{1, aShape[0]}
	}
	if squeezeB {
		bShape = tensor.Shape{bShape[0], 1}
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	k2, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions differ: %v x %v", a.Shape(), b.Shape())
	}

	batch, err := tensor.BroadcastShapes(aShape[:len(aShape)-2], bShape[:len(bShape)-2])
	if err != nil {
		return nil, err
	}
	aBatch := broadcastStrides(aShape[:len(aShape)-2], batch)
	bBatch := broadcastStrides(bShape[:len(bShape)-2], batch)

	av, bv := a.Float64s(), b.Float64s()
	out := make([]float64, batch.NumElements()*m*n)
	idx := make([]int, len(batch))
	for bi := 0; bi < batch.NumElements(); bi++ {
		aOff, bOff := 0, 0
		for d := range idx {
			aOff += idx[d] * aBatch[d]
			bOff += idx[d] * bBatch[d]
		}
		aOff *= m * k
		bOff *= k * n
		o := out[bi*m*n:]
		for i := 0; i < m; i++ {
			for p := 0; p < k; p++ {
				x := av[aOff+i*k+p]
				if x == 0 {
					continue
				}
				row := bv[bOff+p*n : bOff+p*n+n]
				for j, y := range row {
					o[i*n+j] += x * y
				}
			}
		}
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < batch[d] {
				break
			}
			idx[d] = 0
		}
	}

	outShape := append(batch.Clone(), m, n)
	switch {
	case squeezeA && squeezeB:
		outShape = outShape[:len(outShape)-2]
	case squeezeA:
		outShape = append(outShape[:len(outShape)-2], n)
	case squeezeB:
		outShape = outShape[:len(outShape)-1]
	}
	return tensor.FromFloat64s(outShape, a.DType(), out)
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A*B + beta*C.
func handleGemm(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("gemm", inputs, 2, 3); err != nil {
		return nil, err
	}

	alpha := float64(GetAttrFloat(node, "alpha", 1.0))
	beta := float64(GetAttrFloat(node, "beta", 1.0))
	a, b := inputs[0], inputs[1]

	var err error
	if GetAttrInt(node, "transA", 0) != 0 {
		if a, err = permute(a, []int{1, 0}); err != nil {
			return nil, fmt.Errorf("gemm: %w", err)
		}
	}
	if GetAttrInt(node, "transB", 0) != 0 {
		if b, err = permute(b, []int{1, 0}); err != nil {
			return nil, fmt.Errorf("gemm: %w", err)
		}
	}

	result, err := matmul(a, b)
	if err != nil {
		return nil, fmt.Errorf("gemm: %w", err)
	}

	if alpha != 1.0 {
		if result, err = unary(result, func(x float64) float64 { return alpha * x }); err != nil {
			return nil, fmt.Errorf("gemm: %w", err)
		}
	}

	if c := optional(inputs, 2); c != nil && beta != 0 {
		result, err = binary(result, c, func(x, y float64) float64 { return x + beta*y })
		if err != nil {
			return nil, fmt.Errorf("gemm bias: %w", err)
		}
	}

	return one(result), nil
}
