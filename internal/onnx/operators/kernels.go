package operators

import (
	"fmt"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// unary applies fn element-wise, keeping the input dtype.
func unary(x *tensor.RawTensor, fn func(float64) float64) (*tensor.RawTensor, error) {
	vals := x.Float64s()
	for i, v := range vals {
		vals[i] = fn(v)
	}
	return tensor.FromFloat64s(x.Shape(), x.DType(), vals)
}

// binary applies fn with NumPy broadcasting; the result takes a's dtype.
func binary(a, b *tensor.RawTensor, fn func(x, y float64) float64) (*tensor.RawTensor, error) {
	shape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	av, bv := a.Float64s(), b.Float64s()
	as, bs := broadcastStrides(a.Shape(), shape), broadcastStrides(b.Shape(), shape)

	out := make([]float64, shape.NumElements())
	idx := make([]int, len(shape))
	ai, bi := 0, 0
	for i := range out {
		out[i] = fn(av[ai], bv[bi])
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ai += as[d]
			bi += bs[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= as[d] * shape[d]
			bi -= bs[d] * shape[d]
			idx[d] = 0
		}
	}
	return tensor.FromFloat64s(shape, a.DType(), out)
}

// broadcastStrides returns, per axis of out, the stride into in (0 on broadcast axes).
func broadcastStrides(in, out tensor.Shape) []int {
	strides := make([]int, len(out))
	inStrides := in.ComputeStrides()
	offset := len(out) - len(in)
	for d := range out {
		k := d - offset
		if k < 0 || in[k] == 1 {
			continue
		}
		strides[d] = inStrides[k]
	}
	return strides
}

// permute reorders axes: output axis i is input axis perm[i].
func permute(x *tensor.RawTensor, perm []int) (*tensor.RawTensor, error) {
	shape := x.Shape()
	if len(perm) != len(shape) {
		return nil, fmt.Errorf("perm %v does not match rank %d", perm, len(shape))
	}
	seen := make([]bool, len(shape))
	outShape := make(tensor.Shape, len(shape))
	inStrides := shape.ComputeStrides()
	strides := make([]int, len(shape))
	for i, p := range perm {
		if p < 0 || p >= len(shape) || seen[p] {
			return nil, fmt.Errorf("invalid perm %v", perm)
		}
		seen[p] = true
		outShape[i] = shape[p]
		strides[i] = inStrides[p]
	}

	src := x.Float64s()
	out := make([]float64, len(src))
	idx := make([]int, len(outShape))
	si := 0
	for i := range out {
		out[i] = src[si]
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			si += strides[d]
			if idx[d] < outShape[d] {
				break
			}
			si -= strides[d] * outShape[d]
			idx[d] = 0
		}
	}
	return tensor.FromFloat64s(outShape, x.DType(), out)
}

// ints reads an integer tensor input (shape, axes, indices).
func ints(t *tensor.RawTensor) ([]int, error) {
	vals, err := t.Ints()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

func int64sToInts(vals []int64) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}

// scalar reads the first element of t as float64.
func scalar(t *tensor.RawTensor) float64 {
	return t.Float64s()[0]
}
