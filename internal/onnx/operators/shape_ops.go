package operators

import (
	"fmt"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", handleReshape)
	r.Register("Transpose", handleTranspose)
	r.Register("Flatten", handleFlatten)
	r.Register("Squeeze", handleSqueeze)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Concat", handleConcat)
	r.Register("Gather", handleGather)
	r.Register("Slice", handleSlice)
}

func handleReshape(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("reshape", inputs, 2, 2); err != nil {
		return nil, err
	}
	shape, err := ints(inputs[1])
	if err != nil {
		return nil, fmt.Errorf("reshape: shape input: %w", err)
	}
	result, err := inputs[0].Reshape(shape)
	if err != nil {
		return nil, err
	}
	return one(result), nil
}

func handleTranspose(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("transpose", inputs, 1, 1); err != nil {
		return nil, err
	}
	rank := len(inputs[0].Shape())
	perm := int64sToInts(GetAttrInts(node, "perm"))
	if len(perm) == 0 {
		// Default reverses the axes.
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}
	result, err := permute(inputs[0], perm)
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}
	return one(result), nil
}

func handleFlatten(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("flatten", inputs, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis > len(shape) {
		return nil, fmt.Errorf("flatten: axis %d out of range for rank %d", axis, len(shape))
	}
	outer := shape[:axis].NumElements()
	result, err := x.Reshape(tensor.Shape{outer, x.NumElements() / outer})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	return one(result), nil
}

// axesOf reads axes from the second input (opset 13+) or the attribute.
func axesOf(node *Node, inputs []*tensor.RawTensor) ([]int, error) {
	if t := optional(inputs, 1); t != nil {
		return ints(t)
	}
	return int64sToInts(GetAttrInts(node, "axes")), nil
}

func handleSqueeze(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("squeeze", inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	axes, err := axesOf(node, inputs)
	if err != nil {
		return nil, fmt.Errorf("squeeze: %w", err)
	}

	drop := make([]bool, len(shape))
	if len(axes) == 0 {
		for i, d := range shape {
			drop[i] = d == 1
		}
	}
	for _, a := range axes {
		ax, err := tensor.NormalizeAxis(a, len(shape))
		if err != nil {
			return nil, fmt.Errorf("squeeze: %w", err)
		}
		if shape[ax] != 1 {
			return nil, fmt.Errorf("squeeze: axis %d has size %d", a, shape[ax])
		}
		drop[ax] = true
	}

	out := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		if !drop[i] {
			out = append(out, d)
		}
	}
	result, err := x.Reshape(out)
	if err != nil {
		return nil, fmt.Errorf("squeeze: %w", err)
	}
	return one(result), nil
}

func handleUnsqueeze(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("unsqueeze", inputs, 1, 2); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()
	axes, err := axesOf(node, inputs)
	if err != nil {
		return nil, fmt.Errorf("unsqueeze: %w", err)
	}

	rank := len(shape) + len(axes)
	insert := make([]bool, rank)
	for _, a := range axes {
		ax, err := tensor.NormalizeAxis(a, rank)
		if err != nil {
			return nil, fmt.Errorf("unsqueeze: %w", err)
		}
		if insert[ax] {
			return nil, fmt.Errorf("unsqueeze: duplicate axis %d", a)
		}
		insert[ax] = true
	}

	out := make(tensor.Shape, rank)
	next := 0
	for i := range out {
		if insert[i] {
			out[i] = 1
			continue
		}
		out[i] = shape[next]
		next++
	}
	result, err := x.Reshape(out)
	if err != nil {
		return nil, fmt.Errorf("unsqueeze: %w", err)
	}
	return one(result), nil
}

func handleConcat(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("concat requires at least 1 input")
	}
	first := inputs[0].Shape()
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", 0)), len(first))
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	out := first.Clone()
	out[axis] = 0
	for i, in := range inputs {
		s := in.Shape()
		if len(s) != len(first) {
			return nil, fmt.Errorf("concat: input %d has rank %d, want %d", i, len(s), len(first))
		}
		for d := range s {
			if d != axis && s[d] != first[d] {
				return nil, fmt.Errorf("concat: input %d shape %v incompatible with %v", i, s, first)
			}
		}
		out[axis] += s[axis]
	}

	// Copy contiguous [axis:] blocks per outer index.
	outer := first[:axis].NumElements()
	vals := make([]float64, 0, out.NumElements())
	srcs := make([][]float64, len(inputs))
	for i, in := range inputs {
		srcs[i] = in.Float64s()
	}
	for o := 0; o < outer; o++ {
		for i, in := range inputs {
			block := in.Shape()[axis:].NumElements()
			vals = append(vals, srcs[i][o*block:(o+1)*block]...)
		}
	}

	result, err := tensor.FromFloat64s(out, inputs[0].DType(), vals)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	return one(result), nil
}

func handleGather(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("gather", inputs, 2, 2); err != nil {
		return nil, err
	}
	data, indices := inputs[0], inputs[1]
	shape := data.Shape()
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", 0)), len(shape))
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	idx, err := ints(indices)
	if err != nil {
		return nil, fmt.Errorf("gather: indices: %w", err)
	}

	// Output shape: data[:axis] + indices + data[axis+1:].
	out := append(append(shape[:axis].Clone(), indices.Shape()...), shape[axis+1:]...)
	outer := shape[:axis].NumElements()
	inner := shape[axis+1:].NumElements()
	src := data.Float64s()
	vals := make([]float64, 0, out.NumElements())
	for o := 0; o < outer; o++ {
		for _, i := range idx {
			if i < 0 {
				i += shape[axis]
			}
			if i < 0 || i >= shape[axis] {
				return nil, fmt.Errorf("gather: index %d out of range for axis size %d", i, shape[axis])
			}
			start := (o*shape[axis] + i) * inner
			vals = append(vals, src[start:start+inner]...)
		}
	}

	result, err := tensor.FromFloat64s(out, data.DType(), vals)
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	return one(result), nil
}

// handleSlice supports opset 10+ (inputs) and opset 1 (attributes).
func handleSlice(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := wantInputs("slice", inputs, 1, 5); err != nil {
		return nil, err
	}
	x := inputs[0]
	shape := x.Shape()

	read := func(i int, attr string) ([]int, error) {
		if t := optional(inputs, i); t != nil {
			return ints(t)
		}
		return int64sToInts(GetAttrInts(node, attr)), nil
	}
	starts, err := read(1, "starts")
	if err != nil {
		return nil, fmt.Errorf("slice: starts: %w", err)
	}
	ends, err := read(2, "ends")
	if err != nil {
		return nil, fmt.Errorf("slice: ends: %w", err)
	}
	axes, err := read(3, "axes")
	if err != nil {
		return nil, fmt.Errorf("slice: axes: %w", err)
	}
	var steps []int
	if t := optional(inputs, 4); t != nil {
		if steps, err = ints(t); err != nil {
			return nil, fmt.Errorf("slice: steps: %w", err)
		}
	}
	if len(starts) != len(ends) {
		return nil, fmt.Errorf("slice: %d starts but %d ends", len(starts), len(ends))
	}

	begin := make([]int, len(shape))
	step := make([]int, len(shape))
	out := shape.Clone()
	for d := range step {
		step[d] = 1
	}
	for i := range starts {
		ax := i
		if len(axes) > 0 {
			if ax, err = tensor.NormalizeAxis(axes[i], len(shape)); err != nil {
				return nil, fmt.Errorf("slice: %w", err)
			}
		}
		st := 1
		if len(steps) > i {
			st = steps[i]
		}
		if st == 0 {
			return nil, fmt.Errorf("slice: step cannot be 0")
		}
		b, e := clampSlice(starts[i], ends[i], st, shape[ax])
		begin[ax], step[ax] = b, st
		n := 0
		if st > 0 && e > b {
			n = (e - b + st - 1) / st
		} else if st < 0 && b > e {
			n = (b - e - st - 1) / -st
		}
		if n == 0 {
			return nil, fmt.Errorf("slice: empty result on axis %d", ax)
		}
		out[ax] = n
	}

	src := x.Float64s()
	strides := shape.ComputeStrides()
	vals := make([]float64, out.NumElements())
	idx := make([]int, len(out))
	for i := range vals {
		off := 0
		for d, k := range idx {
			off += (begin[d] + k*step[d]) * strides[d]
		}
		vals[i] = src[off]
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < out[d] {
				break
			}
			idx[d] = 0
		}
	}

	result, err := tensor.FromFloat64s(out, x.DType(), vals)
	if err != nil {
		return nil, fmt.Errorf("slice: %w", err)
	}
	return one(result), nil
}

// clampSlice resolves negative and out-of-range bounds the ONNX way.
func clampSlice(start, end, step, dim int) (int, int) {
	if start < 0 {
		start += dim
	}
	if end < 0 {
		end += dim
	}
	if step > 0 {
		start = min(max(start, 0), dim)
		end = min(max(end, 0), dim)
	} else {
		start = min(max(start, 0), dim-1)
		end = min(max(end, -1), dim-1)
	}
	return start, end
}
