package onnx

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// InferShapes propagates tensor types through the graph in node order.
//
// Known types come from graph inputs, initializers and existing value_info.
// Each node whose output type can be derived gets a value_info entry, and
// graph outputs with a missing type or unknown dimensions are completed.
// Symbolic dimensions flow through ops that keep them (elementwise ops, the
// batch axis of Conv and pools). Small integer tensors (initializers,
// Constant and Shape outputs) are tracked as values so that the usual
// Shape → Gather → Concat → Reshape chains resolve.
//
// Inference never fails the model: the returned warnings name the nodes that
// could not be typed. The graph is modified in place.
func InferShapes(m *ModelProto) []string {
	g := m.Graph
	if g == nil {
		return []string{ErrNoGraph.Error()}
	}

	inf := &inferrer{
		types:  make(map[string]*TensorTypeProto),
		values: make(map[string][]int64),
	}
	for i := range g.Initializers {
		init := &g.Initializers[i]
		inf.types[init.Name] = tensorProtoType(init)
		if v, ok := intValues(init); ok {
			inf.values[init.Name] = v
		}
	}
	for _, vis := range [][]ValueInfoProto{g.Inputs, g.ValueInfo, g.Outputs} {
		for i := range vis {
			if tt := tensorType(&vis[i]); tt != nil && tt.Shape != nil {
				if _, seen := inf.types[vis[i].Name]; !seen {
					inf.types[vis[i].Name] = tt
				}
			}
		}
	}

	known := make(map[string]bool, len(g.ValueInfo))
	for i := range g.ValueInfo {
		known[g.ValueInfo[i].Name] = true
	}

	var warnings []string
	for i := range g.Nodes {
		node := &g.Nodes[i]
		outs, err := inf.node(node)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("node %s (%s): %v", nodeLabel(node, i), node.OpType, err))
			continue
		}
		for j, tt := range outs {
			if j >= len(node.Outputs) || node.Outputs[j] == "" || tt == nil {
				continue
			}
			name := node.Outputs[j]
			inf.types[name] = mergeTypes(inf.types[name], tt)
			if !known[name] {
				g.ValueInfo = append(g.ValueInfo, ValueInfoProto{
					Name: name,
					Type: &TypeProto{TensorType: inf.types[name]},
				})
				known[name] = true
			}
		}
	}

	for i := range g.Outputs {
		out := &g.Outputs[i]
		tt, ok := inf.types[out.Name]
		if !ok {
			continue
		}
		out.Type = &TypeProto{TensorType: mergeTypes(tensorType(out), tt)}
	}

	klog.V(1).Infof("shape inference: %d typed values, %d warnings", len(inf.types), len(warnings))
	return warnings
}

func nodeLabel(n *NodeProto, i int) string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("#%d", i)
}

func tensorType(vi *ValueInfoProto) *TensorTypeProto {
	if vi == nil || vi.Type == nil {
		return nil
	}
	return vi.Type.TensorType
}

func tensorProtoType(t *TensorProto) *TensorTypeProto {
	dims := make([]DimensionProto, len(t.Dims))
	for i, d := range t.Dims {
		dims[i] = fixedDim(d)
	}
	return &TensorTypeProto{ElemType: t.DataType, Shape: &TensorShapeProto{Dims: dims}}
}

// intValues returns the contents of small 0-D or 1-D integer tensors.
func intValues(t *TensorProto) ([]int64, bool) {
	if len(t.Dims) > 1 || (t.DataType != TensorProtoInt64 && t.DataType != TensorProtoInt32) {
		return nil, false
	}
	x, err := tensorFromProto(t)
	if err != nil {
		return nil, false
	}
	v, err := x.Ints()
	return v, err == nil
}

func fixedDim(n int64) DimensionProto {
	return DimensionProto{DimValue: n, HasDimValue: true}
}

func (d DimensionProto) fixed() bool {
	return d.HasDimValue && d.DimValue > 0
}

func (d DimensionProto) same(o DimensionProto) bool {
	if d.fixed() && o.fixed() {
		return d.DimValue == o.DimValue
	}
	return d.DimParam != "" && d.DimParam == o.DimParam
}

// mergeTypes completes old with whatever inferred knows; existing fixed and
// symbolic dimensions are kept.
func mergeTypes(old, inferred *TensorTypeProto) *TensorTypeProto {
	if old == nil || old.Shape == nil {
		if old != nil && old.ElemType != TensorProtoUndefined && inferred.ElemType == TensorProtoUndefined {
			inferred.ElemType = old.ElemType
		}
		return inferred
	}
	merged := &TensorTypeProto{ElemType: old.ElemType, Shape: &TensorShapeProto{}}
	if merged.ElemType == TensorProtoUndefined {
		merged.ElemType = inferred.ElemType
	}
	merged.Shape.Dims = append(merged.Shape.Dims, old.Shape.Dims...)
	if inferred.Shape != nil && len(inferred.Shape.Dims) == len(old.Shape.Dims) {
		for i, d := range merged.Shape.Dims {
			if !d.fixed() && d.DimParam == "" {
				merged.Shape.Dims[i] = inferred.Shape.Dims[i]
			}
		}
	}
	return merged
}

type inferrer struct {
	types  map[string]*TensorTypeProto
	values map[string][]int64
}

// in returns the known type of input i, or nil.
func (inf *inferrer) in(n *NodeProto, i int) *TensorTypeProto {
	if i >= len(n.Inputs) || n.Inputs[i] == "" {
		return nil
	}
	return inf.types[n.Inputs[i]]
}

func (inf *inferrer) value(n *NodeProto, i int) ([]int64, bool) {
	if i >= len(n.Inputs) || n.Inputs[i] == "" {
		return nil, false
	}
	v, ok := inf.values[n.Inputs[i]]
	return v, ok
}

func dims(tt *TensorTypeProto) []DimensionProto {
	return tt.Shape.Dims
}

func withDims(elem int32, ds ...DimensionProto) *TensorTypeProto {
	return &TensorTypeProto{ElemType: elem, Shape: &TensorShapeProto{Dims: ds}}
}

func nodeAttr(n *NodeProto, name string) *AttributeProto {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

func attrInt(n *NodeProto, name string, def int64) int64 {
	if a := nodeAttr(n, name); a != nil {
		return a.I
	}
	return def
}

func attrInts(n *NodeProto, name string) []int64 {
	if a := nodeAttr(n, name); a != nil {
		return a.Ints
	}
	return nil
}

func normAxis(axis int64, rank int) (int, error) {
	if axis < 0 {
		axis += int64(rank)
	}
	if axis < 0 || axis >= int64(rank) {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return int(axis), nil
}

var elementwiseOps = map[string]bool{
	"Relu": true, "Sigmoid": true, "Tanh": true, "Gelu": true, "LeakyRelu": true,
	"HardSigmoid": true, "HardSwish": true, "Softmax": true, "LogSoftmax": true,
	"Clip": true, "Sqrt": true, "Exp": true, "Log": true, "Neg": true, "Abs": true,
	"Reciprocal": true, "Floor": true, "Ceil": true, "Identity": true,
	"Dropout": true, "BatchNormalization": true,
}

var broadcastOps = map[string]bool{
	"Add": true, "Sub": true, "Mul": true, "Div": true, "Pow": true,
	"Max": true, "Min": true, "Sum": true, "PRelu": true,
}

var errMissingInput = errors.New("input type unknown")

// node infers output types for one node. A nil entry means "unknown".
//
//nolint:gocyclo,cyclop,funlen // one case per operator family.
func (inf *inferrer) node(n *NodeProto) ([]*TensorTypeProto, error) {
	if len(n.Outputs) == 0 {
		return nil, nil
	}
	switch {
	case n.OpType == "Constant":
		return inf.constant(n)
	case elementwiseOps[n.OpType]:
		x := inf.in(n, 0)
		if x == nil {
			return nil, errMissingInput
		}
		if v, ok := inf.value(n, 0); ok && n.OpType == "Identity" {
			inf.values[n.Outputs[0]] = v
		}
		out := []*TensorTypeProto{x}
		if n.OpType == "Dropout" && len(n.Outputs) > 1 {
			out = append(out, withDims(TensorProtoBool, dims(x)...))
		}
		return out, nil
	case broadcastOps[n.OpType]:
		return inf.broadcast(n)
	}

	switch n.OpType {
	case "Cast":
		x := inf.in(n, 0)
		if x == nil {
			return nil, errMissingInput
		}
		if v, ok := inf.value(n, 0); ok {
			inf.values[n.Outputs[0]] = v
		}
		to := int32(attrInt(n, "to", TensorProtoFloat)) //nolint:gosec // G115: enum value.
		return []*TensorTypeProto{withDims(to, dims(x)...)}, nil
	case "Shape":
		return inf.shape(n)
	case "MatMul":
		return inf.matmul(n)
	case "Gemm":
		return inf.gemm(n)
	case "Conv":
		return inf.conv(n)
	case "MaxPool", "AveragePool":
		return inf.pool(n)
	case "GlobalAveragePool", "GlobalMaxPool":
		x := inf.in(n, 0)
		if x == nil {
			return nil, errMissingInput
		}
		ds := append([]DimensionProto(nil), dims(x)...)
		if len(ds) < 3 {
			return nil, fmt.Errorf("expected rank >= 3, got %d", len(ds))
		}
		for i := 2; i < len(ds); i++ {
			ds[i] = fixedDim(1)
		}
		return []*TensorTypeProto{withDims(x.ElemType, ds...)}, nil
	case "Flatten":
		return inf.flatten(n)
	case "Transpose":
		return inf.transpose(n)
	case "Reshape":
		return inf.reshape(n)
	case "Squeeze", "Unsqueeze":
		return inf.squeeze(n)
	case "Concat":
		return inf.concat(n)
	case "Gather":
		return inf.gather(n)
	default:
		return nil, errors.New("no shape rule")
	}
}

func (inf *inferrer) constant(n *NodeProto) ([]*TensorTypeProto, error) {
	if a := nodeAttr(n, "value"); a != nil && a.T != nil {
		if v, ok := intValues(a.T); ok {
			inf.values[n.Outputs[0]] = v
		}
		return []*TensorTypeProto{tensorProtoType(a.T)}, nil
	}
	if a := nodeAttr(n, "value_ints"); a != nil {
		inf.values[n.Outputs[0]] = a.Ints
		return []*TensorTypeProto{withDims(TensorProtoInt64, fixedDim(int64(len(a.Ints))))}, nil
	}
	if a := nodeAttr(n, "value_int"); a != nil {
		inf.values[n.Outputs[0]] = []int64{a.I}
		return []*TensorTypeProto{withDims(TensorProtoInt64)}, nil
	}
	if nodeAttr(n, "value_float") != nil {
		return []*TensorTypeProto{withDims(TensorProtoFloat)}, nil
	}
	return nil, errors.New("no supported value attribute")
}

func (inf *inferrer) broadcast(n *NodeProto) ([]*TensorTypeProto, error) {
	var out []DimensionProto
	var elem int32
	for i := range n.Inputs {
		x := inf.in(n, i)
		if x == nil {
			return nil, errMissingInput
		}
		if i == 0 {
			out, elem = append([]DimensionProto(nil), dims(x)...), x.ElemType
			continue
		}
		var err error
		if out, err = broadcastDims(out, dims(x)); err != nil {
			return nil, err
		}
	}
	return []*TensorTypeProto{withDims(elem, out...)}, nil
}

func broadcastDims(a, b []DimensionProto) ([]DimensionProto, error) {
	rank := max(len(a), len(b))
	out := make([]DimensionProto, rank)
	for i := 0; i < rank; i++ {
		da, db := fixedDim(1), fixedDim(1)
		if k := len(a) - rank + i; k >= 0 {
			da = a[k]
		}
		if k := len(b) - rank + i; k >= 0 {
			db = b[k]
		}
		switch {
		case da.same(db):
			out[i] = da
		case da.fixed() && da.DimValue == 1:
			out[i] = db
		case db.fixed() && db.DimValue == 1:
			out[i] = da
		case da.fixed() && db.fixed():
			return nil, fmt.Errorf("cannot broadcast dimension %d: %d vs %d", i, da.DimValue, db.DimValue)
		case da.fixed():
			out[i] = da
		case db.fixed():
			out[i] = db
		}
	}
	return out, nil
}

func (inf *inferrer) shape(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	if x == nil {
		return nil, errMissingInput
	}
	ds := dims(x)
	start, end := attrInt(n, "start", 0), attrInt(n, "end", int64(len(ds)))
	if start < 0 {
		start += int64(len(ds))
	}
	if end < 0 {
		end += int64(len(ds))
	}
	start = min(max(start, 0), int64(len(ds)))
	end = min(max(end, start), int64(len(ds)))

	vals := make([]int64, 0, end-start)
	for _, d := range ds[start:end] {
		if !d.fixed() {
			vals = nil
			break
		}
		vals = append(vals, d.DimValue)
	}
	if vals != nil || start == end {
		inf.values[n.Outputs[0]] = vals
	}
	return []*TensorTypeProto{withDims(TensorProtoInt64, fixedDim(end-start))}, nil
}

func (inf *inferrer) matmul(n *NodeProto) ([]*TensorTypeProto, error) {
	a, b := inf.in(n, 0), inf.in(n, 1)
	if a == nil || b == nil {
		return nil, errMissingInput
	}
	ad, bd := dims(a), dims(b)
	if len(ad) == 0 || len(bd) == 0 {
		return nil, errors.New("scalar operand")
	}
	var out []DimensionProto
	switch {
	case len(ad) == 1 && len(bd) == 1:
	case len(ad) == 1:
		out = append(append(out, bd[:len(bd)-2]...), bd[len(bd)-1])
	case len(bd) == 1:
		out = append(out, ad[:len(ad)-1]...)
	default:
		batch, err := broadcastDims(ad[:len(ad)-2], bd[:len(bd)-2])
		if err != nil {
			return nil, err
		}
		out = append(append(batch, ad[len(ad)-2]), bd[len(bd)-1])
	}
	return []*TensorTypeProto{withDims(a.ElemType, out...)}, nil
}

func (inf *inferrer) gemm(n *NodeProto) ([]*TensorTypeProto, error) {
	a, b := inf.in(n, 0), inf.in(n, 1)
	if a == nil || b == nil {
		return nil, errMissingInput
	}
	ad, bd := dims(a), dims(b)
	if len(ad) != 2 || len(bd) != 2 {
		return nil, errors.New("expected 2-D operands")
	}
	m, nn := ad[0], bd[1]
	if attrInt(n, "transA", 0) != 0 {
		m = ad[1]
	}
	if attrInt(n, "transB", 0) != 0 {
		nn = bd[0]
	}
	return []*TensorTypeProto{withDims(a.ElemType, m, nn)}, nil
}

// spatial computes one output spatial dimension of a sliding window.
func spatial(in DimensionProto, k, stride, dil, padBegin, padEnd int64, autoPad string) DimensionProto {
	if !in.fixed() {
		return DimensionProto{}
	}
	eff := (k-1)*dil + 1
	switch autoPad {
	case "SAME_UPPER", "SAME_LOWER":
		return fixedDim((in.DimValue + stride - 1) / stride)
	case "VALID":
		return fixedDim((in.DimValue-eff)/stride + 1)
	default:
		return fixedDim((in.DimValue+padBegin+padEnd-eff)/stride + 1)
	}
}

func (inf *inferrer) window(n *NodeProto, x []DimensionProto, kernel []int64) ([]DimensionProto, error) {
	rank := len(x) - 2
	if rank < 1 || len(kernel) != rank {
		return nil, fmt.Errorf("kernel %v does not match input rank %d", kernel, len(x))
	}
	strides, dils, pads := attrInts(n, "strides"), attrInts(n, "dilations"), attrInts(n, "pads")
	autoPad := "NOTSET"
	if a := nodeAttr(n, "auto_pad"); a != nil {
		autoPad = string(a.S)
	}
	out := make([]DimensionProto, rank)
	for i := 0; i < rank; i++ {
		s, d, pb, pe := int64(1), int64(1), int64(0), int64(0)
		if len(strides) == rank {
			s = strides[i]
		}
		if len(dils) == rank {
			d = dils[i]
		}
		if len(pads) == 2*rank {
			pb, pe = pads[i], pads[i+rank]
		}
		if s <= 0 || d <= 0 {
			return nil, errors.New("strides and dilations must be positive")
		}
		out[i] = spatial(x[i+2], kernel[i], s, d, pb, pe, autoPad)
	}
	return out, nil
}

func (inf *inferrer) conv(n *NodeProto) ([]*TensorTypeProto, error) {
	x, w := inf.in(n, 0), inf.in(n, 1)
	if x == nil || w == nil {
		return nil, errMissingInput
	}
	wd := dims(w)
	if len(wd) < 3 {
		return nil, fmt.Errorf("expected weights of rank >= 3, got %d", len(wd))
	}
	kernel := attrInts(n, "kernel_shape")
	if len(kernel) == 0 {
		for _, d := range wd[2:] {
			if !d.fixed() {
				return nil, errors.New("kernel size unknown")
			}
			kernel = append(kernel, d.DimValue)
		}
	}
	sp, err := inf.window(n, dims(x), kernel)
	if err != nil {
		return nil, err
	}
	out := append([]DimensionProto{dims(x)[0], wd[0]}, sp...)
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

func (inf *inferrer) pool(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	if x == nil {
		return nil, errMissingInput
	}
	sp, err := inf.window(n, dims(x), attrInts(n, "kernel_shape"))
	if err != nil {
		return nil, err
	}
	out := append([]DimensionProto{dims(x)[0], dims(x)[1]}, sp...)
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

// product multiplies fixed dims; ok is false if any dim is not fixed.
func product(ds []DimensionProto) (int64, bool) {
	p := int64(1)
	for _, d := range ds {
		if !d.fixed() {
			return 0, false
		}
		p *= d.DimValue
	}
	return p, true
}

func (inf *inferrer) flatten(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	if x == nil {
		return nil, errMissingInput
	}
	ds := dims(x)
	axis := attrInt(n, "axis", 1)
	if axis < 0 {
		axis += int64(len(ds))
	}
	if axis < 0 || axis > int64(len(ds)) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(ds))
	}
	out := []DimensionProto{{}, {}}
	if p, ok := product(ds[:axis]); ok {
		out[0] = fixedDim(p)
	} else if axis == 1 {
		out[0] = ds[0]
	}
	if p, ok := product(ds[axis:]); ok {
		out[1] = fixedDim(p)
	}
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

func (inf *inferrer) transpose(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	if x == nil {
		return nil, errMissingInput
	}
	ds := dims(x)
	perm := attrInts(n, "perm")
	if len(perm) == 0 {
		for i := len(ds) - 1; i >= 0; i-- {
			perm = append(perm, int64(i))
		}
	}
	if len(perm) != len(ds) {
		return nil, fmt.Errorf("perm %v does not match rank %d", perm, len(ds))
	}
	out := make([]DimensionProto, len(ds))
	for i, p := range perm {
		if p < 0 || p >= int64(len(ds)) {
			return nil, fmt.Errorf("invalid perm %v", perm)
		}
		out[i] = ds[p]
	}
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

func (inf *inferrer) reshape(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	target, ok := inf.value(n, 1)
	if x == nil || !ok {
		return nil, errors.New("target shape is not a known constant")
	}
	in := dims(x)
	out := make([]DimensionProto, len(target))
	infer := -1
	known := int64(1)
	for i, t := range target {
		switch {
		case t == -1:
			infer = i
		case t == 0 && attrInt(n, "allowzero", 0) == 0:
			if i >= len(in) {
				return nil, fmt.Errorf("0 at index %d beyond input rank %d", i, len(in))
			}
			out[i] = in[i]
			if in[i].fixed() {
				known *= in[i].DimValue
			} else {
				known = -1
			}
		default:
			out[i] = fixedDim(t)
			if known > 0 {
				known *= t
			}
		}
	}
	if infer >= 0 {
		if total, ok := product(in); ok && known > 0 && total%known == 0 {
			out[infer] = fixedDim(total / known)
		}
	}
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

func (inf *inferrer) squeeze(n *NodeProto) ([]*TensorTypeProto, error) {
	x := inf.in(n, 0)
	if x == nil {
		return nil, errMissingInput
	}
	axes := attrInts(n, "axes")
	if len(n.Inputs) > 1 && n.Inputs[1] != "" {
		v, ok := inf.value(n, 1)
		if !ok {
			return nil, errors.New("axes are not a known constant")
		}
		axes = v
	}
	ds := dims(x)
	if v, ok := inf.value(n, 0); ok {
		inf.values[n.Outputs[0]] = v
	}

	if n.OpType == "Unsqueeze" {
		rank := len(ds) + len(axes)
		insert := make([]bool, rank)
		for _, a := range axes {
			ax, err := normAxis(a, rank)
			if err != nil {
				return nil, err
			}
			insert[ax] = true
		}
		out := make([]DimensionProto, 0, rank)
		next := 0
		for i := 0; i < rank; i++ {
			if insert[i] {
				out = append(out, fixedDim(1))
				continue
			}
			if next >= len(ds) {
				return nil, fmt.Errorf("duplicate axes %v", axes)
			}
			out = append(out, ds[next])
			next++
		}
		return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
	}

	drop := make([]bool, len(ds))
	for _, a := range axes {
		ax, err := normAxis(a, len(ds))
		if err != nil {
			return nil, err
		}
		drop[ax] = true
	}
	var out []DimensionProto
	for i, d := range ds {
		if drop[i] {
			continue
		}
		if len(axes) == 0 && d.fixed() && d.DimValue == 1 {
			continue
		}
		if len(axes) == 0 && !d.fixed() {
			return nil, fmt.Errorf("cannot squeeze unknown dimension %d", i)
		}
		out = append(out, d)
	}
	return []*TensorTypeProto{withDims(x.ElemType, out...)}, nil
}

func (inf *inferrer) concat(n *NodeProto) ([]*TensorTypeProto, error) {
	first := inf.in(n, 0)
	if first == nil {
		return nil, errMissingInput
	}
	out := append([]DimensionProto(nil), dims(first)...)
	axis, err := normAxis(attrInt(n, "axis", 0), len(out))
	if err != nil {
		return nil, err
	}

	var vals []int64
	allValues := true
	for i := range n.Inputs {
		x := inf.in(n, i)
		if x == nil {
			return nil, errMissingInput
		}
		if v, ok := inf.value(n, i); ok {
			vals = append(vals, v...)
		} else {
			allValues = false
		}
		if i == 0 {
			continue
		}
		d := dims(x)
		if len(d) != len(out) {
			return nil, fmt.Errorf("input %d has rank %d, want %d", i, len(d), len(out))
		}
		if out[axis].fixed() && d[axis].fixed() {
			out[axis] = fixedDim(out[axis].DimValue + d[axis].DimValue)
		} else {
			out[axis] = DimensionProto{}
		}
	}
	if allValues && len(out) == 1 {
		inf.values[n.Outputs[0]] = vals
	}
	return []*TensorTypeProto{withDims(first.ElemType, out...)}, nil
}

func (inf *inferrer) gather(n *NodeProto) ([]*TensorTypeProto, error) {
	data, idx := inf.in(n, 0), inf.in(n, 1)
	if data == nil || idx == nil {
		return nil, errMissingInput
	}
	ds := dims(data)
	axis, err := normAxis(attrInt(n, "axis", 0), len(ds))
	if err != nil {
		return nil, err
	}
	out := append(append(append([]DimensionProto(nil), ds[:axis]...), dims(idx)...), ds[axis+1:]...)

	// Gathering from a known 1-D value, e.g. picking the batch size out of Shape.
	if v, ok := inf.value(n, 0); ok && len(ds) == 1 {
		if iv, ok := inf.value(n, 1); ok {
			picked := make([]int64, 0, len(iv))
			for _, i := range iv {
				if i < 0 {
					i += int64(len(v))
				}
				if i < 0 || i >= int64(len(v)) {
					return nil, fmt.Errorf("index %d out of range", i)
				}
				picked = append(picked, v[i])
			}
			inf.values[n.Outputs[0]] = picked
		}
	}
	return []*TensorTypeProto{withDims(data.ElemType, out...)}, nil
}
