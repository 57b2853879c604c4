package onnx

import (
	"context"
	"encoding/binary"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/onnx/operators"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// Model is a parsed ONNX graph prepared for CPU execution.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	tensors      map[string]*tensor.RawTensor // initializers
	inputNames   []string
	outputNames  []string
	sortedNodes  []NodeProto
	opsetVersion int64
}

// InputNames returns the runtime input names (initializers excluded).
func (m *Model) InputNames() []string {
	return m.inputNames
}

// OutputNames returns the graph output names.
func (m *Model) OutputNames() []string {
	return m.outputNames
}

// OpsetVersion returns the default-domain opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Proto returns the underlying parsed model.
func (m *Model) Proto() *ModelProto {
	return m.proto
}

// ForwardNamed runs the graph with named inputs and returns the requested
// outputs. With no names requested every graph output is returned. Nodes only
// run when they feed a requested output. ctx is checked between nodes.
func (m *Model) ForwardNamed(
	ctx context.Context, inputs map[string]*tensor.RawTensor, outputNames ...string,
) (map[string]*tensor.RawTensor, error) {
	if len(outputNames) == 0 {
		outputNames = m.outputNames
	}

	tensors := make(map[string]*tensor.RawTensor, len(m.tensors)+len(inputs))
	for name, t := range m.tensors {
		tensors[name] = t
	}
	for name, t := range inputs {
		tensors[name] = t
	}
	for _, inputName := range m.inputNames {
		if _, ok := tensors[inputName]; !ok {
			return nil, fmt.Errorf("missing input: %s", inputName)
		}
	}

	needed := m.requiredNodes(outputNames)
	opCtx := &operators.Context{Opset: m.opsetVersion}
	for nodeIdx := range m.sortedNodes {
		if !needed[nodeIdx] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		node := &m.sortedNodes[nodeIdx]
		nodeInputs := make([]*tensor.RawTensor, len(node.Inputs))
		for i, inputName := range node.Inputs {
			if inputName == "" {
				continue
			}
			t, ok := tensors[inputName]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, inputName)
			}
			nodeInputs[i] = t
		}

		opNode, err := nodeProtoToOperatorNode(node)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		outputs, err := m.registry.Execute(opCtx, opNode, nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		klog.V(2).Infof("node %04d %s %q -> %v", nodeIdx, node.OpType, node.Name, outputShapes(outputs))

		for i, outputName := range node.Outputs {
			if i < len(outputs) && outputName != "" {
				tensors[outputName] = outputs[i]
			}
		}
	}

	result := make(map[string]*tensor.RawTensor, len(outputNames))
	for _, outputName := range outputNames {
		t, ok := tensors[outputName]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", outputName)
		}
		result[outputName] = t
	}
	return result, nil
}

// requiredNodes marks the sorted nodes that contribute to the given outputs.
func (m *Model) requiredNodes(outputs []string) []bool {
	producer := make(map[string]int)
	for i := range m.sortedNodes {
		for _, out := range m.sortedNodes[i].Outputs {
			producer[out] = i
		}
	}

	needed := make([]bool, len(m.sortedNodes))
	stack := append([]string(nil), outputs...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i, ok := producer[name]
		if !ok || needed[i] {
			continue
		}
		needed[i] = true
		stack = append(stack, m.sortedNodes[i].Inputs...)
	}
	return needed
}

func outputShapes(ts []*tensor.RawTensor) []tensor.Shape {
	shapes := make([]tensor.Shape, len(ts))
	for i, t := range ts {
		if t != nil {
			shapes[i] = t.Shape()
		}
	}
	return shapes
}

// compile decodes initializers and orders the nodes.
func (m *Model) compile() error {
	graph := m.proto.Graph
	if graph == nil {
		return ErrNoGraph
	}

	m.tensors = make(map[string]*tensor.RawTensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		m.tensors[init.Name] = t
	}

	for _, in := range graph.RuntimeInputs() {
		m.inputNames = append(m.inputNames, in.Name)
	}
	for i := range graph.Outputs {
		m.outputNames = append(m.outputNames, graph.Outputs[i].Name)
	}

	m.sortedNodes = topologicalSort(graph.Nodes)
	m.opsetVersion = m.proto.OpsetVersion()
	return nil
}

// tensorFromProto converts a TensorProto to a RawTensor. raw_data wins over
// the typed legacy fields; a tensor with no data at all is an error.
//
//nolint:gocyclo,cyclop // one branch per legacy storage field.
func tensorFromProto(proto *TensorProto) (*tensor.RawTensor, error) {
	shape := make(tensor.Shape, len(proto.Dims))
	for i, dim := range proto.Dims {
		shape[i] = int(dim)
	}

	dtype, ok := operators.ElemTypeToDataType(proto.DataType)
	if !ok {
		return nil, fmt.Errorf("unsupported data type %s", ElemTypeName(proto.DataType))
	}

	if len(proto.RawData) > 0 {
		return tensor.FromBytes(shape, dtype, proto.RawData)
	}

	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	n := t.NumElements()
	fill := func(got int) error {
		if got != n {
			return fmt.Errorf("has %d values for shape %v", got, shape)
		}
		return nil
	}

	switch {
	case len(proto.FloatData) > 0 && dtype == tensor.Float32:
		if err := fill(len(proto.FloatData)); err != nil {
			return nil, err
		}
		copy(t.AsFloat32(), proto.FloatData)
	case len(proto.DoubleData) > 0 && dtype == tensor.Float64:
		if err := fill(len(proto.DoubleData)); err != nil {
			return nil, err
		}
		copy(t.AsFloat64(), proto.DoubleData)
	case len(proto.Int64Data) > 0 && dtype == tensor.Int64:
		if err := fill(len(proto.Int64Data)); err != nil {
			return nil, err
		}
		copy(t.AsInt64(), proto.Int64Data)
	case len(proto.Int32Data) > 0:
		if err := fill(len(proto.Int32Data)); err != nil {
			return nil, err
		}
		if dtype == tensor.Float16 {
			// float16 bits are stored in the low half of each int32.
			data := t.Data()
			for i, v := range proto.Int32Data {
				binary.LittleEndian.PutUint16(data[2*i:], uint16(v)) //nolint:gosec // G115: bit pattern.
			}
			break
		}
		vals := make([]float64, n)
		for i, v := range proto.Int32Data {
			vals[i] = float64(v)
		}
		return tensor.FromFloat64s(shape, dtype, vals)
	default:
		return nil, fmt.Errorf("tensor %q of shape %v has no data", proto.Name, shape)
	}
	return t, nil
}

// nodeProtoToOperatorNode converts NodeProto to operators.Node, decoding
// tensor-valued attributes.
func nodeProtoToOperatorNode(proto *NodeProto) (*operators.Node, error) {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    attr.Name,
			Type:    attr.Type,
			F:       attr.F,
			I:       attr.I,
			S:       attr.S,
			Floats:  attr.Floats,
			Ints:    attr.Ints,
			Strings: attr.Strings,
		}
		if attr.T != nil {
			t, err := tensorFromProto(attr.T)
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
			attrs[i].T = t
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
	}, nil
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents.
func topologicalSort(nodes []NodeProto) []NodeProto {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}

		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}

	return result
}
