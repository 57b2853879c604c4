package inspect

import (
	"errors"
	"fmt"

	"github.com/born-ml/onnx-inspect/internal/onnx"
)

// ElemType is an ONNX tensor element type code (TensorProto.DataType).
type ElemType int32

// String returns the numpy-style name, e.g. "float32".
func (t ElemType) String() string {
	return onnx.ElemTypeName(int32(t))
}

// TensorString returns the runtime-style name, e.g. "tensor(float)".
func (t ElemType) TensorString() string {
	switch int32(t) {
	case onnx.TensorProtoFloat:
		return "tensor(float)"
	case onnx.TensorProtoDouble:
		return "tensor(double)"
	case onnx.TensorProtoString:
		return "tensor(string)"
	case onnx.TensorProtoUndefined:
		return "tensor(undefined)"
	default:
		return "tensor(" + t.String() + ")"
	}
}

// TensorSpec is a declared graph input or output.
type TensorSpec struct {
	Name     string
	ElemType ElemType
	Shape    []Dim
	// HasShape is false when the rank itself is unknown.
	HasShape bool
}

// GraphNode is one node of the computation graph.
type GraphNode struct {
	OpType  string
	Name    string
	Inputs  []string
	Outputs []string
}

// Initializer is a named constant tensor stored in the model.
type Initializer struct {
	Name     string
	ElemType ElemType
	Shape    []int64
	RawData  []byte
}

// MetadataEntry is one custom key/value pair attached to the model.
type MetadataEntry struct {
	Key   string
	Value string
}

// ShapeInference records whether inference ran and what it could not do.
type ShapeInference struct {
	Enabled  bool
	Warnings []string
}

// Model is everything the inspector reports about one model file.
type Model struct {
	Path            string
	IRVersion       int64
	OpsetVersion    int64
	ModelVersion    int64
	Producer        string
	ProducerVersion string
	GraphName       string
	Domain          string
	Description     string
	// RuntimeVersion is set for session views backed by an execution engine.
	RuntimeVersion string

	Metadata     []MetadataEntry
	Inputs       []TensorSpec
	Outputs      []TensorSpec
	Initializers []Initializer
	Nodes        []GraphNode

	// HasGraph is false for session views: initializers and nodes are not
	// available and are left out of reports.
	HasGraph       bool
	ShapeInference ShapeInference

	proto *onnx.ModelProto
}

// Sentinel errors for models the runner cannot drive.
var (
	ErrNoInputs  = errors.New("model declares no inputs")
	ErrNoOutputs = errors.New("model declares no outputs")
)

// LoadError reports a model file that is missing or cannot be decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadOptions configures LoadGraph.
type LoadOptions struct {
	// InferShapes fills in missing value shapes before the specs are built.
	InferShapes bool
}

// LoadGraph parses the model at path and returns its full graph view.
// Inputs that are also initializers are dropped. Shape inference problems
// are recorded in Model.ShapeInference and never fail the load.
func LoadGraph(path string, opts LoadOptions) (*Model, error) {
	proto, err := onnx.ParseFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if proto.Graph == nil {
		return nil, &LoadError{Path: path, Err: onnx.ErrNoGraph}
	}

	m := &Model{
		Path:            path,
		IRVersion:       proto.IRVersion,
		OpsetVersion:    proto.OpsetVersion(),
		ModelVersion:    proto.ModelVersion,
		Producer:        proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		GraphName:       proto.Graph.Name,
		Domain:          proto.Domain,
		Description:     proto.DocString,
		HasGraph:        true,
		proto:           proto,
	}
	for _, kv := range proto.MetadataProps {
		m.Metadata = append(m.Metadata, MetadataEntry{Key: kv.Key, Value: kv.Value})
	}

	if opts.InferShapes {
		m.ShapeInference = ShapeInference{
			Enabled:  true,
			Warnings: onnx.InferShapes(proto),
		}
	}

	graph := proto.Graph
	for _, in := range graph.RuntimeInputs() {
		m.Inputs = append(m.Inputs, specFromValueInfo(&in))
	}
	for i := range graph.Outputs {
		m.Outputs = append(m.Outputs, specFromValueInfo(&graph.Outputs[i]))
	}
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		m.Initializers = append(m.Initializers, Initializer{
			Name:     init.Name,
			ElemType: ElemType(init.DataType),
			Shape:    append([]int64{}, init.Dims...),
			RawData:  init.RawData,
		})
	}
	for i := range graph.Nodes {
		n := &graph.Nodes[i]
		m.Nodes = append(m.Nodes, GraphNode{
			OpType:  n.OpType,
			Name:    n.Name,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
		})
	}
	return m, nil
}

// OpCounts tallies the operator types used by the graph. It returns nil for
// session views.
func (m *Model) OpCounts() []onnx.OpCount {
	if m.proto == nil || m.proto.Graph == nil {
		return nil
	}
	return onnx.CountOps(m.proto.Graph)
}

func specFromValueInfo(vi *onnx.ValueInfoProto) TensorSpec {
	spec := TensorSpec{Name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return spec
	}
	tt := vi.Type.TensorType
	spec.ElemType = ElemType(tt.ElemType)
	if tt.Shape == nil {
		return spec
	}
	spec.HasShape = true
	spec.Shape = make([]Dim, len(tt.Shape.Dims))
	for i, d := range tt.Shape.Dims {
		switch {
		case d.DimParam != "":
			spec.Shape[i] = SymbolicName(d.DimParam)
		case d.HasDimValue:
			spec.Shape[i] = FixedSize(d.DimValue)
		default:
			spec.Shape[i] = Unknown()
		}
	}
	return spec
}
