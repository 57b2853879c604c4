package onnx

import (
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/onnx/operators"
)

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// StrictMode fails on unsupported operators (default: false, the failure
	// surfaces when the node runs).
	StrictMode bool

	// CustomOps provides custom operator handlers.
	CustomOps map[string]operators.OpHandler
}

// DefaultLoadOptions returns default loading options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// Load parses an ONNX file and prepares it for execution.
//
// Example:
//
//	model, err := onnx.Load("segmenter.onnx")
//	if err != nil {
//	    return err
//	}
//	outputs, err := model.ForwardNamed(ctx, map[string]*tensor.RawTensor{"input": x})
func Load(path string, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX file: %w", err)
	}

	return LoadFromProto(proto, opt)
}

// LoadFromBytes prepares an ONNX model held in memory.
func LoadFromBytes(data []byte, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}

	return LoadFromProto(proto, opt)
}

// LoadFromProto prepares an already parsed model.
func LoadFromProto(proto *ModelProto, opt LoadOptions) (*Model, error) {
	registry := operators.NewRegistry()
	for opType, handler := range opt.CustomOps {
		registry.Register(opType, handler)
	}

	if opt.StrictMode {
		if err := validateOperators(proto.Graph, registry); err != nil {
			return nil, err
		}
	}

	model := &Model{
		proto:    proto,
		registry: registry,
	}
	if err := model.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}

	klog.V(1).Infof("compiled graph %q: %d nodes, %d initializers, opset %d",
		proto.Graph.Name, len(model.sortedNodes), len(model.tensors), model.opsetVersion)
	return model, nil
}

// validateOperators checks that all operators are supported.
func validateOperators(graph *GraphProto, registry *operators.Registry) error {
	if graph == nil {
		return ErrNoGraph
	}

	unsupported := UnsupportedOps(graph, registry)
	if len(unsupported) > 0 {
		return fmt.Errorf("%w: %v", operators.ErrUnsupportedOp, unsupported)
	}
	return nil
}

// UnsupportedOps returns the distinct operator types in graph that registry
// cannot run, sorted.
func UnsupportedOps(graph *GraphProto, registry *operators.Registry) []string {
	seen := make(map[string]bool)
	var unsupported []string
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Get(op); ok || seen[op] {
			continue
		}
		seen[op] = true
		unsupported = append(unsupported, op)
	}
	sort.Strings(unsupported)
	return unsupported
}

// OpCount is the number of nodes using one operator type.
type OpCount struct {
	OpType    string
	Count     int
	Supported bool
}

// CountOps tallies operator types in graph, most used first, ties by name.
func CountOps(graph *GraphProto) []OpCount {
	registry := operators.NewRegistry()
	counts := make(map[string]int)
	for i := range graph.Nodes {
		counts[graph.Nodes[i].OpType]++
	}

	out := make([]OpCount, 0, len(counts))
	for op, n := range counts {
		_, ok := registry.Get(op)
		out = append(out, OpCount{OpType: op, Count: n, Supported: ok})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].OpType < out[j].OpType
	})
	return out
}

// ListSupportedOps returns all operators the executor can run.
func ListSupportedOps() []string {
	registry := operators.NewRegistry()
	return registry.SupportedOps()
}
