// Package operators implements the ONNX operators the inspector's native
// executor can run.
//
// Kernels are plain CPU loops over float64 views of the inputs; results are
// written back in the input's element type. They favour coverage of the ops
// common in exported vision models over speed: the executor runs exactly one
// forward pass per invocation.
package operators

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// ErrUnsupportedOp is returned for operator types with no registered handler.
var ErrUnsupportedOp = errors.New("unsupported operator")

// OpHandler processes an ONNX node and returns output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error)

// Context carries per-run execution settings for operators.
type Context struct {
	Opset int64 // default-domain opset of the model
}

// Registry maps ONNX operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerNNOps()

	return r
}

// Register adds a custom operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs.
func (r *Registry) Execute(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, node.OpType)
	}
	return handler(ctx, node, inputs)
}

// SupportedOps returns all supported operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func wantInputs(op string, inputs []*tensor.RawTensor, minN, maxN int) error {
	if len(inputs) < minN || len(inputs) > maxN {
		if minN == maxN {
			return fmt.Errorf("%s requires %d inputs, got %d", op, minN, len(inputs))
		}
		return fmt.Errorf("%s requires %d to %d inputs, got %d", op, minN, maxN, len(inputs))
	}
	for i := 0; i < minN; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: required input %d is missing", op, i)
		}
	}
	return nil
}

// optional returns inputs[i] or nil when it is absent.
func optional(inputs []*tensor.RawTensor, i int) *tensor.RawTensor {
	if i < len(inputs) {
		return inputs[i]
	}
	return nil
}

func one(t *tensor.RawTensor) []*tensor.RawTensor {
	return []*tensor.RawTensor{t}
}
