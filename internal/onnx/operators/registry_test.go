package operators

import (
	"errors"
	"testing"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	// Operators common in exported vision models.
	essentialOps := []string{
		"Add", "Sub", "Mul", "Div", "MatMul", "Gemm",
		"Relu", "Sigmoid", "Tanh", "Softmax",
		"Reshape", "Transpose", "Flatten", "Concat",
		"Identity", "Dropout", "Constant",
		"Conv", "MaxPool", "GlobalAveragePool", "BatchNormalization", "Resize",
	}

	for _, op := range essentialOps {
		if _, ok := r.Get(op); !ok {
			t.Errorf("Expected operator %s to be registered", op)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("UnknownOp"); ok {
		t.Error("Expected unknown operator to not be found")
	}
}

func TestExecuteUnknownWrapsSentinel(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(&Context{}, &Node{OpType: "NonMaxSuppression"}, nil)
	if !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("Expected ErrUnsupportedOp, got %v", err)
	}
}

func TestSupportedOpsSorted(t *testing.T) {
	r := NewRegistry()
	ops := r.SupportedOps()

	if len(ops) < 40 {
		t.Errorf("Expected at least 40 supported ops, got %d", len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if ops[i-1] > ops[i] {
			t.Fatalf("SupportedOps not sorted at %d: %s > %s", i, ops[i-1], ops[i])
		}
	}
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()

	r.Register("MyCustomOp", func(_ *Context, _ *Node, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		return nil, nil
	})

	if _, ok := r.Get("MyCustomOp"); !ok {
		t.Error("Expected custom operator to be registered")
	}
}

func TestDataTypeRoundTrip(t *testing.T) {
	for _, dt := range []tensor.DataType{
		tensor.Float32, tensor.Float64, tensor.Float16, tensor.Int8, tensor.Int16,
		tensor.Int32, tensor.Int64, tensor.Uint8, tensor.Uint16, tensor.Bool,
	} {
		got, ok := ElemTypeToDataType(DataTypeToElemType(dt))
		if !ok || got != dt {
			t.Errorf("round trip of %s gave %s (ok=%v)", dt, got, ok)
		}
	}
}
