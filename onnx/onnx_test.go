package onnx_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
	"github.com/born-ml/onnx-inspect/internal/tensor"
	"github.com/born-ml/onnx-inspect/onnx"
)

// mockEngine implements the onnx.Engine interface for testing.
type mockEngine struct {
	calls   int
	runFunc func(x *tensor.RawTensor) (*tensor.RawTensor, error)
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Run(_ context.Context, _, _ string, x *tensor.RawTensor, _ string) (*tensor.RawTensor, error) {
	m.calls++
	if m.runFunc != nil {
		return m.runFunc(x)
	}
	// Default: return input as-is.
	return x, nil
}

// TestEngineInterface verifies that mockEngine implements onnx.Engine.
func TestEngineInterface(_ *testing.T) {
	var _ onnx.Engine = &mockEngine{}
}

func identityModel(t *testing.T) string {
	t.Helper()
	return onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.P("batch_size"), onnxtest.D(3), onnxtest.P("height"), onnxtest.P("width")))
}

func TestInspect(t *testing.T) {
	var buf bytes.Buffer
	err := onnx.Inspect(context.Background(), &buf, identityModel(t), onnx.Options{InferShapes: true})
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"=== INPUTS ===", "=== OUTPUTS ===", "=== NODES ===", "Applied shape inference"} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "RUNTIME TEST") {
		t.Error("runtime test ran without TestRun")
	}
}

func TestInspectWithEngine(t *testing.T) {
	// Custom engine: every output value is 1.
	mock := &mockEngine{runFunc: func(x *tensor.RawTensor) (*tensor.RawTensor, error) {
		y := x.Clone()
		for i := range y.AsFloat32() {
			y.AsFloat32()[i] = 1
		}
		return y, nil
	}}

	var buf bytes.Buffer
	err := onnx.Inspect(context.Background(), &buf, identityModel(t), onnx.Options{
		TestRun: true,
		Dims:    map[string]int{"height": 4, "width": 4},
		Engine:  mock,
	})
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("engine ran %d times, want 1", mock.calls)
	}

	out := buf.String()
	if !strings.Contains(out, "shape [1, 3, 4, 4]...") {
		t.Errorf("dimension overrides not applied:\n%s", out)
	}
	if !strings.Contains(out, "  Mean: 1\n") {
		t.Errorf("statistics do not reflect engine output:\n%s", out)
	}
}

func TestInspectEngineFailure(t *testing.T) {
	mock := &mockEngine{runFunc: func(*tensor.RawTensor) (*tensor.RawTensor, error) {
		return nil, errors.New("out of memory")
	}}
	wall := 0

	var buf bytes.Buffer
	err := onnx.Inspect(context.Background(), &buf, identityModel(t), onnx.Options{TestRun: true, Engine: mock, WallClass: &wall})
	if err != nil {
		t.Fatalf("runtime failures must not be returned, got %v", err)
	}
	if !strings.Contains(buf.String(), "Runtime test failed: out of memory\n") {
		t.Errorf("missing failure line:\n%s", buf.String())
	}
}

func TestInspectMissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := onnx.Inspect(context.Background(), &buf, filepath.Join(t.TempDir(), "missing.onnx"), onnx.Options{})

	var loadErr *onnx.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Inspect() error = %v, want *LoadError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be printed on load failure, got:\n%s", buf.String())
	}
}

func TestGetModelInfo(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(2))
	model.Nodes = append(model.Nodes, onnxtest.Node{OpType: "FancyOp", Inputs: []string{"y"}, Outputs: []string{"z"}})
	path := onnxtest.WriteFile(t, model)

	info, err := onnx.GetModelInfo(path)
	if err != nil {
		t.Fatalf("GetModelInfo() error = %v", err)
	}
	if info.ProducerName != "onnxtest" || info.OpsetVersion != 13 || info.IRVersion != 8 {
		t.Errorf("unexpected header: %+v", info)
	}
	if len(info.InputNames) != 1 || info.InputNames[0] != "x" {
		t.Errorf("InputNames = %v, want [x]", info.InputNames)
	}
	if len(info.Operators) != 2 {
		t.Errorf("Operators = %v, want 2 entries", info.Operators)
	}
	if len(info.Unsupported) != 1 || info.Unsupported[0] != "FancyOp" {
		t.Errorf("Unsupported = %v, want [FancyOp]", info.Unsupported)
	}
}

func TestParseFile(t *testing.T) {
	proto, err := onnx.ParseFile(identityModel(t))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if proto.Graph == nil || len(proto.Graph.Nodes) != 1 {
		t.Fatalf("unexpected graph: %+v", proto.Graph)
	}
}

func TestListSupportedOps(t *testing.T) {
	ops := onnx.ListSupportedOps()
	if len(ops) < 40 {
		t.Errorf("ListSupportedOps() returned %d ops, want at least 40", len(ops))
	}
	found := false
	for _, op := range ops {
		if op == "Conv" {
			found = true
		}
	}
	if !found {
		t.Error("Conv should be supported")
	}
}
