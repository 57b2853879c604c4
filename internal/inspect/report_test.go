package inspect

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// section returns the report text between header and the next blank line.
func section(t *testing.T, report, header string) string {
	t.Helper()
	start := strings.Index(report, header)
	require.GreaterOrEqual(t, start, 0, "missing %q in:\n%s", header, report)
	body := report[start+len(header):]
	if end := strings.Index(body, "\n\n"); end >= 0 {
		body = body[:end]
	}
	return body
}

func TestReportGraphView(t *testing.T) {
	m, err := LoadGraph(onnxtest.WriteFile(t, biasModel()), LoadOptions{InferShapes: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.Model(m)
	require.NoError(t, r.Err())
	out := buf.String()

	assert.Contains(t, out, "Loaded ONNX model: "+m.Path+"\n")
	assert.Contains(t, out, "  IR version: 7\n")
	assert.Contains(t, out, "  Opset version: 13\n")
	assert.Contains(t, out, "  Producer: pytorch 2.1.0\n")
	assert.Contains(t, out, "  Model version: 3\n")
	assert.Contains(t, out, "Applied shape inference\n")

	inputs := section(t, out, "=== INPUTS ===")
	assert.Equal(t, "\n  x: dtype=float32, shape=[batch_size, 2]", inputs)
	assert.NotContains(t, inputs, "b:")

	assert.Equal(t, "\n  y: dtype=float32, shape=[batch_size, 2]", section(t, out, "=== OUTPUTS ==="))
	assert.Equal(t, "\n  b: dtype=float32, shape=[2]", section(t, out, "=== INITIALIZERS ==="))
	assert.Equal(t,
		"\n0000: op_type=Add\n       inputs:  [x, b]\n       outputs: [y]",
		section(t, out, "=== NODES ==="))
	assert.Contains(t, out, "\nTotal nodes: 1\n")
	assert.NotContains(t, out, "=== METADATA ===")
}

func TestReportNoInference(t *testing.T) {
	m, err := LoadGraph(onnxtest.WriteFile(t, biasModel()), LoadOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(&buf).Model(m)
	assert.NotContains(t, buf.String(), "shape inference")
	assert.Contains(t, buf.String(), "  y: dtype=float32, shape=unknown\n")
}

func TestReportInferenceWarnings(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(4))
	model.Nodes = append(model.Nodes, onnxtest.Node{
		Name: "mystery", OpType: "MysteryOp", Inputs: []string{"y"}, Outputs: []string{"z"},
	})
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{InferShapes: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(&buf).Model(m)
	assert.Contains(t, buf.String(), "Applied shape inference with 1 warning(s):\n  node mystery (MysteryOp): ")
	assert.Contains(t, buf.String(), "Total nodes: 2")
}

func TestReportSessionView(t *testing.T) {
	s, err := NewGraphSession(onnxtest.WriteFile(t, biasModel()))
	require.NoError(t, err)
	m := FromSession(s)

	var buf bytes.Buffer
	NewReporter(&buf).Model(m)
	out := buf.String()

	assert.Contains(t, out, "Runtime version: native executor (")
	assert.Equal(t, "\n  x: dtype=tensor(float), shape=[batch_size, 2]", section(t, out, "=== INPUTS ==="))
	assert.Equal(t, "\n  classes: 12\n  author: lab", section(t, out, "=== METADATA ==="))
	assert.Contains(t, out, "Producer: pytorch\nGraph name: bias\nDomain: \nDescription: \n")
	assert.NotContains(t, out, "=== INITIALIZERS ===")
	assert.NotContains(t, out, "=== NODES ===")
	assert.NotContains(t, out, "Total nodes")
}

func TestReportSessionViewWithoutMetadata(t *testing.T) {
	s, err := NewGraphSession(onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(1))))
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(&buf).Model(FromSession(s))
	assert.NotContains(t, buf.String(), "=== METADATA ===")
	assert.Contains(t, buf.String(), "Graph name: identity\n")
}

func TestReportRuntimeZeros(t *testing.T) {
	m := loadIdentity(t, onnxtest.D(-1), onnxtest.D(3), onnxtest.D(32), onnxtest.D(32))
	outcome := NewRunner(&NativeEngine{}, nil).Run(context.Background(), m)

	var buf bytes.Buffer
	NewReporter(&buf).RuntimeTest(outcome)
	out := buf.String()

	assert.Contains(t, out, "\n=== RUNTIME TEST ===\n")
	assert.Contains(t, out, "Running dummy inference on input `x` shape [1, 3, 32, 32]...\n")
	assert.Contains(t, out, "  Output `y` shape: [1, 3, 32, 32]\n")
	assert.Contains(t, out, "\nOutput statistics:\n  Min: 0\n  Max: 0\n  Mean: 0\n  Standard deviation: 0\n")
	assert.Contains(t, out, "\nFirst few values of first channel:\n[0 0 0 0 0 0 0 0 0 0]\n")
	assert.Contains(t, out, "\nClass probability analysis:\n")
	assert.Contains(t, out, "  Class 0: mean activation = 0.000000\n")
	// Three channels only: no wall class section.
	assert.NotContains(t, out, "Predefined wall class")
}

// classResult returns a [1, classes, 2, 2] output where channel c holds c.
func classResult(classes int) RunOutcome {
	values := make([]float64, 0, classes*4)
	for c := range classes {
		for range 4 {
			values = append(values, float64(c))
		}
	}
	return RunOutcome{Result: &RuntimeResult{
		InputName:  "image",
		OutputName: "logits",
		InputShape: []int{1, 3, 32, 32},
		Shape:      []int{1, classes, 2, 2},
		DType:      tensor.Float32,
		Values:     values,
	}}
}

func TestReportClassRanking(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf).RuntimeTest(classResult(10))
	out := buf.String()

	assert.Contains(t, out, "  Min: 0\n  Max: 9\n  Mean: 4.5\n")
	assert.Contains(t, out, "\nFirst few values of first channel:\n[0 0 0 0]\n")
	assert.Contains(t, out,
		"Top 5 most active classes (potential wall or important structure classes):\n"+
			"  Class 9: mean activation = 9.000000\n"+
			"  Class 8: mean activation = 8.000000\n"+
			"  Class 7: mean activation = 7.000000\n"+
			"  Class 6: mean activation = 6.000000\n"+
			"  Class 5: mean activation = 5.000000\n")
	assert.Contains(t, out,
		"\nPredefined wall class (index 9):\n"+
			"  Mean activation: 9.000000\n"+
			"  Rank among all classes: 1 out of 10\n")
}

func TestReportWallClassOverride(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.WallClass = 2
	r.RuntimeTest(classResult(10))
	assert.Contains(t, buf.String(), "Predefined wall class (index 2):\n  Mean activation: 2.000000\n  Rank among all classes: 8 out of 10\n")

	buf.Reset()
	r.WallClass = 12
	r.RuntimeTest(classResult(10))
	assert.NotContains(t, buf.String(), "Predefined wall class")
}

func TestReportRuntimeFailure(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(1), onnxtest.D(4))
	model.Nodes[0].OpType = "FancyOp"
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(&buf).RuntimeTest(NewRunner(&NativeEngine{}, nil).Run(context.Background(), m))
	out := buf.String()

	assert.Contains(t, out, "Running dummy inference on input `x` shape [1, 4]...\n")
	assert.Contains(t, out, "Runtime test failed: node id (FancyOp): unsupported operator: FancyOp\n")
	assert.NotContains(t, out, "Output statistics")

	buf.Reset()
	NewReporter(&buf).RuntimeTest(RunOutcome{Err: &RuntimeExecutionError{Err: ErrNoInputs}})
	assert.Equal(t, "\n=== RUNTIME TEST ===\nRuntime test failed: model declares no inputs\n", buf.String())
}

func TestReportOpsTable(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(2))
	model.Nodes = append(model.Nodes,
		onnxtest.Node{Name: "r1", OpType: "Relu", Inputs: []string{"y"}, Outputs: []string{"a"}},
		onnxtest.Node{Name: "r2", OpType: "Relu", Inputs: []string{"a"}, Outputs: []string{"b"}},
		onnxtest.Node{Name: "f", OpType: "FancyOp", Inputs: []string{"b"}, Outputs: []string{"c"}},
	)
	m, err := LoadGraph(onnxtest.WriteFile(t, model), LoadOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.OpsTable(m)
	require.NoError(t, r.Err())
	out := buf.String()

	assert.Contains(t, out, "=== OPERATORS ===")
	assert.Regexp(t, `Relu\s+\|\s+2\s+\|\s+yes`, out)
	assert.Regexp(t, `FancyOp\s+\|\s+1\s+\|\s+no`, out)
	assert.Less(t, strings.Index(out, "Relu"), strings.Index(out, "FancyOp"))

	// Session views have no graph to count.
	buf.Reset()
	r.OpsTable(&Model{})
	assert.Empty(t, buf.String())
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestReporterStickyError(t *testing.T) {
	w := &failWriter{}
	r := NewReporter(w)
	r.RuntimeTest(classResult(10))
	require.EqualError(t, r.Err(), "disk full")
	assert.Equal(t, 1, w.n)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0.1", formatValue(float64(float32(0.1)), tensor.Float32))
	assert.Equal(t, "0.1", formatValue(0.1, tensor.Float64))
	assert.Equal(t, "-2.5", formatValue(-2.5, tensor.Int64))
	assert.Equal(t, "1e-07", formatValue(1e-7, tensor.Float64))
}
