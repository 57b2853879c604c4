package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.P("batch_size"), onnxtest.D(3), onnxtest.D(32), onnxtest.D(32)))

	out, err := execute(t, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded ONNX model: "+path)
	assert.Contains(t, out, "Applied shape inference")
	assert.Contains(t, out, "=== INPUTS ===\n  x: dtype=float32, shape=[batch_size, 3, 32, 32]\n")
	assert.Contains(t, out, "=== NODES ===\n0000: op_type=Identity\n")
	assert.Contains(t, out, "Total nodes: 1")
	assert.NotContains(t, out, "RUNTIME TEST")
	assert.NotContains(t, out, "=== OPERATORS ===")
}

func TestInspectTestRun(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(-1), onnxtest.D(3), onnxtest.D(32), onnxtest.D(32)))

	out, err := execute(t, path, "--test-run", "--no-infer", "--ops")
	require.NoError(t, err)
	assert.NotContains(t, out, "Applied shape inference")
	assert.Contains(t, out, "=== OPERATORS ===")
	assert.Contains(t, out, "Running dummy inference on input `x` shape [1, 3, 32, 32]...")
	assert.Contains(t, out, "  Min: 0\n  Max: 0\n  Mean: 0\n  Standard deviation: 0\n")
}

func TestInspectRuntimeFailureExitsZero(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(2))
	model.Nodes[0].OpType = "FancyOp"
	path := onnxtest.WriteFile(t, model)

	out, err := execute(t, path, "--test-run")
	require.NoError(t, err)
	assert.Contains(t, out, "=== INPUTS ===")
	assert.Contains(t, out, "Runtime test failed: ")
}

func TestInspectMissingModel(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "missing.onnx"))

	var loadErr *inspect.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.NotContains(t, out, "=== INPUTS ===")
	assert.NotContains(t, out, "=== OUTPUTS ===")
}

func TestInspectMissingArgument(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "onnx-inspect <model-path>")
}

func TestInspectBadDim(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(1)))
	_, err := execute(t, path, "--dim", "height=0")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Regexp(t, `^onnx-inspect v\S+\n$`, out)
}
