package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestInspectNativeSession(t *testing.T) {
	model := onnxtest.Identity(onnxtest.D(1), onnxtest.D(10), onnxtest.D(2), onnxtest.D(2))
	model.Metadata = [][2]string{{"labels", "wall"}}
	path := onnxtest.WriteFile(t, model)

	out, err := execute(t, path, "--engine", "native", "--test-run")
	require.NoError(t, err)

	assert.Contains(t, out, "Runtime version: native executor")
	assert.Contains(t, out, "  x: dtype=tensor(float), shape=[1, 10, 2, 2]\n")
	assert.Contains(t, out, "=== METADATA ===\n  labels: wall\n")
	assert.Contains(t, out, "Producer: onnxtest\nGraph name: identity\n")
	assert.NotContains(t, out, "=== INITIALIZERS ===")
	assert.NotContains(t, out, "=== NODES ===")
	assert.Contains(t, out, "Predefined wall class (index 9):")
}

func TestInspectMissingArgument(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestNoInferIsNotAFlag(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(1)))
	_, err := execute(t, path, "--engine", "native", "--no-infer")
	assert.ErrorContains(t, err, "unknown flag")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "onnx-inspect-rt ")
}
