package ortsession

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/onnx"
	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// libraryPath returns the onnxruntime library to test against or skips.
func libraryPath(t *testing.T) string {
	t.Helper()
	lib := os.Getenv("ONNXRUNTIME_LIB")
	if lib == "" {
		t.Skip("ONNXRUNTIME_LIB not set")
	}
	return lib
}

func TestValidateProviders(t *testing.T) {
	assert.NoError(t, ValidateProviders(nil))
	assert.NoError(t, ValidateProviders([]string{"cpu", "CUDA", "coreml"}))
	assert.ErrorIs(t, ValidateProviders([]string{"tpu"}), ErrUnknownProvider)
}

func TestSpecsFromInfo(t *testing.T) {
	infos := []ort.InputOutputInfo{{
		Name:       "image",
		Dimensions: ort.NewShape(-1, 3, -1, -1),
		DataType:   ort.TensorElementDataTypeFloat,
	}}
	declared := map[string][]onnx.DimensionProto{
		"image": {{DimParam: "batch_size"}, {DimValue: 3, HasDimValue: true}, {DimParam: "height"}, {}},
	}

	specs := specsFromInfo(infos, declared)
	require.Len(t, specs, 1)
	assert.Equal(t, "image", specs[0].Name)
	assert.Equal(t, "tensor(float)", specs[0].ElemType.TensorString())
	assert.Equal(t, []inspect.Dim{
		inspect.SymbolicName("batch_size"), inspect.FixedSize(3), inspect.SymbolicName("height"), inspect.Unknown(),
	}, specs[0].Shape)

	// Without declared names every dynamic dimension is unknown.
	specs = specsFromInfo(infos, nil)
	assert.Equal(t, inspect.Unknown(), specs[0].Shape[0])
	assert.Equal(t, []int{1, 3, 1, 1}, inspect.NewResolver(nil).Resolve(specs[0].Shape))
}

func TestShapeConversion(t *testing.T) {
	s := toShape(tensor.Shape{1, 3, 32, 32})
	assert.Equal(t, ort.NewShape(1, 3, 32, 32), s)
	assert.Equal(t, tensor.Shape{1, 3, 32, 32}, fromShape(s))
}

func TestOpenAndRun(t *testing.T) {
	lib := libraryPath(t)

	model := onnxtest.Identity(onnxtest.P("batch_size"), onnxtest.D(3), onnxtest.P("height"), onnxtest.P("width"))
	model.Metadata = [][2]string{{"labels", "wall,floor"}}
	path := onnxtest.WriteFile(t, model)

	s, err := Open(path, Options{LibraryPath: lib, Providers: []string{ProviderCPU}})
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	assert.NotEmpty(t, s.RuntimeVersion())
	require.Len(t, s.Inputs(), 1)
	assert.Equal(t, []inspect.Dim{
		inspect.SymbolicName("batch_size"), inspect.FixedSize(3), inspect.SymbolicName("height"), inspect.SymbolicName("width"),
	}, s.Inputs()[0].Shape)
	assert.Equal(t, "onnxtest", s.Metadata().Producer)
	assert.Equal(t, "identity", s.Metadata().GraphName)
	assert.Equal(t, []inspect.MetadataEntry{{Key: "labels", Value: "wall,floor"}}, s.Metadata().Custom)

	m := inspect.FromSession(s)
	outcome := inspect.NewRunner(s, nil).Run(context.Background(), m)
	require.True(t, outcome.OK(), "run failed: %v", outcome.Err)
	assert.Equal(t, []int{1, 3, 32, 32}, outcome.Result.Shape)
	assert.Equal(t, inspect.Stats{}, inspect.Summarize(outcome.Result.Values))
}

func TestOpenMissingFile(t *testing.T) {
	lib := libraryPath(t)

	_, err := Open(filepath.Join(t.TempDir(), "missing.onnx"), Options{LibraryPath: lib})
	var loadErr *inspect.LoadError
	require.ErrorAs(t, err, &loadErr)
}
