package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/ortsession"
)

func load(t *testing.T, flags Flags, args ...string) (*Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	v := Bind(cmd, flags)
	require.NoError(t, cmd.ParseFlags(args))
	return Load(v, "model.onnx")
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(t, Flags{NoInfer: true, Ops: true, DefaultEngine: EngineNative})
	require.NoError(t, err)

	assert.Equal(t, "model.onnx", cfg.ModelPath)
	assert.True(t, cfg.InferShapes)
	assert.False(t, cfg.TestRun)
	assert.False(t, cfg.ShowOps)
	assert.Equal(t, EngineNative, cfg.Engine)
	assert.Equal(t, []string{ortsession.ProviderCPU}, cfg.Providers)
	assert.Equal(t, inspect.DefaultWallClass, cfg.WallClass)
	assert.Empty(t, cfg.Dims)
}

func TestFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(t, Flags{NoInfer: true, Ops: true, DefaultEngine: EngineNative},
		"--no-infer", "--test-run", "--ops", "--engine", "ORT", "--ort-lib", "/opt/ort.so",
		"--providers", "cuda,cpu", "--wall-class", "3", "--dim", "height=64", "--dim", "seq=8")
	require.NoError(t, err)

	assert.False(t, cfg.InferShapes)
	assert.True(t, cfg.TestRun)
	assert.True(t, cfg.ShowOps)
	assert.Equal(t, EngineORT, cfg.Engine)
	assert.Equal(t, "/opt/ort.so", cfg.OrtLib)
	assert.Equal(t, []string{"cuda", "cpu"}, cfg.Providers)
	assert.Equal(t, 3, cfg.WallClass)
	assert.Equal(t, map[string]int{"height": 64, "seq": 8}, cfg.Dims)
	assert.Equal(t, ortsession.Options{LibraryPath: "/opt/ort.so", Providers: []string{"cuda", "cpu"}}, cfg.ORTOptions())
	assert.Equal(t, []int{1, 3, 64, 32}, cfg.Resolver().Resolve([]inspect.Dim{
		inspect.SymbolicName("batch_size"), inspect.FixedSize(3), inspect.SymbolicName("height"), inspect.SymbolicName("width"),
	}))
}

func TestEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ONNX_INSPECT_TEST_RUN", "true")
	t.Setenv("ONNX_INSPECT_ENGINE", "ort")
	t.Setenv("ONNX_INSPECT_DIM", "height=16,width=16")

	cfg, err := load(t, Flags{DefaultEngine: EngineNative})
	require.NoError(t, err)
	assert.True(t, cfg.TestRun)
	assert.Equal(t, EngineORT, cfg.Engine)
	assert.Equal(t, map[string]int{"height": 16, "width": 16}, cfg.Dims)

	// Flags win over the environment.
	cfg, err = load(t, Flags{DefaultEngine: EngineNative}, "--engine", "native")
	require.NoError(t, err)
	assert.Equal(t, EngineNative, cfg.Engine)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onnx-inspect.yaml"),
		[]byte("wall-class: 4\nproviders: [coreml]\n"), 0o600))

	cfg, err := load(t, Flags{DefaultEngine: EngineORT})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WallClass)
	assert.Equal(t, []string{"coreml"}, cfg.Providers)
	assert.Equal(t, EngineORT, cfg.Engine)
}

func TestInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	flags := Flags{DefaultEngine: EngineNative}

	_, err := load(t, flags, "--engine", "tensorrt")
	assert.ErrorContains(t, err, "unknown engine")

	_, err = load(t, flags, "--providers", "tpu")
	assert.ErrorIs(t, err, ortsession.ErrUnknownProvider)

	for _, dim := range []string{"height=0", "height=-2", "height", "=3", "height=big"} {
		_, err = load(t, flags, "--dim", dim)
		assert.ErrorIs(t, err, ErrInvalidDim, dim)
	}
}

func TestParseDims(t *testing.T) {
	dims, err := ParseDims([]string{" batch_size = 4 ", "depth=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"batch_size": 4, "depth": 2}, dims)

	dims, err = ParseDims(nil)
	require.NoError(t, err)
	assert.Empty(t, dims)
}
