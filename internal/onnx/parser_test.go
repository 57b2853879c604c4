package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnx-inspect/internal/onnx/onnxtest"
)

func TestParseIdentityModel(t *testing.T) {
	m := onnxtest.Identity(onnxtest.P("batch_size"), onnxtest.D(3), onnxtest.U())
	m.ProducerVersion = "2.1"
	m.ModelVersion = 4

	model, err := Parse(m.Bytes())
	require.NoError(t, err)

	assert.Equal(t, int64(8), model.IRVersion)
	assert.Equal(t, int64(13), model.OpsetVersion())
	assert.Equal(t, "onnxtest", model.ProducerName)
	assert.Equal(t, "2.1", model.ProducerVersion)
	assert.Equal(t, int64(4), model.ModelVersion)
	require.NotNil(t, model.Graph)
	assert.Equal(t, "identity", model.Graph.Name)

	require.Len(t, model.Graph.Nodes, 1)
	node := model.Graph.Nodes[0]
	assert.Equal(t, "Identity", node.OpType)
	assert.Equal(t, []string{"x"}, node.Inputs)
	assert.Equal(t, []string{"y"}, node.Outputs)

	require.Len(t, model.Graph.Inputs, 1)
	tt := model.Graph.Inputs[0].Type.TensorType
	assert.Equal(t, int32(TensorProtoFloat), tt.ElemType)
	require.Len(t, tt.Shape.Dims, 3)
	assert.Equal(t, "batch_size", tt.Shape.Dims[0].DimParam)
	assert.False(t, tt.Shape.Dims[0].HasDimValue)
	assert.True(t, tt.Shape.Dims[1].HasDimValue)
	assert.Equal(t, int64(3), tt.Shape.Dims[1].DimValue)
	assert.Equal(t, DimensionProto{}, tt.Shape.Dims[2])
}

func TestParseInitializerAndRuntimeInputs(t *testing.T) {
	m := &onnxtest.Model{
		IRVersion: 7,
		Opset:     11,
		Nodes: []onnxtest.Node{
			{OpType: "MatMul", Inputs: []string{"x", "w"}, Outputs: []string{"y"}},
		},
		Inputs: []onnxtest.ValueInfo{
			{Name: "x", ElemType: onnxtest.Float, Dims: []onnxtest.Dim{onnxtest.D(1), onnxtest.D(2)}},
			{Name: "w", ElemType: onnxtest.Float, Dims: []onnxtest.Dim{onnxtest.D(2), onnxtest.D(2)}},
		},
		Outputs: []onnxtest.ValueInfo{{Name: "y", ElemType: onnxtest.Float}},
		Initializers: []onnxtest.Tensor{
			{Name: "w", ElemType: onnxtest.Float, Dims: []int64{2, 2}, Raw: onnxtest.RawFloat32(1, 2, 3, 4)},
		},
	}

	model, err := Parse(m.Bytes())
	require.NoError(t, err)

	g := model.Graph
	require.Len(t, g.Initializers, 1)
	assert.Equal(t, "w", g.Initializers[0].Name)
	assert.Equal(t, []int64{2, 2}, g.Initializers[0].Dims)
	assert.Len(t, g.Initializers[0].RawData, 16)

	assert.Len(t, g.Inputs, 2)
	runtime := g.RuntimeInputs()
	require.Len(t, runtime, 1)
	assert.Equal(t, "x", runtime[0].Name)
}

func TestParseAttributes(t *testing.T) {
	m := &onnxtest.Model{
		Nodes: []onnxtest.Node{{
			OpType:  "Conv",
			Inputs:  []string{"x", "w"},
			Outputs: []string{"y"},
			Attrs: []onnxtest.Attr{
				onnxtest.Ints("kernel_shape", 3, 3),
				onnxtest.Ints("pads", 1, 1, 1, 1),
				onnxtest.Int("group", 1),
				onnxtest.Flt("alpha", 0.5),
				onnxtest.Str("auto_pad", "NOTSET"),
				{Name: "value", T: &onnxtest.Tensor{ElemType: onnxtest.Int64, Dims: []int64{2}, Int64s: []int64{-1, 7}}},
			},
		}},
	}

	model, err := Parse(m.Bytes())
	require.NoError(t, err)
	attrs := model.Graph.Nodes[0].Attributes
	require.Len(t, attrs, 6)

	assert.Equal(t, []int64{3, 3}, attrs[0].Ints)
	assert.Equal(t, int32(AttributeProtoInts), attrs[0].Type)
	assert.Equal(t, []int64{1, 1, 1, 1}, attrs[1].Ints)
	assert.Equal(t, int64(1), attrs[2].I)
	assert.InDelta(t, 0.5, attrs[3].F, 1e-9)
	assert.Equal(t, "NOTSET", string(attrs[4].S))
	require.NotNil(t, attrs[5].T)
	assert.Equal(t, []int64{-1, 7}, attrs[5].T.Int64Data)
}

func TestParseMetadataInFileOrder(t *testing.T) {
	m := onnxtest.Identity(onnxtest.D(1))
	m.Metadata = [][2]string{{"zeta", "1"}, {"alpha", "2"}}

	model, err := Parse(m.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []StringStringEntry{{Key: "zeta", Value: "1"}, {Key: "alpha", Value: "2"}}, model.MetadataProps)
}

func TestParseFile(t *testing.T) {
	path := onnxtest.WriteFile(t, onnxtest.Identity(onnxtest.D(2)))

	model, err := ParseFile(path)
	require.NoError(t, err)
	assert.NotNil(t, model.Graph)
}

func TestParseInvalidFile(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.onnx"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse([]byte("this is not an onnx model"))
	assert.Error(t, err)

	_, err = Parse([]byte{0x08, 0xff, 0xff})
	assert.Error(t, err, "truncated varint")
}

func TestParseEmptyDataHasNoGraph(t *testing.T) {
	model, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, model.Graph)
}

func TestElemTypeName(t *testing.T) {
	assert.Equal(t, "float32", ElemTypeName(TensorProtoFloat))
	assert.Equal(t, "int64", ElemTypeName(TensorProtoInt64))
	assert.Equal(t, "float16", ElemTypeName(TensorProtoFloat16))
	assert.Equal(t, "undefined", ElemTypeName(99))
}
