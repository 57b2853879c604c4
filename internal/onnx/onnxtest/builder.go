// Package onnxtest builds serialized ONNX models for tests.
//
// Models are described with plain structs and encoded with protowire, so
// tests need neither protoc output nor model files checked into the repo.
package onnxtest

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX element types used by tests.
const (
	Float   int32 = 1
	Uint8   int32 = 2
	Int32   int32 = 6
	Int64   int32 = 7
	Bool    int32 = 9
	Float16 int32 = 10
	Double  int32 = 11
)

// Dim is one declared dimension: a fixed size, a symbolic name, or neither
// (unknown).
type Dim struct {
	Value int64
	Param string
	Fixed bool
}

// D returns a fixed dimension. Zero and negative sizes are encoded as given.
func D(n int64) Dim { return Dim{Value: n, Fixed: true} }

// P returns a symbolic dimension.
func P(name string) Dim { return Dim{Param: name} }

// U returns an unknown dimension.
func U() Dim { return Dim{} }

// ValueInfo declares a graph input, output or intermediate value.
type ValueInfo struct {
	Name     string
	ElemType int32
	Dims     []Dim
	NoShape  bool // omit the shape entirely (unknown rank)
	NoType   bool // omit the type entirely
}

// Tensor is an initializer or tensor attribute value. Exactly one data
// field should be set.
type Tensor struct {
	Name     string
	ElemType int32
	Dims     []int64
	Raw      []byte
	Floats   []float32
	Int64s   []int64
}

// Attr is a node attribute; the attribute type follows from the set field.
type Attr struct {
	Name   string
	F      *float32
	I      *int64
	S      string
	Ints   []int64
	Floats []float32
	T      *Tensor
}

// Int returns an INT attribute.
func Int(name string, v int64) Attr { return Attr{Name: name, I: &v} }

// Flt returns a FLOAT attribute.
func Flt(name string, v float32) Attr { return Attr{Name: name, F: &v} }

// Str returns a STRING attribute.
func Str(name, v string) Attr { return Attr{Name: name, S: v} }

// Ints returns an INTS attribute.
func Ints(name string, v ...int64) Attr { return Attr{Name: name, Ints: v} }

// Node is one graph node.
type Node struct {
	Name    string
	OpType  string
	Inputs  []string
	Outputs []string
	Attrs   []Attr
}

// Model describes a whole ModelProto.
type Model struct {
	IRVersion       int64
	Opset           int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	Doc             string
	Metadata        [][2]string

	NoGraph      bool
	GraphName    string
	Nodes        []Node
	Inputs       []ValueInfo
	Outputs      []ValueInfo
	ValueInfo    []ValueInfo
	Initializers []Tensor
}

// Bytes encodes the model.
func (m *Model) Bytes() []byte {
	var b []byte
	if m.IRVersion != 0 {
		b = appendVarint(b, 1, uint64(m.IRVersion)) //nolint:gosec // G115: test data.
	}
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = appendVarint(b, 5, uint64(m.ModelVersion)) //nolint:gosec // G115: test data.
	}
	b = appendString(b, 6, m.Doc)
	if !m.NoGraph {
		b = appendMessage(b, 7, m.graph())
	}
	if m.Opset != 0 {
		var op []byte
		op = appendVarint(op, 2, uint64(m.Opset)) //nolint:gosec // G115: test data.
		b = appendMessage(b, 8, op)
	}
	for _, kv := range m.Metadata {
		var e []byte
		e = appendString(e, 1, kv[0])
		e = appendString(e, 2, kv[1])
		b = appendMessage(b, 14, e)
	}
	return b
}

func (m *Model) graph() []byte {
	var g []byte
	for i := range m.Nodes {
		g = appendMessage(g, 1, m.Nodes[i].bytes())
	}
	g = appendString(g, 2, m.GraphName)
	for i := range m.Initializers {
		g = appendMessage(g, 5, m.Initializers[i].bytes())
	}
	for i := range m.Inputs {
		g = appendMessage(g, 11, m.Inputs[i].bytes())
	}
	for i := range m.Outputs {
		g = appendMessage(g, 12, m.Outputs[i].bytes())
	}
	for i := range m.ValueInfo {
		g = appendMessage(g, 13, m.ValueInfo[i].bytes())
	}
	return g
}

func (n *Node) bytes() []byte {
	var b []byte
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	for i := range n.Attrs {
		b = appendMessage(b, 5, n.Attrs[i].bytes())
	}
	return b
}

func (a *Attr) bytes() []byte {
	b := appendString(nil, 1, a.Name)
	var typ uint64
	switch {
	case a.F != nil:
		typ = 1
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(*a.F))
	case a.I != nil:
		typ = 2
		b = appendVarint(b, 3, uint64(*a.I)) //nolint:gosec // G115: two's complement on the wire.
	case a.T != nil:
		typ = 4
		b = appendMessage(b, 5, a.T.bytes())
	case a.Floats != nil:
		typ = 6
		var packed []byte
		for _, f := range a.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 7, packed)
	case a.Ints != nil:
		typ = 7
		var packed []byte
		for _, v := range a.Ints {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: see above.
		}
		b = appendMessage(b, 8, packed)
	default:
		typ = 3
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, a.S)
	}
	return appendVarint(b, 20, typ)
}

func (t *Tensor) bytes() []byte {
	var b []byte
	for _, d := range t.Dims {
		b = appendVarint(b, 1, uint64(d)) //nolint:gosec // G115: test data.
	}
	b = appendVarint(b, 2, uint64(t.ElemType)) //nolint:gosec // G115: enum value.
	if len(t.Floats) > 0 {
		var packed []byte
		for _, f := range t.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 4, packed)
	}
	if len(t.Int64s) > 0 {
		var packed []byte
		for _, v := range t.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement.
		}
		b = appendMessage(b, 7, packed)
	}
	b = appendString(b, 8, t.Name)
	if len(t.Raw) > 0 {
		b = appendMessage(b, 9, t.Raw)
	}
	return b
}

func (v *ValueInfo) bytes() []byte {
	b := appendString(nil, 1, v.Name)
	if v.NoType {
		return b
	}
	var tt []byte
	tt = appendVarint(tt, 1, uint64(v.ElemType)) //nolint:gosec // G115: enum value.
	if !v.NoShape {
		var shape []byte
		for _, d := range v.Dims {
			var dim []byte
			switch {
			case d.Param != "":
				dim = appendString(dim, 2, d.Param)
			case d.Fixed:
				dim = appendVarint(dim, 1, uint64(d.Value)) //nolint:gosec // G115: test data.
			}
			shape = appendMessage(shape, 1, dim)
		}
		// An empty shape message still means rank 0, so always emit it.
		tt = protowire.AppendTag(tt, 2, protowire.BytesType)
		tt = protowire.AppendBytes(tt, shape)
	}
	tp := appendMessage(nil, 1, tt)
	return appendMessage(b, 2, tp)
}

// RawFloat32 encodes values as little-endian raw_data.
func RawFloat32(values ...float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// WriteFile encodes m into a temporary .onnx file and returns its path.
func WriteFile(tb testing.TB, m *Model) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "model.onnx")
	if err := os.WriteFile(path, m.Bytes(), 0o600); err != nil {
		tb.Fatalf("write model: %v", err)
	}
	return path
}

// Identity returns x -> Identity -> y with both values declared as float32
// tensors of the given dims.
func Identity(dims ...Dim) *Model {
	return &Model{
		IRVersion:    8,
		Opset:        13,
		ProducerName: "onnxtest",
		GraphName:    "identity",
		Nodes:        []Node{{Name: "id", OpType: "Identity", Inputs: []string{"x"}, Outputs: []string{"y"}}},
		Inputs:       []ValueInfo{{Name: "x", ElemType: Float, Dims: dims}},
		Outputs:      []ValueInfo{{Name: "y", ElemType: Float, Dims: dims}},
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
