package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoGraph is returned when a model file decodes but carries no graph.
var ErrNoGraph = errors.New("model has no graph")

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: path is provided by the user, reading it is the point.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := decodeModel(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// field is one decoded protobuf field; only the member matching typ is set.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	fixed64 uint64
	bytes   []byte
}

// forEachField walks the top-level fields of a message.
func forEachField(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(&f); err != nil {
			return err
		}
	}
	return nil
}

func (f *field) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: unexpected wire type %d", f.num, f.typ)
	}
	return nil
}

func (f *field) str() (string, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func (f *field) i64() (int64, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	return int64(f.varint), nil //nolint:gosec // G115: protobuf int64 is two's complement on the wire.
}

// int64s decodes a repeated varint field in packed or unpacked form.
func (f *field) int64s() ([]int64, error) {
	switch f.typ {
	case protowire.VarintType:
		return []int64{int64(f.varint)}, nil //nolint:gosec // G115: see i64.
	case protowire.BytesType:
		var out []int64
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
			}
			out = append(out, int64(v)) //nolint:gosec // G115: see i64.
			b = b[n:]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected wire type %d for repeated varint", f.num, f.typ)
	}
}

// float32s decodes a repeated float field in packed or unpacked form.
func (f *field) float32s() ([]float32, error) {
	switch f.typ {
	case protowire.Fixed32Type:
		return []float32{math.Float32frombits(f.fixed32)}, nil
	case protowire.BytesType:
		if len(f.bytes)%4 != 0 {
			return nil, fmt.Errorf("field %d: packed float length %d not a multiple of 4", f.num, len(f.bytes))
		}
		out := make([]float32, 0, len(f.bytes)/4)
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			out = append(out, math.Float32frombits(v))
			b = b[n:]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected wire type %d for repeated float", f.num, f.typ)
	}
}

// float64s decodes a repeated double field in packed or unpacked form.
func (f *field) float64s() ([]float64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return []float64{math.Float64frombits(f.fixed64)}, nil
	case protowire.BytesType:
		if len(f.bytes)%8 != 0 {
			return nil, fmt.Errorf("field %d: packed double length %d not a multiple of 8", f.num, len(f.bytes))
		}
		out := make([]float64, 0, len(f.bytes)/8)
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			out = append(out, math.Float64frombits(v))
			b = b[n:]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected wire type %d for repeated double", f.num, f.typ)
	}
}

// sub decodes an embedded message.
func sub[T any](f *field, decode func([]byte, *T) error) (*T, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return nil, err
	}
	msg := new(T)
	if err := decode(f.bytes, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

//nolint:gocognit,gocyclo,cyclop // field-by-field switch over ModelProto.
func decodeModel(b []byte, m *ModelProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // ir_version
			m.IRVersion, err = f.i64()
		case 2: // producer_name
			m.ProducerName, err = f.str()
		case 3: // producer_version
			m.ProducerVersion, err = f.str()
		case 4: // domain
			m.Domain, err = f.str()
		case 5: // model_version
			m.ModelVersion, err = f.i64()
		case 6: // doc_string
			m.DocString, err = f.str()
		case 7: // graph
			m.Graph, err = sub(f, decodeGraph)
		case 8: // opset_import
			var opset *OperatorSetID
			if opset, err = sub(f, decodeOperatorSetID); err == nil {
				m.OpsetImport = append(m.OpsetImport, *opset)
			}
		case 14: // metadata_props
			var entry *StringStringEntry
			if entry, err = sub(f, decodeStringStringEntry); err == nil {
				m.MetadataProps = append(m.MetadataProps, *entry)
			}
		}
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		return nil
	})
}

//nolint:gocognit,gocyclo,cyclop // field-by-field switch over GraphProto.
func decodeGraph(b []byte, g *GraphProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // node
			var node *NodeProto
			if node, err = sub(f, decodeNode); err == nil {
				g.Nodes = append(g.Nodes, *node)
			}
		case 2: // name
			g.Name, err = f.str()
		case 5: // initializer
			var t *TensorProto
			if t, err = sub(f, decodeTensor); err == nil {
				g.Initializers = append(g.Initializers, *t)
			}
		case 10: // doc_string
			g.DocString, err = f.str()
		case 11, 12, 13: // input, output, value_info
			var vi *ValueInfoProto
			if vi, err = sub(f, decodeValueInfo); err == nil {
				switch f.num {
				case 11:
					g.Inputs = append(g.Inputs, *vi)
				case 12:
					g.Outputs = append(g.Outputs, *vi)
				default:
					g.ValueInfo = append(g.ValueInfo, *vi)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("graph: %w", err)
		}
		return nil
	})
}

func decodeNode(b []byte, n *NodeProto) error {
	return forEachField(b, func(f *field) error {
		var (
			s   string
			err error
		)
		switch f.num {
		case 1: // input
			if s, err = f.str(); err == nil {
				n.Inputs = append(n.Inputs, s)
			}
		case 2: // output
			if s, err = f.str(); err == nil {
				n.Outputs = append(n.Outputs, s)
			}
		case 3: // name
			n.Name, err = f.str()
		case 4: // op_type
			n.OpType, err = f.str()
		case 5: // attribute
			var attr *AttributeProto
			if attr, err = sub(f, decodeAttribute); err == nil {
				n.Attributes = append(n.Attributes, *attr)
			}
		case 6: // doc_string
			n.DocString, err = f.str()
		case 7: // domain
			n.Domain, err = f.str()
		}
		if err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
		return nil
	})
}

//nolint:gocognit,gocyclo,cyclop // field-by-field switch over TensorProto.
func decodeTensor(b []byte, t *TensorProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // dims
			var dims []int64
			if dims, err = f.int64s(); err == nil {
				t.Dims = append(t.Dims, dims...)
			}
		case 2: // data_type
			var v int64
			if v, err = f.i64(); err == nil {
				t.DataType = int32(v) //nolint:gosec // G115: enum value.
			}
		case 4: // float_data
			var vs []float32
			if vs, err = f.float32s(); err == nil {
				t.FloatData = append(t.FloatData, vs...)
			}
		case 5: // int32_data
			var vs []int64
			if vs, err = f.int64s(); err == nil {
				for _, v := range vs {
					t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // G115: int32 field.
				}
			}
		case 7: // int64_data
			var vs []int64
			if vs, err = f.int64s(); err == nil {
				t.Int64Data = append(t.Int64Data, vs...)
			}
		case 8: // name
			t.Name, err = f.str()
		case 9: // raw_data
			if err = f.want(protowire.BytesType); err == nil {
				t.RawData = f.bytes
			}
		case 10: // double_data
			var vs []float64
			if vs, err = f.float64s(); err == nil {
				t.DoubleData = append(t.DoubleData, vs...)
			}
		case 12: // doc_string
			t.DocString, err = f.str()
		}
		if err != nil {
			return fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		return nil
	})
}

func decodeValueInfo(b []byte, vi *ValueInfoProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // name
			vi.Name, err = f.str()
		case 2: // type
			vi.Type, err = sub(f, decodeType)
		case 3: // doc_string
			vi.DocString, err = f.str()
		}
		if err != nil {
			return fmt.Errorf("value info %q: %w", vi.Name, err)
		}
		return nil
	})
}

func decodeType(b []byte, tp *TypeProto) error {
	return forEachField(b, func(f *field) error {
		if f.num != 1 { // only tensor_type is decoded
			return nil
		}
		var err error
		tp.TensorType, err = sub(f, decodeTensorType)
		return err
	})
}

func decodeTensorType(b []byte, tt *TensorTypeProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // elem_type
			var v int64
			if v, err = f.i64(); err == nil {
				tt.ElemType = int32(v) //nolint:gosec // G115: enum value.
			}
		case 2: // shape
			tt.Shape, err = sub(f, decodeTensorShape)
		}
		return err
	})
}

func decodeTensorShape(b []byte, s *TensorShapeProto) error {
	return forEachField(b, func(f *field) error {
		if f.num != 1 {
			return nil
		}
		dim, err := sub(f, decodeDimension)
		if err != nil {
			return err
		}
		s.Dims = append(s.Dims, *dim)
		return nil
	})
}

func decodeDimension(b []byte, d *DimensionProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // dim_value
			d.DimValue, err = f.i64()
			d.HasDimValue = err == nil
		case 2: // dim_param
			d.DimParam, err = f.str()
		}
		return err
	})
}

//nolint:gocognit,gocyclo,cyclop // field-by-field switch over AttributeProto.
func decodeAttribute(b []byte, a *AttributeProto) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // name
			a.Name, err = f.str()
		case 2: // f
			if err = f.want(protowire.Fixed32Type); err == nil {
				a.F = math.Float32frombits(f.fixed32)
			}
		case 3: // i
			a.I, err = f.i64()
		case 4: // s
			if err = f.want(protowire.BytesType); err == nil {
				a.S = f.bytes
			}
		case 5: // t
			a.T, err = sub(f, decodeTensor)
		case 7: // floats
			var vs []float32
			if vs, err = f.float32s(); err == nil {
				a.Floats = append(a.Floats, vs...)
			}
		case 8: // ints
			var vs []int64
			if vs, err = f.int64s(); err == nil {
				a.Ints = append(a.Ints, vs...)
			}
		case 9: // strings
			if err = f.want(protowire.BytesType); err == nil {
				a.Strings = append(a.Strings, f.bytes)
			}
		case 10: // tensors
			var t *TensorProto
			if t, err = sub(f, decodeTensor); err == nil {
				a.Tensors = append(a.Tensors, *t)
			}
		case 13: // doc_string
			a.DocString, err = f.str()
		case 20: // type
			var v int64
			if v, err = f.i64(); err == nil {
				a.Type = int32(v) //nolint:gosec // G115: enum value.
			}
		}
		if err != nil {
			return fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		return nil
	})
}

func decodeOperatorSetID(b []byte, o *OperatorSetID) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1:
			o.Domain, err = f.str()
		case 2:
			o.Version, err = f.i64()
		}
		return err
	})
}

func decodeStringStringEntry(b []byte, e *StringStringEntry) error {
	return forEachField(b, func(f *field) error {
		var err error
		switch f.num {
		case 1:
			e.Key, err = f.str()
		case 2:
			e.Value, err = f.str()
		}
		return err
	})
}
