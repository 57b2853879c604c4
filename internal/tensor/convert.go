package tensor

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
)

// Float64s returns the tensor values widened to float64, whatever the dtype.
// Statistics and the executor's generic kernels work on this view.
func (r *RawTensor) Float64s() []float64 {
	n := r.NumElements()
	out := make([]float64, n)
	switch r.dtype {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	case Float16:
		for i := range out {
			bits := binary.LittleEndian.Uint16(r.data[2*i:])
			out[i] = float64(float16.Frombits(bits).Float32())
		}
	case Int8:
		for i := range out {
			out[i] = float64(int8(r.data[i]))
		}
	case Int16:
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(r.data[2*i:]))) //nolint:gosec // G115: reinterpreting stored bits.
		}
	case Uint16:
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint16(r.data[2*i:]))
		}
	case Int32:
		for i, v := range r.AsInt32() {
			out[i] = float64(v)
		}
	case Int64:
		for i, v := range r.AsInt64() {
			out[i] = float64(v)
		}
	case Uint8:
		for i, v := range r.data[:n] {
			out[i] = float64(v)
		}
	case Bool:
		for i, v := range r.AsBool() {
			if v {
				out[i] = 1
			}
		}
	}
	return out
}

// Ints returns integer-typed tensor values as []int64 (shape inputs, axes, indices).
func (r *RawTensor) Ints() ([]int64, error) {
	switch r.dtype {
	case Int64:
		return append([]int64(nil), r.AsInt64()...), nil
	case Int32:
		src := r.AsInt32()
		out := make([]int64, len(src))
		for i, v := range src {
			out[i] = int64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected integer tensor, got %s", r.dtype)
	}
}

// FromFloat64s builds a tensor of dtype from float64 values, narrowing as needed.
func FromFloat64s(shape Shape, dtype DataType, values []float64) (*RawTensor, error) {
	t, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v", len(values), shape)
	}
	t.setFloat64s(values)
	return t, nil
}

//nolint:gosec // G115: narrowing conversions follow ONNX Cast semantics.
func (r *RawTensor) setFloat64s(values []float64) {
	switch r.dtype {
	case Float32:
		dst := r.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	case Float64:
		copy(r.AsFloat64(), values)
	case Float16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(r.data[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
	case Int8:
		for i, v := range values {
			r.data[i] = byte(int8(v))
		}
	case Int16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(r.data[2*i:], uint16(int16(v)))
		}
	case Uint16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(r.data[2*i:], uint16(v))
		}
	case Int32:
		dst := r.AsInt32()
		for i, v := range values {
			dst[i] = int32(v)
		}
	case Int64:
		dst := r.AsInt64()
		for i, v := range values {
			dst[i] = int64(v)
		}
	case Uint8:
		for i, v := range values {
			r.data[i] = uint8(v)
		}
	case Bool:
		dst := r.AsBool()
		for i, v := range values {
			dst[i] = v != 0
		}
	}
}

// Cast converts the tensor to a different data type. Same dtype is a no-op.
func Cast(x *RawTensor, dtype DataType) (*RawTensor, error) {
	if x.dtype == dtype {
		return x, nil
	}
	return FromFloat64s(x.shape, dtype, x.Float64s())
}
