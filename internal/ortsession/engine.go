package ortsession

import (
	"context"
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/onnx/operators"
	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// Name returns "onnxruntime".
func (s *Session) Name() string { return "onnxruntime" }

// Run executes m.Path once with x bound to input and returns output. The
// runtime allocates the output, so its shape need not be known up front.
func (s *Session) Run(
	ctx context.Context, m *inspect.Model, input string, x *tensor.RawTensor, output string,
) (*tensor.RawTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := appendProviders(opts, s.providers); err != nil {
		return nil, err
	}

	sess, err := ort.NewDynamicAdvancedSession(m.Path, []string{input}, []string{output}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer sess.Destroy()

	in, err := ort.NewCustomDataTensor(toShape(x.Shape()), x.Data(),
		ort.TensorElementDataType(operators.DataTypeToElemType(x.DType())))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := sess.Run([]ort.Value{in}, outputs); err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()

	return fromValue(outputs[0])
}

func appendProviders(opts *ort.SessionOptions, providers []string) error {
	for _, p := range providers {
		switch strings.ToLower(p) {
		case ProviderCPU:
		case ProviderCUDA:
			cuda, err := ort.NewCUDAProviderOptions()
			if err != nil {
				return fmt.Errorf("failed to create CUDA options: %w", err)
			}
			err = opts.AppendExecutionProviderCUDA(cuda)
			cuda.Destroy()
			if err != nil {
				return fmt.Errorf("failed to enable CUDA: %w", err)
			}
		case ProviderCoreML:
			if err := opts.AppendExecutionProviderCoreML(0); err != nil {
				return fmt.Errorf("failed to enable CoreML: %w", err)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
		klog.V(1).Infof("execution provider %s enabled", p)
	}
	return nil
}

func toShape(s tensor.Shape) ort.Shape {
	dims := make([]int64, len(s))
	for i, d := range s {
		dims[i] = int64(d)
	}
	return ort.NewShape(dims...)
}

func fromShape(s ort.Shape) tensor.Shape {
	out := make(tensor.Shape, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

// fromValue copies an output value into a RawTensor.
func fromValue(v ort.Value) (*tensor.RawTensor, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return tensor.FromFloat32(fromShape(t.GetShape()), t.GetData())
	case *ort.Tensor[float64]:
		return widen(t, tensor.Float64)
	case *ort.Tensor[int64]:
		return tensor.FromInt64(fromShape(t.GetShape()), t.GetData())
	case *ort.Tensor[int32]:
		return widen(t, tensor.Int32)
	case *ort.Tensor[int16]:
		return widen(t, tensor.Int16)
	case *ort.Tensor[int8]:
		return widen(t, tensor.Int8)
	case *ort.Tensor[uint16]:
		return widen(t, tensor.Uint16)
	case *ort.Tensor[uint8]:
		return widen(t, tensor.Uint8)
	default:
		return nil, fmt.Errorf("unsupported output value %T", v)
	}
}

func widen[T float64 | int32 | int16 | int8 | uint16 | uint8](t *ort.Tensor[T], dtype tensor.DataType) (*tensor.RawTensor, error) {
	data := t.GetData()
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return tensor.FromFloat64s(fromShape(t.GetShape()), dtype, values)
}
