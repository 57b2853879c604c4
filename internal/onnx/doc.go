// Package onnx reads ONNX model files and runs them on the CPU.
//
// ONNX (Open Neural Network Exchange) stores a model as a protobuf
// ModelProto. This package decodes the wire format directly with protowire
// into plain Go structs, so no generated code is involved:
//   - ModelProto: IR version, producer, opset imports, metadata and the graph
//   - GraphProto: nodes, declared inputs/outputs, initializers, value_info
//   - NodeProto: a single operation (Conv, MatMul, Relu, ...)
//   - TensorProto: an initializer or a tensor-valued attribute
//   - ValueInfoProto: element type and (possibly symbolic) shape of a value
//
// On top of the decoder sit a best-effort shape inference pass (InferShapes)
// and a small graph executor (Model) backed by the operators package.
//
// Example usage:
//
//	proto, err := onnx.ParseFile("segmenter.onnx")
//	if err != nil {
//	    return err
//	}
//	for _, w := range onnx.InferShapes(proto) {
//	    fmt.Println("shape inference:", w)
//	}
//	model, err := onnx.LoadFromProto(proto, onnx.DefaultLoadOptions())
package onnx
