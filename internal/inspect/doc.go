// Package inspect loads ONNX models into a reportable form, runs a single
// zero-filled forward pass and prints the results.
//
// A Model comes either from the full graph (LoadGraph) or from an execution
// session that only exposes inputs, outputs and metadata (FromSession).
// Runner resolves the first input's declared shape with a Resolver, feeds a
// zero tensor to an Engine and returns a RunOutcome that Reporter prints.
package inspect
