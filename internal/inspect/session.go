package inspect

import (
	"github.com/born-ml/onnx-inspect/internal/onnx"
)

// SessionMetadata is the model metadata an execution session exposes.
type SessionMetadata struct {
	Producer    string
	GraphName   string
	Domain      string
	Description string
	Version     int64
	Custom      []MetadataEntry
}

// Session is an execution-session view of a model: declared inputs and
// outputs plus metadata, without the graph itself.
type Session interface {
	Path() string
	RuntimeVersion() string
	Inputs() []TensorSpec
	Outputs() []TensorSpec
	Metadata() SessionMetadata
}

// FromSession builds a Model from a session view. The result has no graph,
// so reports omit initializers and nodes.
func FromSession(s Session) *Model {
	meta := s.Metadata()
	return &Model{
		Path:           s.Path(),
		ModelVersion:   meta.Version,
		Producer:       meta.Producer,
		GraphName:      meta.GraphName,
		Domain:         meta.Domain,
		Description:    meta.Description,
		RuntimeVersion: s.RuntimeVersion(),
		Metadata:       meta.Custom,
		Inputs:         s.Inputs(),
		Outputs:        s.Outputs(),
		proto:          protoOf(s),
	}
}

func protoOf(s Session) *onnx.ModelProto {
	if p, ok := s.(interface{ Proto() *onnx.ModelProto }); ok {
		return p.Proto()
	}
	return nil
}

// GraphSession is a Session backed by the native decoder. It lets the
// runtime-only inspector work without an ONNX Runtime library.
type GraphSession struct {
	path  string
	model *Model
}

// NewGraphSession parses the model at path.
func NewGraphSession(path string) (*GraphSession, error) {
	m, err := LoadGraph(path, LoadOptions{})
	if err != nil {
		return nil, err
	}
	return &GraphSession{path: path, model: m}, nil
}

// Path returns the model path.
func (s *GraphSession) Path() string { return s.path }

// RuntimeVersion names the native executor.
func (s *GraphSession) RuntimeVersion() string { return nativeVersion() }

// Inputs returns the runtime inputs.
func (s *GraphSession) Inputs() []TensorSpec { return s.model.Inputs }

// Outputs returns the graph outputs.
func (s *GraphSession) Outputs() []TensorSpec { return s.model.Outputs }

// Metadata returns the model metadata. The description is the model doc
// string, falling back to the graph doc string.
func (s *GraphSession) Metadata() SessionMetadata {
	desc := s.model.Description
	if desc == "" && s.model.proto.Graph != nil {
		desc = s.model.proto.Graph.DocString
	}
	return SessionMetadata{
		Producer:    s.model.Producer,
		GraphName:   s.model.GraphName,
		Domain:      s.model.Domain,
		Description: desc,
		Version:     s.model.ModelVersion,
		Custom:      s.model.Metadata,
	}
}

// Proto exposes the parsed model so a native engine can reuse it.
func (s *GraphSession) Proto() *onnx.ModelProto { return s.model.proto }
