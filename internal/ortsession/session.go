// Package ortsession exposes models through ONNX Runtime (onnxruntime_go):
// a session view for the inspector and an engine for the dummy run.
package ortsession

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/onnx"
)

// Execution providers accepted in Options.Providers.
const (
	ProviderCPU    = "cpu"
	ProviderCUDA   = "cuda"
	ProviderCoreML = "coreml"
)

// ErrUnknownProvider is returned for provider names other than the ones above.
var ErrUnknownProvider = errors.New("unknown execution provider")

// Options configures the runtime environment and the sessions it creates.
type Options struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default name.
	LibraryPath string
	// Providers lists execution providers in priority order. The CPU
	// provider is always available as a fallback.
	Providers []string
}

// ValidateProviders checks provider names.
func ValidateProviders(providers []string) error {
	for _, p := range providers {
		switch strings.ToLower(p) {
		case ProviderCPU, ProviderCUDA, ProviderCoreML:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
	}
	return nil
}

// Session is an ONNX Runtime view of one model file. It implements
// inspect.Session and inspect.Engine. Close releases the environment.
type Session struct {
	path      string
	version   string
	providers []string
	inputs    []inspect.TensorSpec
	outputs   []inspect.TensorSpec
	meta      inspect.SessionMetadata
}

var (
	_ inspect.Session = (*Session)(nil)
	_ inspect.Engine  = (*Session)(nil)
)

// Open initializes the runtime environment and reads the model's inputs,
// outputs and metadata. Failures to read the model are *inspect.LoadError.
func Open(path string, opts Options) (*Session, error) {
	if err := ValidateProviders(opts.Providers); err != nil {
		return nil, err
	}
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	s := &Session{path: path, version: ort.GetVersion(), providers: opts.Providers}
	if err := s.load(); err != nil {
		if derr := ort.DestroyEnvironment(); derr != nil {
			klog.Warningf("destroy onnxruntime environment: %v", derr)
		}
		return nil, &inspect.LoadError{Path: path, Err: err}
	}
	klog.V(1).Infof("onnxruntime %s opened %s: %d inputs, %d outputs",
		s.version, path, len(s.inputs), len(s.outputs))
	return s, nil
}

func initEnvironment(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	return nil
}

// Close destroys the runtime environment.
func (s *Session) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

func (s *Session) load() error {
	inputs, outputs, err := ort.GetInputOutputInfo(s.path)
	if err != nil {
		return err
	}

	// onnxruntime reports symbolic dimensions as -1. The declared names
	// come from the file itself when it decodes.
	declared := declaredDims(s.path)
	s.inputs = specsFromInfo(inputs, declared)
	s.outputs = specsFromInfo(outputs, declared)

	meta, err := readMetadata(s.path)
	if err != nil {
		return err
	}
	s.meta = meta
	return nil
}

// Path returns the model path.
func (s *Session) Path() string { return s.path }

// RuntimeVersion returns the onnxruntime library version.
func (s *Session) RuntimeVersion() string { return s.version }

// Inputs returns the session inputs.
func (s *Session) Inputs() []inspect.TensorSpec { return s.inputs }

// Outputs returns the session outputs.
func (s *Session) Outputs() []inspect.TensorSpec { return s.outputs }

// Metadata returns the model metadata read at Open.
func (s *Session) Metadata() inspect.SessionMetadata { return s.meta }

func readMetadata(path string) (inspect.SessionMetadata, error) {
	var meta inspect.SessionMetadata
	md, err := ort.GetModelMetadata(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer func() {
		if err := md.Destroy(); err != nil {
			klog.Warningf("destroy model metadata: %v", err)
		}
	}()

	fields := []struct {
		dst *string
		get func() (string, error)
	}{
		{&meta.Producer, md.GetProducerName},
		{&meta.GraphName, md.GetGraphName},
		{&meta.Domain, md.GetDomain},
		{&meta.Description, md.GetDescription},
	}
	for _, f := range fields {
		if *f.dst, err = f.get(); err != nil {
			return meta, err
		}
	}
	if meta.Version, err = md.GetVersion(); err != nil {
		return meta, err
	}

	keys, err := md.GetCustomMetadataMapKeys()
	if err != nil {
		return meta, err
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok, err := md.LookupCustomMetadataMap(k)
		if err != nil {
			return meta, err
		}
		if ok {
			meta.Custom = append(meta.Custom, inspect.MetadataEntry{Key: k, Value: v})
		}
	}
	return meta, nil
}

// declaredDims maps value names to their declared dimensions. It returns
// nil when the file cannot be decoded natively.
func declaredDims(path string) map[string][]onnx.DimensionProto {
	proto, err := onnx.ParseFile(path)
	if err != nil || proto.Graph == nil {
		klog.V(1).Infof("no declared dimension names for %s: %v", path, err)
		return nil
	}
	dims := make(map[string][]onnx.DimensionProto)
	for _, vis := range [][]onnx.ValueInfoProto{proto.Graph.Inputs, proto.Graph.Outputs} {
		for i := range vis {
			vi := &vis[i]
			if vi.Type != nil && vi.Type.TensorType != nil && vi.Type.TensorType.Shape != nil {
				dims[vi.Name] = vi.Type.TensorType.Shape.Dims
			}
		}
	}
	return dims
}

func specsFromInfo(infos []ort.InputOutputInfo, declared map[string][]onnx.DimensionProto) []inspect.TensorSpec {
	specs := make([]inspect.TensorSpec, len(infos))
	for i, info := range infos {
		names := declared[info.Name]
		shape := make([]inspect.Dim, len(info.Dimensions))
		for j, d := range info.Dimensions {
			switch {
			case d >= 0:
				shape[j] = inspect.FixedSize(d)
			case j < len(names) && names[j].DimParam != "":
				shape[j] = inspect.SymbolicName(names[j].DimParam)
			default:
				shape[j] = inspect.Unknown()
			}
		}
		specs[i] = inspect.TensorSpec{
			Name:     info.Name,
			ElemType: inspect.ElemType(info.DataType),
			Shape:    shape,
			HasShape: true,
		}
	}
	return specs
}
