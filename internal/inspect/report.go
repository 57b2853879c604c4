package inspect

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/born-ml/onnx-inspect/internal/tensor"
)

// DefaultWallClass is the channel singled out in the class ranking. It is
// the wall label of the segmentation models this tool was first used on.
const DefaultWallClass = 9

const (
	firstValuesLimit = 10
	topClasses       = 5
)

// Reporter prints inspection results as plain text. Write errors are
// sticky: after the first one nothing more is written and Err returns it.
type Reporter struct {
	w   io.Writer
	err error

	// WallClass is the channel whose mean and rank are reported; negative
	// disables the section.
	WallClass int
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w, WallClass: DefaultWallClass}
}

// Err returns the first write error.
func (r *Reporter) Err() error { return r.err }

func (r *Reporter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) println(s string) {
	r.printf("%s\n", s)
}

// Model prints the static part of the report. Graph views list
// initializers and nodes; session views print metadata instead.
func (r *Reporter) Model(m *Model) {
	if m.HasGraph {
		r.graphHeader(m)
	} else {
		r.sessionHeader(m)
	}

	typeName := ElemType.String
	if !m.HasGraph {
		typeName = ElemType.TensorString
	}
	r.println("=== INPUTS ===")
	for _, in := range m.Inputs {
		r.printf("  %s: dtype=%s, shape=%s\n", in.Name, typeName(in.ElemType), formatSpecShape(in))
	}
	r.println("")

	r.println("=== OUTPUTS ===")
	for _, out := range m.Outputs {
		r.printf("  %s: dtype=%s, shape=%s\n", out.Name, typeName(out.ElemType), formatSpecShape(out))
	}
	r.println("")

	if !m.HasGraph {
		r.sessionMetadata(m)
		return
	}

	r.println("=== INITIALIZERS ===")
	for _, init := range m.Initializers {
		r.printf("  %s: dtype=%s, shape=%s\n", init.Name, init.ElemType, formatList(init.Shape))
	}
	r.println("")

	r.println("=== NODES ===")
	for i, n := range m.Nodes {
		r.printf("%04d: op_type=%s\n", i, n.OpType)
		r.printf("       inputs:  %s\n", formatList(n.Inputs))
		r.printf("       outputs: %s\n", formatList(n.Outputs))
	}
	r.printf("\nTotal nodes: %d\n\n", len(m.Nodes))
}

func (r *Reporter) graphHeader(m *Model) {
	r.printf("Loaded ONNX model: %s\n", m.Path)
	r.printf("  IR version: %d\n", m.IRVersion)
	if m.OpsetVersion > 0 {
		r.printf("  Opset version: %d\n", m.OpsetVersion)
	}
	producer := m.Producer
	if m.ProducerVersion != "" {
		producer += " " + m.ProducerVersion
	}
	r.printf("  Producer: %s\n", producer)
	if m.ModelVersion != 0 {
		r.printf("  Model version: %d\n", m.ModelVersion)
	}
	if m.GraphName != "" {
		r.printf("  Graph name: %s\n", m.GraphName)
	}
	r.println("")

	if !m.ShapeInference.Enabled {
		return
	}
	if len(m.ShapeInference.Warnings) == 0 {
		r.println("Applied shape inference")
	} else {
		r.printf("Applied shape inference with %d warning(s):\n", len(m.ShapeInference.Warnings))
		for _, w := range m.ShapeInference.Warnings {
			r.printf("  %s\n", w)
		}
	}
	r.println("")
}

func (r *Reporter) sessionHeader(m *Model) {
	r.printf("Loaded ONNX model: %s\n", m.Path)
	r.printf("Runtime version: %s\n\n", m.RuntimeVersion)
}

func (r *Reporter) sessionMetadata(m *Model) {
	if len(m.Metadata) > 0 {
		r.println("=== METADATA ===")
		for _, kv := range m.Metadata {
			r.printf("  %s: %s\n", kv.Key, kv.Value)
		}
		r.println("")
	}
	r.printf("Producer: %s\n", m.Producer)
	r.printf("Graph name: %s\n", m.GraphName)
	r.printf("Domain: %s\n", m.Domain)
	r.printf("Description: %s\n\n", m.Description)
}

// OpsTable prints the operator types used by the graph, how often each
// appears and whether the native executor implements it.
func (r *Reporter) OpsTable(m *Model) {
	counts := m.OpCounts()
	if len(counts) == 0 || r.err != nil {
		return
	}
	r.println("=== OPERATORS ===")
	table := tablewriter.NewWriter(&stickyWriter{r: r})
	table.SetHeader([]string{"Op type", "Count", "Native"})
	table.SetAutoFormatHeaders(false)
	for _, c := range counts {
		native := "yes"
		if !c.Supported {
			native = "no"
		}
		table.Append([]string{c.OpType, strconv.Itoa(c.Count), native})
	}
	table.Render()
	r.println("")
}

// stickyWriter routes table output through the reporter's error tracking.
type stickyWriter struct{ r *Reporter }

func (s *stickyWriter) Write(p []byte) (int, error) {
	if s.r.err != nil {
		return 0, s.r.err
	}
	n, err := s.r.w.Write(p)
	s.r.err = err
	return n, err
}

// RuntimeTest prints the dummy forward pass section for outcome.
func (r *Reporter) RuntimeTest(o RunOutcome) {
	r.println("\n=== RUNTIME TEST ===")
	if !o.OK() {
		if o.Err.InputShape != nil {
			r.printf("Running dummy inference on input `%s` shape %s...\n", o.Err.Input, formatList(o.Err.InputShape))
		}
		r.printf("Runtime test failed: %s\n", o.Err.Error())
		return
	}

	res := o.Result
	r.printf("Running dummy inference on input `%s` shape %s...\n", res.InputName, formatList(res.InputShape))
	r.printf("  Output `%s` shape: %s\n", res.OutputName, formatList(res.Shape))

	st := Summarize(res.Values)
	r.println("\nOutput statistics:")
	r.printf("  Min: %s\n", formatValue(st.Min, res.DType))
	r.printf("  Max: %s\n", formatValue(st.Max, res.DType))
	r.printf("  Mean: %s\n", formatValue(st.Mean, res.DType))
	r.printf("  Standard deviation: %s\n", formatValue(st.Std, res.DType))

	if first := FirstChannelValues(res.Shape, res.Values, firstValuesLimit); first != nil {
		parts := make([]string, len(first))
		for i, v := range first {
			parts[i] = formatValue(v, res.DType)
		}
		r.println("\nFirst few values of first channel:")
		r.printf("[%s]\n", strings.Join(parts, " "))
	}

	if len(res.Shape) == 4 && res.Shape[1] > 1 {
		r.classRanking(res)
	}
}

func (r *Reporter) classRanking(res *RuntimeResult) {
	means := ChannelMeans(res.Shape, res.Values)
	if means == nil {
		return
	}
	ranked := RankChannels(means)

	r.println("\nClass probability analysis:")
	r.println("Top 5 most active classes (potential wall or important structure classes):")
	for _, cm := range ranked[:min(topClasses, len(ranked))] {
		r.printf("  Class %d: mean activation = %.6f\n", cm.Channel, cm.Mean)
	}

	if r.WallClass < 0 || r.WallClass >= len(means) {
		return
	}
	r.printf("\nPredefined wall class (index %d):\n", r.WallClass)
	r.printf("  Mean activation: %.6f\n", means[r.WallClass].Mean)
	r.printf("  Rank among all classes: %d out of %d\n", ChannelRank(ranked, r.WallClass), len(means))
}

func formatSpecShape(spec TensorSpec) string {
	if !spec.HasShape {
		return "unknown"
	}
	return formatList(spec.Shape)
}

// formatList prints items as [a, b, c].
func formatList[T any](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprint(it)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// formatValue prints v with the shortest representation that round-trips
// at the precision of dtype.
func formatValue(v float64, dtype tensor.DataType) string {
	bits := 64
	if dtype == tensor.Float32 || dtype == tensor.Float16 {
		bits = 32
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}
