package inspect

import "strconv"

// DimKind discriminates the three forms a declared dimension can take.
type DimKind int

// Dimension kinds.
const (
	DimUnknown DimKind = iota
	DimFixed
	DimSymbolic
)

// Dim is one declared tensor dimension: a fixed size, a symbolic name or
// unknown. The zero value is unknown.
type Dim struct {
	kind DimKind
	size int64
	name string
}

// FixedSize returns a fixed dimension. Non-positive sizes are kept as
// declared; the resolver maps them to 1.
func FixedSize(n int64) Dim { return Dim{kind: DimFixed, size: n} }

// Unknown returns a dimension with no size information.
func Unknown() Dim { return Dim{} }

// SymbolicName returns a named dynamic dimension. An empty name is unknown.
func SymbolicName(name string) Dim {
	if name == "" {
		return Dim{}
	}
	return Dim{kind: DimSymbolic, name: name}
}

// Kind reports which form d takes.
func (d Dim) Kind() DimKind { return d.kind }

// Size returns the declared size of a fixed dimension, 0 otherwise.
func (d Dim) Size() int64 { return d.size }

// Name returns the symbol of a symbolic dimension, "" otherwise.
func (d Dim) Name() string { return d.name }

// String formats d the way reports print shapes.
func (d Dim) String() string {
	switch d.kind {
	case DimFixed:
		return strconv.FormatInt(d.size, 10)
	case DimSymbolic:
		return d.name
	default:
		return "?"
	}
}

// DefaultSymbolTable maps the symbolic dimension names seen in exported
// image models to the sizes used for a dummy input.
var DefaultSymbolTable = map[string]int{
	"batch_size":   1,
	"num_channels": 3,
	"height":       32,
	"width":        32,
}

// Resolver turns declared shapes into concrete positive shapes.
type Resolver struct {
	symbols map[string]int
}

// NewResolver returns a resolver using DefaultSymbolTable with overrides
// applied on top. Override values below 1 are ignored.
func NewResolver(overrides map[string]int) *Resolver {
	symbols := make(map[string]int, len(DefaultSymbolTable)+len(overrides))
	for name, n := range DefaultSymbolTable {
		symbols[name] = n
	}
	for name, n := range overrides {
		if n > 0 {
			symbols[name] = n
		}
	}
	return &Resolver{symbols: symbols}
}

// Resolve maps each dimension independently: positive fixed sizes are kept,
// known symbols use the table, everything else becomes 1. The result has
// the same rank as dims and never fails.
func (r *Resolver) Resolve(dims []Dim) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = 1
		switch d.Kind() {
		case DimFixed:
			if d.Size() > 0 {
				out[i] = int(d.Size())
			}
		case DimSymbolic:
			if n, ok := r.symbols[d.Name()]; ok {
				out[i] = n
			}
		case DimUnknown:
		}
	}
	return out
}
