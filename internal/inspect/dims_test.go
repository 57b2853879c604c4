package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		dims []Dim
		want []int
	}{
		{
			name: "fixed dims unchanged",
			dims: []Dim{FixedSize(2), FixedSize(3), FixedSize(224), FixedSize(224)},
			want: []int{2, 3, 224, 224},
		},
		{
			name: "image symbols",
			dims: []Dim{FixedSize(-1), SymbolicName("num_channels"), SymbolicName("height"), SymbolicName("width")},
			want: []int{1, 3, 32, 32},
		},
		{
			name: "unrecognized symbol",
			dims: []Dim{SymbolicName("batch_size"), SymbolicName("depth")},
			want: []int{1, 1},
		},
		{
			name: "zero and unknown",
			dims: []Dim{FixedSize(0), Unknown(), SymbolicName("")},
			want: []int{1, 1, 1},
		},
		{
			name: "scalar",
			dims: []Dim{},
			want: []int{},
		},
	}

	r := NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.dims))
		})
	}
}

func TestResolverOverrides(t *testing.T) {
	r := NewResolver(map[string]int{"height": 64, "seq": 16, "width": 0})
	got := r.Resolve([]Dim{SymbolicName("height"), SymbolicName("width"), SymbolicName("seq")})
	assert.Equal(t, []int{64, 32, 16}, got)

	// Overrides must not leak into the shared default table.
	assert.Equal(t, 32, DefaultSymbolTable["height"])
	assert.NotContains(t, DefaultSymbolTable, "seq")
}

func TestZeroResolver(t *testing.T) {
	var r Resolver
	assert.Equal(t, []int{5, 1}, r.Resolve([]Dim{FixedSize(5), SymbolicName("height")}))
}

func TestDimString(t *testing.T) {
	assert.Equal(t, "3", FixedSize(3).String())
	assert.Equal(t, "-1", FixedSize(-1).String())
	assert.Equal(t, "batch_size", SymbolicName("batch_size").String())
	assert.Equal(t, "?", Unknown().String())
	assert.Equal(t, DimUnknown, SymbolicName("").Kind())
}
