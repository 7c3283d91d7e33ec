package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/expr"
)

type fixedTarget struct{ width int }

func (f fixedTarget) NaturalVectorWidth(string) int { return f.width }

// pointwiseOracle models f(x) = consumer point x exactly (a 1:1 point-wise
// stencil-free dependency), sufficient for chain-DAG tests.
type pointwiseOracle struct{ dims map[string]int }

func (o pointwiseOracle) RegionRequired(producer, consumer string) (bounds.Region, error) {
	d := o.dims[consumer]
	r := make(bounds.Region, d)
	for i := 0; i < d; i++ {
		lo, hi := bounds.DimVars(consumer, i)
		r[i] = bounds.Interval{Min: lo, Max: hi}
	}
	return r, nil
}

func buildChainDAG(t *testing.T) *dagmodel.FunctionDAG {
	t.Helper()
	funcs := map[string]dagmodel.FunctionSpec{
		"f": {Name: "f", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
		"g": {Name: "g", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Call{Callee: "f"}},
		"h": {
			Name: "h", Dims: 1, BytesPerElement: 4, ScalarType: "float32",
			Expr:      expr.Call{Callee: "g"},
			Estimates: []dagmodel.Estimate{{Min: 0, Extent: 1000}},
		},
	}
	oracle := pointwiseOracle{dims: map[string]int{"f": 1, "g": 1, "h": 1}}
	dag, err := dagmodel.Build([]string{"h"}, funcs, dagmodel.MachineParams{Parallelism: 4}, fixedTarget{4}, oracle)
	require.NoError(t, err)
	return dag
}

func TestComputeHere_SeedsSinglePointBounds(t *testing.T) {
	dag := buildChainDAG(t)
	root := NewRoot()
	withF := root.ComputeHere(dag, "f")
	require.Len(t, withF.Children, 1)
	info, err := withF.Children[0].GetBounds(dag, "f")
	require.NoError(t, err)
	require.Equal(t, int64(1), info.RegionPoints)
}

func TestInlineFunc_IdempotentOnLeaf(t *testing.T) {
	dag := buildChainDAG(t)
	root := NewRoot()
	// f has no compute site anywhere in the empty root tree.
	result := root.InlineFunc(dag, "f")
	require.Empty(t, result.Children)
	require.Empty(t, result.Inlined)
}

func TestGetBounds_OutputUsesEstimates(t *testing.T) {
	dag := buildChainDAG(t)
	root := NewRoot()
	info, err := root.GetBounds(dag, "h")
	require.NoError(t, err)
	require.Equal(t, int64(1000), info.RegionPoints)
}

func TestGetBounds_OutputAtNonRootAsserts(t *testing.T) {
	// A node claiming to be an output (no outgoing edges) but queried at a
	// non-root level must fail the assertion (spec §9 Open Question).
	dag := buildChainDAG(t)
	leaf := &PartialSchedule{Func: "h", Innermost: true, Tileable: true, Size: []int{1}}
	_, err := leaf.GetBounds(dag, "h")
	require.ErrorIs(t, err, ErrBoundsAssertion)
}

func TestCalls_CountsInlinedConsumerCalls(t *testing.T) {
	dag := buildChainDAG(t)
	root := NewRoot()
	root.Inlined = map[string]int{"h": 2}
	require.Equal(t, 2, root.Calls(dag, "g")) // via inlined h calling g once each
}

func TestComputes_ReportsInlinedAndRealized(t *testing.T) {
	dag := buildChainDAG(t)
	root := NewRoot()
	require.False(t, root.Computes("f"))
	root2 := root.ComputeHere(dag, "f")
	require.True(t, root2.Computes("f"))
}
