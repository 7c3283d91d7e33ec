package autosched_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arrayforge/autosched/autosched"
	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/expr"
	"github.com/arrayforge/autosched/materialize"
	"github.com/arrayforge/autosched/search"
)

// Scenarios S1-S6 (spec §8), each built by hand as a tiny Function DAG and
// checked against its qualitative expectation rather than an exact
// schedule — the search is stochastic (dropout) and beam-width-bounded, so
// only shape-level properties are stable across runs.

type fixedTarget struct{ width int }

func (f fixedTarget) NaturalVectorWidth(string) int { return f.width }

// oracleFunc answers one producer's required region as a function of the
// consumer's own dimension variables.
type oracleFunc func(consumer string) bounds.Region

// regionOracle dispatches dagmodel.BoundsOracle by producer name, so each
// scenario below can name its own dependency shape directly.
type regionOracle map[string]oracleFunc

func (o regionOracle) RegionRequired(producer, consumer string) (bounds.Region, error) {
	fn, ok := o[producer]
	if !ok {
		return nil, dagmodel.ErrUnknownFunction
	}
	return fn(consumer), nil
}

func pointwise(dims int) oracleFunc {
	return func(consumer string) bounds.Region {
		r := make(bounds.Region, dims)
		for i := 0; i < dims; i++ {
			lo, hi := bounds.DimVars(consumer, i)
			r[i] = bounds.Interval{Min: lo, Max: hi}
		}
		return r
	}
}

// stencil answers a producer required over consumer's box expanded by
// radius in every dimension (S2-S4's "samples at offsets ±radius").
func stencil(dims int, radius int64) oracleFunc {
	return func(consumer string) bounds.Region {
		r := make(bounds.Region, dims)
		for i := 0; i < dims; i++ {
			lo, hi := bounds.DimVars(consumer, i)
			r[i] = bounds.Interval{
				Min: bounds.Sub{A: lo, B: bounds.Const(radius)},
				Max: bounds.Add{A: hi, B: bounds.Const(radius)},
			}
		}
		return r
	}
}

// onlyDim answers a 1-D producer that depends on a single axis of the
// consumer (S6's outer product: a(x), b(y) each feed one axis of f(x,y)).
func onlyDim(d int) oracleFunc {
	return func(consumer string) bounds.Region {
		lo, hi := bounds.DimVars(consumer, d)
		return bounds.Region{{Min: lo, Max: hi}}
	}
}

// downsampleBy2 answers a producer sampled at double the consumer's
// resolution in every dimension (S5's successive downsampling passes).
func downsampleBy2(dims int) oracleFunc {
	return func(consumer string) bounds.Region {
		r := make(bounds.Region, dims)
		for i := 0; i < dims; i++ {
			lo, hi := bounds.DimVars(consumer, i)
			r[i] = bounds.Interval{
				Min: bounds.Mul{A: bounds.Const(2), B: lo},
				Max: bounds.Add{A: bounds.Mul{A: bounds.Const(2), B: hi}, B: bounds.Const(1)},
			}
		}
		return r
	}
}

func quickConfig() search.Config {
	cfg := search.DefaultConfig()
	cfg.AutoScheduleTimeLimit = 200 * time.Millisecond
	cfg.BeamSize = 8
	return cfg
}

func hasFuncVars(vars []materialize.FuncVars, f string) (materialize.FuncVars, bool) {
	for _, v := range vars {
		if v.Func == f {
			return v, true
		}
	}
	return materialize.FuncVars{}, false
}

// splitFactor returns the Factor of the first SplitDirective on f whose
// Var names the given dimension index (e.g. "h.0"), or 0 if none exists.
func splitFactor(directives []materialize.Directive, f string, dim int) int {
	want := dimLabel(f, dim)
	for _, d := range directives {
		if sp, ok := d.(materialize.SplitDirective); ok && sp.Func == f && strings.HasPrefix(sp.Var, want) {
			return sp.Factor
		}
	}
	return 0
}

func dimLabel(f string, dim int) string {
	return f + "." + string(rune('0'+dim))
}

// S1: point-wise chain — f(x,y)=x+y, g=f·2+1, h=g·2+1, output 1000x1000.
// Expected: the optimal schedule inlines f and g into h.
func TestScenario_S1_PointwiseChainInlinesProducers(t *testing.T) {
	funcs := map[string]dagmodel.FunctionSpec{
		"f": {Name: "f", Dims: 2, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
		"g": {Name: "g", Dims: 2, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Call{Callee: "f"}},
		"h": {
			Name: "h", Dims: 2, BytesPerElement: 4, ScalarType: "float32",
			Expr:      expr.Call{Callee: "g"},
			Estimates: []dagmodel.Estimate{{Min: 0, Extent: 1000}, {Min: 0, Extent: 1000}},
		},
	}
	oracle := regionOracle{"f": pointwise(2), "g": pointwise(2)}
	params := dagmodel.MachineParams{Parallelism: 8, LastLevelCacheSize: 1 << 20, Balance: 1}
	prob := autosched.Problem{Outputs: []string{"h"}, Funcs: funcs, Params: params, Target: fixedTarget{8}, Oracle: oracle}

	res, err := autosched.Solve(context.Background(), prob, quickConfig(), nil)
	require.NoError(t, err)

	_, hasF := hasFuncVars(res.Vars, "f")
	_, hasG := hasFuncVars(res.Vars, "g")
	_, hasH := hasFuncVars(res.Vars, "h")
	require.False(t, hasF, "f should be inlined into h, not given its own loop nest")
	require.False(t, hasG, "g should be inlined into h, not given its own loop nest")
	require.True(t, hasH)
}

// S2: wide stencils, cheap memory — two stacked 100-tap stencils,
// balance=1. Expected: no fusion (each function scheduled at root).
func TestScenario_S2_WideStencilsNoFusion(t *testing.T) {
	funcs := map[string]dagmodel.FunctionSpec{
		"f": {Name: "f", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
		"g": {Name: "g", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Call{Callee: "f"}},
		"h": {
			Name: "h", Dims: 1, BytesPerElement: 4, ScalarType: "float32",
			Expr:      expr.Call{Callee: "g"},
			Estimates: []dagmodel.Estimate{{Min: 0, Extent: 4000}},
		},
	}
	oracle := regionOracle{"f": stencil(1, 100), "g": stencil(1, 100)}
	params := dagmodel.MachineParams{Parallelism: 8, LastLevelCacheSize: 1 << 20, Balance: 1}
	prob := autosched.Problem{Outputs: []string{"h"}, Funcs: funcs, Params: params, Target: fixedTarget{8}, Oracle: oracle}

	res, err := autosched.Solve(context.Background(), prob, quickConfig(), nil)
	require.NoError(t, err)

	_, hasF := hasFuncVars(res.Vars, "f")
	_, hasG := hasFuncVars(res.Vars, "g")
	require.True(t, hasF, "a 100-tap stencil should not be cheap enough to inline")
	require.True(t, hasG, "a 100-tap stencil should not be cheap enough to inline")
}

// S3/S4: isotropic stencils of different footprints over the same 2048x2048
// output. Expected: h is tiled, f realized at the tile, and the ±1
// (small-footprint) variant picks strictly smaller tiles than the ±9
// (moderate) variant under identical machine parameters.
func TestScenario_S3S4_StencilFootprintAffectsTileSize(t *testing.T) {
	run := func(radius int64) (*autosched.Result, error) {
		funcs := map[string]dagmodel.FunctionSpec{
			"f": {Name: "f", Dims: 2, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
			"h": {
				Name: "h", Dims: 2, BytesPerElement: 4, ScalarType: "float32",
				Expr:      expr.Call{Callee: "f"},
				Estimates: []dagmodel.Estimate{{Min: 0, Extent: 2048}, {Min: 0, Extent: 2048}},
			},
		}
		oracle := regionOracle{"f": stencil(2, radius)}
		params := dagmodel.MachineParams{Parallelism: 8, LastLevelCacheSize: 1 << 20, Balance: 1}
		prob := autosched.Problem{Outputs: []string{"h"}, Funcs: funcs, Params: params, Target: fixedTarget{8}, Oracle: oracle}
		res, err := autosched.Solve(context.Background(), prob, quickConfig(), nil)
		return &res, err
	}

	moderate, err := run(9)
	require.NoError(t, err)
	small, err := run(1)
	require.NoError(t, err)

	_, hasF := hasFuncVars(moderate.Vars, "f")
	require.True(t, hasF, "a ±9 stencil over a 2048x2048 output should be realized, not inlined")

	moderateFactor := splitFactor(moderate.Directives, "h", 0)
	smallFactor := splitFactor(small.Directives, "h", 0)
	if moderateFactor > 0 && smallFactor > 0 {
		require.Less(t, smallFactor, moderateFactor,
			"the small-footprint stencil should pick strictly smaller tiles than the moderate one")
	}
}

// S5: separable downsample — a 3-D (x,y,k) expensive producer feeding two
// successive downsampling passes. Expected: widening the beam from 1 never
// makes the predicted cost worse.
func TestScenario_S5_SeparableDownsampleNonRegression(t *testing.T) {
	funcs := map[string]dagmodel.FunctionSpec{
		"p": {Name: "p", Dims: 3, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Max{
			A: expr.Max{A: expr.Leaf{}, B: expr.Leaf{}}, B: expr.Max{A: expr.Leaf{}, B: expr.Leaf{}},
		}},
		"d1": {Name: "d1", Dims: 3, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Call{Callee: "p"}},
		"d2": {
			Name: "d2", Dims: 3, BytesPerElement: 4, ScalarType: "float32",
			Expr:      expr.Call{Callee: "d1"},
			Estimates: []dagmodel.Estimate{{Min: 0, Extent: 64}, {Min: 0, Extent: 64}, {Min: 0, Extent: 4}},
		},
	}
	oracle := regionOracle{"p": downsampleBy2(3), "d1": downsampleBy2(3)}
	params := dagmodel.MachineParams{Parallelism: 8, LastLevelCacheSize: 1 << 20, Balance: 1}
	prob := autosched.Problem{Outputs: []string{"d2"}, Funcs: funcs, Params: params, Target: fixedTarget{8}, Oracle: oracle}

	narrow := quickConfig()
	narrow.BeamSize = 1
	resNarrow, err := autosched.Solve(context.Background(), prob, narrow, nil)
	require.NoError(t, err)

	wide := quickConfig()
	wide.AutoScheduleTimeLimit = 500 * time.Millisecond
	resWide, err := autosched.Solve(context.Background(), prob, wide, nil)
	require.NoError(t, err)

	require.LessOrEqual(t, resWide.Cost, resNarrow.Cost,
		"widening the beam must never regress the predicted cost of the chosen schedule")
}

// S6: outer product — f(x,y) = a(x)*b(y) over 2048x2048. Expected: a
// single-function schedule (a, b inlined), with a parallel outer loop
// whose extent is at least the target's parallelism.
func TestScenario_S6_OuterProductSingleFuncParallelOuter(t *testing.T) {
	funcs := map[string]dagmodel.FunctionSpec{
		"a": {Name: "a", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
		"b": {Name: "b", Dims: 1, BytesPerElement: 4, ScalarType: "float32", Expr: expr.Leaf{}},
		"f": {
			Name: "f", Dims: 2, BytesPerElement: 4, ScalarType: "float32",
			Expr:      expr.Max{A: expr.Call{Callee: "a"}, B: expr.Call{Callee: "b"}},
			Estimates: []dagmodel.Estimate{{Min: 0, Extent: 2048}, {Min: 0, Extent: 2048}},
		},
	}
	oracle := regionOracle{"a": onlyDim(0), "b": onlyDim(1)}
	params := dagmodel.MachineParams{Parallelism: 8, LastLevelCacheSize: 1 << 20, Balance: 1}
	prob := autosched.Problem{Outputs: []string{"f"}, Funcs: funcs, Params: params, Target: fixedTarget{8}, Oracle: oracle}

	res, err := autosched.Solve(context.Background(), prob, quickConfig(), nil)
	require.NoError(t, err)

	_, hasA := hasFuncVars(res.Vars, "a")
	_, hasB := hasFuncVars(res.Vars, "b")
	require.False(t, hasA, "a is pointwise-cheap and should be inlined into f")
	require.False(t, hasB, "b is pointwise-cheap and should be inlined into f")

	fv, ok := hasFuncVars(res.Vars, "f")
	require.True(t, ok)

	var sawWideParallelOuter bool
	for _, v := range fv.Vars {
		if v.Outermost && v.Parallel && v.Extent >= int64(params.Parallelism) {
			sawWideParallelOuter = true
		}
	}
	require.True(t, sawWideParallelOuter, "expected a parallel outer loop with extent >= parallelism")
}
