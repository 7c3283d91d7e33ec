package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/arrayforge/autosched/autosched"
	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/expr"
)

// ErrUnknownExprKind indicates a problem file's expression tree named a
// kind outside expr's closed set.
var ErrUnknownExprKind = errors.New("autosched: unknown expr kind in problem file")

// problemFile is the on-disk JSON shape a front-end hands this CLI (spec
// §1's real IR/bounds-inference/simplifier are out of scope; this is the
// minimal stand-in format the CLI itself can lower into dagmodel types).
type problemFile struct {
	Parallelism        int            `json:"parallelism"`
	LastLevelCacheSize int64          `json:"last_level_cache_size"`
	Balance            float64        `json:"balance"`
	Outputs            []string       `json:"outputs"`
	Functions          []functionFile `json:"functions"`
}

type functionFile struct {
	Name            string         `json:"name"`
	Dims            int            `json:"dims"`
	BytesPerElement int64          `json:"bytes_per_element"`
	ScalarType      string         `json:"scalar_type"`
	VectorWidth     int            `json:"vector_width"`
	Expr            exprFile       `json:"expr"`
	Estimates       []estimateFile `json:"estimates,omitempty"`
	Dependencies    []depFile      `json:"dependencies,omitempty"`
}

type estimateFile struct {
	Min    int64 `json:"min"`
	Extent int64 `json:"extent"`
}

// depFile names how much of a producer one function's region requires:
// Radius>0 widens the consumer's own box symmetrically by Radius in every
// dimension (an isotropic stencil); Axis, when non-nil, instead names the
// single consumer dimension the (lower-dimensional) producer depends on
// (an outer-product-style factor); the zero value is a plain point-wise
// dependency.
type depFile struct {
	Producer string `json:"producer"`
	Radius   int64  `json:"radius,omitempty"`
	Axis     *int   `json:"axis,omitempty"`

	// dims is the producer's own dimensionality, filled in by loadProblem
	// once every function's Dims is known (the file format only states
	// the consumer side of the dependency).
	dims int
}

type exprFile struct {
	Kind                string    `json:"kind"`
	Callee              string    `json:"callee,omitempty"`
	ExpensivePureExtern bool      `json:"expensive_pure_extern,omitempty"`
	Cond                *exprFile `json:"cond,omitempty"`
	A                   *exprFile `json:"a,omitempty"`
	B                   *exprFile `json:"b,omitempty"`
	T                   *exprFile `json:"t,omitempty"`
	F                   *exprFile `json:"f,omitempty"`
	ALikely             bool      `json:"a_likely,omitempty"`
	BLikely             bool      `json:"b_likely,omitempty"`
	TLikely             bool      `json:"t_likely,omitempty"`
	FLikely             bool      `json:"f_likely,omitempty"`
}

func (e *exprFile) toExpr() (expr.Expr, error) {
	if e == nil {
		return expr.Leaf{}, nil
	}
	switch e.Kind {
	case "leaf", "":
		return expr.Leaf{}, nil
	case "call":
		return expr.Call{Callee: e.Callee, ExpensivePureExtern: e.ExpensivePureExtern}, nil
	case "min":
		a, err := e.A.toExpr()
		if err != nil {
			return nil, err
		}
		b, err := e.B.toExpr()
		if err != nil {
			return nil, err
		}
		return expr.Min{A: a, B: b, ALikely: e.ALikely, BLikely: e.BLikely}, nil
	case "max":
		a, err := e.A.toExpr()
		if err != nil {
			return nil, err
		}
		b, err := e.B.toExpr()
		if err != nil {
			return nil, err
		}
		return expr.Max{A: a, B: b, ALikely: e.ALikely, BLikely: e.BLikely}, nil
	case "select":
		cond, err := e.Cond.toExpr()
		if err != nil {
			return nil, err
		}
		t, err := e.T.toExpr()
		if err != nil {
			return nil, err
		}
		f, err := e.F.toExpr()
		if err != nil {
			return nil, err
		}
		return expr.Select{Cond: cond, T: t, F: f, TLikely: e.TLikely, FLikely: e.FLikely}, nil
	default:
		return nil, ErrUnknownExprKind
	}
}

// fileOracle answers dagmodel.BoundsOracle from the per-function dependency
// list a problem file declares.
type fileOracle struct {
	deps map[string]map[string]depFile // consumer -> producer -> dep
}

func (o fileOracle) RegionRequired(producer, consumer string) (bounds.Region, error) {
	dep, ok := o.deps[consumer][producer]
	if !ok {
		return nil, dagmodel.ErrUnknownFunction
	}
	if dep.Axis != nil {
		lo, hi := bounds.DimVars(consumer, *dep.Axis)
		return bounds.Region{{Min: lo, Max: hi}}, nil
	}

	r := make(bounds.Region, dep.dims)
	for i := 0; i < dep.dims; i++ {
		lo, hi := bounds.DimVars(consumer, i)
		if dep.Radius == 0 {
			r[i] = bounds.Interval{Min: lo, Max: hi}
			continue
		}
		r[i] = bounds.Interval{
			Min: bounds.Sub{A: lo, B: bounds.Const(dep.Radius)},
			Max: bounds.Add{A: hi, B: bounds.Const(dep.Radius)},
		}
	}
	return r, nil
}

func (d *depFile) withDims(dims int) depFile {
	d2 := *d
	d2.dims = dims
	return d2
}

type fixedTarget struct{ widths map[string]int }

func (t fixedTarget) NaturalVectorWidth(scalarType string) int {
	if w, ok := t.widths[scalarType]; ok {
		return w
	}
	return 1
}

// loadProblem reads a problem file from path and lowers it into an
// autosched.Problem ready for Solve.
func loadProblem(path string) (autosched.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return autosched.Problem{}, err
	}

	var pf problemFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return autosched.Problem{}, err
	}

	funcs := make(map[string]dagmodel.FunctionSpec, len(pf.Functions))
	deps := make(map[string]map[string]depFile, len(pf.Functions))
	widths := make(map[string]int, len(pf.Functions))
	dimsOf := make(map[string]int, len(pf.Functions))

	for _, ff := range pf.Functions {
		dimsOf[ff.Name] = ff.Dims
		if ff.VectorWidth > 0 {
			widths[ff.ScalarType] = ff.VectorWidth
		}
	}

	for _, ff := range pf.Functions {
		e, err := ff.Expr.toExpr()
		if err != nil {
			return autosched.Problem{}, err
		}

		estimates := make([]dagmodel.Estimate, len(ff.Estimates))
		for i, est := range ff.Estimates {
			estimates[i] = dagmodel.Estimate{Min: est.Min, Extent: est.Extent}
		}

		funcs[ff.Name] = dagmodel.FunctionSpec{
			Name:            ff.Name,
			Dims:            ff.Dims,
			Expr:            e,
			BytesPerElement: ff.BytesPerElement,
			ScalarType:      ff.ScalarType,
			Estimates:       estimates,
		}

		consumerDeps := make(map[string]depFile, len(ff.Dependencies))
		for _, d := range ff.Dependencies {
			consumerDeps[d.Producer] = d.withDims(dimsOf[d.Producer])
		}
		deps[ff.Name] = consumerDeps
	}

	params := dagmodel.MachineParams{
		Parallelism:        pf.Parallelism,
		LastLevelCacheSize: pf.LastLevelCacheSize,
		Balance:            pf.Balance,
	}

	return autosched.Problem{
		Outputs: pf.Outputs,
		Funcs:   funcs,
		Params:  params,
		Target:  fixedTarget{widths: widths},
		Oracle:  fileOracle{deps: deps},
	}, nil
}
