// Package bounds implements the symbolic interval algebra (spec §4.1
// component 1) used to evaluate the concrete region a consumer requires of
// a producer: a small integer-expression AST, an environment of bound
// variables, and constant-folding simplification.
//
// The real compiler's general simplifier and bounds-inference machinery
// are external collaborators (see dagmodel.BoundsOracle); this package only
// needs to fold the closed, small arithmetic this module itself introduces
// over region-min/max variables.
package bounds

import (
	"errors"
	"strconv"
)

// ErrUnboundVariable indicates Substitute/Simplify referenced a variable
// absent from the supplied Env.
var ErrUnboundVariable = errors.New("bounds: unbound variable")

// ErrNotConstant indicates Simplify could not fold an expression down to a
// single integer constant — an internal invariant violation per spec §7
// ("region endpoints that do not simplify to constants").
var ErrNotConstant = errors.New("bounds: expression did not simplify to a constant")

// IntExpr is an integer expression over named variables. The set of kinds
// is closed: Const, Var, Add, Sub, Mul, Min, Max.
type IntExpr interface {
	isIntExpr()
}

// Const is an integer literal.
type Const int64

func (Const) isIntExpr() {}

// Var names a bound variable, e.g. "h.0.min" (function h, dimension 0,
// lower bound) as named in spec §3.
type Var string

func (Var) isIntExpr() {}

// Add is A + B.
type Add struct{ A, B IntExpr }

func (Add) isIntExpr() {}

// Sub is A - B.
type Sub struct{ A, B IntExpr }

func (Sub) isIntExpr() {}

// Mul is A * B.
type Mul struct{ A, B IntExpr }

func (Mul) isIntExpr() {}

// Min is min(A, B).
type Min struct{ A, B IntExpr }

func (Min) isIntExpr() {}

// Max is max(A, B).
type Max struct{ A, B IntExpr }

func (Max) isIntExpr() {}

// Env binds variable names to concrete integer values: a consumer's loop
// bounds (".min"/".max" pairs) once a schedule level fixes them.
type Env map[string]int64

// Interval is a symbolic [Min, Max] pair, one per dimension of a region.
type Interval struct {
	Min IntExpr
	Max IntExpr
}

// Region is a d-dimensional symbolic box, one Interval per dimension.
type Region []Interval

// Extent returns Max-Min+1 for a concrete (already-simplified) Interval.
// Callers must Simplify first; Extent does not fold.
func (iv ConcreteInterval) Extent() int64 {
	if iv.Max < iv.Min {
		return 0
	}
	return iv.Max - iv.Min + 1
}

// ConcreteInterval is an Interval after Simplify has folded both endpoints
// to integers.
type ConcreteInterval struct {
	Min int64
	Max int64
}

// ConcreteRegion is a Region after every Interval has been simplified.
type ConcreteRegion []ConcreteInterval

// Points returns the product of each dimension's extent: the number of
// integer grid points the region covers.
func (r ConcreteRegion) Points() int64 {
	var n int64 = 1
	for _, iv := range r {
		n *= iv.Extent()
	}
	return n
}

// Simplify folds e to a constant under env, returning ErrUnboundVariable if
// any referenced variable is absent from env, or ErrNotConstant for an
// expression kind it cannot fold.
func Simplify(e IntExpr, env Env) (int64, error) {
	switch n := e.(type) {
	case Const:
		return int64(n), nil
	case Var:
		v, ok := env[string(n)]
		if !ok {
			return 0, ErrUnboundVariable
		}
		return v, nil
	case Add:
		a, err := Simplify(n.A, env)
		if err != nil {
			return 0, err
		}
		b, err := Simplify(n.B, env)
		if err != nil {
			return 0, err
		}
		return a + b, nil
	case Sub:
		a, err := Simplify(n.A, env)
		if err != nil {
			return 0, err
		}
		b, err := Simplify(n.B, env)
		if err != nil {
			return 0, err
		}
		return a - b, nil
	case Mul:
		a, err := Simplify(n.A, env)
		if err != nil {
			return 0, err
		}
		b, err := Simplify(n.B, env)
		if err != nil {
			return 0, err
		}
		return a * b, nil
	case Min:
		a, err := Simplify(n.A, env)
		if err != nil {
			return 0, err
		}
		b, err := Simplify(n.B, env)
		if err != nil {
			return 0, err
		}
		if a < b {
			return a, nil
		}
		return b, nil
	case Max:
		a, err := Simplify(n.A, env)
		if err != nil {
			return 0, err
		}
		b, err := Simplify(n.B, env)
		if err != nil {
			return 0, err
		}
		if a > b {
			return a, nil
		}
		return b, nil
	default:
		return 0, ErrNotConstant
	}
}

// SimplifyRegion folds every Interval of r under env, failing on the first
// endpoint that will not resolve to a constant (spec §4.3.7 "get_bounds":
// "required to resolve to constants").
func SimplifyRegion(r Region, env Env) (ConcreteRegion, error) {
	out := make(ConcreteRegion, len(r))
	for i, iv := range r {
		lo, err := Simplify(iv.Min, env)
		if err != nil {
			return nil, ErrNotConstant
		}
		hi, err := Simplify(iv.Max, env)
		if err != nil {
			return nil, ErrNotConstant
		}
		out[i] = ConcreteInterval{Min: lo, Max: hi}
	}
	return out, nil
}

// DimVars returns the conventional ".min"/".max" variable names for
// dimension i of function fn, matching spec §3's naming
// ("<func>.<i>.min/.max").
func DimVars(fn string, i int) (minVar, maxVar Var) {
	base := fn + "." + strconv.Itoa(i)
	return Var(base + ".min"), Var(base + ".max")
}
