// Package expr defines the minimal expression IR the autoscheduler's leaf
// counter walks, and the counter itself.
//
// The real compiler's expression/statement IR, simplifier, and bounds
// inference are external collaborators (see dagmodel.BoundsOracle); this
// package is the narrow stand-in the Function DAG builder needs to compute
// per-point compute cost and callee invocation counts from a function's
// defining expression (spec §4.1.b).
package expr

// Expr is a node of a function's defining expression tree. The set of kinds
// is closed: Leaf, Call, Select, Min, Max. Only Select/Min/Max carry the
// "likely" propagation the counter uses to bias redundant-arm counting.
type Expr interface {
	isExpr()
}

// Leaf is a single scalar operation: a load, an arithmetic op, a constant.
// Each Leaf contributes exactly one to the leaf count.
type Leaf struct{}

func (Leaf) isExpr() {}

// Call references a producer function by name. Calls contribute one leaf
// (the call itself) and are additionally tallied per-callee by the counter.
type Call struct {
	Callee string

	// ExpensivePureExtern marks a call to a pure extern the leaf counter
	// must weight heavily (spec §4.1.b: "added 100 per such call").
	ExpensivePureExtern bool
}

func (Call) isExpr() {}

// Select models a ternary Cond ? T : F. TLikely/FLikely mark which arm (if
// any) was tagged "likely" by the front-end; at most one of the two should
// be true for a single Select (both false is also valid: no hint given).
type Select struct {
	Cond, T, F     Expr
	TLikely        bool
	FLikely        bool
}

func (Select) isExpr() {}

// Min models min(A, B) with the same likely-tag semantics as Select.
type Min struct {
	A, B           Expr
	ALikely        bool
	BLikely        bool
}

func (Min) isExpr() {}

// Max models max(A, B) with the same likely-tag semantics as Select.
type Max struct {
	A, B           Expr
	ALikely        bool
	BLikely        bool
}

func (Max) isExpr() {}

// Counts is the result of walking one function's bundled defining
// expressions with CountLeaves.
type Counts struct {
	// Leaves is the total leaf count L (spec §4.1.b).
	Leaves int

	// Calls maps callee function name to the number of times it is invoked
	// per evaluation of one point of the function being counted.
	Calls map[string]int
}

// CountLeaves walks e and returns its leaf/call counts using the
// likely-aware rule for Select/Min/Max: of the two candidate arms, if
// exactly one carries a propagated likely tag, only that arm's leaves
// contribute; otherwise both arms contribute. A Select's condition is only
// counted when at least one arm carries a likely tag; with neither arm
// tagged (the common, hint-free case) the condition's leaves are dropped
// entirely. The "likely" propagation crosses only Select/Min/Max, never
// Call boundaries (a call's own body is a separate function's expression,
// counted separately).
func CountLeaves(root Expr) Counts {
	c := Counts{Calls: make(map[string]int)}
	countInto(root, &c)
	return c
}

func countInto(e Expr, c *Counts) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case Leaf:
		c.Leaves++
	case Call:
		c.Leaves++
		c.Calls[n.Callee]++
		if n.ExpensivePureExtern {
			c.Leaves += 100
		}
	case Select:
		if n.TLikely || n.FLikely {
			countInto(n.Cond, c)
		}
		countArms(n.T, n.F, n.TLikely, n.FLikely, c)
	case Min:
		countArms(n.A, n.B, n.ALikely, n.BLikely, c)
	case Max:
		countArms(n.A, n.B, n.ALikely, n.BLikely, c)
	}
}

// countArms applies the likely-aware rule to a pair of candidate arms.
func countArms(a, b Expr, aLikely, bLikely bool, c *Counts) {
	switch {
	case aLikely && !bLikely:
		countInto(a, c)
	case bLikely && !aLikely:
		countInto(b, c)
	default:
		countInto(a, c)
		countInto(b, c)
	}
}
