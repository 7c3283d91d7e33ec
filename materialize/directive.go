// Package materialize implements the schedule materializer (spec §4.6): a
// single top-down walk of the final PartialSchedule tree that emits an
// ordered sequence of abstract scheduling directives per function, plus a
// diagnostic per-function cost breakdown. The core never applies these
// directives itself; a back-end the core does not see is expected to.
package materialize

// TailPolicy names how a split's inner loop handles a non-evenly-dividing
// extent (spec §4.6).
type TailPolicy int

const (
	// RoundUp pads the inner loop up to a full tile; the back-end is
	// expected to clamp reads/writes itself.
	RoundUp TailPolicy = iota
	// GuardWithIf wraps the inner loop body in a bounds check.
	GuardWithIf
)

func (t TailPolicy) String() string {
	if t == RoundUp {
		return "round_up"
	}
	return "guard_with_if"
}

// Directive is one of the seven abstract scheduling directive shapes spec
// §6 lists as the core's output surface. The set is closed.
type Directive interface {
	isDirective()
}

// SplitDirective converts Var into an Outer/Inner pair, Inner sized to
// Factor, per spec §6 `split(var, outer, inner, factor, tail_policy)`.
type SplitDirective struct {
	Func   string
	Var    string
	Outer  string
	Inner  string
	Factor int
	Tail   TailPolicy
}

func (SplitDirective) isDirective() {}

// ReorderDirective fixes the loop nest order for Func, innermost first,
// per spec §6 `reorder(vars…)`.
type ReorderDirective struct {
	Func string
	Vars []string
}

func (ReorderDirective) isDirective() {}

// VectorizeDirective marks Var for vectorization at Width, per spec §6
// `vectorize(var, width)`.
type VectorizeDirective struct {
	Func  string
	Var   string
	Width int
}

func (VectorizeDirective) isDirective() {}

// ComputeRootDirective marks Func realized at the outermost level (spec §6
// `compute_root()`).
type ComputeRootDirective struct {
	Func string
}

func (ComputeRootDirective) isDirective() {}

// ComputeAtDirective marks Func realized within Parent's loop nest, at the
// position of Parent's Var (spec §6 `compute_at(parent, var)`).
type ComputeAtDirective struct {
	Func   string
	Parent string
	Var    string
}

func (ComputeAtDirective) isDirective() {}

// StoreAtDirective marks Func's storage allocated at Parent's Var, which
// may sit above Func's compute_at site (spec §6 `store_at(parent, var)`).
type StoreAtDirective struct {
	Func   string
	Parent string
	Var    string
}

func (StoreAtDirective) isDirective() {}

// ParallelDirective marks Var as a parallel loop, optionally with a task
// granularity (spec §6 `parallel(var)` / `parallel(var, task_size)`).
// TaskSize is 0 when the back-end should pick one task per iteration.
type ParallelDirective struct {
	Func     string
	Var      string
	TaskSize int
}

func (ParallelDirective) isDirective() {}

// FuseDirective collapses Inner and Outer into a single Fused loop var
// (spec §6 `fuse(inner, outer, fused)`), used to build the single parallel
// outer loop per function (spec §4.6).
type FuseDirective struct {
	Func   string
	Inner  string
	Outer  string
	Fused  string
}

func (FuseDirective) isDirective() {}

// LoopVar is one entry of a FuncVars record (spec §4.6).
type LoopVar struct {
	Name      string
	Extent    int64
	Outermost bool
	Parallel  bool
	// Exists is false for a degenerate extent-1 dimension folded away by
	// tiling, kept only so callers can see where a loop variable vanished.
	Exists bool
}

// FuncVars is the per-function record spec §4.6 describes: the function's
// loop variables, innermost-to-outermost, with extents and flags.
type FuncVars struct {
	Func string
	Vars []LoopVar
}

// FuncCostBreakdown is the diagnostic per-function predicted cost pair
// spec §6 requires alongside the directive sequence.
type FuncCostBreakdown struct {
	Func        string
	ComputeCost float64
	MemoryCost  float64
}

// Backend is the narrow interface the scheduling-directive back-end (spec
// §1 Non-goals: "the core emits a description of what to do; an external
// component applies it") would implement. Materialize never calls it —
// it exists so callers outside this module can plug a real code
// generator in without this package needing to know about one.
type Backend interface {
	Apply(directives []Directive, vars []FuncVars, breakdown []FuncCostBreakdown) error
}
