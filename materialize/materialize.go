package materialize

import (
	"fmt"
	"math"
	"sort"

	"github.com/arrayforge/autosched/cost"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/schedule"
)

// loopVar is the per-dimension bookkeeping entry threaded through one
// function's own walk (spec §4.6's FuncVars.FuncVar), innermost-to-outermost
// within funcVars.vars. A tiling level inserts one fresh group of
// len(dims) entries at the front; an entry with exists==false has been
// folded away (either never split, or degenerate).
type loopVar struct {
	name   string
	extent int64
	exists bool
}

// funcVars is the per-function walk state (spec §4.6's FuncVars):
// numCores is the parallelism budget inherited at the point this
// function's own loop nest was first entered, fixed thereafter; vars
// accumulates innermost-to-outermost as tiling levels are visited.
type funcVars struct {
	numCores float64
	vars     []loopVar
	parallel map[string]bool
}

// loopRef names a position within a function's own loop nest: the
// enclosing function and the loop variable at that level. The zero value
// refers to the outermost (root) scope, with no enclosing loop variable.
type loopRef struct {
	Func string
	Var  string
}

type walker struct {
	dag        *dagmodel.FunctionDAG
	directives []Directive
	vars       map[string]*funcVars
	order      []string // first-encounter order, for deterministic output
}

// Materialize walks the final PartialSchedule tree once (spec §4.6),
// producing the ordered directive sequence the back-end applies and a
// diagnostic per-function (compute_cost, memory_cost) breakdown. Failure:
// none internally beyond bounds-lookup errors already surfaced by
// schedule.GetBounds; no back-end is invoked here.
func Materialize(root *schedule.PartialSchedule, dag *dagmodel.FunctionDAG, params dagmodel.MachineParams) ([]Directive, []FuncVars, []FuncCostBreakdown, error) {
	w := &walker{
		dag:  dag,
		vars: make(map[string]*funcVars),
	}
	if err := w.apply(root, loopRef{}, float64(params.Parallelism), nil); err != nil {
		return nil, nil, nil, err
	}
	w.finalize()

	breakdown, err := costBreakdown(root, dag, params)
	if err != nil {
		return nil, nil, nil, err
	}

	return w.directives, w.publicFuncVars(), breakdown, nil
}

// apply is the single top-down tree walk (ground truth: the tree-search
// autoscheduler's own PartialScheduleNode::apply): one call per schedule
// node, carrying the running num_cores parallelism budget and the
// enclosing node (parent) needed to resolve this function's true
// per-dimension extents the first time it's encountered.
func (w *walker) apply(node *schedule.PartialSchedule, here loopRef, numCores float64, parent *schedule.PartialSchedule) error {
	if node.IsRoot() {
		for _, f := range node.SortedStoreAt() {
			w.directives = append(w.directives, StoreAtDirective{Func: f})
		}
		for _, c := range node.Children {
			w.directives = append(w.directives, ComputeRootDirective{Func: c.Func})
			if err := w.apply(c, loopRef{}, numCores, node); err != nil {
				return err
			}
		}
		return nil
	}

	info, ok := w.dag.Node(node.Func)
	if !ok {
		return dagmodel.ErrUnknownFunction
	}

	fv, seen := w.vars[node.Func]
	if !seen {
		bi, err := parent.GetBounds(w.dag, node.Func)
		if err != nil {
			return err
		}
		fv = &funcVars{numCores: numCores}
		for i := 0; i < info.Dims; i++ {
			fv.vars = append(fv.vars, loopVar{
				name:   dimVarName(node.Func, i),
				extent: bi.Region[i].Extent(),
				exists: true,
			})
		}
		w.vars[node.Func] = fv
		w.order = append(w.order, node.Func)
	}

	if len(node.Size) > 0 {
		if node.Innermost {
			v := firstExisting(fv.vars[:info.Dims])
			here = loopRef{Func: node.Func, Var: v.name}
			if width, ok := vectorizeWidth(v.extent, info.VectorSize); ok {
				w.directives = append(w.directives, VectorizeDirective{Func: node.Func, Var: v.name, Width: width})
			}
		} else {
			newInner := make([]loopVar, info.Dims)
			for i := 0; i < info.Dims; i++ {
				pv := &fv.vars[i]
				factor := ceilDivInt64(pv.extent, int64(node.Size[i]))
				switch {
				case !pv.exists || pv.extent == 1 || factor == 1:
					newInner[i] = loopVar{exists: false, extent: 1}
				case node.Size[i] == 1:
					// Tiled at this level in other dimensions, but this
					// dimension is untouched; carry it into the new
					// innermost slot unchanged.
					newInner[i] = *pv
					pv.exists = false
					pv.extent = 1
				default:
					outer := pv.name + ".outer"
					inner := pv.name + ".inner"
					tail := RoundUp
					if pv.extent%factor != 0 {
						tail = GuardWithIf
					}
					w.directives = append(w.directives, SplitDirective{
						Func: node.Func, Var: pv.name, Outer: outer, Inner: inner,
						Factor: int(factor), Tail: tail,
					})
					newInner[i] = loopVar{name: inner, extent: factor, exists: true}
					pv.name = outer
					pv.extent = int64(node.Size[i])
				}
			}
			here = loopRef{Func: node.Func, Var: firstExisting(fv.vars[:info.Dims]).name}
			fv.vars = append(newInner, fv.vars...)
		}
	}

	for _, f := range node.SortedStoreAt() {
		w.directives = append(w.directives, StoreAtDirective{Func: f, Parent: here.Func, Var: here.Var})
	}

	for _, s := range node.Size {
		if s > 0 {
			numCores /= float64(s)
		}
	}

	for _, c := range node.Children {
		if c.Func != node.Func {
			w.directives = append(w.directives, ComputeAtDirective{Func: c.Func, Parent: here.Func, Var: here.Var})
		}
		if err := w.apply(c, here, numCores, node); err != nil {
			return err
		}
	}
	return nil
}

// finalize runs the second pass (spec §4.6's outermost-level fusion):
// per function, in first-encounter order, reorder the surviving loop
// variables innermost first, then greedily fuse adjacent outer dimensions
// into a single parallel loop until the inherited num_cores budget is
// exhausted. No extra split is emitted: once the remaining budget drops
// below 1/8, that loop's parallel directive carries a task size of
// floor(1/budget) instead.
func (w *walker) finalize() {
	for _, f := range w.order {
		fv := w.vars[f]

		var reorder []string
		for _, v := range fv.vars {
			if v.exists {
				reorder = append(reorder, v.name)
			}
		}
		if len(reorder) > 0 {
			w.directives = append(w.directives, ReorderDirective{Func: f, Vars: reorder})
		}

		numCores := fv.numCores
		fused := ""
		anyParallel := false
		for i := len(fv.vars) - 1; i >= 0 && numCores > 1; i-- {
			v := fv.vars[i]
			if !v.exists {
				continue
			}
			numCores /= float64(v.extent)
			if fv.parallel == nil {
				fv.parallel = make(map[string]bool)
			}
			fv.parallel[v.name] = true
			if numCores < 0.125 {
				taskSize := int(math.Floor(1 / numCores))
				w.directives = append(w.directives, ParallelDirective{Func: f, Var: v.name, TaskSize: taskSize})
			} else {
				w.directives = append(w.directives, ParallelDirective{Func: f, Var: v.name})
			}
			if !anyParallel {
				fused = v.name
				anyParallel = true
			} else if i > 1 {
				w.directives = append(w.directives, FuseDirective{Func: f, Inner: v.name, Outer: fused, Fused: v.name})
				fused = v.name
			}
		}
	}
}

// publicFuncVars exports the internal walk state as FuncVars records, one
// per function that appeared in the schedule, innermost-to-outermost,
// flagging the single outermost surviving variable.
func (w *walker) publicFuncVars() []FuncVars {
	out := make([]FuncVars, 0, len(w.order))
	for _, f := range w.order {
		fv := w.vars[f]
		rec := FuncVars{Func: f}
		lastExisting := -1
		for i, v := range fv.vars {
			if v.exists {
				lastExisting = i
			}
		}
		for i, v := range fv.vars {
			rec.Vars = append(rec.Vars, LoopVar{
				Name:      v.name,
				Extent:    v.extent,
				Exists:    v.exists,
				Outermost: i == lastExisting,
				Parallel:  fv.parallel[v.name],
			})
		}
		out = append(out, rec)
	}
	return out
}

func firstExisting(vars []loopVar) loopVar {
	for _, v := range vars {
		if v.exists {
			return v
		}
	}
	return loopVar{}
}

func dimVarName(fn string, i int) string {
	return fmt.Sprintf("%s.%d", fn, i)
}

// costBreakdown runs the cost evaluator once more over the finished
// schedule to produce the diagnostic per-function (compute_cost,
// memory_cost) pairs spec §6 requires alongside the directive sequence.
// Inlined cost is folded into ComputeCost: an inlined function's
// compute_cost is exactly its InlinedCost contribution.
func costBreakdown(root *schedule.PartialSchedule, dag *dagmodel.FunctionDAG, params dagmodel.MachineParams) ([]FuncCostBreakdown, error) {
	ev := cost.Evaluator{Params: params}
	_, bd, err := ev.Evaluate(dag, root)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for f := range bd.ComputeCost {
		names[f] = true
	}
	for f := range bd.MemoryCost {
		names[f] = true
	}
	for f := range bd.InlinedCost {
		names[f] = true
	}

	sorted := make([]string, 0, len(names))
	for f := range names {
		sorted = append(sorted, f)
	}
	sort.Strings(sorted)

	out := make([]FuncCostBreakdown, 0, len(sorted))
	for _, f := range sorted {
		out = append(out, FuncCostBreakdown{
			Func:        f,
			ComputeCost: bd.ComputeCost[f] + bd.InlinedCost[f],
			MemoryCost:  bd.MemoryCost[f],
		})
	}
	return out, nil
}
