// Package schedule implements the partial schedule tree (spec §4.3): the
// search state, a hierarchical loop nest describing where each function is
// computed, stored, or inlined, with structural edits that return a new
// tree sharing unchanged subtrees (copy-on-write).
package schedule

import (
	"errors"
	"sort"

	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/tiling"
)

// RootFunc is the sentinel function name for the tree root (spec §3
// PartialSchedule.func: "the root (no function)").
const RootFunc = ""

// ErrCannotScheduleNext indicates the next unscheduled function cannot be
// placed because a descendant in the DAG is not yet scheduled — an
// internal invariant violation per spec §7.
var ErrCannotScheduleNext = errors.New("schedule: next function cannot be scheduled yet")

// ErrBoundsAssertion guards the spec §9 Open Question assertion that a
// function with no outgoing edges is impossible to bound at a non-root
// level; a violation indicates a caller bug.
var ErrBoundsAssertion = errors.New("schedule: output function bounded at non-root level")

// BoundsInfo is the memoized result of GetBounds (spec §3
// PartialSchedule.bounds, spec §4.3.7).
type BoundsInfo struct {
	Region       bounds.ConcreteRegion
	RegionPoints int64
	MinPoints    int64
	MinCost      float64
}

// PartialSchedule is one node of the search state tree (spec §3).
type PartialSchedule struct {
	Func      string
	Innermost bool
	Tileable  bool
	Size      []int
	Children  []*PartialSchedule
	Inlined   map[string]int
	StoreAt   map[string]bool

	boundsCache map[string]*BoundsInfo
}

// NewRoot returns the empty root schedule: no function, no children.
func NewRoot() *PartialSchedule {
	return &PartialSchedule{Func: RootFunc, Tileable: true}
}

// IsRoot reports whether ps is the sentinel root node (spec §4.3.1).
func (ps *PartialSchedule) IsRoot() bool {
	return ps.Func == RootFunc && ps.Size == nil
}

// clone returns a copy of ps whose Size, Children, Inlined and StoreAt are
// fresh copies the caller may modify without touching ps (Children still
// point at the shared child nodes) — the copy-on-write primitive every
// structural operation builds on. The bounds cache is carried forward
// (ground truth: the original source's plain struct copy `r = *this`
// inherits its `bounds` map by value): every cached entry still
// describes a region this node genuinely requires, since scheduling
// only ever adds realizations at or below a node, never removes ones
// whose bounds were already queried. Inheriting the cache is what lets
// a node's own single-point self-entry (seeded by ComputeHere) satisfy
// a later bounds query for a function that calls it, without that query
// ever needing to re-derive the entry through the general recursive
// algorithm (which only resolves an output's bounds at the root).
func (ps *PartialSchedule) clone() *PartialSchedule {
	n := &PartialSchedule{
		Func:      ps.Func,
		Innermost: ps.Innermost,
		Tileable:  ps.Tileable,
	}
	n.boundsCache = copyBoundsCache(ps.boundsCache)
	if ps.Size != nil {
		n.Size = append([]int(nil), ps.Size...)
	}
	if ps.Children != nil {
		n.Children = append([]*PartialSchedule(nil), ps.Children...)
	}
	if ps.Inlined != nil {
		n.Inlined = make(map[string]int, len(ps.Inlined))
		for k, v := range ps.Inlined {
			n.Inlined[k] = v
		}
	}
	if ps.StoreAt != nil {
		n.StoreAt = make(map[string]bool, len(ps.StoreAt))
		for k, v := range ps.StoreAt {
			n.StoreAt[k] = v
		}
	}
	return n
}

// Calls returns the number of evaluations of f across one instance of this
// loop nest (spec §4.3.2): the sum of children's calls, this node's own
// direct outgoing-edge calls to f, and any inlined contribution.
func (ps *PartialSchedule) Calls(dag *dagmodel.FunctionDAG, f string) int {
	total := 0
	for _, child := range ps.Children {
		total += child.Calls(dag, f)
	}
	if ps.Func != RootFunc {
		for _, e := range dag.OutgoingEdges(f) {
			if e.Consumer.Func == ps.Func {
				total += e.Calls
			}
		}
	}
	for consumer, count := range ps.Inlined {
		for _, e := range dag.OutgoingEdges(f) {
			if e.Consumer.Func == consumer {
				total += count * e.Calls
			}
		}
	}
	return total
}

// Computes reports whether f is realized somewhere in this subtree, or
// inlined here (spec §4.3.3).
func (ps *PartialSchedule) Computes(f string) bool {
	if ps.Func == f {
		return true
	}
	if _, ok := ps.Inlined[f]; ok {
		return true
	}
	for _, child := range ps.Children {
		if child.Computes(f) {
			return true
		}
	}
	return false
}

// InlineFunc returns a copy of ps with f removed from every site where it
// is currently compute-rooted, with its consumers' innermost nodes
// receiving inlined[f] += incoming_calls (spec §4.3.4). If no loop in ps
// calls f, the result is structurally equivalent to ps.
func (ps *PartialSchedule) InlineFunc(dag *dagmodel.FunctionDAG, f string) *PartialSchedule {
	n := ps.clone()

	// Remove any direct child loop realizing f; recurse into the rest so
	// nested realizations of f are also removed.
	var kept []*PartialSchedule
	for _, child := range n.Children {
		if child.Func == f {
			continue
		}
		kept = append(kept, child.InlineFunc(dag, f))
	}
	n.Children = kept
	if n.StoreAt != nil {
		delete(n.StoreAt, f)
	}

	// If this node is now an innermost, childless loop that consumes f
	// (directly, or transitively through another function already inlined
	// here), record the inlined contribution. Calls already walks both
	// the direct edge and the inlined-consumer chain, so it is reused
	// rather than re-deriving the same traversal.
	if n.Innermost && len(n.Children) == 0 && n.Func != RootFunc {
		incoming := n.Calls(dag, f)
		if incoming > 0 {
			if n.Inlined == nil {
				n.Inlined = make(map[string]int)
			}
			n.Inlined[f] += incoming
		}
	}

	return n
}

// ComputeHere returns a copy of ps with a new innermost child loop for f
// appended, its Size initialized to the real per-dimension region f
// requires as seen from ps (spec §4.3.5): the loop nest covers f's
// desired bounds, not a placeholder. The child's own bounds cache is
// seeded with a single point within that region (the function computes
// exactly one point at this granularity; the enclosing Size carries the
// full extent).
func (ps *PartialSchedule) ComputeHere(dag *dagmodel.FunctionDAG, f string) *PartialSchedule {
	node, _ := dag.Node(f)
	bi, err := ps.GetBounds(dag, f)
	n := ps.clone()

	size := make([]int, node.Dims)
	single := make(bounds.ConcreteRegion, node.Dims)
	for i := range size {
		if err == nil && i < len(bi.Region) {
			size[i] = int(bi.Region[i].Extent())
			single[i] = bounds.ConcreteInterval{Min: bi.Region[i].Min, Max: bi.Region[i].Min}
		} else {
			size[i] = 1
			single[i] = bounds.ConcreteInterval{Min: 0, Max: 0}
		}
	}

	child := &PartialSchedule{
		Func:      f,
		Innermost: true,
		Tileable:  true,
		Size:      size,
	}
	child.boundsCache = map[string]*BoundsInfo{
		f: {
			Region:       single,
			RegionPoints: 1,
			MinPoints:    1,
			MinCost:      node.Compute,
		},
	}

	n.Children = append(append([]*PartialSchedule(nil), n.Children...), child)
	return n
}

// ComputeInTiles enumerates placements for realizing f, per spec §4.3.6.
// parent is the enclosing node ps was reached from (nil at the root);
// inRealization marks whether ps is already inside a pinned realization
// of some ancestor function. params supplies Parallelism for the
// root-level tiling filter.
func (ps *PartialSchedule) ComputeInTiles(dag *dagmodel.FunctionDAG, f string, parent *PartialSchedule, inRealization bool, params dagmodel.MachineParams) ([]*PartialSchedule, error) {
	if parent != nil {
		inLoop, err := ps.GetBounds(dag, f)
		if err == nil {
			atParent, perr := parent.GetBounds(dag, f)
			if perr == nil && atParent.RegionPoints <= inLoop.RegionPoints {
				// Descending into this loop doesn't shrink f's required
				// region any further than the parent already sees, so
				// there's nothing to gain from placing it here.
				return nil, nil
			}
		}
	}

	var out []*PartialSchedule

	// Option: place f directly here (store_at unless pinned higher).
	direct := ps.clone()
	if direct.StoreAt == nil {
		direct.StoreAt = make(map[string]bool)
	}
	if !inRealization {
		direct.StoreAt[f] = true
	}
	direct = direct.placeComputeSite(dag, f)
	out = append(out, direct)

	node, _ := dag.Node(f)
	if dag.IsOutput(f) {
		// f is an output: cannot be tiled further (spec §4.3.6).
		return out, nil
	}
	var tilings [][]int
	if ps.Tileable && len(ps.Size) > 0 {
		tilings = tiling.Tilings(ps.Size, !inRealization, node.VectorSize)
	}
	for _, t := range tilings {
		outerTotal := 1
		for _, f2 := range t {
			outerTotal *= f2
		}
		if parent == nil && outerTotal < params.Parallelism {
			continue
		}

		outer := ps.clone()
		// inner inherits ps's entire pre-tile structure, including its
		// whole bounds cache (ground truth: AutoScheduleNew.cpp moves
		// `bounds` into the inner loop wholesale via std::swap).
		inner := &PartialSchedule{
			Func:        ps.Func,
			Innermost:   ps.Innermost,
			Tileable:    true,
			Size:        make([]int, len(ps.Size)),
			Children:    append([]*PartialSchedule(nil), ps.Children...),
			Inlined:     copyIntMap(ps.Inlined),
			StoreAt:     copyBoolMap(ps.StoreAt),
			boundsCache: copyBoundsCache(ps.boundsCache),
		}
		for i, sz := range ps.Size {
			inner.Size[i] = ceilDivInt(sz, t[i])
		}
		outer.Size = append([]int(nil), t...)
		outer.Innermost = false
		outer.Children = []*PartialSchedule{inner}
		outer.Inlined = nil
		outer.StoreAt = nil

		// outer starts with a fresh cache holding only its own (coarser)
		// self entry, re-derived from the parent's real bounds for ps.Func
		// divided by the chosen factor — otherwise outer would keep
		// reporting the single-point region ps was seeded with, never
		// reflecting the tile it now spans (ground truth: the same file's
		// `outer.bounds[func]` refresh). min_points/min_cost are carried
		// over unrefreshed, matching the original's own left-as-is TODO.
		selfEntry := &BoundsInfo{}
		if old, ok := ps.boundsCache[ps.Func]; ok {
			*selfEntry = *old
		}
		if parent != nil && ps.Func != RootFunc {
			parentBounds, err := parent.GetBounds(dag, ps.Func)
			if err != nil {
				return nil, err
			}
			region := make(bounds.ConcreteRegion, len(t))
			var points int64 = 1
			for i, factor := range t {
				min := parentBounds.Region[i].Min
				extent := ceilDivInt64(parentBounds.Region[i].Extent(), int64(factor))
				region[i] = bounds.ConcreteInterval{Min: min, Max: min + extent - 1}
				points *= extent
			}
			selfEntry.Region = region
			selfEntry.RegionPoints = points
		}
		outer.boundsCache = map[string]*BoundsInfo{ps.Func: selfEntry}

		if !inRealization {
			if outer.StoreAt == nil {
				outer.StoreAt = make(map[string]bool)
			}
			outer.StoreAt[f] = true
		}
		outer = outer.placeComputeSite(dag, f)

		out = append(out, outer)

		// Also consider: store at the outer (coarser) granularity but
		// leave the compute site further in, so a later pass can still
		// slide f over the inner loop. Only offered when f isn't already
		// pinned to a storage site by an ancestor (spec §4.3.6); once
		// already sliding f over a loop, it's best not to tile it again.
		if !inRealization {
			nestedInner := inner.clone()
			nestedInner.Tileable = false
			nestedOuter := outer.clone()
			if nestedOuter.StoreAt == nil {
				nestedOuter.StoreAt = make(map[string]bool)
			}
			nestedOuter.StoreAt[f] = true
			nestedOuter.Children = []*PartialSchedule{nestedInner}
			out = append(out, nestedOuter)
		}
	}

	// If exactly one child calls f, also offer to recurse into that child.
	callers := 0
	var soleChildIdx int
	for i, child := range ps.Children {
		if childCalls(dag, child, f) > 0 {
			callers++
			soleChildIdx = i
		}
	}
	if callers == 1 {
		storeOptions := []bool{false}
		if !inRealization && parent != nil {
			storeOptions = append(storeOptions, true)
		}
		for _, storeHere := range storeOptions {
			childResults, err := ps.Children[soleChildIdx].ComputeInTiles(dag, f, ps, inRealization || storeHere, params)
			if err != nil {
				return nil, err
			}
			for _, cr := range childResults {
				n := ps.clone()
				n.Children = append([]*PartialSchedule(nil), ps.Children...)
				n.Children[soleChildIdx] = cr
				if storeHere {
					if n.StoreAt == nil {
						n.StoreAt = make(map[string]bool)
					}
					n.StoreAt[f] = true
				}
				out = append(out, n)
			}
		}
	}

	return out, nil
}

func childCalls(dag *dagmodel.FunctionDAG, child *PartialSchedule, f string) int {
	return child.Calls(dag, f)
}

// placeComputeSite appends a compute-here child for f to ps if one isn't
// already present among its children.
func (ps *PartialSchedule) placeComputeSite(dag *dagmodel.FunctionDAG, f string) *PartialSchedule {
	for _, c := range ps.Children {
		if c.Func == f {
			return ps
		}
	}
	return ps.ComputeHere(dag, f)
}

// copyBoundsCache returns an independent shallow copy of a bounds cache: a
// fresh map, but sharing the (immutable once computed) *BoundsInfo values
// themselves. Every clone that inherits cached entries must own its own map
// so later cache writes on one copy never leak into another.
func copyBoundsCache(m map[string]*BoundsInfo) map[string]*BoundsInfo {
	if m == nil {
		return nil
	}
	out := make(map[string]*BoundsInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func ceilDivInt(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func ceilDivInt64(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// GetBounds computes (and memoizes) the region required of f as seen from
// this schedule node, per spec §4.3.7. See DESIGN.md for the recursive
// "same-node-context" interpretation this implementation uses.
func (ps *PartialSchedule) GetBounds(dag *dagmodel.FunctionDAG, f string) (*BoundsInfo, error) {
	if ps.boundsCache == nil {
		ps.boundsCache = make(map[string]*BoundsInfo)
	}
	if cached, ok := ps.boundsCache[f]; ok {
		return cached, nil
	}

	node, ok := dag.Node(f)
	if !ok {
		return nil, dagmodel.ErrUnknownFunction
	}

	var info *BoundsInfo
	if dag.IsOutput(f) {
		if !ps.IsRoot() {
			return nil, ErrBoundsAssertion
		}
		region := make(bounds.ConcreteRegion, len(node.Estimates))
		copy(region, node.Estimates)
		points := region.Points()
		info = &BoundsInfo{
			Region:       region,
			RegionPoints: points,
			MinPoints:    points,
			MinCost:      float64(points) * node.Compute,
		}
	} else {
		edges := dag.OutgoingEdges(f)
		var union bounds.ConcreteRegion
		var minPointsSum int64
		for _, e := range edges {
			_, memoized := ps.boundsCache[e.Consumer.Func]
			if !memoized && ps.Calls(dag, e.Consumer.Func) == 0 {
				continue
			}
			consumerInfo, err := ps.GetBounds(dag, e.Consumer.Func)
			if err != nil {
				return nil, err
			}
			env := regionToEnv(e.Consumer.Func, consumerInfo.Region)
			conc, err := bounds.SimplifyRegion(e.Region, env)
			if err != nil {
				return nil, bounds.ErrNotConstant
			}
			union = unionRegion(union, conc)
			minPointsSum += consumerInfo.MinPoints * int64(e.Calls)
		}
		points := union.Points()
		minPoints := points
		if minPointsSum < minPoints {
			minPoints = minPointsSum
		}
		costByRegion := float64(points) * node.Compute
		costByInline := float64(minPoints) * node.ComputeIfInlined
		minCost := costByRegion
		if costByInline < minCost {
			minCost = costByInline
		}
		info = &BoundsInfo{
			Region:       union,
			RegionPoints: points,
			MinPoints:    minPoints,
			MinCost:      minCost,
		}
	}

	ps.boundsCache[f] = info
	return info, nil
}

func regionToEnv(fn string, region bounds.ConcreteRegion) bounds.Env {
	env := make(bounds.Env, len(region)*2)
	for i, iv := range region {
		lo, hi := bounds.DimVars(fn, i)
		env[string(lo)] = iv.Min
		env[string(hi)] = iv.Max
	}
	return env
}

func unionRegion(a, b bounds.ConcreteRegion) bounds.ConcreteRegion {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := make(bounds.ConcreteRegion, len(a))
	for i := range a {
		min := a[i].Min
		if b[i].Min < min {
			min = b[i].Min
		}
		max := a[i].Max
		if b[i].Max > max {
			max = b[i].Max
		}
		out[i] = bounds.ConcreteInterval{Min: min, Max: max}
	}
	return out
}

// SortedStoreAt returns the store_at function names in deterministic
// (sorted) order, for materialization and testing.
func (ps *PartialSchedule) SortedStoreAt() []string {
	out := make([]string, 0, len(ps.StoreAt))
	for f := range ps.StoreAt {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SortedInlined returns the inlined function names in deterministic order.
func (ps *PartialSchedule) SortedInlined() []string {
	out := make([]string, 0, len(ps.Inlined))
	for f := range ps.Inlined {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
