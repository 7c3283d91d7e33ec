// Package cost implements the analytic cost evaluator (spec §4.4): walks a
// partial schedule tree top-down, computing per-function compute and
// memory costs under an analytic cache model, subtracting essential
// (unavoidable) work.
package cost

import (
	"math"

	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/schedule"
)

// loopBoundaryOverhead is the constant added to the innermost extent when
// computing overcompute, modeling loop-boundary overhead (spec §4.4).
const loopBoundaryOverhead = 100

// unnecessaryFoldingTax is the discount applied when a function's compute
// site differs from its storage site but no dimension actually folds
// (spec §4.4: "a small tax for unnecessary folding machinery").
const unnecessaryFoldingTax = 1.01

// innermostFoldingPenalty is the discount forced when the innermost
// dimension shrinks between compute and storage, which would break
// vectorization (spec §4.4).
const innermostFoldingPenalty = 1e10

// Breakdown holds optional per-function diagnostics produced alongside the
// scalar cost (spec §4.4 "also producing optional ... breakdowns").
type Breakdown struct {
	ComputeCost map[string]float64
	MemoryCost  map[string]float64
	InlinedCost map[string]float64
}

func newBreakdown() *Breakdown {
	return &Breakdown{
		ComputeCost: make(map[string]float64),
		MemoryCost:  make(map[string]float64),
		InlinedCost: make(map[string]float64),
	}
}

// Evaluator scores partial schedules under the machine parameters supplied
// at construction.
type Evaluator struct {
	Params dagmodel.MachineParams
}

// computeSite records, for one function, the enclosing (parent) schedule
// node of its innermost realization — the node whose GetBounds(f) reports
// the true per-iteration computed region, not the degenerate single-point
// entry the innermost node seeds for its own func (ground truth:
// AutoScheduleNew.cpp's compute_site[f] maps to the parent of the compute
// node, not the compute node itself).
type computeSite struct {
	parent      *schedule.PartialSchedule
	overcompute float64
}

// Evaluate computes the State cost for root under dag (spec §4.4's "cost(root,
// params) → double", with the essential-cost subtraction folded in so the
// result is directly usable as State.Cost).
func (e Evaluator) Evaluate(dag *dagmodel.FunctionDAG, root *schedule.PartialSchedule) (float64, *Breakdown, error) {
	sites := make(map[string]computeSite)
	collectComputeSites(dag, root, nil, 1, sites)

	bd := newBreakdown()
	raw, err := e.walk(dag, root, 1, sites, bd)
	if err != nil {
		return 0, nil, err
	}

	var essential float64
	for _, n := range dag.Nodes {
		if root.Computes(n.Func) {
			info, err := root.GetBounds(dag, n.Func)
			if err != nil {
				return 0, nil, err
			}
			essential += info.MinCost
		}
	}

	return raw - essential, bd, nil
}

// collectComputeSites finds, for every function, the enclosing node of the
// deepest (innermost) loop level at which it is realized, and the
// overcompute factor implied by that level's own extents (spec §4.4
// "compute_site[f]" / "overcompute[f]"). parent is the schedule node node
// was reached from (nil only for the tree root itself, which can never be
// a compute site).
func collectComputeSites(dag *dagmodel.FunctionDAG, node *schedule.PartialSchedule, parent *schedule.PartialSchedule, instances int64, sites map[string]computeSite) {
	if node.Innermost && node.Func != schedule.RootFunc {
		overcompute := 1.0
		if len(node.Size) > 0 {
			n, _ := dag.Node(node.Func)
			v := 1
			if n != nil && n.VectorSize > 0 {
				v = n.VectorSize
			}
			s0 := node.Size[0]
			inflated := ceilDiv(s0, v) * v
			overcompute = (float64(inflated) / float64(s0)) * (float64(s0+loopBoundaryOverhead) / float64(s0))
		}
		sites[node.Func] = computeSite{parent: parent, overcompute: overcompute}
	}
	childInstances := instances * extentProduct(node.Size)
	for _, child := range node.Children {
		collectComputeSites(dag, child, node, childInstances, sites)
	}
}

// walk accumulates the raw (pre-essential-subtraction) cost of node and its
// descendants, given the number of times node's body executes (instances).
func (e Evaluator) walk(dag *dagmodel.FunctionDAG, node *schedule.PartialSchedule, instances int64, sites map[string]computeSite, bd *Breakdown) (float64, error) {
	var total float64

	for _, g := range node.SortedStoreAt() {
		info, err := node.GetBounds(dag, g)
		if err != nil {
			return 0, err
		}
		gNode, _ := dag.Node(g)
		site, haveSite := sites[g]
		overcompute := 1.0
		if haveSite {
			overcompute = site.overcompute
		}

		points := float64(info.RegionPoints)
		computeCost := gNode.Compute * points * float64(instances) * overcompute
		total += computeCost
		bd.ComputeCost[g] += computeCost

		discount := foldingDiscount(dag, node, g, site, haveSite, info.Region)
		allocationSize := gNode.Memory * points * discount

		coldLoad := e.Params.Balance * math.Sqrt(allocationSize/float64(e.Params.LastLevelCacheSize))
		edges := dag.OutgoingEdges(g)
		for range edges {
			memCost := float64(instances) * gNode.Memory * points * coldLoad
			total += memCost
			bd.MemoryCost[g] += memCost
		}
	}

	for _, h := range node.SortedInlined() {
		hNode, _ := dag.Node(h)
		inlinedCost := hNode.ComputeIfInlined * float64(instances) * float64(node.Inlined[h])
		total += inlinedCost
		bd.InlinedCost[h] += inlinedCost
	}

	childInstances := instances * extentProduct(node.Size)
	for _, child := range node.Children {
		sub, err := e.walk(dag, child, childInstances, sites, bd)
		if err != nil {
			return 0, err
		}
		total += sub
	}

	return total, nil
}

// foldingDiscount implements spec §4.4's folding discount: 1 if compute and
// storage coincide, 1e10 if the innermost dimension shrinks between compute
// and storage (would break vectorization), the first shrinking dimension's
// extent ratio otherwise (scanning outermost to innermost), or
// unnecessaryFoldingTax if compute/storage differ but nothing shrinks.
//
// g's true computed region is read from the compute site's enclosing node
// (site.parent), not from g's own innermost node, whose cached self-entry
// is always the degenerate single point ComputeHere seeds it with.
func foldingDiscount(dag *dagmodel.FunctionDAG, storeNode *schedule.PartialSchedule, g string, site computeSite, haveSite bool, realized bounds.ConcreteRegion) float64 {
	if !haveSite || site.parent == storeNode {
		return 1
	}
	computedInfo, err := site.parent.GetBounds(dag, g)
	if err != nil {
		return unnecessaryFoldingTax
	}
	computed := computedInfo.Region
	if len(computed) != len(realized) {
		return unnecessaryFoldingTax
	}

	// Scan from outermost (highest index) to innermost (index 0).
	for d := len(computed) - 1; d >= 0; d-- {
		ec := computed[d].Extent()
		er := realized[d].Extent()
		if ec < er {
			if d == 0 {
				return innermostFoldingPenalty
			}
			return float64(ec) / float64(er)
		}
	}
	return unnecessaryFoldingTax
}

func extentProduct(size []int) int64 {
	var p int64 = 1
	for _, s := range size {
		p *= int64(s)
	}
	return p
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
