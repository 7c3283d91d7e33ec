// Package dagmodel implements the Function DAG (spec §4.1): an immutable,
// reverse-realization-ordered representation of a group of mutually
// referencing pure array functions, their per-point compute/memory costs,
// and producer→consumer edges annotated with symbolic required regions.
package dagmodel

import (
	"errors"
	"sort"

	"github.com/arrayforge/autosched/bounds"
	"github.com/arrayforge/autosched/expr"
)

// Sentinel errors. Configuration errors are reported before any search
// starts; internal-invariant errors indicate a caller or builder bug.
var (
	// ErrMissingEstimate indicates an output dimension has no user-supplied
	// bound estimate (spec §4.1 "Failure").
	ErrMissingEstimate = errors.New("dagmodel: output function missing bound estimate")

	// ErrHasUpdateDefinition indicates a reached function has update
	// definitions, which this autoscheduler does not support (spec §1
	// Non-goals, §4.1 "Failure").
	ErrHasUpdateDefinition = errors.New("dagmodel: function has update definitions (unsupported)")

	// ErrUnknownFunction indicates a referenced function name has no
	// FunctionSpec in the supplied catalog.
	ErrUnknownFunction = errors.New("dagmodel: referenced function has no spec")

	// ErrDuplicateFunction indicates the same function name was registered
	// twice with inconsistent definitions — an internal invariant violation
	// per spec §7.
	ErrDuplicateFunction = errors.New("dagmodel: function registered twice with different definitions")

	// ErrNoOutputs indicates Build was called with an empty output list.
	ErrNoOutputs = errors.New("dagmodel: at least one output function is required")
)

// Estimate is a user-supplied (min, extent) pair for one output dimension.
type Estimate struct {
	Min    int64
	Extent int64
}

// FunctionSpec is everything the front-end supplies about one function: its
// identity, dimensionality, defining expression (for leaf counting), and —
// for outputs only — its user bound estimates.
type FunctionSpec struct {
	// Name uniquely identifies the function; it doubles as the opaque
	// front-end token referenced by spec §3 "Node".
	Name string

	// Dims is the function's dimensionality d.
	Dims int

	// ArgNames are the function's own argument names, one per dimension.
	// Build does not read them: the symbolic region (spec §3 Node.region)
	// is named via bounds.DimVars.
	ArgNames []string

	// Expr is the function's bundled defining expression, walked by
	// expr.CountLeaves to derive compute cost and callee counts.
	Expr expr.Expr

	// HasUpdateDefinition marks a function with update (reduction) stages;
	// such functions are rejected (spec §1 Non-goals, §4.1 Failure).
	HasUpdateDefinition bool

	// BytesPerElement is the output's element size in bytes, used to weight
	// compute/memory costs (spec §4.1.c).
	BytesPerElement int64

	// ScalarType names the function's narrowest scalar type, used only to
	// query the natural vector width for the target (spec §4.1.b T_n).
	ScalarType string

	// Estimates are the user bound estimates, required (one per dimension)
	// only for output functions (spec §3 DAG invariants).
	Estimates []Estimate
}

// MachineParams are the machine-aware parameters threaded through cost
// evaluation and search (spec §4.1 "Inputs").
type MachineParams struct {
	// Parallelism is the target's available parallelism (core count).
	Parallelism int

	// LastLevelCacheSize is the cache size in bytes used by the analytic
	// cold-load cost function (spec §4.4).
	LastLevelCacheSize int64

	// Balance is the compute/memory cost-model balance knob (spec §4.4).
	Balance float64
}

// TargetInfo answers the one query the DAG builder needs of the compile
// target: the natural vector width for a scalar type (spec §6).
type TargetInfo interface {
	NaturalVectorWidth(scalarType string) int
}

// BoundsOracle is the external bounds-inference + simplifier collaborator
// (spec §1 "out of scope", §6 "Inputs the core consumes"). It returns the
// region producer's values are required in, expressed as a symbolic box in
// consumer's own dimension variables (bounds.DimVars(consumer, i)), already
// simplified under the front-end's parameter estimates wherever constants
// are known.
type BoundsOracle interface {
	RegionRequired(producer, consumer string) (bounds.Region, error)
}

// Node is one function in the DAG (spec §3 "Node").
type Node struct {
	Func string
	Dims int

	// Compute is the per-point compute cost, weighted by output bytes
	// (spec §4.1.c: L × bytes_per_element).
	Compute float64

	// ComputeIfInlined is the per-point cost if this function is inlined
	// into its consumer (spec §4.1.c: max(0, L−d) × bytes_per_element).
	ComputeIfInlined float64

	// Memory is the per-point memory cost coefficient (bytes_per_element).
	Memory float64

	// VectorSize is the natural vector width for this function's narrowest
	// scalar type on the target.
	VectorSize int

	// Region is this function's own symbolic region, one Interval per
	// dimension, named via bounds.DimVars(Func, i) (spec §3 Node.region;
	// used only for edge parameterization).
	Region bounds.Region

	// Estimates holds the user-supplied bound estimates; non-nil only for
	// output functions (spec §3 DAG invariants).
	Estimates []bounds.ConcreteInterval
}

// hasEstimates reports whether n carries user bound estimates, which only
// output functions have.
func (n *Node) hasEstimates() bool { return n.Estimates != nil }

// Edge is a producer→consumer dependency (spec §3 "Edge").
type Edge struct {
	Producer *Node
	Consumer *Node

	// Region is the box of producer values required, as d symbolic
	// intervals in the consumer's own dimension variables.
	Region bounds.Region

	// Calls is the number of evaluations of Producer per evaluation of one
	// point of Consumer.
	Calls int
}

// FunctionDAG is the immutable-after-construction Function DAG (spec §4.1).
// Nodes is stored in reverse realization order: outputs first.
type FunctionDAG struct {
	Nodes []*Node

	index   map[string]*Node
	indexOf map[string]int // Func name -> position in Nodes

	outgoing map[string][]*Edge // producer name -> edges where it is the producer
	incoming map[string][]*Edge // consumer name -> edges where it is the consumer
}

// Node looks up a node by function name.
func (d *FunctionDAG) Node(name string) (*Node, bool) {
	n, ok := d.index[name]
	return n, ok
}

// IndexOf returns the position of name within d.Nodes (reverse-realization
// order), or -1 if absent.
func (d *FunctionDAG) IndexOf(name string) int {
	i, ok := d.indexOf[name]
	if !ok {
		return -1
	}
	return i
}

// OutgoingEdges returns the edges where fn is the producer (nil when there
// are none).
func (d *FunctionDAG) OutgoingEdges(fn string) []*Edge {
	return d.outgoing[fn]
}

// IncomingEdges returns the edges where fn is the consumer (nil when there
// are none).
func (d *FunctionDAG) IncomingEdges(fn string) []*Edge {
	return d.incoming[fn]
}

// IsOutput reports whether fn has no outgoing edges, i.e. it is one of the
// DAG's root outputs (spec §3: "Output nodes have no outgoing edges").
func (d *FunctionDAG) IsOutput(fn string) bool {
	return len(d.outgoing[fn]) == 0
}

// Build constructs the Function DAG for the transitive closure of functions
// reachable from outputs, per spec §4.1 "Construction".
//
// funcs must contain a FunctionSpec for every function name reachable from
// outputs (including the outputs themselves); Build resolves the closure by
// walking each function's Expr for Call references.
func Build(outputs []string, funcs map[string]FunctionSpec, params MachineParams, target TargetInfo, oracle BoundsOracle) (*FunctionDAG, error) {
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	// Step 1: transitive closure of functions reachable from outputs.
	closure := make(map[string]FunctionSpec)
	order := make([]string, 0, len(funcs)) // discovery order, producers appended after first visit
	var visit func(name string) error
	visiting := make(map[string]bool)
	visit = func(name string) error {
		if _, done := closure[name]; done {
			return nil
		}
		if visiting[name] {
			return nil // cycles are not expected in a pure-function DAG; ignore re-entry defensively
		}
		visiting[name] = true
		spec, ok := funcs[name]
		if !ok {
			return ErrUnknownFunction
		}
		if spec.HasUpdateDefinition {
			return ErrHasUpdateDefinition
		}
		closure[name] = spec
		counts := expr.CountLeaves(spec.Expr)
		callees := make([]string, 0, len(counts.Calls))
		for callee := range counts.Calls {
			callees = append(callees, callee)
		}
		sort.Strings(callees) // deterministic visitation order
		for _, callee := range callees {
			if err := visit(callee); err != nil {
				return err
			}
		}
		visiting[name] = false
		order = append(order, name) // producers-before-consumers (post-order)
		return nil
	}
	for _, out := range outputs {
		if err := visit(out); err != nil {
			return nil, err
		}
	}

	// order is producers-first (topological, post-order DFS); reverse it to
	// get the spec's "reverse realization order" (outputs first).
	nodesOrder := make([]string, len(order))
	for i, name := range order {
		nodesOrder[len(order)-1-i] = name
	}

	dag := &FunctionDAG{
		index:    make(map[string]*Node, len(nodesOrder)),
		indexOf:  make(map[string]int, len(nodesOrder)),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]*Edge),
	}

	outputSet := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		outputSet[o] = true
	}

	// Step 2+3: build each Node (per-point costs, region, estimates).
	for i, name := range nodesOrder {
		spec := closure[name]
		counts := expr.CountLeaves(spec.Expr)

		bpe := float64(spec.BytesPerElement)
		if bpe == 0 {
			bpe = 1
		}
		compute := float64(counts.Leaves) * bpe
		computeIfInlined := float64(counts.Leaves-spec.Dims) * bpe
		if computeIfInlined < 0 {
			computeIfInlined = 0
		}

		region := make(bounds.Region, spec.Dims)
		for d := 0; d < spec.Dims; d++ {
			lo, hi := bounds.DimVars(spec.Name, d)
			region[d] = bounds.Interval{Min: lo, Max: hi}
		}

		var estimates []bounds.ConcreteInterval
		if outputSet[name] {
			if len(spec.Estimates) != spec.Dims {
				return nil, ErrMissingEstimate
			}
			estimates = make([]bounds.ConcreteInterval, spec.Dims)
			for d, e := range spec.Estimates {
				estimates[d] = bounds.ConcreteInterval{Min: e.Min, Max: e.Min + e.Extent - 1}
			}
		}

		vecSize := 1
		if target != nil {
			if w := target.NaturalVectorWidth(spec.ScalarType); w > 0 {
				vecSize = w
			}
		}

		node := &Node{
			Func:             name,
			Dims:             spec.Dims,
			Compute:          compute,
			ComputeIfInlined: computeIfInlined,
			Memory:           bpe,
			VectorSize:       vecSize,
			Region:           region,
			Estimates:        estimates,
		}
		dag.index[name] = node
		dag.indexOf[name] = i
		dag.Nodes = append(dag.Nodes, node)
		dag.outgoing[name] = nil
		dag.incoming[name] = nil
	}

	// Step 4(d): for each consumer, add an Edge per producer it calls.
	for _, name := range nodesOrder {
		spec := closure[name]
		counts := expr.CountLeaves(spec.Expr)
		consumer := dag.index[name]

		callees := make([]string, 0, len(counts.Calls))
		for callee := range counts.Calls {
			callees = append(callees, callee)
		}
		sort.Strings(callees)

		for _, callee := range callees {
			producer, ok := dag.index[callee]
			if !ok {
				return nil, ErrUnknownFunction
			}
			region, err := oracle.RegionRequired(callee, name)
			if err != nil {
				return nil, err
			}
			edge := &Edge{
				Producer: producer,
				Consumer: consumer,
				Region:   region,
				Calls:    counts.Calls[callee],
			}
			dag.outgoing[callee] = append(dag.outgoing[callee], edge)
			dag.incoming[name] = append(dag.incoming[name], edge)
		}
	}

	return dag, nil
}
