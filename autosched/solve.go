// Package autosched is the top-level dispatcher (spec §0 module layout):
// it wires dagmodel.Build, search.Driver.Search, and materialize.Materialize
// into the single call a front-end actually needs, the way tsp.SolveWithMatrix
// wires validation + algorithm dispatch behind one entry point.
package autosched

import (
	"context"

	"go.uber.org/zap"

	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/materialize"
	"github.com/arrayforge/autosched/search"
)

// Result is everything a caller needs out of one autoscheduling run: the
// directive sequence and per-function loop-variable records the
// materializer produced, the diagnostic cost breakdown, and the predicted
// total cost of the winning search state.
type Result struct {
	Directives []materialize.Directive
	Vars       []materialize.FuncVars
	Breakdown  []materialize.FuncCostBreakdown
	Cost       float64
}

// Problem bundles everything Solve needs about the program being scheduled
// (spec §6 "Inputs the core consumes"), mirroring tsp.Options as the one
// struct a caller assembles before dispatch.
type Problem struct {
	Outputs []string
	Funcs   map[string]dagmodel.FunctionSpec
	Params  dagmodel.MachineParams
	Target  dagmodel.TargetInfo
	Oracle  dagmodel.BoundsOracle
}

// Solve builds the Function DAG for prob, runs the beam search under cfg,
// and materializes the winning schedule, forwarding sentinel errors from
// whichever stage fails unwrapped (spec §7 "no fmt.Errorf where a sentinel
// suffices"), exactly as SolveWithMatrix forwards validateAll's and the
// chosen algorithm's errors as-is.
//
// A nil log is replaced with a no-op logger (search.NewDriver's own
// convention).
func Solve(ctx context.Context, prob Problem, cfg search.Config, log *zap.Logger) (Result, error) {
	dag, err := dagmodel.Build(prob.Outputs, prob.Funcs, prob.Params, prob.Target, prob.Oracle)
	if err != nil {
		return Result{}, err
	}

	driver := search.NewDriver(dag, prob.Params, cfg, log)
	best, err := driver.Search(ctx)
	if err != nil {
		return Result{}, err
	}

	directives, vars, breakdown, err := materialize.Materialize(best.Root, dag, prob.Params)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Directives: directives,
		Vars:       vars,
		Breakdown:  breakdown,
		Cost:       best.Cost,
	}, nil
}
