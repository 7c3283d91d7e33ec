// Package search implements the beam search driver (spec §4.5): a
// best-first, iteratively-widened search over PartialSchedule expansions,
// scored by the cost evaluator, with stochastic dropout pruning.
package search

import (
	"container/heap"
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/arrayforge/autosched/cost"
	"github.com/arrayforge/autosched/dagmodel"
	"github.com/arrayforge/autosched/schedule"
)

// ErrQueueEmptied indicates no complete schedule was found: the beam was
// emptied (every candidate in a round was either invalid or dropped), or
// no widening pass finished before the deadline — an internal invariant
// violation per spec §7.
var ErrQueueEmptied = errors.New("search: beam emptied before a complete schedule was found")

// State is one node of the search frontier (spec §3): a candidate
// schedule, its evaluated cost, and how many of the DAG's functions it has
// placed so far.
type State struct {
	Root              *schedule.PartialSchedule
	Cost              float64
	NumFuncsScheduled int
}

// IsComplete reports whether every function in dag is realized or inlined
// somewhere in s.Root (spec §4.7).
func (s *State) IsComplete(dag *dagmodel.FunctionDAG) bool {
	for _, n := range dag.Nodes {
		if !s.Root.Computes(n.Func) {
			return false
		}
	}
	return true
}

// IsPartial is the complement of IsComplete.
func (s *State) IsPartial(dag *dagmodel.FunctionDAG) bool {
	return !s.IsComplete(dag)
}

// Driver runs the beam search for one DAG under one set of machine
// parameters. Config and the RNG are held per Driver instance, never as
// package globals (spec §9).
type Driver struct {
	DAG    *dagmodel.FunctionDAG
	Params dagmodel.MachineParams
	Config Config
	Eval   cost.Evaluator
	Log    *zap.Logger

	rng *rand.Rand
}

// NewDriver constructs a Driver. A nil logger is replaced with a no-op one.
func NewDriver(dag *dagmodel.FunctionDAG, params dagmodel.MachineParams, cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		DAG:    dag,
		Params: params,
		Config: cfg,
		Eval:   cost.Evaluator{Params: params},
		Log:    log,
		rng:    rngFromSeed(cfg.RandomSeed),
	}
}

// Search runs the iterative-widening beam search (spec §4.5): starting
// from beam width 1, doubling each pass up to Config.BeamSize, under an
// overall Config.AutoScheduleTimeLimit deadline. A pass that does not
// finish before the deadline does not overwrite the best complete result
// found by a narrower, already-finished pass, and a finished pass replaces
// it only with a strictly cheaper schedule (the non-regression guarantee
// exercised by the separable-downsample scenario).
func (d *Driver) Search(ctx context.Context) (*State, error) {
	deadline := time.Now().Add(d.Config.AutoScheduleTimeLimit)

	var best *State
	for beamSize := 1; ; beamSize *= 2 {
		if beamSize > d.Config.BeamSize {
			beamSize = d.Config.BeamSize
		}

		d.Log.Info("search: widening pass", zap.Int("beam_size", beamSize))
		found, ok, err := d.runPass(ctx, beamSize, deadline)
		if err != nil {
			return nil, err
		}
		if ok {
			if best == nil || found.Cost < best.Cost {
				best = found
			}
			d.Log.Info("search: pass completed", zap.Int("beam_size", beamSize), zap.Float64("cost", found.Cost))
		} else {
			d.Log.Info("search: pass did not finish in time", zap.Int("beam_size", beamSize))
		}

		if beamSize >= d.Config.BeamSize || time.Now().After(deadline) {
			break
		}
	}

	if best == nil {
		return nil, ErrQueueEmptied
	}
	return best, nil
}

// runPass runs one full beam-search pass at a fixed beam width to
// completion, or returns ok=false if the deadline is hit first.
func (d *Driver) runPass(ctx context.Context, beamSize int, deadline time.Time) (*State, bool, error) {
	queue := []*State{{Root: schedule.NewRoot(), Cost: 0, NumFuncsScheduled: 0}}

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}

		if allComplete(queue, d.DAG) {
			return bestOf(queue), true, nil
		}

		next := make([]*State, 0, len(queue)*2)
		for _, s := range queue {
			if s.IsComplete(d.DAG) {
				next = append(next, s)
				continue
			}
			f, ok := nextUnscheduled(d.DAG, s.Root)
			if !ok {
				next = append(next, s)
				continue
			}
			expanded, err := d.expand(f, s)
			if err != nil {
				return nil, false, err
			}
			if len(expanded) == 0 {
				return nil, false, schedule.ErrCannotScheduleNext
			}
			next = append(next, expanded...)
		}
		if len(next) == 0 {
			return nil, false, ErrQueueEmptied
		}

		queue = d.trimBeam(next, beamSize)
	}
}

func allComplete(states []*State, dag *dagmodel.FunctionDAG) bool {
	for _, s := range states {
		if s.IsPartial(dag) {
			return false
		}
	}
	return true
}

func bestOf(states []*State) *State {
	best := states[0]
	for _, s := range states[1:] {
		if s.Cost < best.Cost {
			best = s
		}
	}
	return best
}

// nextUnscheduled returns the first function (in dag's reverse-realization,
// outputs-first order) not yet computed or inlined in root. Because Nodes
// is ordered outputs-first, every function encountered this way already
// has all of its consumers placed, so its required region is always
// resolvable (spec §4.3.7).
func nextUnscheduled(dag *dagmodel.FunctionDAG, root *schedule.PartialSchedule) (string, bool) {
	for _, n := range dag.Nodes {
		if !root.Computes(n.Func) {
			return n.Func, true
		}
	}
	return "", false
}

// expand produces every candidate next State reachable from s by placing
// f: the "inline f" candidate (when it actually attaches f to some
// consumer's innermost loop — never possible for an output, which has no
// consumer to inline into), plus every realize-f placement ComputeInTiles
// offers (spec §4.3.6), each re-scored by the cost evaluator.
func (d *Driver) expand(f string, s *State) ([]*State, error) {
	candidates := make([]*schedule.PartialSchedule, 0, 4)
	if inlined := s.Root.InlineFunc(d.DAG, f); inlined.Computes(f) {
		candidates = append(candidates, inlined)
	}

	tiled, err := s.Root.ComputeInTiles(d.DAG, f, nil, false, d.Params)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, tiled...)

	out := make([]*State, 0, len(candidates))
	for _, root := range candidates {
		c, _, err := d.Eval.Evaluate(d.DAG, root)
		if err != nil {
			return nil, err
		}
		out = append(out, &State{Root: root, Cost: c, NumFuncsScheduled: s.NumFuncsScheduled + 1})
	}
	return out, nil
}

// trimBeam keeps the beamSize lowest-cost candidates, applying stochastic
// dropout (Config.RandomDropout) to every candidate after the very best
// one. The best candidate is never dropped, so the result is non-empty
// whenever candidates is (the recorded Open Question decision).
func (d *Driver) trimBeam(candidates []*State, beamSize int) []*State {
	pq := make(priorityQueue, len(candidates))
	copy(pq, candidates)
	heap.Init(&pq)

	kept := make([]*State, 0, beamSize)
	for pq.Len() > 0 && len(kept) < beamSize {
		s := heap.Pop(&pq).(*State)
		if len(kept) > 0 && d.Config.RandomDropout > 0 && d.rng.Intn(100) < d.Config.RandomDropout {
			d.Log.Debug("search: beam dropout", zap.Float64("cost", s.Cost))
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
