// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package h2

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Cap is the §4.9/§5 internal h² time budget.
const Cap = 10 * time.Second

// Result is the pairwise-reachability result translated back into the
// encoding's own vocabulary; Translate converts it to ground-fact ids.
type Result struct {
	// ReachedSingle[v] is the set of values of variable v ever found
	// individually reachable.
	ReachedSingle map[VariableID]map[ValueID]bool
	// ReachedPair records every co-reachable value pair, keyed by the
	// canonical (lower variable first) ordering.
	ReachedPair map[pairKey]bool
	// SurvivingOperators holds the indices (into the original primitive
	// slice) of operators whose preconditions were ever found
	// pairwise-consistent.
	SurvivingOperators []int
	// Reachable is false if the fake-goal variable's achieved value was
	// never found reachable within the time/iteration budget.
	Reachable bool
}

type pairKey struct {
	v1  VariableID
	a1  ValueID
	v2  VariableID
	a2  ValueID
}

func canonicalPair(a, b Assignment) pairKey {
	if a.Var > b.Var || (a.Var == b.Var && a.Val > b.Val) {
		a, b = b, a
	}
	return pairKey{v1: a.Var, a1: a.Val, v2: b.Var, a2: b.Val}
}

// Engine is the h² mutex-analysis collaborator.
type Engine interface {
	Analyze(ctx context.Context, enc *Encoding) (*Result, error)
}

// DefaultEngine is a self-contained, in-process h² engine: it computes
// pairwise value reachability via the standard monotone relaxation (a pair
// becomes reachable either because both values hold in the initial state,
// or because some operator's full precondition/prevail set is itself
// pairwise-consistent and produces or preserves the pair), bounded by Cap
// and run with bounded per-round operator concurrency.
type DefaultEngine struct {
	// MaxConcurrency bounds how many operators are evaluated in parallel per
	// round; 0 selects GOMAXPROCS.
	MaxConcurrency int64
}

// Analyze implements Engine.
func (e DefaultEngine) Analyze(ctx context.Context, enc *Encoding) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, Cap)
	defer cancel()

	res := &Result{
		ReachedSingle: make(map[VariableID]map[ValueID]bool),
		ReachedPair:   make(map[pairKey]bool),
	}
	markSingle := func(v VariableID, val ValueID) {
		if res.ReachedSingle[v] == nil {
			res.ReachedSingle[v] = make(map[ValueID]bool)
		}
		res.ReachedSingle[v][val] = true
	}
	markPair := func(a, b Assignment) bool {
		k := canonicalPair(a, b)
		if res.ReachedPair[k] {
			return false
		}
		res.ReachedPair[k] = true
		return true
	}

	for v, val := range enc.Initial {
		markSingle(VariableID(v), val)
	}
	for v1 := range enc.Initial {
		for v2 := v1; v2 < len(enc.Initial); v2++ {
			markPair(Assignment{Var: VariableID(v1), Val: enc.Initial[v1]}, Assignment{Var: VariableID(v2), Val: enc.Initial[v2]})
		}
	}

	concurrency := e.MaxConcurrency
	if concurrency <= 0 {
		concurrency = int64(runtime.GOMAXPROCS(0))
		if concurrency < 1 {
			concurrency = 1
		}
	}
	sem := semaphore.NewWeighted(concurrency)

	surviving := make(map[int]bool)

	// Each round reads res (frozen for the duration of the round) from
	// many goroutines and proposes new pairs/singles without mutating it;
	// proposals are merged back into res single-threaded once the round's
	// goroutines have all finished, so propagate never races a concurrent
	// writer.
	type proposal struct {
		opIndex int
		pairs   [][2]Assignment
		singles []Assignment
	}

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		g, gctx := errgroup.WithContext(ctx)
		proposals := make([]proposal, len(enc.Operators))
		for i := range proposals {
			proposals[i].opIndex = -1
		}

		for i := range enc.Operators {
			i, op := i, enc.Operators[i]
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				newPairs, newSingles, applicable := propagate(op, res)
				if applicable {
					proposals[i] = proposal{opIndex: op.Index, pairs: newPairs, singles: newSingles}
				} else {
					proposals[i] = proposal{opIndex: -1}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			break
		}

		roundChanged := false
		for _, p := range proposals {
			if p.opIndex < 0 {
				continue
			}
			if !surviving[p.opIndex] {
				surviving[p.opIndex] = true
				roundChanged = true
			}
			for _, s := range p.singles {
				if res.ReachedSingle[s.Var] == nil || !res.ReachedSingle[s.Var][s.Val] {
					markSingle(s.Var, s.Val)
					roundChanged = true
				}
			}
			for _, pr := range p.pairs {
				if markPair(pr[0], pr[1]) {
					roundChanged = true
				}
			}
		}
		if !roundChanged {
			break
		}
	}

	for idx := range surviving {
		res.SurvivingOperators = append(res.SurvivingOperators, idx)
	}
	res.Reachable = res.ReachedSingle[enc.GoalVar][1]
	return res, nil
}

// propagate evaluates one operator against the currently reached pairs: if
// its prevail+pre set is pairwise consistent, its effect values become
// reachable alongside every prevail value and every value of an untouched
// variable that was compatible with the whole precondition/prevail set.
func propagate(op Operator, res *Result) (pairs [][2]Assignment, singles []Assignment, applicable bool) {
	required := append(append([]Assignment(nil), op.Prevail...), op.Pre...)
	for i := range required {
		for j := i + 1; j < len(required); j++ {
			if !res.ReachedPair[canonicalPair(required[i], required[j])] {
				return nil, nil, false
			}
		}
		if !res.ReachedSingle[required[i].Var][required[i].Val] {
			return nil, nil, false
		}
	}

	touched := make(map[VariableID]bool)
	for _, e := range op.Eff {
		touched[e.Var] = true
	}

	for _, e := range op.Eff {
		singles = append(singles, e)
		pairs = append(pairs, [2]Assignment{e, e})
		for _, r := range required {
			// r.Var == e.Var only when r is the old value this effect
			// overwrites; that value stops holding once e does, so it must
			// never be paired with e as co-reachable.
			if r.Var == e.Var {
				continue
			}
			pairs = append(pairs, [2]Assignment{e, r})
		}
	}

	for v, valset := range res.ReachedSingle {
		if touched[v] {
			continue
		}
		for val := range valset {
			cand := Assignment{Var: v, Val: val}
			if !compatibleWithAll(cand, required, res) {
				continue
			}
			for _, e := range op.Eff {
				pairs = append(pairs, [2]Assignment{e, cand})
			}
		}
	}

	return pairs, singles, true
}

func compatibleWithAll(cand Assignment, required []Assignment, res *Result) bool {
	for _, r := range required {
		if !res.ReachedPair[canonicalPair(cand, r)] {
			return false
		}
	}
	return true
}
