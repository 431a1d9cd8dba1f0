// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planninggraph

import (
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/httyping"
)

// matchPrecondition recursively binds prim's preconditions starting at pos,
// skipping skipIndex (already matched by the triggering fact), emitting a
// grounding once every precondition is satisfied.
func (g *Graph) matchPrecondition(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment, pos, skipIndex int) {
	if pos == skipIndex {
		g.matchPrecondition(taskID, prim, asn, pos+1, skipIndex)
		return
	}
	if pos >= len(prim.Preconditions) {
		g.emit(taskID, prim, asn)
		return
	}

	pre := prim.Preconditions[pos]
	g.stats.Tests++
	g.stats.PerPreconditionTests[pos]++

	for _, candID := range g.byPredicate[pre.Predicate] {
		if pos < skipIndex && candID == g.triggerFact {
			// Duplicate-avoidance: a precondition earlier than the one that
			// triggered this invocation must not re-derive from the same
			// triggering fact (it has already been tried as the initial
			// match).
			continue
		}
		cand := g.facts.Get(candID)
		next := asn.clone()
		if !bindAtomArgs(next, pre.Args, cand.Args, g.dom, prim.ParamSorts) {
			continue
		}
		if !constraintsOK(next, prim.Constraints) {
			continue
		}
		if g.opt.EnableFutureSatisfiability && !g.futureSatisfiable(taskID, prim, next, pos, skipIndex) {
			g.stats.FutureRejects++
			continue
		}
		if g.opt.EnableHierarchyTyping && g.typing != nil {
			if !g.typing.IsTaskAssignmentCompatible(taskID, httypingAssignment(next)) {
				g.stats.HierarchyTypingRejects++
				continue
			}
		}

		g.stats.Hits++
		g.stats.PerPreconditionHits[pos]++
		g.matchPrecondition(taskID, prim, next, pos+1, skipIndex)
	}
}

func httypingAssignment(a assignment) httyping.Assignment {
	m := make(httyping.Assignment, len(a))
	for v, c := range a {
		if c >= 0 {
			m[v] = c
		}
	}
	return m
}

// futureSatisfiable reports whether, given the assignment bound so far
// while matching at pos, every still-unmatched precondition could in
// principle still find a consistent candidate fact. This is a conservative
// approximation: it checks that each future precondition's predicate bucket
// contains at least one fact agreeing with every already-bound variable the
// future precondition shares with the current assignment.
func (g *Graph) futureSatisfiable(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment, pos, skipIndex int) bool {
	if g.futureGloballyDisabled || g.futureDisabled[taskID] {
		return true
	}

	g.futureTests[taskID]++
	sometimes, ok := g.futureResample[taskID]
	if !ok {
		sometimes = &rate.Sometimes{Every: sampleEvery}
		g.futureResample[taskID] = sometimes
	}
	sometimes.Do(func() { g.maybeDisableFuture(taskID) })

	key := g.futureCacheKey(taskID, prim, asn, pos, skipIndex)
	if ok, cached := g.futureCache[key]; cached {
		if !ok {
			g.futureRejectsByAction[taskID]++
		}
		return ok
	}

	ok := g.computeFutureSatisfiable(prim, asn, pos, skipIndex)
	g.futureCache[key] = ok
	if !ok {
		g.futureRejectsByAction[taskID]++
	}
	return ok
}

func (g *Graph) computeFutureSatisfiable(prim *domain.PrimitiveTask, asn assignment, pos, skipIndex int) bool {
	for f := pos + 1; f < len(prim.Preconditions); f++ {
		if f == skipIndex {
			continue
		}
		future := prim.Preconditions[f]
		bucket := g.byPredicate[future.Predicate]
		if len(bucket) == 0 {
			return false
		}
		found := false
		for _, candID := range bucket {
			cand := g.facts.Get(candID)
			if consistentOnBoundPositions(asn, future.Args, cand.Args) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func consistentOnBoundPositions(asn assignment, atomArgs []domain.VariableID, factArgs []domain.ConstantID) bool {
	if len(atomArgs) != len(factArgs) {
		return false
	}
	for i, v := range atomArgs {
		if int(v) >= len(asn) || asn[v] < 0 {
			continue
		}
		if asn[v] != factArgs[i] {
			return false
		}
	}
	return true
}

func (g *Graph) futureCacheKey(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment, pos, skipIndex int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(taskID)))
	b.WriteByte('|')
	if g.opt.FutureCachingByPrecondition {
		b.WriteString(strconv.Itoa(skipIndex))
		b.WriteByte('|')
	}
	b.WriteString(strconv.Itoa(pos))
	for _, c := range asn {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(int(c)))
	}
	return b.String()
}

// maybeDisableFuture turns off future-satisfiability checking for taskID
// once its observed reject rate falls below the adaptive-disabling
// threshold, per §4.3.
func (g *Graph) maybeDisableFuture(taskID domain.TaskID) {
	tests := g.futureTests[taskID]
	if tests == 0 {
		return
	}
	rate := float64(g.futureRejectsByAction[taskID]) / float64(tests)
	if rate < disableBelowRejectRate {
		g.futureDisabled[taskID] = true
		g.logger.Debug("planninggraph: disabling future-satisfiability for action",
			"task", taskID, "rejectRate", rate)
	}
}
