// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planninggraph grounds primitive actions and reachable facts by
// running the lifted planning-graph fixpoint (matching preconditions
// against an ever-growing fact set starting from the problem's initial
// state) until no new ground fact or primitive is produced.
package planninggraph

import (
	"log/slog"
	"runtime"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/httyping"
)

// memoryWatchdogBytes is the heap-size threshold past which the future
// satisfiability cache is dropped and disabled for the remainder of the
// run.
const memoryWatchdogBytes = 3 << 30 // 3 GiB

// sampleEvery controls how often (in number of future-satisfiability tests)
// a grounded action's reject rate is resampled to decide whether the check
// still pays for itself on that action, via a rate.Sometimes per task.
const sampleEvery = 200

// disableBelowRejectRate is the §4.3 adaptive-disabling threshold.
const disableBelowRejectRate = 0.10

// Stats accumulates matcher counters, primarily useful for diagnostics.
type Stats struct {
	Tests                  int64
	Hits                   int64
	PerPreconditionTests   map[int]int64
	PerPreconditionHits    map[int]int64
	FutureRejects          int64
	HierarchyTypingRejects int64
}

func newStats() *Stats {
	return &Stats{
		PerPreconditionTests: make(map[int]int64),
		PerPreconditionHits:  make(map[int]int64),
	}
}

// Options configures optional PG behaviors.
type Options struct {
	EnableHierarchyTyping      bool
	EnableFutureSatisfiability bool
	// FutureCachingByPrecondition partitions the future-satisfiability
	// cache by initially-matched precondition index, trading memory for
	// precision.
	FutureCachingByPrecondition bool
}

// Graph holds the lifted planning graph's accumulated state across the
// fixpoint.
type Graph struct {
	dom    *domain.Domain
	logger *slog.Logger
	opt    Options
	typing *httyping.Typing

	facts       *domain.FactTable
	byPredicate map[domain.PredicateID][]domain.FactID
	queue       []domain.FactID
	queued      map[domain.FactID]bool

	primitives        []*domain.GroundedPrimitive
	pendingDelEffects [][]domain.Fact
	seenPrimitive     map[string]domain.GroundTaskID

	stats *Stats

	// future-satisfiability bookkeeping, keyed per primitive task.
	futureDisabled         map[domain.TaskID]bool
	futureCache            map[string]bool
	futureTests            map[domain.TaskID]int64
	futureRejectsByAction  map[domain.TaskID]int64
	futureResample         map[domain.TaskID]*rate.Sometimes
	futureGloballyDisabled bool

	// triggerFact is the fact currently being dequeued and matched from;
	// used by the matcher's duplicate-avoidance rule (§4.3).
	triggerFact domain.FactID
}

// New creates an empty planning graph over dom.
func New(logger *slog.Logger, dom *domain.Domain, typing *httyping.Typing, opt Options) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		dom:                   dom,
		logger:                logger,
		opt:                   opt,
		typing:                typing,
		facts:                 domain.NewFactTable(),
		byPredicate:           make(map[domain.PredicateID][]domain.FactID),
		queued:                make(map[domain.FactID]bool),
		seenPrimitive:         make(map[string]domain.GroundTaskID),
		stats:                 newStats(),
		futureDisabled:        make(map[domain.TaskID]bool),
		futureCache:           make(map[string]bool),
		futureTests:           make(map[domain.TaskID]int64),
		futureRejectsByAction: make(map[domain.TaskID]int64),
		futureResample:        make(map[domain.TaskID]*rate.Sometimes),
	}
}

// Facts returns the fact table accumulated across the fixpoint.
func (g *Graph) Facts() *domain.FactTable { return g.facts }

// Primitives returns every grounded primitive produced so far.
func (g *Graph) Primitives() []*domain.GroundedPrimitive { return g.primitives }

// Stats returns the matcher's diagnostic counters.
func (g *Graph) Stats() *Stats { return g.stats }

func (g *Graph) internAndEnqueue(f domain.Fact) domain.FactID {
	id, isNew := g.facts.Intern(f)
	if isNew {
		g.byPredicate[f.Predicate] = append(g.byPredicate[f.Predicate], id)
	}
	if !g.queued[id] {
		g.queued[id] = true
		g.queue = append(g.queue, id)
	}
	return id
}

// Seed enqueues the problem's initial facts.
func (g *Graph) Seed(initial []domain.Fact) {
	for _, f := range initial {
		g.internAndEnqueue(f)
	}
}

// Run drains the fact queue to a fixpoint, grounding every primitive action
// reachable from the seeded facts.
func (g *Graph) Run() {
	for len(g.queue) > 0 {
		f := g.queue[0]
		g.queue = g.queue[1:]
		fact := g.facts.Get(f)
		g.triggerFact = f
		g.matchFromFact(fact)

		if g.checkMemoryWatchdog() {
			g.logger.Warn("planninggraph: memory watchdog tripped, disabling future-satisfiability cache")
		}
	}
}

func (g *Graph) checkMemoryWatchdog() bool {
	if g.futureGloballyDisabled {
		return false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Alloc < memoryWatchdogBytes {
		return false
	}
	g.futureGloballyDisabled = true
	g.futureCache = make(map[string]bool)
	return true
}

// matchFromFact drives every (primitive, precondition-index) pair whose
// predicate matches fact, per §4.3's core loop.
func (g *Graph) matchFromFact(fact domain.Fact) {
	for taskIdx := 0; taskIdx < g.dom.NumPrimitives; taskIdx++ {
		taskID := domain.TaskID(taskIdx)
		prim := g.dom.PrimitiveTaskByID(taskID)
		if prim == nil {
			continue
		}
		for i, pre := range prim.Preconditions {
			if pre.Predicate != fact.Predicate {
				continue
			}
			asn := newAssignment(prim.NumVars())
			if !bindAtomArgs(asn, pre.Args, fact.Args, g.dom, prim.ParamSorts) {
				continue
			}
			if !constraintsOK(asn, prim.Constraints) {
				continue
			}
			g.matchPrecondition(taskID, prim, asn, 0, i)
		}
	}
}

// assignment maps a primitive's variable index to a bound constant, or -1
// if unbound.
type assignment []domain.ConstantID

func newAssignment(n int) assignment {
	a := make(assignment, n)
	for i := range a {
		a[i] = -1
	}
	return a
}

func (a assignment) clone() assignment {
	out := make(assignment, len(a))
	copy(out, a)
	return out
}

// bindAtomArgs attempts to unify atomArgs (variables) against factArgs
// (constants), respecting already-bound variables and variable sorts.
func bindAtomArgs(a assignment, atomArgs []domain.VariableID, factArgs []domain.ConstantID, dom *domain.Domain, paramSorts []domain.SortID) bool {
	if len(atomArgs) != len(factArgs) {
		return false
	}
	for i, v := range atomArgs {
		c := factArgs[i]
		if int(v) < 0 || int(v) >= len(a) {
			return false
		}
		if a[v] >= 0 {
			if a[v] != c {
				return false
			}
			continue
		}
		if int(v) < len(paramSorts) && !sortContains(dom, paramSorts[v], c) {
			return false
		}
		a[v] = c
	}
	return true
}

func sortContains(dom *domain.Domain, sort domain.SortID, c domain.ConstantID) bool {
	if int(sort) < 0 || int(sort) >= len(dom.Sorts) {
		return false
	}
	for _, m := range dom.Sorts[sort].Members {
		if m == c {
			return true
		}
	}
	return false
}

func constraintsOK(a assignment, constraints []domain.VariableConstraint) bool {
	for _, c := range constraints {
		if int(c.Var1) >= len(a) || int(c.Var2) >= len(a) {
			continue
		}
		v1, v2 := a[c.Var1], a[c.Var2]
		if v1 < 0 || v2 < 0 {
			continue
		}
		if !c.Satisfied(v1, v2) {
			return false
		}
	}
	return true
}
