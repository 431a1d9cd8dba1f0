// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ground

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/config"
	"github.com/AleutianAI/htnground/internal/domain"
)

// classicalConfig disables invariant synthesis, h² and the grounded
// simplification passes, so a scenario's assertions aren't confounded by
// them (in
// particular RemoveUselessPredicates, which would prune a fact no
// precondition or goal reads, as every scenario fixture here has at least
// one).
func classicalConfig() config.Config {
	cfg := config.Default()
	cfg.ComputeInvariants = false
	cfg.H2Mutexes = false
	cfg.RemoveUselessPredicates = false
	cfg.CompactConsecutivePrimitives = false
	cfg.RemoveDuplicateActions = false
	return cfg
}

func livePrimitives(s *Summary) int {
	n := 0
	for _, pruned := range s.State.PrunedPrimitive {
		if !pruned {
			n++
		}
	}
	return n
}

// Scenario 1: classical PG grounding and fixpoint saturation. advance(x)
// requires p(x) and produces q(x); only the constant with p true in the
// initial state ever grounds or reaches q.
func TestGroundClassicalPlanningGraphSaturatesFixpoint(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Sorts:     []domain.Sort{{Name: "T", Members: []domain.ConstantID{0, 1, 2}}},
		Predicates: []domain.Predicate{
			{Name: "p", ArgSorts: []domain.SortID{0}},
			{Name: "q", ArgSorts: []domain.SortID{0}},
		},
		NumPrimitives: 1,
	}
	advance := domain.PrimitiveTask{
		Name:          "advance",
		ParamSorts:    []domain.SortID{0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		AddEffects:    []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0}}},
		DelEffects:    []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
	}
	dom.Tasks = []domain.Task{{Name: "advance", ParamSorts: advance.ParamSorts, Primitive: &advance}}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{{Predicate: 0, Args: []domain.ConstantID{0}}},
	}

	d := New(classicalConfig(), nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)

	qa, ok := summary.State.Facts.Lookup(domain.Fact{Predicate: 1, Args: []domain.ConstantID{0}})
	require.True(t, ok, "q(a) should have been grounded")
	require.True(t, summary.State.IsFactReached(qa))

	_, ok = summary.State.Facts.Lookup(domain.Fact{Predicate: 1, Args: []domain.ConstantID{1}})
	require.False(t, ok, "q(b) must never be grounded: p(b) never holds")

	require.Equal(t, 1, livePrimitives(summary), "only advance[a] should survive")
}

// Scenario 2: variable-constraint swap. swap(x,y) pre{on(x)} is constrained
// x != y; PG grounds only the two constant orderings that satisfy it. on(x)
// is a harmless always-true trigger precondition: the grounder only ever
// considers a primitive from a fact matching one of its (non-empty)
// preconditions, so a primitive cannot be tested with no preconditions at
// all, and the swap scenario exists specifically to exercise constraint
// exclusion, not triggerless grounding.
func TestGroundVariableConstraintExcludesEqualBindings(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "a"}, {Name: "b"}},
		Sorts:     []domain.Sort{{Name: "T", Members: []domain.ConstantID{0, 1}}},
		Predicates: []domain.Predicate{
			{Name: "on", ArgSorts: []domain.SortID{0}},
		},
		NumPrimitives: 1,
	}
	swap := domain.PrimitiveTask{
		Name:          "swap",
		ParamSorts:    []domain.SortID{0, 0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		Constraints:   []domain.VariableConstraint{{Var1: 0, Var2: 1, Tag: domain.NotEqual}},
	}
	dom.Tasks = []domain.Task{{Name: "swap", ParamSorts: swap.ParamSorts, Primitive: &swap}}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{
			{Predicate: 0, Args: []domain.ConstantID{0}},
			{Predicate: 0, Args: []domain.ConstantID{1}},
		},
	}

	d := New(classicalConfig(), nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)

	require.Equal(t, 2, livePrimitives(summary), "only swap[a,b] and swap[b,a] satisfy x != y")

	seen := map[[2]domain.ConstantID]bool{}
	for i, p := range summary.State.Primitives {
		if summary.State.PrunedPrimitive[i] {
			continue
		}
		require.Len(t, p.Args, 2)
		require.NotEqual(t, p.Args[0], p.Args[1])
		seen[[2]domain.ConstantID{p.Args[0], p.Args[1]}] = true
	}
	require.True(t, seen[[2]domain.ConstantID{0, 1}])
	require.True(t, seen[[2]domain.ConstantID{1, 0}])
}

// Scenario 3: conditional-effect expansion. t(x) pre{p(x)} conditionally
// adds q(x) when r(x) holds; CompileConditionalEffects splits this into an
// auxiliary primitive t_ce_0(x) pre{r(x), guard(x)} add{q(x)}, where t
// itself now adds guard(x), so q(x) becomes reachable exactly where both
// p(x) and r(x) hold.
func TestGroundConditionalEffectExpansionGatesAuxiliaryPrimitive(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "a"}, {Name: "b"}},
		Sorts:     []domain.Sort{{Name: "T", Members: []domain.ConstantID{0, 1}}},
		Predicates: []domain.Predicate{
			{Name: "p", ArgSorts: []domain.SortID{0}},
			{Name: "r", ArgSorts: []domain.SortID{0}},
			{Name: "q", ArgSorts: []domain.SortID{0}},
		},
		NumPrimitives: 1,
	}
	tTask := domain.PrimitiveTask{
		Name:          "t",
		ParamSorts:    []domain.SortID{0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		CondAddEffects: []domain.ConditionalEffect{{
			Condition: []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0}}},
			Effect:    domain.Atom{Predicate: 2, Args: []domain.VariableID{0}},
		}},
	}
	dom.Tasks = []domain.Task{{Name: "t", ParamSorts: tTask.ParamSorts, Primitive: &tTask}}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{
			{Predicate: 0, Args: []domain.ConstantID{0}}, // p(a)
			{Predicate: 1, Args: []domain.ConstantID{0}}, // r(a)
			{Predicate: 0, Args: []domain.ConstantID{1}}, // p(b), no r(b)
		},
	}

	d := New(classicalConfig(), nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)

	require.Equal(t, 2, summary.Domain.NumPrimitives, "t plus the compiled t_ce_0 primitive")

	qa, ok := summary.State.Facts.Lookup(domain.Fact{Predicate: 2, Args: []domain.ConstantID{0}})
	require.True(t, ok, "q(a) should be grounded: r(a) holds")
	require.True(t, summary.State.IsFactReached(qa))

	_, ok = summary.State.Facts.Lookup(domain.Fact{Predicate: 2, Args: []domain.ConstantID{1}})
	require.False(t, ok, "q(b) must never be grounded: r(b) never holds")
}

// Scenario 4: FAM mutex inference. A single truck's location predicate
// at(truck, loc) yields a FAM group whose counted variable is the location,
// so the truck's two reachable locations end up as two values of one SAS+
// variable rather than two independent facts.
func TestGroundFAMInfersLocationMutexGroup(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "truck1"}, {Name: "loc1"}, {Name: "loc2"}},
		Sorts: []domain.Sort{
			{Name: "truck", Members: []domain.ConstantID{0}},
			{Name: "loc", Members: []domain.ConstantID{1, 2}},
		},
		Predicates: []domain.Predicate{
			{Name: "at", ArgSorts: []domain.SortID{0, 1}},
		},
		NumPrimitives: 1,
	}
	drive := domain.PrimitiveTask{
		Name:       "drive",
		ParamSorts: []domain.SortID{0, 1, 1},
		Preconditions: []domain.Atom{
			{Predicate: 0, Args: []domain.VariableID{0, 1}},
		},
		AddEffects: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0, 2}}},
		DelEffects: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0, 1}}},
	}
	dom.Tasks = []domain.Task{{Name: "drive", ParamSorts: drive.ParamSorts, Primitive: &drive}}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{{Predicate: 0, Args: []domain.ConstantID{0, 1}}}, // at(truck1, loc1)
	}

	cfg := classicalConfig()
	cfg.ComputeInvariants = true
	d := New(cfg, nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)
	require.NotNil(t, summary.SASResult)

	atLoc1, ok := summary.State.Facts.Lookup(domain.Fact{Predicate: 0, Args: []domain.ConstantID{0, 1}})
	require.True(t, ok)
	atLoc2, ok := summary.State.Facts.Lookup(domain.Fact{Predicate: 0, Args: []domain.ConstantID{0, 2}})
	require.True(t, ok, "at(truck1, loc2) should be grounded by drive's add effect")

	v1, ok := summary.SASResult.FactVariable[atLoc1]
	require.True(t, ok)
	v2, ok := summary.SASResult.FactVariable[atLoc2]
	require.True(t, ok)
	require.Equal(t, v1, v2, "both locations of the single truck share one SAS+ variable")
	require.GreaterOrEqual(t, len(summary.SASResult.Variables[v1].Facts), 2)
}

// Scenario 5: h² pairwise pruning. special(k,r) requires key-held(k) and
// key-in(k,r) simultaneously, each individually reachable but never jointly
// so (picking up the key always deletes its key-in fact); h² must prune
// special's grounding that the PG/grounded-reachability passes let through.
func TestGroundH2PrunesNeverCoReachablePrecondition(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "key1"}, {Name: "room1"}, {Name: "room2"}},
		Sorts: []domain.Sort{
			{Name: "key", Members: []domain.ConstantID{0}},
			{Name: "room", Members: []domain.ConstantID{1, 2}},
		},
		Predicates: []domain.Predicate{
			{Name: "key-held", ArgSorts: []domain.SortID{0}},
			{Name: "key-in", ArgSorts: []domain.SortID{0, 1}},
		},
		NumPrimitives: 3,
		MutexPredicates: [][2]domain.PredicateID{
			{0, 1}, // key-held, key-in
		},
	}
	pickup := domain.PrimitiveTask{
		Name:          "pickup",
		ParamSorts:    []domain.SortID{0, 1},
		Preconditions: []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0, 1}}},
		AddEffects:    []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		DelEffects:    []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0, 1}}},
	}
	drop := domain.PrimitiveTask{
		Name:          "drop",
		ParamSorts:    []domain.SortID{0, 1},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		AddEffects:    []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0, 1}}},
		DelEffects:    []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
	}
	special := domain.PrimitiveTask{
		Name:       "special",
		ParamSorts: []domain.SortID{0, 1},
		Preconditions: []domain.Atom{
			{Predicate: 0, Args: []domain.VariableID{0}},
			{Predicate: 1, Args: []domain.VariableID{0, 1}},
		},
	}
	dom.Tasks = []domain.Task{
		{Name: "pickup", ParamSorts: pickup.ParamSorts, Primitive: &pickup},
		{Name: "drop", ParamSorts: drop.ParamSorts, Primitive: &drop},
		{Name: "special", ParamSorts: special.ParamSorts, Primitive: &special},
	}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{{Predicate: 1, Args: []domain.ConstantID{0, 1}}}, // key-in(key1, room1)
	}

	cfg := classicalConfig()
	cfg.ComputeInvariants = true
	cfg.H2Mutexes = true
	d := New(cfg, nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)

	specialGrounded := false
	for i, p := range summary.State.Primitives {
		if p.Task != 2 {
			continue
		}
		specialGrounded = true
		require.True(t, summary.State.PrunedPrimitive[i],
			"h2 must prune special: its two preconditions are never jointly reachable")
	}
	require.True(t, specialGrounded, "PG must still ground special before h2 prunes it")
}

// Scenario 6: one-method abstract inlining. A's sole method decomposes into
// [B, doC]; B's sole method is [doB]. InlineOneMethodAbstracts splices B's
// method body into A's, so after grounding A's (only) method has two
// primitive subtasks and B's grounded instance is reachability-pruned: it
// is still structurally grounded (its method definition still exists and
// still matches doB), but nothing in the reachable method tree points to it
// any more.
func TestGroundOneMethodAbstractInlinesAwayIntermediateTask(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "obj1"}},
		Sorts:     []domain.Sort{{Name: "T", Members: []domain.ConstantID{0}}},
		Predicates: []domain.Predicate{
			{Name: "enabled", ArgSorts: []domain.SortID{0}},
			{Name: "done-b", ArgSorts: []domain.SortID{0}},
			{Name: "done-c", ArgSorts: []domain.SortID{0}},
		},
		NumPrimitives: 2,
	}
	doB := domain.PrimitiveTask{
		Name:          "doB",
		ParamSorts:    []domain.SortID{0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		AddEffects:    []domain.Atom{{Predicate: 1, Args: []domain.VariableID{0}}},
	}
	doC := domain.PrimitiveTask{
		Name:          "doC",
		ParamSorts:    []domain.SortID{0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		AddEffects:    []domain.Atom{{Predicate: 2, Args: []domain.VariableID{0}}},
	}
	// Tasks: 0=doB, 1=doC (primitives), 2=B (abstract), 3=A (abstract).
	bTask := domain.AbstractTask{Name: "B", ParamSorts: []domain.SortID{0}, Methods: []domain.MethodID{0}}
	aTask := domain.AbstractTask{Name: "A", ParamSorts: []domain.SortID{0}, Methods: []domain.MethodID{1}}
	dom.Tasks = []domain.Task{
		{Name: "doB", ParamSorts: doB.ParamSorts, Primitive: &doB},
		{Name: "doC", ParamSorts: doC.ParamSorts, Primitive: &doC},
		{Name: "B", ParamSorts: bTask.ParamSorts, Abstract: &bTask},
		{Name: "A", ParamSorts: aTask.ParamSorts, Abstract: &aTask},
	}
	dom.Methods = []domain.Method{
		{ // method 0: B -> [doB]
			Name:           "m_b",
			DecomposedTask: 2,
			VarSorts:       []domain.SortID{0},
			ParamMapping:   []domain.VariableID{0},
			Subtasks:       []domain.Subtask{{Task: 0, Args: []domain.VariableID{0}}},
		},
		{ // method 1: A -> [B, doC]
			Name:           "m_a",
			DecomposedTask: 3,
			VarSorts:       []domain.SortID{0},
			ParamMapping:   []domain.VariableID{0},
			Subtasks: []domain.Subtask{
				{Task: 2, Args: []domain.VariableID{0}},
				{Task: 1, Args: []domain.VariableID{0}},
			},
			Orderings: [][2]int{{0, 1}},
		},
	}

	problem := &domain.Problem{
		InitialFacts: []domain.Fact{{Predicate: 0, Args: []domain.ConstantID{0}}}, // enabled(obj1)
		InitialTask:  &domain.TaskInvocation{Task: 3, Args: []domain.ConstantID{0}},
	}

	d := New(classicalConfig(), nil, nil)
	summary, err := d.Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	require.False(t, summary.Unreachable)

	var liveMethod *domain.GroundedMethod
	var liveMethodPruned bool
	for i, gm := range summary.State.Methods {
		if gm.Method != 1 {
			continue
		}
		liveMethod = gm
		liveMethodPruned = summary.State.PrunedMethod[i]
	}
	require.NotNil(t, liveMethod, "A's method must still be grounded")
	require.False(t, liveMethodPruned, "A's method is reachable from the initial task")
	require.Len(t, liveMethod.Subtasks, 2, "B's single subtask was spliced into A's method")

	for i, ga := range summary.State.Abstracts {
		if ga.Task != 2 {
			continue
		}
		require.True(t, summary.State.PrunedAbstract[i],
			"B's grounded instance is no longer referenced by any live method")
	}
}

// Running the same domain/problem through a fresh Driver twice produces the
// same live-primitive count: the grounded-reachability and simplify passes
// are idempotent (§8), so re-grounding an already-grounded domain changes
// nothing further.
func TestGroundIsIdempotentAcrossRuns(t *testing.T) {
	dom := &domain.Domain{
		Constants: []domain.Constant{{Name: "a"}, {Name: "b"}},
		Sorts:     []domain.Sort{{Name: "T", Members: []domain.ConstantID{0, 1}}},
		Predicates: []domain.Predicate{
			{Name: "on", ArgSorts: []domain.SortID{0}},
		},
		NumPrimitives: 1,
	}
	swap := domain.PrimitiveTask{
		Name:          "swap",
		ParamSorts:    []domain.SortID{0, 0},
		Preconditions: []domain.Atom{{Predicate: 0, Args: []domain.VariableID{0}}},
		Constraints:   []domain.VariableConstraint{{Var1: 0, Var2: 1, Tag: domain.NotEqual}},
	}
	dom.Tasks = []domain.Task{{Name: "swap", ParamSorts: swap.ParamSorts, Primitive: &swap}}
	problem := &domain.Problem{
		InitialFacts: []domain.Fact{
			{Predicate: 0, Args: []domain.ConstantID{0}},
			{Predicate: 0, Args: []domain.ConstantID{1}},
		},
	}

	cfg := classicalConfig()
	first, err := New(cfg, nil, nil).Ground(context.Background(), dom, problem)
	require.NoError(t, err)
	second, err := New(cfg, nil, nil).Ground(context.Background(), dom, problem)
	require.NoError(t, err)

	require.Equal(t, livePrimitives(first), livePrimitives(second))
	require.Equal(t, len(first.State.Facts.Live()), len(second.State.Facts.Live()))
}
