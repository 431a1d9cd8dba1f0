// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/reachability"
)

func TestUnifyDuplicateActionsFusesSyntheticPrimitivesWithSameFactSets(t *testing.T) {
	facts := domain.NewFactTable()
	f0, _ := facts.Intern(domain.Fact{Predicate: 0})
	f1, _ := facts.Intern(domain.Fact{Predicate: 1})

	dom := &domain.Domain{
		Tasks: []domain.Task{
			{Name: "_synth0", Primitive: &domain.PrimitiveTask{}},
			{Name: "_synth1", Primitive: &domain.PrimitiveTask{}},
		},
		NumPrimitives: 2,
	}
	p0 := &domain.GroundedPrimitive{Task: 0, GroundedNo: 0, Preconditions: []domain.FactID{f0}, AddEffects: []domain.FactID{f1}}
	p1 := &domain.GroundedPrimitive{Task: 1, GroundedNo: 1, Preconditions: []domain.FactID{f0}, AddEffects: []domain.FactID{f1}}
	method := &domain.GroundedMethod{Subtasks: []domain.GroundTaskID{1}, SubtaskIsPrimitive: []bool{true}}

	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{p0, p1}, nil, []*domain.GroundedMethod{method}, reachability.NoInitialAbstract, nil)

	UnifyDuplicateActions(st)

	require.False(t, st.PrunedPrimitive[0])
	require.True(t, st.PrunedPrimitive[1])
	require.Equal(t, domain.GroundTaskID(0), method.Subtasks[0])
}

func TestUnifyDuplicateActionsDoesNotFuseCompactedPrimitivesWithDifferentArgs(t *testing.T) {
	facts := domain.NewFactTable()
	f0, _ := facts.Intern(domain.Fact{Predicate: 0})

	dom := &domain.Domain{
		Tasks: []domain.Task{
			{Name: "%compact", Primitive: &domain.PrimitiveTask{}},
		},
		NumPrimitives: 1,
	}
	p0 := &domain.GroundedPrimitive{Task: 0, GroundedNo: 0, Args: []domain.ConstantID{0}, Preconditions: []domain.FactID{f0}}
	p1 := &domain.GroundedPrimitive{Task: 0, GroundedNo: 1, Args: []domain.ConstantID{1}, Preconditions: []domain.FactID{f0}}

	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{p0, p1}, nil, nil, reachability.NoInitialAbstract, nil)

	UnifyDuplicateActions(st)

	require.False(t, st.PrunedPrimitive[0])
	require.False(t, st.PrunedPrimitive[1])
}

func TestUnifyDuplicateActionsIgnoresPrunedFactsWhenComparingSets(t *testing.T) {
	facts := domain.NewFactTable()
	f0, _ := facts.Intern(domain.Fact{Predicate: 0})
	f1, _ := facts.Intern(domain.Fact{Predicate: 1}) // will be pruned
	facts.Prune(f1)

	dom := &domain.Domain{
		Tasks: []domain.Task{
			{Name: "_synth0", Primitive: &domain.PrimitiveTask{}},
			{Name: "_synth1", Primitive: &domain.PrimitiveTask{}},
		},
		NumPrimitives: 2,
	}
	p0 := &domain.GroundedPrimitive{Task: 0, GroundedNo: 0, Preconditions: []domain.FactID{f0}}
	p1 := &domain.GroundedPrimitive{Task: 1, GroundedNo: 1, Preconditions: []domain.FactID{f0, f1}}

	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{p0, p1}, nil, nil, reachability.NoInitialAbstract, nil)

	UnifyDuplicateActions(st)

	require.True(t, st.PrunedPrimitive[1])
}

func TestUnifyDuplicateActionsLeavesNonSyntheticPrimitivesAlone(t *testing.T) {
	facts := domain.NewFactTable()
	f0, _ := facts.Intern(domain.Fact{Predicate: 0})

	dom := &domain.Domain{
		Tasks: []domain.Task{
			{Name: "move", Primitive: &domain.PrimitiveTask{}},
			{Name: "move", Primitive: &domain.PrimitiveTask{}},
		},
		NumPrimitives: 2,
	}
	p0 := &domain.GroundedPrimitive{Task: 0, GroundedNo: 0, Preconditions: []domain.FactID{f0}}
	p1 := &domain.GroundedPrimitive{Task: 1, GroundedNo: 1, Preconditions: []domain.FactID{f0}}

	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{p0, p1}, nil, nil, reachability.NoInitialAbstract, nil)

	UnifyDuplicateActions(st)

	require.False(t, st.PrunedPrimitive[0])
	require.False(t, st.PrunedPrimitive[1])
}
