// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httyping

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/domain"
)

// buildSimpleDomain constructs: sort "loc" = {a, b, c}; one abstract task
// travel(?from:loc, ?to:loc) with a single method that decomposes into
// primitive move(?from, ?to); no constraints.
func buildSimpleDomain() (*domain.Domain, domain.TaskID, domain.TaskID) {
	d := &domain.Domain{
		Constants: []domain.Constant{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Sorts:     []domain.Sort{{Name: "loc", Members: []domain.ConstantID{0, 1, 2}}},
	}
	moveID := domain.TaskID(0)
	travelID := domain.TaskID(1)
	d.Tasks = []domain.Task{
		{
			Name:       "move",
			ParamSorts: []domain.SortID{0, 0},
			Primitive:  &domain.PrimitiveTask{Name: "move", ParamSorts: []domain.SortID{0, 0}},
		},
		{
			Name:       "travel",
			ParamSorts: []domain.SortID{0, 0},
			Abstract:   &domain.AbstractTask{Name: "travel", ParamSorts: []domain.SortID{0, 0}, Methods: []domain.MethodID{0}},
		},
	}
	d.NumPrimitives = 1
	d.Methods = []domain.Method{
		{
			Name:           "m-travel-direct",
			DecomposedTask: travelID,
			VarSorts:       []domain.SortID{0, 0},
			ParamMapping:   []domain.VariableID{0, 1},
			Subtasks: []domain.Subtask{
				{Task: moveID, Args: []domain.VariableID{0, 1}},
			},
		},
	}
	return d, moveID, travelID
}

func TestBuildClassicalProblemIsPermissive(t *testing.T) {
	d, _, _ := buildSimpleDomain()
	p := &domain.Problem{InitialFacts: nil, GoalFacts: nil}
	ty, err := Build(nil, d, p, Options{})
	require.NoError(t, err)
	require.True(t, ty.IsTaskAssignmentCompatible(0, Assignment{0: 0}))
}

func TestBuildHierarchicalPropagatesToSubtask(t *testing.T) {
	d, moveID, travelID := buildSimpleDomain()
	p := &domain.Problem{
		InitialTask: &domain.TaskInvocation{Task: travelID, Args: []domain.ConstantID{0, 1}},
	}
	ty, err := Build(nil, d, p, Options{})
	require.NoError(t, err)

	require.Len(t, ty.TaskTuples(travelID), 1)
	require.Len(t, ty.TaskTuples(moveID), 1)

	// move's tuple must have been restricted to exactly {a} at position 0
	// and {b} at position 1, inherited from travel's bound arguments.
	moveTuple := ty.TaskTuples(moveID)[0]
	require.Len(t, moveTuple.Vars[0], 1)
	require.Len(t, moveTuple.Vars[1], 1)
	_, hasA := moveTuple.Vars[0][0]
	_, hasB := moveTuple.Vars[1][1]
	require.True(t, hasA)
	require.True(t, hasB)

	require.True(t, ty.IsTaskAssignmentCompatible(moveID, Assignment{0: 0, 1: 1}))
	require.False(t, ty.IsTaskAssignmentCompatible(moveID, Assignment{0: 2}))
}

func TestBuildZeroArityTaskWithoutMethodsStillHasOneTuple(t *testing.T) {
	d, _, travelID := buildSimpleDomain()
	// An initial abstract task with no parameters and no methods at all is
	// not reported as unsolvable: its single empty tuple is still stored.
	d.Tasks = append(d.Tasks, domain.Task{
		Name:       "stuck",
		ParamSorts: nil,
		Abstract:   &domain.AbstractTask{Name: "stuck", Methods: nil},
	})
	stuckID := domain.TaskID(len(d.Tasks) - 1)
	p := &domain.Problem{
		InitialTask: &domain.TaskInvocation{Task: stuckID, Args: nil},
	}
	ty, err := Build(nil, d, p, Options{})
	require.NoError(t, err) // a task with zero variables still has one (empty) tuple
	require.Len(t, ty.TaskTuples(stuckID), 1)
	_ = travelID
}

func TestDedupExactVsInclusion(t *testing.T) {
	wide := Tuple{Vars: []ConstantSet{{0: {}, 1: {}, 2: {}}}}
	narrow := Tuple{Vars: []ConstantSet{{0: {}}}}
	require.True(t, narrow.subsumedBy(wide))
	require.False(t, wide.subsumedBy(narrow))
	require.False(t, narrow.equal(wide))
}
