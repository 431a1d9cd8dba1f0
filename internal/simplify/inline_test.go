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
)

func buildOneMethodAbstractDomain() *domain.Domain {
	sortA := domain.SortID(0)
	return &domain.Domain{
		Tasks: []domain.Task{
			{Name: "s0", ParamSorts: []domain.SortID{sortA}, Primitive: &domain.PrimitiveTask{}},
			{Name: "s1", ParamSorts: []domain.SortID{sortA}, Primitive: &domain.PrimitiveTask{}},
			{Name: "t0", ParamSorts: []domain.SortID{sortA}, Primitive: &domain.PrimitiveTask{}},
			{Name: "t1", ParamSorts: []domain.SortID{sortA}, Primitive: &domain.PrimitiveTask{}},
			{Name: "A", ParamSorts: []domain.SortID{sortA}, Abstract: &domain.AbstractTask{
				Name: "A", ParamSorts: []domain.SortID{sortA}, Methods: []domain.MethodID{0},
			}},
		},
		NumPrimitives: 4,
		Methods: []domain.Method{
			{ // inner method decomposing A
				Name:           "m_A",
				DecomposedTask: domain.TaskID(4),
				VarSorts:       []domain.SortID{sortA},
				ParamMapping:   []domain.VariableID{0},
				Subtasks: []domain.Subtask{
					{Task: domain.TaskID(2), Args: []domain.VariableID{0}},
					{Task: domain.TaskID(3), Args: []domain.VariableID{0}},
				},
				Orderings: [][2]int{{0, 1}},
			},
			{ // outer/parent method
				Name:     "P",
				VarSorts: []domain.SortID{sortA},
				Subtasks: []domain.Subtask{
					{Task: domain.TaskID(0), Args: []domain.VariableID{0}},
					{Task: domain.TaskID(4), Args: []domain.VariableID{0}},
					{Task: domain.TaskID(1), Args: []domain.VariableID{0}},
				},
				Orderings: [][2]int{{0, 1}, {1, 2}},
			},
		},
	}
}

func TestInlineOneMethodAbstractsSplicesSubtasksInPlace(t *testing.T) {
	dom := buildOneMethodAbstractDomain()
	InlineOneMethodAbstracts(dom, domain.TaskID(99), false)

	p := dom.Methods[1]
	require.Len(t, p.Subtasks, 4)
	require.Equal(t, []domain.TaskID{0, 2, 3, 1}, taskIDs(p.Subtasks))
	require.ElementsMatch(t, [][2]int{{0, 1}, {1, 2}, {2, 3}}, p.Orderings)
	require.Contains(t, p.Name, "A")
	require.Contains(t, p.Name, "m_A")
}

func TestInlineOneMethodAbstractsSkipsInitialAbstractTask(t *testing.T) {
	dom := buildOneMethodAbstractDomain()
	InlineOneMethodAbstracts(dom, domain.TaskID(4), false)

	p := dom.Methods[1]
	require.Len(t, p.Subtasks, 3, "A is the initial abstract task and must not be inlined")
}

func TestInlineOneMethodAbstractsRespectsKeepTwoRegularization(t *testing.T) {
	dom := buildOneMethodAbstractDomain()
	// Give A's method a third subtask, and shrink P to a single subtask
	// (just the call to A), so inlining would grow P to 3 subtasks.
	sortA := domain.SortID(0)
	dom.Tasks = append(dom.Tasks, domain.Task{Name: "t2", ParamSorts: []domain.SortID{sortA}, Primitive: &domain.PrimitiveTask{}})
	dom.Methods[0].Subtasks = append(dom.Methods[0].Subtasks, domain.Subtask{Task: domain.TaskID(5), Args: []domain.VariableID{0}})
	dom.Methods[0].Orderings = append(dom.Methods[0].Orderings, [2]int{1, 2})

	dom.Methods[1].Subtasks = []domain.Subtask{{Task: domain.TaskID(4), Args: []domain.VariableID{0}}}
	dom.Methods[1].Orderings = nil

	InlineOneMethodAbstracts(dom, domain.TaskID(99), true)

	require.Len(t, dom.Methods[1].Subtasks, 1, "keep-two-regularization suppresses this splice")
}

func taskIDs(subtasks []domain.Subtask) []domain.TaskID {
	out := make([]domain.TaskID, len(subtasks))
	for i, s := range subtasks {
		out[i] = s.Task
	}
	return out
}
