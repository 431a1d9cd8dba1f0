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

// buildConditionalDomain builds a one-primitive, one-abstract domain where
// the primitive "open" has a single conditional add effect: if "hasKey" then
// add "unlocked".
func buildConditionalDomain() *domain.Domain {
	locSort := domain.SortID(0)
	hasKeyPred := domain.PredicateID(0)
	unlockedPred := domain.PredicateID(1)

	open := domain.PrimitiveTask{
		Name:       "open",
		ParamSorts: []domain.SortID{locSort},
		CondAddEffects: []domain.ConditionalEffect{
			{
				Condition: []domain.Atom{{Predicate: hasKeyPred, Args: []domain.VariableID{0}}},
				Effect:    domain.Atom{Predicate: unlockedPred, Args: []domain.VariableID{0}},
			},
		},
	}
	decompose := domain.Method{
		Name:           "m_open",
		DecomposedTask: domain.TaskID(1),
		VarSorts:       []domain.SortID{locSort},
		ParamMapping:   []domain.VariableID{0},
		Subtasks:       []domain.Subtask{{Task: domain.TaskID(0), Args: []domain.VariableID{0}}},
	}

	return &domain.Domain{
		Sorts: []domain.Sort{{Name: "loc"}},
		Predicates: []domain.Predicate{
			{Name: "hasKey", ArgSorts: []domain.SortID{locSort}},
			{Name: "unlocked", ArgSorts: []domain.SortID{locSort}},
		},
		Tasks: []domain.Task{
			{Name: "open", ParamSorts: open.ParamSorts, Primitive: &open},
			{Name: "doOpen", ParamSorts: []domain.SortID{locSort}, Abstract: &domain.AbstractTask{
				Name: "doOpen", ParamSorts: []domain.SortID{locSort}, Methods: []domain.MethodID{0},
			}},
		},
		NumPrimitives: 1,
		Methods:       []domain.Method{decompose},
	}
}

func TestCompileConditionalEffectsAddsGuardedPrimitiveAndGuardAtom(t *testing.T) {
	dom := buildConditionalDomain()
	out := CompileConditionalEffects(dom)

	require.Equal(t, 2, out.NumPrimitives, "original open primitive plus one compiled conditional-effect primitive")

	openTask := out.Tasks[0]
	require.Empty(t, openTask.Primitive.CondAddEffects)
	require.Len(t, openTask.Primitive.AddEffects, 1, "open now unconditionally adds its guard atom")
	guardPred := openTask.Primitive.AddEffects[0].Predicate
	require.True(t, out.Predicates[guardPred].GuardForConditionalEffect)

	compiled := out.Tasks[1]
	require.True(t, compiled.Primitive.IsCompiledConditionalEffect)
	require.Len(t, compiled.Primitive.Preconditions, 2, "the condition plus the guard atom")
	require.Equal(t, domain.PredicateID(0), compiled.Primitive.Preconditions[0].Predicate, "hasKey")
	require.Equal(t, guardPred, compiled.Primitive.Preconditions[1].Predicate, "guard")
	require.Len(t, compiled.Primitive.AddEffects, 1)
	require.Equal(t, domain.PredicateID(1), compiled.Primitive.AddEffects[0].Predicate, "unlocked")
}

func TestCompileConditionalEffectsRemapsAbstractTaskAndMethodReferences(t *testing.T) {
	dom := buildConditionalDomain()
	out := CompileConditionalEffects(dom)

	// The abstract task and its method must still resolve correctly after
	// the compiled primitive was spliced into the primitive id range.
	require.Equal(t, "doOpen", out.Tasks[out.Methods[0].DecomposedTask].Name)
	require.Equal(t, "open", out.Tasks[out.Methods[0].Subtasks[0].Task].Name)
}

func TestCompileConditionalEffectsNoOpWhenNoConditionalEffects(t *testing.T) {
	dom := buildLogisticsDomainForSimplifyTests()
	out := CompileConditionalEffects(dom)
	require.Equal(t, dom.NumPrimitives, out.NumPrimitives)
	require.Len(t, out.Tasks, len(dom.Tasks))
}

func buildLogisticsDomainForSimplifyTests() *domain.Domain {
	locSort := domain.SortID(0)
	atPred := domain.PredicateID(0)
	move := domain.PrimitiveTask{
		Name:       "move",
		ParamSorts: []domain.SortID{locSort, locSort},
		Preconditions: []domain.Atom{
			{Predicate: atPred, Args: []domain.VariableID{0}},
		},
		AddEffects: []domain.Atom{{Predicate: atPred, Args: []domain.VariableID{1}}},
		DelEffects: []domain.Atom{{Predicate: atPred, Args: []domain.VariableID{0}}},
	}
	return &domain.Domain{
		Sorts:         []domain.Sort{{Name: "loc"}},
		Predicates:    []domain.Predicate{{Name: "at", ArgSorts: []domain.SortID{locSort, locSort}}},
		Tasks:         []domain.Task{{Name: "move", ParamSorts: move.ParamSorts, Primitive: &move}},
		NumPrimitives: 1,
	}
}
