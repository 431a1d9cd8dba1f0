// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fam

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/domain"
)

func buildLogisticsDomain() *domain.Domain {
	locSort := domain.SortID(0)
	sorts := []domain.Sort{{Name: "loc", Members: nil}}

	atPred := domain.PredicateID(0)
	predicates := []domain.Predicate{{Name: "at", ArgSorts: []domain.SortID{locSort, locSort}}}

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
		Sorts:         sorts,
		Predicates:    predicates,
		Tasks:         []domain.Task{{Name: "move", ParamSorts: move.ParamSorts, Primitive: &move}},
		NumPrimitives: 1,
	}
}

func TestBuildModelAppendsDummyGoalPredicate(t *testing.T) {
	dom := buildLogisticsDomain()
	m, err := BuildModel(slog.Default(), dom)
	require.NoError(t, err)

	require.Len(t, m.Predicates, 2)
	require.Equal(t, DummyGoalPredicate, m.Predicates[m.GoalPredicate].Name)
	require.Equal(t, domain.PredicateID(1), m.GoalPredicate)
}

func TestBuildModelConvertsEveryPrimitiveAndAppendsGoalLiteral(t *testing.T) {
	dom := buildLogisticsDomain()
	m, err := BuildModel(slog.Default(), dom)
	require.NoError(t, err)

	require.Len(t, m.Actions, 1)
	a := m.Actions[0]
	require.Equal(t, "move", a.Name)
	require.Len(t, a.Preconditions.Literals, 1)
	require.Len(t, a.DelEffects.Literals, 1)

	// AddEffects carries the original add effect plus the dummy goal literal.
	require.Len(t, a.AddEffects.Literals, 2)
	require.Equal(t, m.GoalPredicate, a.AddEffects.Literals[1].Predicate)
}
