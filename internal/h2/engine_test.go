// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package h2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/domain"
)

// buildLocationEncoding builds a single SAS+ variable with three values
// (locations a, b, c) and a chain of move operators a->b->c, manually
// (bypassing BuildEncoding) so the test can hand-trace the expected
// reachable pairs directly against a known temporary SAS+ encoding.
func buildLocationEncoding() *Encoding {
	enc := &Encoding{
		NumValues: []int{3, 2}, // var0: 3 locations, var1 (GoalVar): 2 values
		Initial:   []ValueID{0, 0},
		GoalVar:   1,
		valueFact: [][]domain.FactID{
			{0, 1, 2}, // at-a=fact0, at-b=fact1, at-c=fact2
			{NoInitialFact, NoInitialFact},
		},
	}
	enc.Operators = []Operator{
		{Name: "move_ab", Index: 0, Pre: []Assignment{{Var: 0, Val: 0}}, Eff: []Assignment{{Var: 0, Val: 1}}},
		{Name: "move_bc", Index: 1, Pre: []Assignment{{Var: 0, Val: 1}}, Eff: []Assignment{{Var: 0, Val: 2}}},
		{Name: "move_ca", Index: 2, Pre: []Assignment{{Var: 0, Val: 2}}, Eff: []Assignment{{Var: 0, Val: 0}}},
	}
	return enc
}

func TestDefaultEngineReachesAllLocationsButKeepsThemMutex(t *testing.T) {
	enc := buildLocationEncoding()
	res, err := (DefaultEngine{}).Analyze(context.Background(), enc)
	require.NoError(t, err)

	require.True(t, res.ReachedSingle[0][0])
	require.True(t, res.ReachedSingle[0][1])
	require.True(t, res.ReachedSingle[0][2])

	require.ElementsMatch(t, []int{0, 1, 2}, res.SurvivingOperators)

	// Distinct values of the same SAS+ variable can never be true together.
	require.False(t, res.ReachedPair[canonicalPair(Assignment{0, 0}, Assignment{0, 1})])
	require.False(t, res.ReachedPair[canonicalPair(Assignment{0, 1}, Assignment{0, 2})])
}

func TestTranslateReportsMutexesAndInvariantForSingleVariable(t *testing.T) {
	enc := buildLocationEncoding()
	res, err := (DefaultEngine{}).Analyze(context.Background(), enc)
	require.NoError(t, err)

	mutexes, surviving, invariants := Translate(enc, res)
	require.NotEmpty(t, mutexes)
	require.ElementsMatch(t, []int{0, 1, 2}, surviving)

	// The single location variable has no none-of-them value, so it yields
	// one disjunctive invariant across all three location facts.
	require.Len(t, invariants, 1)
	require.ElementsMatch(t, []domain.FactID{0, 1, 2}, invariants[0].Facts)
}

func TestDefaultEngineLeavesUnreachableOperatorOut(t *testing.T) {
	enc := buildLocationEncoding()
	// A dead operator requiring a value that's never reached.
	enc.Operators = append(enc.Operators, Operator{
		Name: "dead", Index: 99,
		Pre: []Assignment{{Var: 0, Val: 5}},
		Eff: []Assignment{{Var: 1, Val: 1}},
	})

	res, err := (DefaultEngine{}).Analyze(context.Background(), enc)
	require.NoError(t, err)
	for _, idx := range res.SurvivingOperators {
		require.NotEqual(t, 99, idx)
	}
}
