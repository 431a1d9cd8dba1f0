// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package h2

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/sasplus"
)

func TestBuildEncodingSeparatesPrevailFromPreAndTranslatesNoneOfThem(t *testing.T) {
	// One SAS+ variable {at-a=0, at-b=1} with a none-of-them slot, plus an
	// untouched "carrying" variable {has-key=2} read but never written.
	res := &sasplus.Result{
		Variables: []sasplus.Variable{
			{Facts: []domain.FactID{0, 1}, NoneOfThem: true},
			{Facts: []domain.FactID{2}},
		},
		FactVariable: map[domain.FactID]int{0: 0, 1: 0, 2: 1},
	}
	primitives := []*domain.GroundedPrimitive{
		{
			Preconditions: []domain.FactID{0, 2},
			AddEffects:    []domain.FactID{1},
			DelEffects:    []domain.FactID{0},
		},
	}
	pruned := []bool{false}
	initial := map[domain.FactID]bool{0: true, 2: true}

	enc := BuildEncoding(primitives, pruned, res, initial)

	require.Len(t, enc.Operators, 1)
	op := enc.Operators[0]
	require.Equal(t, []Assignment{{Var: 1, Val: 0}}, op.Prevail)
	require.Equal(t, []Assignment{{Var: 0, Val: 0}}, op.Pre)
	require.Equal(t, []Assignment{{Var: 0, Val: 1}}, op.Eff)

	require.Equal(t, ValueID(0), enc.Initial[0])
	require.Equal(t, ValueID(0), enc.Initial[1])

	fid, ok := enc.FactFor(0, 1)
	require.True(t, ok)
	require.Equal(t, domain.FactID(1), fid)
}

func TestBuildEncodingAssignsNoneOfThemOnDeleteWithoutAdd(t *testing.T) {
	res := &sasplus.Result{
		Variables: []sasplus.Variable{
			{Facts: []domain.FactID{0}, NoneOfThem: true},
		},
		FactVariable: map[domain.FactID]int{0: 0},
	}
	primitives := []*domain.GroundedPrimitive{
		{
			Preconditions: []domain.FactID{0},
			DelEffects:    []domain.FactID{0},
			NoneOfThemFor: map[int]bool{0: true},
		},
	}
	pruned := []bool{false}
	initial := map[domain.FactID]bool{0: true}

	enc := BuildEncoding(primitives, pruned, res, initial)
	require.Len(t, enc.Operators[0].Eff, 1)
	require.Equal(t, ValueID(1), enc.Operators[0].Eff[0].Val) // the none-of-them slot
}
