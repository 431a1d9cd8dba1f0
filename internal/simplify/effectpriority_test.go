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

func TestResolveEffectPriorityAddWinsByDefault(t *testing.T) {
	facts := domain.NewFactTable()
	onFact, _ := facts.Intern(domain.Fact{Predicate: 0})

	prim := &domain.GroundedPrimitive{
		AddEffects: []domain.FactID{onFact},
		DelEffects: []domain.FactID{onFact},
	}
	dom := &domain.Domain{Predicates: []domain.Predicate{{Name: "on"}}}
	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{prim}, nil, nil, reachability.NoInitialAbstract, nil)

	ResolveEffectPriority(st)

	require.Equal(t, []domain.FactID{onFact}, prim.AddEffects)
	require.Empty(t, prim.DelEffects)
}

func TestResolveEffectPriorityDeleteWinsForPrefixedPredicate(t *testing.T) {
	facts := domain.NewFactTable()
	f, _ := facts.Intern(domain.Fact{Predicate: 0})

	prim := &domain.GroundedPrimitive{
		AddEffects: []domain.FactID{f},
		DelEffects: []domain.FactID{f},
	}
	dom := &domain.Domain{Predicates: []domain.Predicate{{Name: "-reserved"}}}
	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{prim}, nil, nil, reachability.NoInitialAbstract, nil)

	ResolveEffectPriority(st)

	require.Empty(t, prim.AddEffects)
	require.Equal(t, []domain.FactID{f}, prim.DelEffects)
}

func TestResolveEffectPriorityLeavesNonConflictingEffectsAlone(t *testing.T) {
	facts := domain.NewFactTable()
	a, _ := facts.Intern(domain.Fact{Predicate: 0})
	b, _ := facts.Intern(domain.Fact{Predicate: 1})

	prim := &domain.GroundedPrimitive{
		AddEffects: []domain.FactID{a},
		DelEffects: []domain.FactID{b},
	}
	dom := &domain.Domain{Predicates: []domain.Predicate{{Name: "p0"}, {Name: "p1"}}}
	st := reachability.NewState(dom, facts, []*domain.GroundedPrimitive{prim}, nil, nil, reachability.NoInitialAbstract, nil)

	ResolveEffectPriority(st)

	require.Equal(t, []domain.FactID{a}, prim.AddEffects)
	require.Equal(t, []domain.FactID{b}, prim.DelEffects)
}
