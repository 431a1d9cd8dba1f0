// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reachability implements the top-down DFS and grounded
// reachability fixpoint that prune facts, primitives, abstract task
// instances, and methods the PG/TDG fixpoint over-produced but that can
// never actually occur once reachability from both the initial state and
// the initial abstract task is taken into account.
package reachability

import "github.com/AleutianAI/htnground/internal/domain"

// NoInitialAbstract marks a classical problem with no hierarchy: the
// top-down DFS is a no-op and only the grounded-PG pass runs.
const NoInitialAbstract domain.GroundTaskID = -1

// State is the mutable ground representation the reachability passes prune
// in place. Ground entities are addressed by their GroundedNo; parallel
// Pruned* slices (mirroring domain.FactTable's own pruned bitset) record
// which survive. Pruned entities are never removed from the slices
// themselves until a later compaction pass renumbers everything.
type State struct {
	Dom        *domain.Domain
	Facts      *domain.FactTable
	Primitives []*domain.GroundedPrimitive
	Abstracts  []*domain.GroundedAbstract
	Methods    []*domain.GroundedMethod

	// InitialAbstract is the grounded instance of the problem's initial
	// abstract task, or NoInitialAbstract for a classical problem.
	InitialAbstract domain.GroundTaskID
	GoalFacts       []domain.FactID

	PrunedPrimitive []bool
	PrunedAbstract  []bool
	PrunedMethod    []bool

	// reached tracks facts known reachable from the initial state by the
	// grounded-PG pass; it only ever grows.
	reached map[domain.FactID]bool
}

// NewState builds a reachability State over already-grounded entities.
func NewState(dom *domain.Domain, facts *domain.FactTable, primitives []*domain.GroundedPrimitive, abstracts []*domain.GroundedAbstract, methods []*domain.GroundedMethod, initialAbstract domain.GroundTaskID, goalFacts []domain.FactID) *State {
	s := &State{
		Dom:             dom,
		Facts:           facts,
		Primitives:      primitives,
		Abstracts:       abstracts,
		Methods:         methods,
		InitialAbstract: initialAbstract,
		GoalFacts:       goalFacts,
		PrunedPrimitive: make([]bool, len(primitives)),
		PrunedAbstract:  make([]bool, len(abstracts)),
		PrunedMethod:    make([]bool, len(methods)),
		reached:         make(map[domain.FactID]bool),
	}
	return s
}

// SeedReachedFacts marks the problem's initial facts as reached, the seed
// for the grounded-PG pass.
func (s *State) SeedReachedFacts(initial []domain.Fact) {
	for _, f := range initial {
		if id, ok := s.Facts.Lookup(f); ok {
			s.reached[id] = true
		}
	}
}

// IsFactReached reports whether id has been derived reachable by the
// grounded-PG pass.
func (s *State) IsFactReached(id domain.FactID) bool { return s.reached[id] }
