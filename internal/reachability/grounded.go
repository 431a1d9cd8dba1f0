// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reachability

import "github.com/AleutianAI/htnground/internal/domain"

// GroundedPGPass re-derives fact and primitive reachability over the
// already-grounded operator set: a primitive is reachable once every one of
// its precondition facts has been reached, at which point its add effects
// become newly reached facts in turn. Runs to its own internal fixpoint
// (since reaching one primitive can only ever unlock more) and prunes any
// primitive left with an unfulfilled precondition. Reports whether the
// reached-fact set or any pruning state changed.
func GroundedPGPass(s *State) bool {
	anyChanged := false
	for {
		roundChanged := false
		for i, p := range s.Primitives {
			if s.PrunedPrimitive[i] {
				continue
			}
			if !allReached(s, p.Preconditions) {
				continue
			}
			for _, fid := range p.AddEffects {
				if !s.reached[fid] {
					s.reached[fid] = true
					roundChanged = true
				}
			}
		}
		if !roundChanged {
			break
		}
		anyChanged = true
	}

	for i, p := range s.Primitives {
		if s.PrunedPrimitive[i] {
			continue
		}
		if !allReached(s, p.Preconditions) {
			s.PrunedPrimitive[i] = true
			anyChanged = true
		}
	}
	return anyChanged
}

func allReached(s *State, facts []domain.FactID) bool {
	for _, fid := range facts {
		if !s.reached[fid] {
			return false
		}
	}
	return true
}

// GroundedTDGPass marks a ground method reachable when every one of its
// subtasks is reached (primitives via GroundedPGPass, abstracts
// recursively via having at least one reachable method), and marks a
// ground abstract task reached when any of its methods is reachable.
// Unreachable methods and abstracts are pruned. Runs to its own fixpoint
// and reports whether anything changed.
func GroundedTDGPass(s *State) bool {
	abstractReached := make([]bool, len(s.Abstracts))
	anyChanged := false

	for {
		roundChanged := false
		for i, gm := range s.Methods {
			if s.PrunedMethod[i] {
				continue
			}
			if !subtasksReached(s, gm, abstractReached) {
				continue
			}
			target := gm.DecomposedTask
			if int(target) >= 0 && int(target) < len(abstractReached) && !abstractReached[target] {
				abstractReached[target] = true
				roundChanged = true
			}
		}
		if !roundChanged {
			break
		}
	}

	for i, gm := range s.Methods {
		if s.PrunedMethod[i] {
			continue
		}
		if !subtasksReached(s, gm, abstractReached) {
			s.PrunedMethod[i] = true
			anyChanged = true
		}
	}
	for i := range s.Abstracts {
		if s.PrunedAbstract[i] {
			continue
		}
		if !abstractReached[i] {
			s.PrunedAbstract[i] = true
			anyChanged = true
		}
	}
	return anyChanged
}

func subtasksReached(s *State, gm *domain.GroundedMethod, abstractReached []bool) bool {
	for i, sid := range gm.Subtasks {
		if gm.SubtaskIsPrimitive[i] {
			if s.PrunedPrimitive[sid] {
				return false
			}
			continue
		}
		if int(sid) < 0 || int(sid) >= len(abstractReached) || !abstractReached[sid] {
			return false
		}
	}
	return true
}

// RunFixpoint iterates grounded-PG, grounded-TDG, and the top-down DFS
// until reach counts stop changing, per §4.6. The DFS runs in every round
// whether or not the PG/TDG passes reported a change, and the loop stops
// after the first round in which no pass changed anything, so
// alwaysRunDFS (the configuration flag of the same name) does not alter
// the result or the number of rounds.
func RunFixpoint(s *State, initialFacts []domain.Fact, alwaysRunDFS bool) {
	s.SeedReachedFacts(initialFacts)
	for {
		pgChanged := GroundedPGPass(s)
		tdgChanged := GroundedTDGPass(s)

		marks := TopDownDFS(s)
		dfsChanged := ApplyTopDown(s, marks)

		if !pgChanged && !tdgChanged && !dfsChanged && !alwaysRunDFS {
			break
		}
		if !pgChanged && !tdgChanged && !dfsChanged {
			// With alwaysRunDFS set, a round in which nothing changed also
			// ends the loop: the DFS already ran this round, and another
			// round would change nothing.
			break
		}
	}
}
