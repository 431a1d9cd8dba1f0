// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sasplus

import (
	"sort"

	"github.com/AleutianAI/htnground/internal/domain"
)

// Variable is one SAS+ variable: the set of ground facts it ranges over,
// plus whether it also needs a synthetic "none-of-them" value.
type Variable struct {
	Facts      []domain.FactID
	NoneOfThem bool
}

// Result is the output of group synthesis: the chosen SAS+ variables, a
// lookup from fact to owning variable index, and the additional mutex
// groups kept for output but not used as SAS+ variables.
type Result struct {
	Variables       []Variable
	FactVariable    map[domain.FactID]int
	NonStrictGroups [][]domain.FactID
}

// initialIntersectionCount counts how many of group's members are true in
// the initial state.
func initialIntersectionCount(group []domain.FactID, initial map[domain.FactID]bool) int {
	n := 0
	for _, f := range group {
		if initial[f] {
			n++
		}
	}
	return n
}

// GreedyCover runs §4.8's greedy cover: candidates are sorted by decreasing
// size, any whose initial-state intersection exceeds one is skipped outright
// (it cannot be a valid single-valued SAS+ invariant), and a candidate is
// accepted as a SAS+ variable only while every one of its members is still
// uncovered; a candidate overlapping already-covered facts is instead kept
// as a non-strict additional mutex group.
func GreedyCover(candidates [][]domain.FactID, initial map[domain.FactID]bool) *Result {
	sorted := append([][]domain.FactID(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	covered := make(map[domain.FactID]bool)
	res := &Result{FactVariable: make(map[domain.FactID]int)}

	for _, cand := range sorted {
		if initialIntersectionCount(cand, initial) > 1 {
			continue
		}
		if allUncovered(cand, covered) {
			idx := len(res.Variables)
			res.Variables = append(res.Variables, Variable{Facts: append([]domain.FactID(nil), cand...)})
			for _, f := range cand {
				covered[f] = true
				res.FactVariable[f] = idx
			}
			continue
		}
		res.NonStrictGroups = append(res.NonStrictGroups, cand)
	}
	return res
}

func allUncovered(group []domain.FactID, covered map[domain.FactID]bool) bool {
	for _, f := range group {
		if covered[f] {
			return false
		}
	}
	return true
}

// AddSingletonVariables wraps every still-uncovered live fact in its own
// singleton SAS+ variable, for §4.8's "SAS+ only" mode.
func AddSingletonVariables(res *Result, facts *domain.FactTable) {
	for _, id := range facts.Live() {
		if _, ok := res.FactVariable[id]; ok {
			continue
		}
		idx := len(res.Variables)
		res.Variables = append(res.Variables, Variable{Facts: []domain.FactID{id}})
		res.FactVariable[id] = idx
	}
}

// MarkNoneOfThem marks every variable needing a "none-of-them" value
// because no initial-state fact lies in it.
func MarkNoneOfThem(res *Result, initial map[domain.FactID]bool) {
	for i := range res.Variables {
		if initialIntersectionCount(res.Variables[i].Facts, initial) == 0 {
			res.Variables[i].NoneOfThem = true
		}
	}
}
