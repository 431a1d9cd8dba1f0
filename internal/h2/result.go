// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package h2

import "github.com/AleutianAI/htnground/internal/domain"

// Invariant is a disjunctive ground invariant translated out of h²'s
// variable-domain view: "at least one of Facts holds", with Negated facts
// standing for the "none-of-them" member of a SAS+ group (§6 "known
// invariants" lists these as signed fact ids).
type Invariant struct {
	Facts   []domain.FactID
	Negated []bool
}

// Mutex is a ground fact pair the analysis found never co-reachable.
type Mutex struct {
	First, Second domain.FactID
}

// Translate converts a pairwise-reachability Result into ground-fact
// mutexes, surviving primitive indices, and disjunctive invariants for any
// variable whose "none-of-them" value was never found reachable (meaning
// exactly one of its facts must always hold, the "known invariants" of
// §6). Facts with no ground-fact mapping (synthetic/fake-goal values) are
// skipped.
func Translate(enc *Encoding, res *Result) (mutexes []Mutex, survivingPrimitives []int, invariants []Invariant) {
	for v := range enc.valueFact {
		for val1 := 0; val1 < len(enc.valueFact[v]); val1++ {
			f1, ok1 := enc.FactFor(VariableID(v), ValueID(val1))
			if !ok1 {
				continue
			}
			for val2 := val1 + 1; val2 < len(enc.valueFact[v]); val2++ {
				f2, ok2 := enc.FactFor(VariableID(v), ValueID(val2))
				if !ok2 {
					continue
				}
				if !res.ReachedPair[canonicalPair(Assignment{Var: VariableID(v), Val: ValueID(val1)}, Assignment{Var: VariableID(v), Val: ValueID(val2)})] {
					mutexes = append(mutexes, Mutex{First: f1, Second: f2})
				}
			}
		}
	}
	for v1 := 0; v1 < len(enc.valueFact); v1++ {
		for val1 := range enc.valueFact[v1] {
			f1, ok1 := enc.FactFor(VariableID(v1), ValueID(val1))
			if !ok1 {
				continue
			}
			for v2 := v1 + 1; v2 < len(enc.valueFact); v2++ {
				for val2 := range enc.valueFact[v2] {
					f2, ok2 := enc.FactFor(VariableID(v2), ValueID(val2))
					if !ok2 {
						continue
					}
					if !res.ReachedPair[canonicalPair(Assignment{Var: VariableID(v1), Val: ValueID(val1)}, Assignment{Var: VariableID(v2), Val: ValueID(val2)})] {
						mutexes = append(mutexes, Mutex{First: f1, Second: f2})
					}
				}
			}
		}
	}

	survivingPrimitives = append([]int(nil), res.SurvivingOperators...)

	for v := range enc.valueFact {
		if v == int(enc.GoalVar) {
			continue
		}
		domainSize := len(enc.valueFact[v])
		noneValID := ValueID(-1)
		for val, fid := range enc.valueFact[v] {
			if fid == NoInitialFact {
				noneValID = ValueID(val)
			}
		}
		// A variable with no none-of-them slot was already proven to always
		// carry exactly one value during SAS+ synthesis: the invariant holds
		// trivially. A variable with a none-of-them slot only gets the
		// invariant if h² found that slot unreachable.
		if noneValID != -1 && res.ReachedSingle[VariableID(v)][noneValID] {
			continue
		}
		inv := Invariant{}
		for val := 0; val < domainSize; val++ {
			fid, ok := enc.FactFor(VariableID(v), ValueID(val))
			if !ok {
				continue
			}
			inv.Facts = append(inv.Facts, fid)
			inv.Negated = append(inv.Negated, false)
		}
		if len(inv.Facts) > 0 {
			invariants = append(invariants, inv)
		}
	}
	return mutexes, survivingPrimitives, invariants
}
