// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/reachability"
)

// PruneUselessFacts implements §4.10 pass 3: a fact is static if no
// surviving primitive ever adds or deletes it (so it holds or fails to hold
// for the whole plan, decided entirely by the initial state), and unused if
// no surviving primitive's preconditions and no goal fact ever reads it. A
// static fact known true in the initial state is dropped from every
// precondition list it appears in (it is vacuously satisfied) and from
// every effect list (restating it changes nothing); an unused fact is
// dropped from every effect list only, since nothing ever reads it. Facts
// removed from every list they appeared in are marked pruned in the fact
// table.
func PruneUselessFacts(st *reachability.State, initial map[domain.FactID]bool) {
	changed, read := collectFactUsage(st)

	for id := 0; id < st.Facts.Len(); id++ {
		fid := domain.FactID(id)
		if st.Facts.IsPruned(fid) {
			continue
		}
		isStaticFact := !changed[fid]
		isUnused := !read[fid]
		if !isStaticFact && !isUnused {
			continue
		}
		for _, p := range st.Primitives {
			if isStaticFact && initial[fid] {
				p.Preconditions = removeFact(p.Preconditions, fid)
			}
			p.AddEffects = removeFact(p.AddEffects, fid)
			p.DelEffects = removeFact(p.DelEffects, fid)
		}
		if isStaticFact && initial[fid] {
			st.GoalFacts = removeFact(st.GoalFacts, fid)
		}
		if isUnused || (isStaticFact && initial[fid]) {
			st.Facts.Prune(fid)
		}
	}
}

// collectFactUsage returns, for every fact id, whether some surviving
// primitive changes it (add or delete) and whether some surviving
// primitive's preconditions or the goal read it.
func collectFactUsage(st *reachability.State) (changed, read map[domain.FactID]bool) {
	changed = make(map[domain.FactID]bool)
	read = make(map[domain.FactID]bool)
	for i, p := range st.Primitives {
		if st.PrunedPrimitive[i] {
			continue
		}
		for _, f := range p.AddEffects {
			changed[f] = true
		}
		for _, f := range p.DelEffects {
			changed[f] = true
		}
		for _, f := range p.Preconditions {
			read[f] = true
		}
	}
	for _, f := range st.GoalFacts {
		read[f] = true
	}
	return changed, read
}

func removeFact(list []domain.FactID, target domain.FactID) []domain.FactID {
	out := list[:0]
	for _, f := range list {
		if f != target {
			out = append(out, f)
		}
	}
	return out
}
