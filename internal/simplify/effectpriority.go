// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/reachability"
)

// isDeletePriorityPredicate reports whether a predicate name marks "delete
// wins on conflict" rather than the default "add wins".
func isDeletePriorityPredicate(name string) bool {
	return strings.HasPrefix(name, "-")
}

// ResolveEffectPriority implements §4.10 pass 2: every grounded primitive
// whose AddEffects and DelEffects both name the same fact is resolved by the
// predicate's effect priority, default add-wins unless the predicate name is
// "-"-prefixed. The loser is dropped from whichever effect list named it.
func ResolveEffectPriority(st *reachability.State) {
	for _, p := range st.Primitives {
		p.AddEffects, p.DelEffects = resolveOne(st.Dom, st.Facts, p.AddEffects, p.DelEffects)
	}
}

func resolveOne(dom *domain.Domain, facts *domain.FactTable, adds, dels []domain.FactID) ([]domain.FactID, []domain.FactID) {
	delSet := make(map[domain.FactID]bool, len(dels))
	for _, d := range dels {
		delSet[d] = true
	}
	var keptAdds, keptDels []domain.FactID
	for _, a := range adds {
		if !delSet[a] {
			keptAdds = append(keptAdds, a)
			continue
		}
		if deletePriority(dom, facts, a) {
			continue // delete wins, drop from adds
		}
		keptAdds = append(keptAdds, a)
	}
	addSet := make(map[domain.FactID]bool, len(adds))
	for _, a := range adds {
		addSet[a] = true
	}
	for _, d := range dels {
		if !addSet[d] {
			keptDels = append(keptDels, d)
			continue
		}
		if deletePriority(dom, facts, d) {
			keptDels = append(keptDels, d)
			continue
		}
		// add wins, drop from dels
	}
	return keptAdds, keptDels
}

func deletePriority(dom *domain.Domain, facts *domain.FactTable, id domain.FactID) bool {
	f := facts.Get(id)
	return isDeletePriorityPredicate(dom.PredicateName(f.Predicate))
}
