// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sasplus

import "github.com/AleutianAI/htnground/internal/domain"

// RunGroundInvariantAnalysis implements §4.8's ground invariant analysis
// over every non-pruned primitive: an action with two preconditions in the
// same SAS+ group is infeasible and gets pruned (the group is mutex); an
// action that deletes from a group without adding to it marks that group's
// "none-of-them" need on the action (NoneOfThemFor). Reports whether any
// new pruning occurred, so the driver can loop this (and the reachability
// passes it feeds) to a fixed point after each simplification round.
func RunGroundInvariantAnalysis(primitives []*domain.GroundedPrimitive, pruned []bool, res *Result) bool {
	changed := false
	for i, p := range primitives {
		if pruned[i] {
			continue
		}
		if hasDuplicateGroupPrecondition(p, res) {
			pruned[i] = true
			changed = true
			continue
		}
		markNoneOfThemForAction(p, res)
	}
	return changed
}

func hasDuplicateGroupPrecondition(p *domain.GroundedPrimitive, res *Result) bool {
	seen := make(map[int]bool)
	for _, fid := range p.Preconditions {
		idx, ok := res.FactVariable[fid]
		if !ok {
			continue
		}
		if seen[idx] {
			return true
		}
		seen[idx] = true
	}
	return false
}

func markNoneOfThemForAction(p *domain.GroundedPrimitive, res *Result) {
	added := groupsTouched(p.AddEffects, res)
	deleted := groupsTouched(p.DelEffects, res)
	for idx := range deleted {
		if added[idx] {
			continue
		}
		if p.NoneOfThemFor == nil {
			p.NoneOfThemFor = make(map[int]bool)
		}
		p.NoneOfThemFor[idx] = true
		res.Variables[idx].NoneOfThem = true
	}
}

func groupsTouched(facts []domain.FactID, res *Result) map[int]bool {
	out := make(map[int]bool)
	for _, fid := range facts {
		if idx, ok := res.FactVariable[fid]; ok {
			out[idx] = true
		}
	}
	return out
}
