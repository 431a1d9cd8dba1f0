// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sasplus synthesizes SAS+ mutex groups from lifted FAM groups and
// known predicate mutexes, then runs ground invariant analysis over the
// grounded primitive set.
package sasplus

import (
	"sort"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/fam"
)

type factRef struct {
	id   domain.FactID
	fact domain.Fact
}

func indexFactsByPredicate(facts *domain.FactTable) map[domain.PredicateID][]factRef {
	out := make(map[domain.PredicateID][]factRef)
	for _, id := range facts.Live() {
		f := facts.Get(id)
		out[f.Predicate] = append(out[f.Predicate], factRef{id: id, fact: f})
	}
	return out
}

// InstantiateGroundGroups grounds every lifted FAM group against the
// reachable fact set (§4.8 "Instantiate"): for every ground fact matching a
// group literal, the free variables it binds pin one ground mutex group,
// which is completed by collecting every fact (over every literal of the
// group) consistent with that binding. Results are de-duplicated.
func InstantiateGroundGroups(facts *domain.FactTable, groups []fam.Group) [][]domain.FactID {
	byPred := indexFactsByPredicate(facts)
	seen := make(map[string]bool)
	var out [][]domain.FactID

	for _, g := range groups {
		for _, lit := range g.Literals {
			for _, fr := range byPred[lit.Predicate] {
				binding, ok := extractFreeBinding(lit, fr.fact)
				if !ok {
					continue
				}
				members := groupMembersForBinding(g, byPred, binding)
				if len(members) == 0 {
					continue
				}
				key := groupKey(members)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, members)
			}
		}
	}
	return out
}

// extractFreeBinding reports the free-variable assignment implied by
// matching f against lit, failing if any constant-argument position of lit
// disagrees with f.
func extractFreeBinding(lit fam.GroupLiteral, f domain.Fact) (map[int]domain.ConstantID, bool) {
	if len(lit.Args) != len(f.Args) {
		return nil, false
	}
	binding := make(map[int]domain.ConstantID)
	for i, arg := range lit.Args {
		switch arg.Kind {
		case fam.ArgFree:
			if existing, ok := binding[arg.Index]; ok && existing != f.Args[i] {
				return nil, false
			}
			binding[arg.Index] = f.Args[i]
		case fam.ArgConstant:
			if arg.Constant != f.Args[i] {
				return nil, false
			}
		case fam.ArgCounted:
			// varies across the group; no constraint here.
		}
	}
	return binding, true
}

// groupMembersForBinding collects, for every literal of g, every fact
// consistent with the given free-variable binding (constant positions must
// match; free positions must match the binding; counted positions are
// unconstrained).
func groupMembersForBinding(g fam.Group, byPred map[domain.PredicateID][]factRef, binding map[int]domain.ConstantID) []domain.FactID {
	seen := make(map[domain.FactID]bool)
	var members []domain.FactID
	for _, lit := range g.Literals {
		for _, fr := range byPred[lit.Predicate] {
			if !consistentWithBinding(lit, fr.fact, binding) {
				continue
			}
			if !seen[fr.id] {
				seen[fr.id] = true
				members = append(members, fr.id)
			}
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

func consistentWithBinding(lit fam.GroupLiteral, f domain.Fact, binding map[int]domain.ConstantID) bool {
	if len(lit.Args) != len(f.Args) {
		return false
	}
	for i, arg := range lit.Args {
		switch arg.Kind {
		case fam.ArgFree:
			want, ok := binding[arg.Index]
			if ok && want != f.Args[i] {
				return false
			}
		case fam.ArgConstant:
			if arg.Constant != f.Args[i] {
				return false
			}
		case fam.ArgCounted:
			// unconstrained
		}
	}
	return true
}

func groupKey(members []domain.FactID) string {
	buf := make([]byte, 0, len(members)*7)
	for _, m := range members {
		buf = appendInt(buf, int64(m))
		buf = append(buf, ',')
	}
	return string(buf)
}

func appendInt(buf []byte, v int64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	if v < 0 {
		buf = append(buf, '-')
		v = -v
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// AugmentWithMutexPredicates adds one ground binary-mutex candidate per pair
// of live facts whose predicates are declared mutex in dom.MutexPredicates
// and which share every argument position both predicates have in common
// (§4.8 "Augment").
func AugmentWithMutexPredicates(facts *domain.FactTable, dom *domain.Domain) [][]domain.FactID {
	if len(dom.MutexPredicates) == 0 {
		return nil
	}
	byPred := indexFactsByPredicate(facts)
	var out [][]domain.FactID
	for _, pair := range dom.MutexPredicates {
		for _, a := range byPred[pair[0]] {
			for _, b := range byPred[pair[1]] {
				if a.id == b.id {
					continue
				}
				shared := true
				for i := 0; i < len(a.fact.Args) && i < len(b.fact.Args); i++ {
					if a.fact.Args[i] != b.fact.Args[i] {
						shared = false
						break
					}
				}
				if !shared {
					continue
				}
				out = append(out, []domain.FactID{a.id, b.id})
			}
		}
	}
	return out
}
