// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fam

import "github.com/AleutianAI/htnground/internal/domain"

// ArgKind distinguishes the three kinds of argument a FAM-group literal can
// carry.
type ArgKind int

const (
	ArgFree ArgKind = iota
	ArgCounted
	ArgConstant
)

// GroupArg is one argument of a GroupLiteral.
type GroupArg struct {
	Kind     ArgKind
	Index    int // index into the owning Group's Free or Counted var list
	Constant domain.ConstantID
}

// GroupLiteral is one conjunct of a FAM group: a predicate applied to the
// group's free/counted variables or literal constants.
type GroupLiteral struct {
	Predicate domain.PredicateID
	Args      []GroupArg
}

// Group is a lifted FAM group: a set of free variables (held fixed across
// the group's members), a set of counted variables (the "value" a group
// member picks), and a list of literals using them (§3's FAM-group
// vocabulary).
type Group struct {
	Name            string
	FreeVarSorts    []domain.SortID
	CountedVarSorts []domain.SortID
	Literals        []GroupLiteral
}

// Limits bounds a FAM-group inference run, per §4.7's configurable upper
// bounds.
type Limits struct {
	MaxCandidates int
	MaxGroups     int
}

// DefaultLimits matches §4.7's stated defaults.
var DefaultLimits = Limits{MaxCandidates: 10_000, MaxGroups: 10_000}

// Engine is the FAM-group inference collaborator: takes the normalized
// lifted model and limits, returns inferred FAM groups. The in-process
// DefaultEngine is the only implementation in this package.
type Engine interface {
	InferGroups(model *Model, limits Limits) ([]Group, error)
}

// DefaultEngine is a self-contained, in-process FAM-group inference
// engine. Rather than the full weighted-rule propagation of a
// general-purpose FAM synthesizer, it generates one candidate group per
// (predicate, argument position): that position becomes the group's single
// counted variable, every other argument position becomes a free variable
// held fixed across the group's members. This reproduces the common
// "object holds exactly one value in this argument slot" invariant shape
// without requiring a full constraint-propagation solver.
type DefaultEngine struct{}

// InferGroups implements Engine.
func (DefaultEngine) InferGroups(model *Model, limits Limits) ([]Group, error) {
	var candidates []Group
	for pid, pred := range model.Predicates {
		if domain.PredicateID(pid) == model.GoalPredicate {
			continue
		}
		for pos := range pred.ArgSorts {
			if len(candidates) >= limits.MaxCandidates {
				break
			}
			candidates = append(candidates, candidateForPosition(domain.PredicateID(pid), pred, pos))
		}
	}

	pruned := SubsumptionPrune(candidates)
	if len(pruned) > limits.MaxGroups {
		pruned = pruned[:limits.MaxGroups]
	}
	return pruned, nil
}

func candidateForPosition(pid domain.PredicateID, pred domain.Predicate, countedPos int) Group {
	var free []domain.SortID
	args := make([]GroupArg, len(pred.ArgSorts))
	freeIdx := 0
	for i, sort := range pred.ArgSorts {
		if i == countedPos {
			args[i] = GroupArg{Kind: ArgCounted, Index: 0}
			continue
		}
		args[i] = GroupArg{Kind: ArgFree, Index: freeIdx}
		free = append(free, sort)
		freeIdx++
	}
	return Group{
		Name:            pred.Name,
		FreeVarSorts:    free,
		CountedVarSorts: []domain.SortID{pred.ArgSorts[countedPos]},
		Literals:        []GroupLiteral{{Predicate: pid, Args: args}},
	}
}

// SubsumptionPrune discards any group g1 contained in another group g2:
// every literal of g1 has a matching literal in g2 under some injection
// from g1's free/counted variables to g2's that respects counted-vs-free
// status and the argument sorts involved.
func SubsumptionPrune(groups []Group) []Group {
	discarded := make([]bool, len(groups))
	for i := range groups {
		if discarded[i] {
			continue
		}
		for j := range groups {
			if i == j || discarded[j] {
				continue
			}
			if subsumedBy(groups[i], groups[j]) && !subsumedBy(groups[j], groups[i]) {
				discarded[i] = true
				break
			}
			// Exact duplicates: keep the lower index, drop the higher.
			if subsumedBy(groups[i], groups[j]) && subsumedBy(groups[j], groups[i]) && j < i {
				discarded[i] = true
				break
			}
		}
	}
	out := make([]Group, 0, len(groups))
	for i, g := range groups {
		if !discarded[i] {
			out = append(out, g)
		}
	}
	return out
}

// subsumedBy reports whether every literal of g1 has a matching literal in
// g2 (same predicate, same per-argument kind, same sort at each
// free/counted position). This is a structural approximation of full
// injection search: since DefaultEngine only ever emits single-literal
// groups, exact literal correspondence is sufficient in practice.
func subsumedBy(g1, g2 Group) bool {
	if len(g1.CountedVarSorts) > len(g2.CountedVarSorts) {
		return false
	}
	for _, l1 := range g1.Literals {
		found := false
		for _, l2 := range g2.Literals {
			if literalCompatible(l1, l2) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func literalCompatible(l1, l2 GroupLiteral) bool {
	if l1.Predicate != l2.Predicate || len(l1.Args) != len(l2.Args) {
		return false
	}
	for i := range l1.Args {
		if l1.Args[i].Kind != l2.Args[i].Kind {
			return false
		}
		if l1.Args[i].Kind == ArgConstant && l1.Args[i].Constant != l2.Args[i].Constant {
			return false
		}
	}
	return true
}
