// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planninggraph

import (
	"strconv"
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
)

// emit finishes grounding prim once every precondition has been bound,
// enumerating any still-unbound variables over their declared sorts before
// recording the grounding.
func (g *Graph) emit(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment) {
	free := make([]domain.VariableID, 0)
	for v, c := range asn {
		if c < 0 {
			free = append(free, domain.VariableID(v))
		}
	}
	g.enumerateFree(taskID, prim, asn, free, 0)
}

func (g *Graph) enumerateFree(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment, free []domain.VariableID, idx int) {
	if idx == len(free) {
		g.recordGrounding(taskID, prim, asn)
		return
	}
	v := free[idx]
	var sort domain.SortID
	if int(v) < len(prim.ParamSorts) {
		sort = prim.ParamSorts[v]
	}
	if int(sort) < 0 || int(sort) >= len(g.dom.Sorts) {
		return
	}
	for _, c := range g.dom.Sorts[sort].Members {
		next := asn.clone()
		next[v] = c
		if !constraintsOK(next, prim.Constraints) {
			continue
		}
		g.enumerateFree(taskID, prim, next, free, idx+1)
	}
}

func primitiveKey(taskID domain.TaskID, args []domain.ConstantID) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(taskID)))
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(int(a)))
	}
	return b.String()
}

func (g *Graph) recordGrounding(taskID domain.TaskID, prim *domain.PrimitiveTask, asn assignment) {
	args := make([]domain.ConstantID, len(asn))
	copy(args, asn)
	key := primitiveKey(taskID, args)
	if _, ok := g.seenPrimitive[key]; ok {
		return
	}

	groundedNo := domain.GroundTaskID(len(g.primitives))
	g.seenPrimitive[key] = groundedNo

	preIDs := make([]domain.FactID, 0, len(prim.Preconditions))
	for _, pre := range prim.Preconditions {
		preIDs = append(preIDs, g.internAndEnqueue(groundAtom(pre, args)))
	}
	addIDs := make([]domain.FactID, 0, len(prim.AddEffects))
	for _, eff := range prim.AddEffects {
		addIDs = append(addIDs, g.internAndEnqueue(groundAtom(eff, args)))
	}

	delFacts := make([]domain.Fact, 0, len(prim.DelEffects))
	for _, eff := range prim.DelEffects {
		delFacts = append(delFacts, groundAtom(eff, args))
	}

	gp := &domain.GroundedPrimitive{
		Task:          taskID,
		Args:          args,
		GroundedNo:    groundedNo,
		Preconditions: preIDs,
		AddEffects:    addIDs,
	}
	g.primitives = append(g.primitives, gp)
	g.pendingDelEffects = append(g.pendingDelEffects, delFacts)
}

func groundAtom(a domain.Atom, args []domain.ConstantID) domain.Fact {
	factArgs := make([]domain.ConstantID, len(a.Args))
	for i, v := range a.Args {
		if int(v) < len(args) {
			factArgs[i] = args[v]
		}
	}
	return domain.Fact{Predicate: a.Predicate, Args: factArgs}
}

// ResolveDeleteEffects looks up every primitive's delete-effect facts
// against the final fact table without interning new ones: a delete effect
// naming a fact that was never produced by any action simply never appears
// in that primitive's DelEffects, per §4.3 ("delete effects ... are
// resolved at the end by lookup into the final fact set").
func (g *Graph) ResolveDeleteEffects() {
	for i, gp := range g.primitives {
		pending := g.pendingDelEffects[i]
		ids := make([]domain.FactID, 0, len(pending))
		for _, f := range pending {
			if id, ok := g.facts.Lookup(f); ok {
				ids = append(ids, id)
			}
		}
		gp.DelEffects = ids
	}
}
