// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package simplify implements §4.10's nine ordered simplification passes.
// Pass 9 (conditional-effect expansion), empty-method precondition pruning,
// one-method inlining, two-subtask regularization and subtask ordering
// operate on the lifted *domain.Domain; the remaining passes (effect
// priority, useless facts, compaction, duplicate unification) operate on
// the grounded representation produced by the reachability fixpoint.
package simplify

import (
	"fmt"

	"github.com/AleutianAI/htnground/internal/domain"
)

// CompileConditionalEffects implements §4.10 pass 9: each conditional
// effect of a primitive is compiled into an artificial primitive whose
// precondition is the effect's condition plus a fresh guard atom, while the
// original primitive receives an unconditional add of that guard atom. The
// artificial primitive then participates in grounding like any other
// primitive. Returns a new Domain; the input is left untouched.
func CompileConditionalEffects(dom *domain.Domain) *domain.Domain {
	out := *dom
	out.Tasks = append([]domain.Task(nil), dom.Tasks...)
	out.Predicates = append([]domain.Predicate(nil), dom.Predicates...)

	for i := 0; i < dom.NumPrimitives; i++ {
		prim := out.Tasks[i].Primitive
		if prim == nil || (len(prim.CondAddEffects) == 0 && len(prim.CondDelEffects) == 0) {
			continue
		}
		newPrim := *prim
		newPrim.AddEffects = append([]domain.Atom(nil), prim.AddEffects...)
		newPrim.CondAddEffects = nil
		newPrim.CondDelEffects = nil

		ceIndex := 0
		compileOne := func(ce domain.ConditionalEffect, isAdd bool) {
			guardPred := domain.PredicateID(len(out.Predicates))
			out.Predicates = append(out.Predicates, domain.Predicate{
				Name:                      fmt.Sprintf("__ce_guard_%s_%d", out.Tasks[i].Name, ceIndex),
				ArgSorts:                  append([]domain.SortID(nil), prim.ParamSorts...),
				GuardForConditionalEffect: true,
			})
			guardAtom := domain.Atom{Predicate: guardPred, Args: identityArgs(len(prim.ParamSorts))}

			compiled := domain.PrimitiveTask{
				Name:                        fmt.Sprintf("%s_ce_%d", out.Tasks[i].Name, ceIndex),
				Cost:                        prim.Cost,
				ParamSorts:                  append([]domain.SortID(nil), prim.ParamSorts...),
				Preconditions:               append(append([]domain.Atom(nil), ce.Condition...), guardAtom),
				Constraints:                 append([]domain.VariableConstraint(nil), prim.Constraints...),
				IsCompiledConditionalEffect: true,
				NumberOfOriginalVariables:   len(prim.ParamSorts),
			}
			if isAdd {
				compiled.AddEffects = []domain.Atom{ce.Effect}
			} else {
				compiled.DelEffects = []domain.Atom{ce.Effect}
			}
			newPrim.AddEffects = append(newPrim.AddEffects, guardAtom)

			out.Tasks = append(out.Tasks, domain.Task{
				Name:       compiled.Name,
				ParamSorts: compiled.ParamSorts,
				Primitive:  &compiled,
			})
			ceIndex++
		}
		for _, ce := range prim.CondAddEffects {
			compileOne(ce, true)
		}
		for _, ce := range prim.CondDelEffects {
			compileOne(ce, false)
		}
		out.Tasks[i].Primitive = &newPrim
	}

	return resettleTaskOrder(&out, dom)
}

func identityArgs(n int) []domain.VariableID {
	out := make([]domain.VariableID, n)
	for i := range out {
		out[i] = domain.VariableID(i)
	}
	return out
}

// resettleTaskOrder moves newly compiled primitives (appended past the
// original abstracts) back into the primitive id range, and remaps every
// TaskID that shifts as a result. No-op when nothing was compiled.
func resettleTaskOrder(out *domain.Domain, original *domain.Domain) *domain.Domain {
	oldLen := len(original.Tasks)
	compiled := out.Tasks[oldLen:]
	if len(compiled) == 0 {
		out.NumPrimitives = original.NumPrimitives
		return out
	}

	reordered := make([]domain.Task, 0, len(out.Tasks))
	remap := make(map[domain.TaskID]domain.TaskID, len(out.Tasks))

	for i := 0; i < original.NumPrimitives; i++ {
		remap[domain.TaskID(i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, out.Tasks[i])
	}
	for i, t := range compiled {
		remap[domain.TaskID(oldLen+i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, t)
	}
	numPrimitives := len(reordered)
	for i := original.NumPrimitives; i < oldLen; i++ {
		remap[domain.TaskID(i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, out.Tasks[i])
	}

	out.Tasks = reordered
	out.NumPrimitives = numPrimitives
	remapTaskReferences(out, remap)
	return out
}

func remapTaskReferences(out *domain.Domain, remap map[domain.TaskID]domain.TaskID) {
	for i := range out.Methods {
		m := &out.Methods[i]
		if newID, ok := remap[m.DecomposedTask]; ok {
			m.DecomposedTask = newID
		}
		for j := range m.Subtasks {
			if newID, ok := remap[m.Subtasks[j].Task]; ok {
				m.Subtasks[j].Task = newID
			}
		}
	}
}
