// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"fmt"

	"github.com/AleutianAI/htnground/internal/domain"
)

// RegularizeToTwoSubtasks implements §4.10 pass 7: any totally ordered
// method with 3 or more subtasks is split into a chain of fresh abstract
// intermediates, each decomposed by a single two-subtask method, so that no
// surviving method has more than two subtasks; the leaf method of the chain
// retains the original last two subtasks. A synthetic intermediate's scope
// carries every variable of the method it was split from (rather than a
// minimized subset), so subtask argument vectors need no renumbering across
// the chain; this trades a few unused parameters for a simple, obviously
// correct split.
func RegularizeToTwoSubtasks(dom *domain.Domain) {
	i := 0
	for i < len(dom.Methods) {
		m := &dom.Methods[i]
		if len(m.Subtasks) < 3 || !m.IsTotallyOrdered() {
			i++
			continue
		}
		order := TopologicalOrder(m)
		ordered := make([]domain.Subtask, len(order))
		for newIdx, oldIdx := range order {
			ordered[newIdx] = m.Subtasks[oldIdx]
		}
		splitMethodChain(dom, i, ordered)
		i++
	}
}

// splitMethodChain rewrites dom.Methods[idx] (and appends every chain
// method/abstract it needs) so that each method in the chain holds at most
// two subtasks: at every level with more than two subtasks remaining, the
// first is kept in place and the rest are pushed into a fresh abstract
// invocation; once exactly two remain, they become that level's leaf
// subtasks directly, with no further abstract introduced.
func splitMethodChain(dom *domain.Domain, idx int, ordered []domain.Subtask) {
	chainName := dom.Methods[idx].Name
	varSorts := append([]domain.SortID(nil), dom.Methods[idx].VarSorts...)
	identity := make([]domain.VariableID, len(varSorts))
	for v := range identity {
		identity[v] = domain.VariableID(v)
	}

	curMethodIdx := idx
	cur := ordered
	for len(cur) > 2 {
		head := cur[0]
		rest := cur[1:]

		abstractTaskID := domain.TaskID(len(dom.Tasks))
		abstractName := fmt.Sprintf("__regularize_%s_%d", chainName, abstractTaskID)
		dom.Tasks = append(dom.Tasks, domain.Task{
			Name:       abstractName,
			ParamSorts: varSorts,
			Abstract:   &domain.AbstractTask{Name: abstractName, ParamSorts: varSorts},
		})
		nextMethodID := domain.MethodID(len(dom.Methods))
		dom.Tasks[abstractTaskID].Abstract.Methods = []domain.MethodID{nextMethodID}

		m := &dom.Methods[curMethodIdx]
		m.Subtasks = []domain.Subtask{head, {Task: abstractTaskID, Args: identity}}
		m.Orderings = [][2]int{{0, 1}}

		dom.Methods = append(dom.Methods, domain.Method{
			Name:           abstractName + "_m",
			DecomposedTask: abstractTaskID,
			VarSorts:       varSorts,
			ParamMapping:   identity,
		})
		curMethodIdx = int(nextMethodID)
		cur = rest
	}

	leaf := &dom.Methods[curMethodIdx]
	leaf.Subtasks = cur
	if len(cur) > 1 {
		leaf.Orderings = [][2]int{{0, 1}}
	} else {
		leaf.Orderings = nil
	}
}
