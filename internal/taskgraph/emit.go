// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package taskgraph

import "github.com/AleutianAI/htnground/internal/domain"

// recordMethodGrounding finalizes a fully-bound method grounding: resolves
// (or creates) the grounded abstract task instance it decomposes, then
// records the grounded method itself and attaches it to that abstract
// instance's Methods list (§4.4's "Completion" step).
func (g *Graph) recordMethodGrounding(abstractID domain.TaskID, mid domain.MethodID, m *domain.Method, state boundState) {
	decomposedArgs := make([]domain.ConstantID, len(m.ParamMapping))
	for i, v := range m.ParamMapping {
		if int(v) >= 0 && int(v) < len(state.asn) {
			decomposedArgs[i] = state.asn[v]
		}
	}

	abstractGroundID, isNewAbstract := g.internAbstract(abstractID, decomposedArgs)

	methodKey := methodInstanceKey(mid, state.asn)
	if _, ok := g.seenMethod[methodKey]; ok {
		return
	}
	methodGroundID := domain.MethodGroundID(len(g.methods))
	g.seenMethod[methodKey] = methodGroundID

	args := make([]domain.ConstantID, len(state.asn))
	copy(args, state.asn)

	gm := &domain.GroundedMethod{
		Method:             mid,
		Args:               args,
		GroundedNo:         methodGroundID,
		DecomposedTask:     abstractGroundID,
		Subtasks:           append([]domain.GroundTaskID(nil), state.subtaskIDs...),
		SubtaskIsPrimitive: append([]bool(nil), state.subtaskPrim...),
		Order:              topologicalOrder(m),
	}
	g.methods = append(g.methods, gm)

	abs := g.abstracts[g.abstractIndex[abstractGroundID]]
	abs.Methods = append(abs.Methods, methodGroundID)

	if isNewAbstract {
		g.enqueue(groundItem{task: abstractID, args: decomposedArgs, groundTask: abstractGroundID, isPrimitive: false})
	}
}

// internAbstract returns the GroundTaskID for (task, args), creating a new
// GroundedAbstract if this is the first time this argument vector has been
// seen for task.
func (g *Graph) internAbstract(task domain.TaskID, args []domain.ConstantID) (domain.GroundTaskID, bool) {
	key := itemKey(task, args)
	if id, ok := g.seenAbstract[key]; ok {
		return id, false
	}
	id := domain.GroundTaskID(len(g.abstracts))
	g.seenAbstract[key] = id
	ga := &domain.GroundedAbstract{Task: task, Args: args, GroundedNo: id}
	g.abstracts = append(g.abstracts, ga)
	if g.abstractIndex == nil {
		g.abstractIndex = make(map[domain.GroundTaskID]int)
	}
	g.abstractIndex[id] = len(g.abstracts) - 1
	return id, true
}

// topologicalOrder returns a topological ordering of m's subtask indices
// consistent with m.Orderings (§4.10 pass 1, computed eagerly here since
// every downstream consumer of a grounded method wants a canonical order).
func topologicalOrder(m *domain.Method) []int {
	n := len(m.Subtasks)
	indeg := make([]int, n)
	adj := make([][]int, n)
	for _, o := range m.Orderings {
		if o[0] < 0 || o[0] >= n || o[1] < 0 || o[1] >= n {
			continue
		}
		adj[o[0]] = append(adj[o[0]], o[1])
		indeg[o[1]]++
	}
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, j := range adj[i] {
			indeg[j]--
			if indeg[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(order) != n {
		// A cycle in Orderings would be a malformed method; fall back to
		// index order rather than dropping subtasks.
		order = order[:0]
		for i := 0; i < n; i++ {
			order = append(order, i)
		}
	}
	return order
}
