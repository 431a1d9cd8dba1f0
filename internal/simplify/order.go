// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import "github.com/AleutianAI/htnground/internal/domain"

// TopologicalOrder implements §4.10 pass 1: a topological ordering of a
// method's subtask indices consistent with its Orderings. Every later pass
// that rewrites a method's subtask list (compaction, regularization,
// unification) walks subtasks in this order rather than declaration order.
func TopologicalOrder(m *domain.Method) []int {
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
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	return order
}

// ReorderSubtasks rewrites m's Subtasks into topological order and rebuilds
// Orderings (and ParamMapping references stay valid since they address
// method-scoped variables, not subtask indices) so a totally ordered method
// reads as a plain chain 0,1,2,....
func ReorderSubtasks(m *domain.Method) {
	order := TopologicalOrder(m)
	if !m.IsTotallyOrdered() {
		return
	}
	newSubtasks := make([]domain.Subtask, len(order))
	for newIdx, oldIdx := range order {
		newSubtasks[newIdx] = m.Subtasks[oldIdx]
	}
	m.Subtasks = newSubtasks
	if n := len(newSubtasks); n > 1 {
		orderings := make([][2]int, 0, n-1)
		for i := 0; i < n-1; i++ {
			orderings = append(orderings, [2]int{i, i + 1})
		}
		m.Orderings = orderings
	} else {
		m.Orderings = nil
	}
}
