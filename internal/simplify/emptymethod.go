// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"sort"
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
)

const methodPreconditionPrefix = "__method_precondition_"

// PruneEmptyMethodPreconditions implements §4.10 pass 4: a primitive whose
// name begins with "__method_precondition_" and whose precondition and
// effect lists are now empty (typically after pass 3 emptied them) carries
// no remaining constraint, so every method containing it as a subtask has
// that subtask spliced out, with Orderings renumbered to match.
func PruneEmptyMethodPreconditions(dom *domain.Domain) {
	isEmptyGuard := make(map[domain.TaskID]bool)
	for i := 0; i < dom.NumPrimitives; i++ {
		t := dom.Tasks[i]
		if t.Primitive == nil || !strings.HasPrefix(t.Name, methodPreconditionPrefix) {
			continue
		}
		if len(t.Primitive.Preconditions) == 0 && len(t.Primitive.AddEffects) == 0 && len(t.Primitive.DelEffects) == 0 {
			isEmptyGuard[domain.TaskID(i)] = true
		}
	}
	if len(isEmptyGuard) == 0 {
		return
	}
	for i := range dom.Methods {
		removeEmptyGuardSubtasks(&dom.Methods[i], isEmptyGuard)
	}
}

func removeEmptyGuardSubtasks(m *domain.Method, isEmptyGuard map[domain.TaskID]bool) {
	n := len(m.Subtasks)
	keep := make([]bool, n)
	remap := make([]int, n)
	newIdx := 0
	for i, st := range m.Subtasks {
		if isEmptyGuard[st.Task] {
			remap[i] = -1
			continue
		}
		keep[i] = true
		remap[i] = newIdx
		newIdx++
	}
	if newIdx == n {
		return
	}

	succ := make([][]int, n)
	for _, o := range m.Orderings {
		succ[o[0]] = append(succ[o[0]], o[1])
	}

	// A removed subtask's ordering constraints must survive transitively:
	// every kept predecessor gets a direct edge to every kept successor
	// reachable through a run of removed subtasks.
	orderSet := make(map[[2]int]bool)
	var reachKept func(start int, visited map[int]bool) []int
	reachKept = func(start int, visited map[int]bool) []int {
		var out []int
		for _, next := range succ[start] {
			if visited[next] {
				continue
			}
			visited[next] = true
			if keep[next] {
				out = append(out, next)
				continue
			}
			out = append(out, reachKept(next, visited)...)
		}
		return out
	}
	for i := 0; i < n; i++ {
		if !keep[i] {
			continue
		}
		for _, to := range reachKept(i, map[int]bool{i: true}) {
			orderSet[[2]int{remap[i], remap[to]}] = true
		}
	}

	newSubtasks := make([]domain.Subtask, 0, newIdx)
	for i, st := range m.Subtasks {
		if keep[i] {
			newSubtasks = append(newSubtasks, st)
		}
	}
	var newOrderings [][2]int
	for o := range orderSet {
		newOrderings = append(newOrderings, o)
	}
	sort.Slice(newOrderings, func(i, j int) bool {
		if newOrderings[i][0] != newOrderings[j][0] {
			return newOrderings[i][0] < newOrderings[j][0]
		}
		return newOrderings[i][1] < newOrderings[j][1]
	})
	m.Subtasks = newSubtasks
	m.Orderings = newOrderings
}
