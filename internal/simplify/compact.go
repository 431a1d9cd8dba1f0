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
	"github.com/AleutianAI/htnground/internal/reachability"
)

// CompactConsecutivePrimitives implements §4.10 pass 6: in every surviving
// grounded method, each maximal run of consecutive primitive subtasks is
// replaced by a single synthesized "%"-prefixed primitive whose
// precondition is the run's regression and whose add/del effects are its
// net effect, provided the run is internally consistent: no subtask's
// precondition may have been killed by an earlier subtask in the same run
// without being reestablished before it is needed. A run that fails this
// check means the method can never execute in its declared order, so the
// whole method is pruned instead of just the run.
func CompactConsecutivePrimitives(st *reachability.State) {
	var newTasks []domain.Task
	nextTaskID := func() domain.TaskID {
		return domain.TaskID(len(st.Dom.Tasks) + len(newTasks))
	}

	for _, m := range st.Methods {
		if st.PrunedMethod[m.GroundedNo] {
			continue
		}
		seq := liveSubtaskSequence(st, m)

		newSubtasks := make([]domain.GroundTaskID, 0, len(seq))
		newIsPrim := make([]bool, 0, len(seq))
		pruneMethod := false

		i := 0
		for i < len(seq) {
			idx := seq[i]
			if !m.SubtaskIsPrimitive[idx] {
				newSubtasks = append(newSubtasks, m.Subtasks[idx])
				newIsPrim = append(newIsPrim, false)
				i++
				continue
			}

			j := i
			var prims []*domain.GroundedPrimitive
			for j < len(seq) && m.SubtaskIsPrimitive[seq[j]] {
				prims = append(prims, st.Primitives[m.Subtasks[seq[j]]])
				j++
			}

			if len(prims) == 1 {
				newSubtasks = append(newSubtasks, m.Subtasks[seq[i]])
				newIsPrim = append(newIsPrim, true)
				i = j
				continue
			}

			pre, add, del, ok := regressRun(st, prims)
			if !ok {
				pruneMethod = true
				break
			}

			taskID := nextTaskID()
			newTasks = append(newTasks, domain.Task{
				Name:      compactedName(st.Dom, prims),
				Primitive: &domain.PrimitiveTask{},
			})
			gp := &domain.GroundedPrimitive{
				Task:          taskID,
				GroundedNo:    domain.GroundTaskID(len(st.Primitives)),
				Preconditions: pre,
				AddEffects:    add,
				DelEffects:    del,
			}
			st.Primitives = append(st.Primitives, gp)
			st.PrunedPrimitive = append(st.PrunedPrimitive, false)

			newSubtasks = append(newSubtasks, gp.GroundedNo)
			newIsPrim = append(newIsPrim, true)
			i = j
		}

		if pruneMethod {
			st.PrunedMethod[m.GroundedNo] = true
			continue
		}
		m.Subtasks = newSubtasks
		m.SubtaskIsPrimitive = newIsPrim
		m.Order = identityOrderInts(len(newSubtasks))
	}

	if len(newTasks) > 0 {
		resettleGroundedPrimitiveTasks(st, newTasks)
	}
}

// liveSubtaskSequence returns m's subtask indices in their sequential
// order (m.Order if it names every subtask, index order otherwise),
// dropping any subtask that refers to an already-pruned primitive.
func liveSubtaskSequence(st *reachability.State, m *domain.GroundedMethod) []int {
	order := m.Order
	if len(order) != len(m.Subtasks) {
		order = identityOrderInts(len(m.Subtasks))
	}
	seq := make([]int, 0, len(order))
	for _, idx := range order {
		if m.SubtaskIsPrimitive[idx] && st.PrunedPrimitive[m.Subtasks[idx]] {
			continue
		}
		seq = append(seq, idx)
	}
	return seq
}

// regressRun walks prims in sequence, accumulating the net precondition,
// add, and delete sets of treating the whole run as one action. ok is
// false when some later primitive's precondition was deleted by an
// earlier primitive in the run and never reestablished: the run cannot be
// executed in this order from any state.
func regressRun(st *reachability.State, prims []*domain.GroundedPrimitive) (pre, add, del []domain.FactID, ok bool) {
	netAdd := make(map[domain.FactID]bool)
	netDel := make(map[domain.FactID]bool)
	preSeen := make(map[domain.FactID]bool)

	for _, p := range prims {
		for _, f := range p.Preconditions {
			if st.Facts.IsPruned(f) || netAdd[f] {
				continue
			}
			if netDel[f] {
				return nil, nil, nil, false
			}
			if !preSeen[f] {
				preSeen[f] = true
				pre = append(pre, f)
			}
		}
		for _, f := range p.DelEffects {
			if st.Facts.IsPruned(f) {
				continue
			}
			netDel[f] = true
			delete(netAdd, f)
		}
		for _, f := range p.AddEffects {
			if st.Facts.IsPruned(f) {
				continue
			}
			netAdd[f] = true
			delete(netDel, f)
		}
	}

	sort.Slice(pre, func(i, j int) bool { return pre[i] < pre[j] })
	return pre, sortedFactKeys(netAdd), sortedFactKeys(netDel), true
}

func sortedFactKeys(m map[domain.FactID]bool) []domain.FactID {
	out := make([]domain.FactID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func compactedName(dom *domain.Domain, prims []*domain.GroundedPrimitive) string {
	names := make([]string, len(prims))
	for i, p := range prims {
		names[i] = dom.Tasks[p.Task].Name
	}
	return "%" + strings.Join(names, "_")
}

func identityOrderInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// resettleGroundedPrimitiveTasks appends newTasks to st.Dom.Tasks and
// moves them into the contiguous primitive id range (mirroring pass 9's
// resettleTaskOrder), remapping every TaskID reference that shifts as a
// result: lifted method subtask/decomposition references, and the Task
// field of every still-live grounded primitive and abstract.
func resettleGroundedPrimitiveTasks(st *reachability.State, newTasks []domain.Task) {
	dom := st.Dom
	oldLen := len(dom.Tasks)
	oldNumPrimitives := dom.NumPrimitives
	dom.Tasks = append(dom.Tasks, newTasks...)

	reordered := make([]domain.Task, 0, len(dom.Tasks))
	remap := make(map[domain.TaskID]domain.TaskID, len(dom.Tasks))

	for i := 0; i < oldNumPrimitives; i++ {
		remap[domain.TaskID(i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, dom.Tasks[i])
	}
	for i := range newTasks {
		remap[domain.TaskID(oldLen+i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, dom.Tasks[oldLen+i])
	}
	numPrimitives := len(reordered)
	for i := oldNumPrimitives; i < oldLen; i++ {
		remap[domain.TaskID(i)] = domain.TaskID(len(reordered))
		reordered = append(reordered, dom.Tasks[i])
	}

	dom.Tasks = reordered
	dom.NumPrimitives = numPrimitives
	remapTaskReferences(dom, remap)

	for _, p := range st.Primitives {
		if newID, ok := remap[p.Task]; ok {
			p.Task = newID
		}
	}
	for _, a := range st.Abstracts {
		if newID, ok := remap[a.Task]; ok {
			a.Task = newID
		}
	}
}
