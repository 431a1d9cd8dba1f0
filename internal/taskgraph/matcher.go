// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package taskgraph

import "github.com/AleutianAI/htnground/internal/domain"

// methodAssignment maps a method's variable index to a bound constant, or
// -1 if unbound.
type methodAssignment []domain.ConstantID

func newMethodAssignment(n int) methodAssignment {
	a := make(methodAssignment, n)
	for i := range a {
		a[i] = -1
	}
	return a
}

func (a methodAssignment) clone() methodAssignment {
	out := make(methodAssignment, len(a))
	copy(out, a)
	return out
}

func bindSubtaskArgs(a methodAssignment, subtaskArgs []domain.VariableID, itemArgs []domain.ConstantID) bool {
	if len(subtaskArgs) != len(itemArgs) {
		return false
	}
	for i, v := range subtaskArgs {
		c := itemArgs[i]
		if int(v) < 0 || int(v) >= len(a) {
			return false
		}
		if a[v] >= 0 {
			if a[v] != c {
				return false
			}
			continue
		}
		a[v] = c
	}
	return true
}

func methodConstraintsOK(a methodAssignment, constraints []domain.VariableConstraint) bool {
	for _, c := range constraints {
		if int(c.Var1) >= len(a) || int(c.Var2) >= len(a) {
			continue
		}
		v1, v2 := a[c.Var1], a[c.Var2]
		if v1 < 0 || v2 < 0 {
			continue
		}
		if !c.Satisfied(v1, v2) {
			return false
		}
	}
	return true
}

// boundState tracks which ground item (primitive or abstract instance) has
// been matched against each of the method's subtask positions, alongside
// the method's own variable assignment.
type boundState struct {
	asn         methodAssignment
	subtaskIDs  []domain.GroundTaskID
	subtaskPrim []bool
}

func (b boundState) clone() boundState {
	out := boundState{
		asn:         b.asn.clone(),
		subtaskIDs:  make([]domain.GroundTaskID, len(b.subtaskIDs)),
		subtaskPrim: make([]bool, len(b.subtaskPrim)),
	}
	copy(out.subtaskIDs, b.subtaskIDs)
	copy(out.subtaskPrim, b.subtaskPrim)
	return out
}

// matchSubtask recursively binds m's subtasks starting at pos, skipping
// skipIndex (already matched by the triggering ground item), emitting a
// grounded method and (when new) a grounded abstract task instance once
// every subtask is matched.
func (g *Graph) matchSubtask(abstractID domain.TaskID, mid domain.MethodID, m *domain.Method, state boundState, pos, skipIndex int) {
	if pos == skipIndex {
		g.matchSubtask(abstractID, mid, m, state, pos+1, skipIndex)
		return
	}
	if pos >= len(m.Subtasks) {
		g.finishMethod(abstractID, mid, m, state)
		return
	}

	st := m.Subtasks[pos]
	for _, cand := range g.byTask[st.Task] {
		if pos < skipIndex && cand.key() == g.triggerKey {
			continue
		}
		next := state.clone()
		if !bindSubtaskArgs(next.asn, st.Args, cand.args) {
			continue
		}
		if !methodConstraintsOK(next.asn, m.Constraints) {
			continue
		}
		next.subtaskIDs[pos] = cand.groundTask
		next.subtaskPrim[pos] = cand.isPrimitive
		g.matchSubtask(abstractID, mid, m, next, pos+1, skipIndex)
	}
}

// finishMethod enumerates any method variable still unbound after every
// subtask is matched (variables appearing only in the decomposed task's
// parameter mapping, never inside a subtask), then records the grounding.
func (g *Graph) finishMethod(abstractID domain.TaskID, mid domain.MethodID, m *domain.Method, state boundState) {
	free := make([]domain.VariableID, 0)
	for v, c := range state.asn {
		if c < 0 {
			free = append(free, domain.VariableID(v))
		}
	}
	g.enumerateFreeMethodVars(abstractID, mid, m, state, free, 0)
}

func (g *Graph) enumerateFreeMethodVars(abstractID domain.TaskID, mid domain.MethodID, m *domain.Method, state boundState, free []domain.VariableID, idx int) {
	if idx == len(free) {
		g.recordMethodGrounding(abstractID, mid, m, state)
		return
	}
	v := free[idx]
	var sort domain.SortID
	if int(v) < len(m.VarSorts) {
		sort = m.VarSorts[v]
	}
	if int(sort) < 0 || int(sort) >= len(g.dom.Sorts) {
		return
	}
	for _, c := range g.dom.Sorts[sort].Members {
		next := state.clone()
		next.asn[v] = c
		if !methodConstraintsOK(next.asn, m.Constraints) {
			continue
		}
		g.enumerateFreeMethodVars(abstractID, mid, m, next, free, idx+1)
	}
}
