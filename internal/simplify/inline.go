// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
)

// InlineOneMethodAbstracts implements §4.10 pass 5: iteratively, every
// abstract task other than initialAbstract that has exactly one
// decomposition method has that method's subtasks and orderings spliced
// into every parent method in its place. keepTwoRegularization suppresses a
// splice that would grow a parent method of exactly one subtask past two
// subtasks, leaving room for pass 7 to regularize it on its own terms
// instead. Runs to a fixpoint: inlining can make a formerly multi-method
// abstract task's last remaining caller disappear, or can turn another
// abstract task into a one-method candidate by removing a sibling method.
func InlineOneMethodAbstracts(dom *domain.Domain, initialAbstract domain.TaskID, keepTwoRegularization bool) {
	for {
		target, methodID, ok := findOneMethodAbstract(dom, initialAbstract)
		if !ok {
			return
		}
		inlined := false
		for i := range dom.Methods {
			if i == int(methodID) {
				continue
			}
			if spliceAbstractIntoParent(dom, &dom.Methods[i], target, methodID, keepTwoRegularization) {
				inlined = true
			}
		}
		if !inlined {
			// Nothing references target any more (e.g. it was the initial
			// task's own method, already excluded, or a dead abstract a
			// pruning pass missed); stop rather than loop forever.
			return
		}
	}
}

// findOneMethodAbstract returns the task id and sole method id of some
// abstract task (other than initialAbstract) that currently decomposes via
// exactly one method and is still referenced by at least one method.
func findOneMethodAbstract(dom *domain.Domain, initialAbstract domain.TaskID) (domain.TaskID, domain.MethodID, bool) {
	referenced := make(map[domain.TaskID]bool)
	for _, m := range dom.Methods {
		for _, st := range m.Subtasks {
			referenced[st.Task] = true
		}
	}
	for i := dom.NumPrimitives; i < len(dom.Tasks); i++ {
		tid := domain.TaskID(i)
		if tid == initialAbstract {
			continue
		}
		a := dom.Tasks[i].Abstract
		if a == nil || len(a.Methods) != 1 || !referenced[tid] {
			continue
		}
		return tid, a.Methods[0], true
	}
	return 0, 0, false
}

func spliceAbstractIntoParent(dom *domain.Domain, p *domain.Method, target domain.TaskID, methodID domain.MethodID, keepTwoRegularization bool) bool {
	pos := -1
	for i, st := range p.Subtasks {
		if st.Task == target {
			pos = i
			break
		}
	}
	if pos == -1 {
		return false
	}
	inner := &dom.Methods[methodID]
	if keepTwoRegularization && len(p.Subtasks) == 1 && len(inner.Subtasks) > 2 {
		return false
	}

	invocArgs := p.Subtasks[pos].Args
	varMap := make(map[domain.VariableID]domain.VariableID, len(inner.VarSorts))
	for v := 0; v < len(inner.VarSorts); v++ {
		if paramIdx := indexOf(inner.ParamMapping, domain.VariableID(v)); paramIdx != -1 {
			varMap[domain.VariableID(v)] = invocArgs[paramIdx]
			continue
		}
		newVar := domain.VariableID(len(p.VarSorts))
		p.VarSorts = append(p.VarSorts, inner.VarSorts[v])
		varMap[domain.VariableID(v)] = newVar
	}

	base := len(p.Subtasks)
	newSubtasks := make([]domain.Subtask, 0, base-1+len(inner.Subtasks))
	newSubtasks = append(newSubtasks, p.Subtasks[:pos]...)
	idmapEntries := make([]string, 0, len(varMap))
	keys := make([]int, 0, len(varMap))
	for k := range varMap {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	for _, k := range keys {
		idmapEntries = append(idmapEntries, fmt.Sprintf("%d=%d", k, varMap[domain.VariableID(k)]))
	}
	for _, st := range inner.Subtasks {
		newSubtasks = append(newSubtasks, domain.Subtask{Task: st.Task, Args: remapArgs(st.Args, varMap)})
	}
	newSubtasks = append(newSubtasks, p.Subtasks[pos+1:]...)

	roots, leaves := rootsAndLeaves(inner)
	var newOrderings [][2]int
	for _, o := range p.Orderings {
		a, b := remapOrderIndex(o[0], pos, len(inner.Subtasks)), remapOrderIndex(o[1], pos, len(inner.Subtasks))
		if o[0] == pos {
			// callA precedes b: every exit point (leaf) of A must precede b.
			for _, l := range leaves {
				newOrderings = append(newOrderings, [2]int{pos + l, b})
			}
			continue
		}
		if o[1] == pos {
			// a precedes callA: a must precede every entry point (root) of A.
			for _, r := range roots {
				newOrderings = append(newOrderings, [2]int{a, pos + r})
			}
			continue
		}
		newOrderings = append(newOrderings, [2]int{a, b})
	}
	for _, io := range inner.Orderings {
		newOrderings = append(newOrderings, [2]int{pos + io[0], pos + io[1]})
	}

	for _, c := range inner.Constraints {
		p.Constraints = append(p.Constraints, domain.VariableConstraint{
			Var1: varMap[c.Var1], Var2: varMap[c.Var2], Tag: c.Tag,
		})
	}

	p.Subtasks = newSubtasks
	p.Orderings = newOrderings
	p.Name = fmt.Sprintf("<%s;%s;%s;%d;%s>", p.Name, dom.Tasks[target].Name, inner.Name, pos, strings.Join(idmapEntries, ","))
	return true
}

func indexOf(haystack []domain.VariableID, v domain.VariableID) int {
	for i, x := range haystack {
		if x == v {
			return i
		}
	}
	return -1
}

func remapArgs(args []domain.VariableID, varMap map[domain.VariableID]domain.VariableID) []domain.VariableID {
	out := make([]domain.VariableID, len(args))
	for i, a := range args {
		out[i] = varMap[a]
	}
	return out
}

// remapOrderIndex translates a subtask index in the parent's pre-splice
// numbering to its post-splice numbering: indices before pos are unchanged,
// pos itself is handled specially by the caller, and indices after pos
// shift right by (innerLen - 1).
func remapOrderIndex(idx, pos, innerLen int) int {
	if idx < pos {
		return idx
	}
	if idx == pos {
		return idx // unused when idx==pos; caller special-cases this
	}
	return idx + innerLen - 1
}

// rootsAndLeaves returns, relative to m's own subtask indices, which
// indices have no incoming ordering (roots, where an external predecessor
// of the inlined call must attach) and which have no outgoing ordering
// (leaves, where an external successor must attach).
func rootsAndLeaves(m *domain.Method) (roots, leaves []int) {
	n := len(m.Subtasks)
	hasIn := make([]bool, n)
	hasOut := make([]bool, n)
	for _, o := range m.Orderings {
		hasOut[o[0]] = true
		hasIn[o[1]] = true
	}
	for i := 0; i < n; i++ {
		if !hasIn[i] {
			roots = append(roots, i)
		}
		if !hasOut[i] {
			leaves = append(leaves, i)
		}
	}
	if len(roots) == 0 {
		roots = []int{0}
	}
	if len(leaves) == 0 {
		leaves = []int{n - 1}
	}
	return roots, leaves
}
