// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reachability

import "github.com/AleutianAI/htnground/internal/domain"

// Marks records which ground entities the top-down DFS actually visited.
type Marks struct {
	Primitive map[domain.GroundTaskID]bool
	Abstract  map[domain.GroundTaskID]bool
	Method    map[domain.MethodGroundID]bool
}

func newMarks() *Marks {
	return &Marks{
		Primitive: make(map[domain.GroundTaskID]bool),
		Abstract:  make(map[domain.GroundTaskID]bool),
		Method:    make(map[domain.MethodGroundID]bool),
	}
}

type workKind int

const (
	workAbstract workKind = iota
	workMethod
)

type workItem struct {
	kind workKind
	id   int
}

// TopDownDFS visits the initial abstract grounded task and recurses through
// reachable methods and subtasks, using an explicit work-stack instead of
// function recursion since method/subtask nesting can run deep on
// pathological domains (§8 recursion-depth guidance).
func TopDownDFS(s *State) *Marks {
	m := newMarks()
	if s.InitialAbstract == NoInitialAbstract {
		return m
	}
	if int(s.InitialAbstract) < 0 || int(s.InitialAbstract) >= len(s.Abstracts) {
		return m
	}

	stack := []workItem{{kind: workAbstract, id: int(s.InitialAbstract)}}
	m.Abstract[s.InitialAbstract] = true

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch item.kind {
		case workAbstract:
			abs := s.Abstracts[item.id]
			for _, mgid := range abs.Methods {
				if s.PrunedMethod[mgid] || m.Method[mgid] {
					continue
				}
				m.Method[mgid] = true
				stack = append(stack, workItem{kind: workMethod, id: int(mgid)})
			}
		case workMethod:
			gm := s.Methods[item.id]
			for i, sid := range gm.Subtasks {
				if gm.SubtaskIsPrimitive[i] {
					if !s.PrunedPrimitive[sid] {
						m.Primitive[sid] = true
					}
					continue
				}
				if s.PrunedAbstract[sid] || m.Abstract[sid] {
					continue
				}
				m.Abstract[sid] = true
				stack = append(stack, workItem{kind: workAbstract, id: int(sid)})
			}
		}
	}
	return m
}

// isGuardReached reports whether a compiled conditional-effect primitive's
// guard fact is currently part of the reached-fact set, the exception
// §4.5 carves out of top-down pruning.
func (s *State) isGuardReached(prim *domain.GroundedPrimitive) bool {
	for _, fid := range prim.Preconditions {
		f := s.Facts.Get(fid)
		if int(f.Predicate) < 0 || int(f.Predicate) >= len(s.Dom.Predicates) {
			continue
		}
		if s.Dom.Predicates[f.Predicate].GuardForConditionalEffect && s.IsFactReached(fid) {
			return true
		}
	}
	return false
}

// ApplyTopDown prunes every grounded entity the DFS did not visit, except a
// compiled conditional-effect primitive whose guard has been reached. It
// reports whether any new pruning occurred.
func ApplyTopDown(s *State, marks *Marks) bool {
	if s.InitialAbstract == NoInitialAbstract {
		return false
	}
	changed := false
	for i, p := range s.Primitives {
		if s.PrunedPrimitive[i] {
			continue
		}
		id := domain.GroundTaskID(i)
		if marks.Primitive[id] {
			continue
		}
		if p.Task >= 0 {
			if prim := s.Dom.PrimitiveTaskByID(p.Task); prim != nil && prim.IsCompiledConditionalEffect && s.isGuardReached(p) {
				continue
			}
		}
		s.PrunedPrimitive[i] = true
		changed = true
	}
	for i := range s.Abstracts {
		if s.PrunedAbstract[i] {
			continue
		}
		if marks.Abstract[domain.GroundTaskID(i)] {
			continue
		}
		s.PrunedAbstract[i] = true
		changed = true
	}
	for i := range s.Methods {
		if s.PrunedMethod[i] {
			continue
		}
		if marks.Method[domain.MethodGroundID(i)] {
			continue
		}
		s.PrunedMethod[i] = true
		changed = true
	}
	return changed
}
