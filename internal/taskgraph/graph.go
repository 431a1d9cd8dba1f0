// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package taskgraph grounds abstract task instances and decomposition
// methods by running the same fixpoint shape as internal/planninggraph,
// reused over ground tasks ("facts") and methods ("actions") instead of
// facts and primitives, per the capability-set reuse described by
// internal/capability.
package taskgraph

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
)

// Graph accumulates grounded abstract task instances and grounded methods.
type Graph struct {
	dom    *domain.Domain
	logger *slog.Logger

	// byTask indexes grounded task instances (primitive and abstract) by
	// their lifted TaskID, the TDG analogue of planninggraph's byPredicate.
	byTask map[domain.TaskID][]groundItem

	abstracts     []*domain.GroundedAbstract
	abstractIndex map[domain.GroundTaskID]int
	seenAbstract  map[string]domain.GroundTaskID

	methods    []*domain.GroundedMethod
	seenMethod map[string]domain.MethodGroundID

	queue  []groundItem
	queued map[string]bool

	// triggerKey is the key of the ground item currently being matched
	// from, used by the duplicate-avoidance rule mirrored from
	// internal/planninggraph.
	triggerKey string
}

// groundItem is a uniform view over an already-grounded primitive or
// abstract task instance, the "fact" the TDG fixpoint matches subtasks
// against.
type groundItem struct {
	task        domain.TaskID
	args        []domain.ConstantID
	groundTask  domain.GroundTaskID
	isPrimitive bool
}

func (i groundItem) key() string {
	return itemKey(i.task, i.args)
}

func itemKey(task domain.TaskID, args []domain.ConstantID) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(task)))
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(int(a)))
	}
	return b.String()
}

func methodInstanceKey(mid domain.MethodID, args []domain.ConstantID) string {
	var b strings.Builder
	b.WriteString("m")
	b.WriteString(strconv.Itoa(int(mid)))
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(int(a)))
	}
	return b.String()
}

// New creates an empty task-decomposition graph over dom.
func New(logger *slog.Logger, dom *domain.Domain) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	// Reorder every method's subtasks by decreasing arity before grounding,
	// per §4.4's "front-load the most constraining matches" heuristic.
	reorderSubtasksByArity(dom)

	return &Graph{
		dom:          dom,
		logger:       logger,
		byTask:       make(map[domain.TaskID][]groundItem),
		seenAbstract: make(map[string]domain.GroundTaskID),
		seenMethod:   make(map[string]domain.MethodGroundID),
		queued:       make(map[string]bool),
	}
}

// reorderSubtasksByArity sorts each method's subtask list by decreasing
// variable count, remapping Orderings indices to match.
func reorderSubtasksByArity(dom *domain.Domain) {
	for mi := range dom.Methods {
		m := &dom.Methods[mi]
		n := len(m.Subtasks)
		if n <= 1 {
			continue
		}
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return len(m.Subtasks[order[a]].Args) > len(m.Subtasks[order[b]].Args)
		})
		newPos := make([]int, n) // newPos[oldIdx] = newIdx
		newSubtasks := make([]domain.Subtask, n)
		for newIdx, oldIdx := range order {
			newSubtasks[newIdx] = m.Subtasks[oldIdx]
			newPos[oldIdx] = newIdx
		}
		m.Subtasks = newSubtasks
		newOrderings := make([][2]int, len(m.Orderings))
		for i, o := range m.Orderings {
			newOrderings[i] = [2]int{newPos[o[0]], newPos[o[1]]}
		}
		m.Orderings = newOrderings
	}
}

// SeedPrimitives registers every already-grounded primitive (produced by
// internal/planninggraph) as a TDG ground item.
func (g *Graph) SeedPrimitives(primitives []*domain.GroundedPrimitive) {
	for _, p := range primitives {
		g.enqueue(groundItem{task: p.Task, args: p.Args, groundTask: p.GroundedNo, isPrimitive: true})
	}
}

func (g *Graph) enqueue(item groundItem) {
	k := item.key()
	if g.queued[k] {
		return
	}
	g.queued[k] = true
	g.byTask[item.task] = append(g.byTask[item.task], item)
	g.queue = append(g.queue, item)
}

// Abstracts returns every grounded abstract task instance produced so far.
func (g *Graph) Abstracts() []*domain.GroundedAbstract { return g.abstracts }

// Methods returns every grounded method produced so far.
func (g *Graph) Methods() []*domain.GroundedMethod { return g.methods }

// Run drains the work queue to a fixpoint, grounding every abstract task
// instance and decomposition method reachable from the seeded primitives.
func (g *Graph) Run() {
	for len(g.queue) > 0 {
		item := g.queue[0]
		g.queue = g.queue[1:]
		g.triggerKey = item.key()
		g.matchFromItem(item)
	}
}

// matchFromItem drives every (abstract task, method, subtask-index) triple
// whose subtask names item's lifted task id, mirroring
// planninggraph.matchFromFact.
func (g *Graph) matchFromItem(item groundItem) {
	for ti := g.dom.NumPrimitives; ti < len(g.dom.Tasks); ti++ {
		abstractID := domain.TaskID(ti)
		abstract := g.dom.AbstractTaskByID(abstractID)
		if abstract == nil {
			continue
		}
		for _, mid := range abstract.Methods {
			m := g.dom.MethodByID(mid)
			if m == nil {
				continue
			}
			for i, st := range m.Subtasks {
				if st.Task != item.task {
					continue
				}
				asn := newMethodAssignment(m.NumVars())
				if !bindSubtaskArgs(asn, st.Args, item.args) {
					continue
				}
				if !methodConstraintsOK(asn, m.Constraints) {
					continue
				}
				state := boundState{
					asn:         asn,
					subtaskIDs:  make([]domain.GroundTaskID, len(m.Subtasks)),
					subtaskPrim: make([]bool, len(m.Subtasks)),
				}
				state.subtaskIDs[i] = item.groundTask
				state.subtaskPrim[i] = item.isPrimitive
				g.matchSubtask(abstractID, mid, m, state, 0, i)
			}
		}
	}
}
