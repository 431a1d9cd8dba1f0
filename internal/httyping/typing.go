// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httyping

import (
	"errors"
	"log/slog"

	"github.com/AleutianAI/htnground/internal/domain"
)

// ErrUnsolvable is returned when the initial task's possible-tuple set comes
// out empty: no ground argument vector can ever be assigned to it.
var ErrUnsolvable = errors.New("httyping: initial task has no possible argument tuples")

// Options configures the typer. The zero value runs with exact-equality
// dedup and static precondition filtering disabled, matching the most
// conservative (slowest, most precise) configuration.
type Options struct {
	// InclusionDedup accepts a tuple as "already visited" when an existing
	// stored tuple is a superset of it in every position, rather than
	// requiring exact equality. Cheaper, less precise.
	InclusionDedup bool

	// StaticPreconditionChecking tightens a method's possible constants
	// using initial-state facts for subtask preconditions that no
	// primitive ever adds or deletes.
	StaticPreconditionChecking bool
}

// Typing holds, for every visited task and method, the set of possible
// argument tuples computed by Build.
type Typing struct {
	dom *domain.Domain
	opt Options

	taskTuples   map[domain.TaskID][]Tuple
	methodTuples map[domain.MethodID][]Tuple

	// index[entityKey][variable][value] lists the tuple ids compatible
	// with value at that variable position, for fast isAssignmentCompatible
	// queries.
	index map[entityKey][]map[domain.ConstantID][]TupleID

	// staticPredicates holds the predicates no primitive's effect list ever
	// touches, computed once up front when StaticPreconditionChecking is on.
	staticPredicates map[domain.PredicateID]bool
	initialByPred    map[domain.PredicateID][]domain.Fact
}

// Build runs the hierarchy-typing DFS from the problem's initial task and
// returns the resulting Typing.
func Build(logger *slog.Logger, d *domain.Domain, p *domain.Problem, opt Options) (*Typing, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Typing{
		dom:          d,
		opt:          opt,
		taskTuples:   make(map[domain.TaskID][]Tuple),
		methodTuples: make(map[domain.MethodID][]Tuple),
		index:        make(map[entityKey][]map[domain.ConstantID][]TupleID),
	}

	if !p.IsHierarchical() {
		// Classical problem: nothing to type, every task is reachable by PG
		// directly. Return an empty (permissive) Typing.
		return t, nil
	}

	if opt.StaticPreconditionChecking {
		t.buildStaticIndex(p)
	}

	init := p.InitialTask
	tuple := Tuple{Vars: make([]ConstantSet, len(init.Args))}
	for i, c := range init.Args {
		tuple.Vars[i] = ConstantSet{c: struct{}{}}
	}

	t.visitTask(logger, init.Task, tuple)

	if len(t.taskTuples[init.Task]) == 0 {
		return t, ErrUnsolvable
	}
	return t, nil
}

func (t *Typing) buildStaticIndex(p *domain.Problem) {
	touched := make(map[domain.PredicateID]bool)
	for _, task := range t.dom.Tasks {
		if task.Primitive == nil {
			continue
		}
		for _, a := range task.Primitive.AddEffects {
			touched[a.Predicate] = true
		}
		for _, a := range task.Primitive.DelEffects {
			touched[a.Predicate] = true
		}
		for _, ce := range task.Primitive.CondAddEffects {
			touched[ce.Effect.Predicate] = true
		}
		for _, ce := range task.Primitive.CondDelEffects {
			touched[ce.Effect.Predicate] = true
		}
	}
	static := make(map[domain.PredicateID]bool, len(t.dom.Predicates))
	for i := range t.dom.Predicates {
		pid := domain.PredicateID(i)
		if !touched[pid] {
			static[pid] = true
		}
	}
	t.staticPredicates = static

	byPred := make(map[domain.PredicateID][]domain.Fact)
	for _, f := range p.InitialFacts {
		byPred[f.Predicate] = append(byPred[f.Predicate], f)
	}
	t.initialByPred = byPred
}

// fullSortSet returns every constant belonging to sort s.
func (t *Typing) fullSortSet(s domain.SortID) ConstantSet {
	if int(s) < 0 || int(s) >= len(t.dom.Sorts) {
		return ConstantSet{}
	}
	return newConstantSet(t.dom.Sorts[s].Members)
}

func applyConstraints(vars []ConstantSet, constraints []domain.VariableConstraint) {
	for _, c := range constraints {
		if c.Tag != domain.Equal {
			continue // NotEqual cannot tighten a set-valued over-approximation
		}
		v1, v2 := int(c.Var1), int(c.Var2)
		if v1 < 0 || v1 >= len(vars) || v2 < 0 || v2 >= len(vars) {
			continue
		}
		merged := vars[v1].intersect(vars[v2])
		vars[v1] = merged
		vars[v2] = merged.clone()
	}
}

func (t *Typing) visitTask(logger *slog.Logger, id domain.TaskID, tuple Tuple) {
	key := entityKey{kind: taskEntity, id: int(id)}
	if t.dedupAndStore(key, tuple) {
		return
	}
	t.taskTuples[id] = append(t.taskTuples[id], tuple)

	task := t.dom.Tasks[id]
	if task.Abstract == nil {
		return
	}
	for _, mid := range task.Abstract.Methods {
		t.visitMethodFromTask(logger, mid, tuple)
	}
}

func (t *Typing) visitMethodFromTask(logger *slog.Logger, mid domain.MethodID, parentTuple Tuple) {
	m := t.dom.MethodByID(mid)
	if m == nil {
		return
	}
	mvars := make([]ConstantSet, m.NumVars())
	for i, sort := range m.VarSorts {
		mvars[i] = t.fullSortSet(sort)
	}
	for i, mv := range m.ParamMapping {
		if int(mv) < 0 || int(mv) >= len(mvars) {
			continue
		}
		if int(i) >= len(parentTuple.Vars) {
			continue
		}
		mvars[mv] = mvars[mv].intersect(parentTuple.Vars[i])
	}
	applyConstraints(mvars, m.Constraints)

	if t.opt.StaticPreconditionChecking {
		t.applyStaticFiltering(m, mvars)
	}

	methodTuple := Tuple{Vars: mvars}
	mkey := entityKey{kind: methodEntity, id: int(mid)}
	if t.dedupAndStore(mkey, methodTuple) {
		return
	}
	t.methodTuples[mid] = append(t.methodTuples[mid], methodTuple)

	for _, st := range m.Subtasks {
		subVars := make([]ConstantSet, len(st.Args))
		for i, v := range st.Args {
			if int(v) < 0 || int(v) >= len(mvars) {
				subVars[i] = ConstantSet{}
				continue
			}
			subVars[i] = mvars[v].clone()
		}
		t.visitTask(logger, st.Task, Tuple{Vars: subVars})
	}
}

// applyStaticFiltering tightens mvars in place using initial-state facts for
// any subtask precondition predicate that no primitive ever adds or
// deletes. This is a best-effort, order-independent pass over the method's
// own variable scope; it does not attempt full constraint propagation.
func (t *Typing) applyStaticFiltering(m *domain.Method, mvars []ConstantSet) {
	for _, st := range m.Subtasks {
		task := t.dom.Tasks[st.Task]
		if task.Primitive == nil {
			continue
		}
		for _, pre := range task.Primitive.Preconditions {
			if !t.staticPredicates[pre.Predicate] {
				continue
			}
			facts := t.initialByPred[pre.Predicate]
			if len(facts) == 0 {
				continue
			}
			for argPos, mv := range pre.Args {
				if int(mv) < 0 || int(mv) >= len(st.Args) {
					continue
				}
				subVarIdx := int(st.Args[mv])
				allowed := make(ConstantSet, len(facts))
				for _, f := range facts {
					if argPos < len(f.Args) {
						allowed[f.Args[argPos]] = struct{}{}
					}
				}
				if subVarIdx >= 0 && subVarIdx < len(mvars) {
					mvars[subVarIdx] = mvars[subVarIdx].intersect(allowed)
				}
			}
		}
	}
}

// dedupAndStore reports whether tuple is already covered by a stored tuple
// for key (exact match, or subset match when InclusionDedup is set). When it
// returns false it has already indexed tuple via indexTuple; the caller is
// responsible for appending tuple to its entity's tuple list.
func (t *Typing) dedupAndStore(key entityKey, tuple Tuple) bool {
	var existing []Tuple
	switch key.kind {
	case taskEntity:
		existing = t.taskTuples[domain.TaskID(key.id)]
	case methodEntity:
		existing = t.methodTuples[domain.MethodID(key.id)]
	}
	for _, e := range existing {
		if t.opt.InclusionDedup {
			if tuple.subsumedBy(e) {
				return true
			}
		} else if tuple.equal(e) {
			return true
		}
	}
	id := TupleID(len(existing))
	t.indexTuple(key, id, tuple)
	return false
}

func (t *Typing) indexTuple(key entityKey, id TupleID, tuple Tuple) {
	perVar := t.index[key]
	if perVar == nil {
		perVar = make([]map[domain.ConstantID][]TupleID, len(tuple.Vars))
		for i := range perVar {
			perVar[i] = make(map[domain.ConstantID][]TupleID)
		}
		t.index[key] = perVar
	}
	for i, set := range tuple.Vars {
		if i >= len(perVar) {
			continue
		}
		for c := range set {
			perVar[i][c] = append(perVar[i][c], id)
		}
	}
}
