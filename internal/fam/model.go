// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fam builds the lifted intermediate model FAM-group inference
// operates over and hosts the FAM-group Engine interface with its
// in-process DefaultEngine implementation.
package fam

import (
	"log/slog"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/hierarchy"
)

// DummyGoalPredicate is the name of the synthetic predicate added as an
// unconditional add effect of every action, which suppresses pruning of
// otherwise-static FAM groups that never change (every action "touches"
// it, so no group containing only it looks dead).
const DummyGoalPredicate = "__fam_goal__"

// EqualsLiteral is the reserved literal kind standing in for the equals
// pseudo-predicate inside a lifted model's conjunctive forms.
const EqualsLiteral = -1

// Literal is a predicate (or the equals pseudo-predicate, via EqualsLiteral)
// applied to a lifted model action's variables or constants.
type Literal struct {
	Predicate domain.PredicateID
	Args      []int // index into the owning Action's Vars, or a negative
	// (bit-flipped) encoding of a literal constant when binding to a fixed
	// domain.ConstantID rather than a variable.
}

// Conjunct is one action effect or precondition expressed as a list of
// literals (conjunctive form), per §4.7's "all tasks and conditional
// effects expressed in conjunctive form".
type Conjunct struct {
	Literals []Literal
}

// Action is one lifted model action: a normalized view of a primitive task
// (or compiled conditional-effect primitive) with its own variable scope,
// preconditions, and add/delete effects in conjunctive form, plus the
// dummy-goal add effect.
type Action struct {
	Name          string
	VarSorts      []domain.SortID
	Preconditions Conjunct
	AddEffects    Conjunct
	DelEffects    Conjunct
}

// Model is the normalized lifted model FAM-group inference consumes:
// normalized sorts (a tree, via internal/hierarchy), every domain predicate
// plus the reserved equals pseudo-predicate and the dummy goal predicate,
// and every primitive task rewritten as a Action.
type Model struct {
	Sorts         *hierarchy.Result
	Predicates    []domain.Predicate
	GoalPredicate domain.PredicateID
	Actions       []Action
}

// BuildModel constructs the lifted intermediate model for dom.
func BuildModel(logger *slog.Logger, dom *domain.Domain) (*Model, error) {
	normalized, err := hierarchy.NormalizeDomain(logger, dom)
	if err != nil {
		return nil, err
	}

	predicates := append([]domain.Predicate(nil), dom.Predicates...)
	goalPred := domain.PredicateID(len(predicates))
	predicates = append(predicates, domain.Predicate{Name: DummyGoalPredicate})

	actions := make([]Action, 0, dom.NumPrimitives)
	for i := 0; i < dom.NumPrimitives; i++ {
		prim := dom.PrimitiveTaskByID(domain.TaskID(i))
		if prim == nil {
			continue
		}
		actions = append(actions, Action{
			Name:          dom.Tasks[i].Name,
			VarSorts:      prim.ParamSorts,
			Preconditions: atomsToConjunct(prim.Preconditions),
			AddEffects:    appendGoalLiteral(atomsToConjunct(prim.AddEffects), goalPred),
			DelEffects:    atomsToConjunct(prim.DelEffects),
		})
	}

	return &Model{Sorts: normalized, Predicates: predicates, GoalPredicate: goalPred, Actions: actions}, nil
}

func atomsToConjunct(atoms []domain.Atom) Conjunct {
	c := Conjunct{Literals: make([]Literal, len(atoms))}
	for i, a := range atoms {
		args := make([]int, len(a.Args))
		for j, v := range a.Args {
			args[j] = int(v)
		}
		c.Literals[i] = Literal{Predicate: a.Predicate, Args: args}
	}
	return c
}

func appendGoalLiteral(c Conjunct, goalPred domain.PredicateID) Conjunct {
	c.Literals = append(c.Literals, Literal{Predicate: goalPred})
	return c
}
