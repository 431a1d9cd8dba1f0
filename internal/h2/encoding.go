// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package h2 delegates pairwise ("h²") mutex analysis to an embedded
// fixed-depth reachability engine operating on a temporary SAS+ encoding
// built from the chosen SAS+ groups and the grounded primitive set.
package h2

import (
	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/sasplus"
)

// VariableID indexes a variable of the temporary SAS+ encoding: one per
// chosen SAS+ group, plus a trailing fake-goal variable.
type VariableID int

// ValueID indexes a value within a variable's domain. The "none-of-them"
// value, when present, occupies the last index of that variable's domain.
type ValueID int

// Assignment pins one variable to one value.
type Assignment struct {
	Var VariableID
	Val ValueID
}

// Operator is one grounded primitive translated into the temporary
// encoding: Prevail holds variables it reads but does not change, Pre holds
// variables it both reads and changes, Eff holds the post-value each
// variable transitions to.
type Operator struct {
	Name    string
	Index   int // index into the original primitives slice
	Prevail []Assignment
	Pre     []Assignment
	Eff     []Assignment
}

// Encoding is the temporary SAS+ problem h² analyzes.
type Encoding struct {
	NumValues []int // NumValues[v] is the domain size of variable v
	Operators []Operator
	Initial   []ValueID // Initial[v] is v's initial value
	Goals     []Assignment

	// GoalVar is the fake-goal variable appended after every SAS+ group
	// variable (§4.9's "plus a fake-goal variable").
	GoalVar VariableID

	// valueFact maps (var, val) back to the ground fact it represents; the
	// none-of-them slot and the fake-goal variable map to NoInitialFact.
	valueFact [][]domain.FactID
}

// NoInitialFact marks a value with no corresponding ground fact (a
// none-of-them slot, or the fake-goal variable's values).
const NoInitialFact domain.FactID = -1

// FactFor returns the ground fact a value represents, or (NoInitialFact,
// false) for synthetic values.
func (e *Encoding) FactFor(v VariableID, val ValueID) (domain.FactID, bool) {
	if int(v) < 0 || int(v) >= len(e.valueFact) {
		return NoInitialFact, false
	}
	row := e.valueFact[v]
	if int(val) < 0 || int(val) >= len(row) {
		return NoInitialFact, false
	}
	if row[val] == NoInitialFact {
		return NoInitialFact, false
	}
	return row[val], true
}

// BuildEncoding translates the chosen SAS+ groups and grounded primitives
// into a temporary SAS+ encoding (§4.9).
func BuildEncoding(primitives []*domain.GroundedPrimitive, pruned []bool, res *sasplus.Result, initial map[domain.FactID]bool) *Encoding {
	numVars := len(res.Variables)
	enc := &Encoding{
		NumValues: make([]int, numVars+1),
		Initial:   make([]ValueID, numVars+1),
		valueFact: make([][]domain.FactID, numVars+1),
		GoalVar:   VariableID(numVars),
	}

	for v, variable := range res.Variables {
		domainSize := len(variable.Facts)
		row := append([]domain.FactID(nil), variable.Facts...)
		noneVal := ValueID(-1)
		if variable.NoneOfThem {
			row = append(row, NoInitialFact)
			noneVal = ValueID(domainSize)
			domainSize++
		}
		enc.NumValues[v] = domainSize
		enc.valueFact[v] = row

		initVal := ValueID(-1)
		for val, fid := range variable.Facts {
			if initial[fid] {
				initVal = ValueID(val)
				break
			}
		}
		if initVal == -1 {
			initVal = noneVal
		}
		enc.Initial[v] = initVal
	}

	// Fake-goal variable: two values, 0 = not achieved, 1 = achieved.
	enc.NumValues[enc.GoalVar] = 2
	enc.valueFact[enc.GoalVar] = []domain.FactID{NoInitialFact, NoInitialFact}
	enc.Initial[enc.GoalVar] = 0

	factVar := func(fid domain.FactID) (VariableID, ValueID, bool) {
		idx, ok := res.FactVariable[fid]
		if !ok {
			return 0, 0, false
		}
		return VariableID(idx), ValueID(indexOf(res.Variables[idx].Facts, fid)), true
	}

	for i, p := range primitives {
		if pruned[i] {
			continue
		}
		op := Operator{Name: "op", Index: i}
		touchedVars := make(map[VariableID]bool)

		added := make(map[VariableID]ValueID)
		for _, fid := range p.AddEffects {
			if v, val, ok := factVar(fid); ok {
				added[v] = val
				touchedVars[v] = true
			}
		}
		for _, fid := range p.DelEffects {
			v, _, ok := factVar(fid)
			if !ok {
				continue
			}
			touchedVars[v] = true
			if _, isAdded := added[v]; !isAdded && p.NoneOfThemFor[int(v)] {
				noneVal := ValueID(len(res.Variables[v].Facts))
				added[v] = noneVal
			}
		}
		for v, val := range added {
			op.Eff = append(op.Eff, Assignment{Var: v, Val: val})
		}

		for _, fid := range p.Preconditions {
			v, val, ok := factVar(fid)
			if !ok {
				continue
			}
			if touchedVars[v] {
				op.Pre = append(op.Pre, Assignment{Var: v, Val: val})
			} else {
				op.Prevail = append(op.Prevail, Assignment{Var: v, Val: val})
			}
		}
		enc.Operators = append(enc.Operators, op)
	}

	return enc
}

func indexOf(facts []domain.FactID, fid domain.FactID) int {
	for i, f := range facts {
		if f == fid {
			return i
		}
	}
	return -1
}
