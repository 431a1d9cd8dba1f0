// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import "strconv"

// Fact is a predicate applied to concrete constants. Identity is
// structural: two facts with the same predicate and argument vector are the
// same fact regardless of where they were constructed.
type Fact struct {
	Predicate PredicateID
	Args      []ConstantID
}

// Key returns a string uniquely identifying this fact's predicate/argument
// combination, suitable for use as a map key. It is stable across process
// runs (unlike pointer identity) which is required for deterministic
// output.
func (f Fact) Key() string {
	// Worst case ~4 bytes per integer plus separators; preallocate
	// generously to avoid reallocation in the hot grounding loop.
	buf := make([]byte, 0, 8+len(f.Args)*6)
	buf = strconv.AppendInt(buf, int64(f.Predicate), 10)
	for _, a := range f.Args {
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, int64(a), 10)
	}
	return string(buf)
}

// Equal reports structural equality.
func (f Fact) Equal(other Fact) bool {
	if f.Predicate != other.Predicate || len(f.Args) != len(other.Args) {
		return false
	}
	for i, a := range f.Args {
		if other.Args[i] != a {
			return false
		}
	}
	return true
}

// FactID is the dense "groundedNo" assigned to a fact the first time it is
// produced during the planning graph fixpoint (§4.3). A second, later
// "outputNo" renumbering (after pruning) is tracked separately by
// FactTable.Compact.
type FactID int

// FactTable interns facts, assigning each a dense FactID on first sight and
// tracking which ids survive pruning passes. It is the append-only arena
// described in §9 ("dense index vectors + parallel pruned bitsets").
type FactTable struct {
	facts  []Fact
	index  map[string]FactID
	pruned []bool
}

// NewFactTable creates an empty fact table.
func NewFactTable() *FactTable {
	return &FactTable{index: make(map[string]FactID)}
}

// Intern returns the FactID for f, assigning a fresh one if f has not been
// seen before. The second return value reports whether f was newly
// inserted.
func (t *FactTable) Intern(f Fact) (FactID, bool) {
	key := f.Key()
	if id, ok := t.index[key]; ok {
		return id, false
	}
	id := FactID(len(t.facts))
	t.facts = append(t.facts, f)
	t.pruned = append(t.pruned, false)
	t.index[key] = id
	return id, true
}

// Lookup returns the FactID for f without inserting it.
func (t *FactTable) Lookup(f Fact) (FactID, bool) {
	id, ok := t.index[f.Key()]
	return id, ok
}

// Get returns the fact stored at id.
func (t *FactTable) Get(id FactID) Fact { return t.facts[id] }

// Len returns the number of interned facts (including pruned ones).
func (t *FactTable) Len() int { return len(t.facts) }

// IsPruned reports whether id has been marked pruned.
func (t *FactTable) IsPruned(id FactID) bool {
	if int(id) < 0 || int(id) >= len(t.pruned) {
		return true
	}
	return t.pruned[id]
}

// Prune marks id as pruned.
func (t *FactTable) Prune(id FactID) { t.pruned[id] = true }

// Live returns the ids of all non-pruned facts in ascending order.
func (t *FactTable) Live() []FactID {
	out := make([]FactID, 0, len(t.facts))
	for i, p := range t.pruned {
		if !p {
			out = append(out, FactID(i))
		}
	}
	return out
}

// Compact renumbers surviving facts to a dense [0, n) range, preserving
// relative order, and returns the old-to-new id map. This realizes
// invariant (iv) of §3 ("groundedNo values are dense consecutive integers
// ... after every pruning pass").
func (t *FactTable) Compact() map[FactID]FactID {
	remap := make(map[FactID]FactID, len(t.facts))
	newFacts := make([]Fact, 0, len(t.facts))
	newIndex := make(map[string]FactID, len(t.facts))
	for old, p := range t.pruned {
		if p {
			continue
		}
		newID := FactID(len(newFacts))
		f := t.facts[old]
		newFacts = append(newFacts, f)
		newIndex[f.Key()] = newID
		remap[FactID(old)] = newID
	}
	t.facts = newFacts
	t.index = newIndex
	t.pruned = make([]bool, len(newFacts))
	return remap
}
