// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hierarchy reshapes a domain's sort lattice into a tree, the shape
// the FAM-group engine (internal/fam) requires. Sorts related by subset
// inclusion only up to a DAG (a sort with more than one incomparable direct
// superset) are collapsed onto a single surviving ancestor; an artificial
// universal sort is introduced when the domain has more than one root and
// no sort already spans every constant.
package hierarchy

import (
	"errors"
	"log/slog"
)

// ErrStructuralViolation is returned when the sort lattice cannot be
// normalized into a tree even after adding the artificial root. Per spec
// this cannot happen in practice (the artificial root always resolves
// multi-rootedness), so seeing it indicates a bug in the normalizer itself
// rather than a malformed domain.
var ErrStructuralViolation = errors.New("hierarchy: sort lattice could not be normalized into a tree")

// UniversalSortName is the name given to the synthetic root sort added when
// the domain has multiple incomparable roots.
const UniversalSortName = "__universe__"

// SortMembers is the minimal view over a domain's sorts the normalizer
// needs: a name and a member list. internal/domain.Sort satisfies this via
// adaptSorts.
type SortMembers struct {
	Name    string
	Members []int // constant ids
}

// Result is the output of Normalize.
type Result struct {
	// Sorts is the (possibly extended, with one synthetic universal sort
	// appended) sort list the result indexes into.
	Sorts []SortMembers

	// Parent[i] is the parent sort index of Sorts[i], or -1 if i is a root
	// or has been replaced away (see Replacement).
	Parent []int

	// Replacement maps a sort index that had more than one minimal
	// superset to the single surviving ancestor it was merged into.
	// Resolve() follows this map to a fixed point.
	Replacement map[int]int

	// ConstantSort[c] is the most specific surviving sort containing
	// constant id c.
	ConstantSort []int

	// ArtificialRoot is the index of the synthetic universal sort, or -1
	// if none was needed.
	ArtificialRoot int
}

// Resolve follows the replacement chain for sort index s to its surviving
// representative.
func (r *Result) Resolve(s int) int {
	seen := map[int]bool{}
	for {
		repl, ok := r.Replacement[s]
		if !ok {
			return s
		}
		if seen[s] {
			// Defensive: a cycle would mean a bug in Normalize, not a
			// malformed domain; break rather than loop forever.
			return s
		}
		seen[s] = true
		s = repl
	}
}

// Normalize computes the sort tree for sorts.
func Normalize(logger *slog.Logger, sorts []SortMembers, numConstants int) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	n := len(sorts)
	memberSets := make([]map[int]struct{}, n)
	for i, s := range sorts {
		set := make(map[int]struct{}, len(s.Members))
		for _, m := range s.Members {
			set[m] = struct{}{}
		}
		memberSets[i] = set
	}

	isSubset := func(a, b int) bool {
		if a == b {
			return false
		}
		if len(memberSets[a]) > len(memberSets[b]) {
			return false
		}
		for m := range memberSets[a] {
			if _, ok := memberSets[b][m]; !ok {
				return false
			}
		}
		return true
	}

	// candidates[i] = every j such that sorts[i] is a (proper) subset of
	// sorts[j].
	candidates := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if isSubset(i, j) {
				candidates[i] = append(candidates[i], j)
			}
		}
	}

	replacement := map[int]int{}
	resolve := func(s int) int {
		for {
			r, ok := replacement[s]
			if !ok {
				return s
			}
			s = r
		}
	}

	// minimalParents returns the Hasse-diagram immediate supersets of i,
	// given the current replacement map (candidates are resolved through
	// it so a merge cascades into every sort that referenced the merged
	// sort).
	minimalParents := func(i int) []int {
		resolved := map[int]bool{}
		for _, c := range candidates[i] {
			rc := resolve(c)
			if rc == i {
				continue
			}
			resolved[rc] = true
		}
		minimal := make([]int, 0, len(resolved))
		for c := range resolved {
			isMinimal := true
			for other := range resolved {
				if other == c {
					continue
				}
				if isSubset(other, c) {
					isMinimal = false
					break
				}
			}
			if isMinimal {
				minimal = append(minimal, c)
			}
		}
		return minimal
	}

	// Iteratively collapse any sort with more than one minimal parent onto
	// a single chosen ancestor until a fixed point (a tree) is reached.
	for pass := 0; pass < n+1; pass++ {
		changed := false
		for i := 0; i < n; i++ {
			if _, already := replacement[i]; already {
				continue
			}
			parents := minimalParents(i)
			if len(parents) <= 1 {
				continue
			}
			chosen := parents[0]
			for _, p := range parents[1:] {
				// Prefer the tightest (most specific, i.e. smallest
				// member-set) ancestor: that minimizes the set of sorts a
				// hierarchy-typing DFS would traverse through it.
				if len(memberSets[p]) < len(memberSets[chosen]) {
					chosen = p
				}
			}
			logger.Debug("hierarchy: collapsing multi-parent sort",
				slog.String("sort", sorts[i].Name),
				slog.String("into", sorts[chosen].Name),
			)
			replacement[i] = chosen
			changed = true
		}
		if !changed {
			break
		}
	}

	// If the fixed point still has a sort with more than one minimal
	// parent, or more than one root, a single universal root resolves it:
	// every existing root becomes its child, collapsing all remaining
	// incomparable roots into one. Skip this when some sort already spans
	// every constant (that sort already acts as the natural root).
	needsRoot := false
	roots := 0
	for i := 0; i < n; i++ {
		if _, replaced := replacement[i]; replaced {
			continue
		}
		switch len(minimalParents(i)) {
		case 0:
			roots++
		case 1:
		default:
			needsRoot = true
		}
	}
	if roots > 1 {
		needsRoot = true
	}
	if needsRoot {
		hasUniversal := false
		for i := 0; i < n; i++ {
			if _, replaced := replacement[i]; replaced {
				continue
			}
			if len(memberSets[i]) == numConstants {
				hasUniversal = true
				break
			}
		}
		if !hasUniversal {
			allConstants := make(map[int]struct{}, numConstants)
			root := SortMembers{Name: UniversalSortName, Members: make([]int, 0, numConstants)}
			for c := 0; c < numConstants; c++ {
				allConstants[c] = struct{}{}
				root.Members = append(root.Members, c)
			}
			rootIdx := n
			sorts = append(sorts, root)
			memberSets = append(memberSets, allConstants)
			candidates = append(candidates, nil)
			n++
			for i := 0; i < n-1; i++ {
				if _, replaced := replacement[i]; replaced {
					continue
				}
				if len(minimalParents(i)) == 0 {
					candidates[i] = append(candidates[i], rootIdx)
				}
			}
		}
		for i := 0; i < n; i++ {
			if _, replaced := replacement[i]; replaced {
				continue
			}
			if len(minimalParents(i)) > 1 {
				return nil, ErrStructuralViolation
			}
		}
	}

	parent := make([]int, n)
	artificialRoot := -1
	for i := range parent {
		parent[i] = -1
	}
	for i := 0; i < n; i++ {
		if sorts[i].Name == UniversalSortName {
			artificialRoot = i
		}
		if _, replaced := replacement[i]; replaced {
			continue
		}
		parents := minimalParents(i)
		if len(parents) == 1 {
			parent[i] = parents[0]
		}
	}

	constantSort := make([]int, numConstants)
	for c := range constantSort {
		constantSort[c] = -1
	}
	for i := 0; i < n; i++ {
		if _, replaced := replacement[i]; replaced {
			continue
		}
		for m := range memberSets[i] {
			cur := constantSort[m]
			if cur == -1 || len(memberSets[i]) < len(memberSets[cur]) {
				constantSort[m] = i
			}
		}
	}

	return &Result{
		Sorts:          sorts,
		Parent:         parent,
		Replacement:    replacement,
		ConstantSort:   constantSort,
		ArtificialRoot: artificialRoot,
	}, nil
}
