// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/reachability"
)

// UnifyDuplicateActions implements §4.10 pass 8: ground primitives whose
// name begins with "_" (pure synthetic) are fused whenever their live
// precondition, add, and delete sets coincide exactly; ground primitives
// whose name begins with "%" (the product of consecutive-primitive
// compaction) additionally require a matching name and argument list before
// fusing. Every surviving primitive's GroundedNo is stable; merged
// duplicates are marked pruned and their GroundTaskID is remapped to the
// representative's wherever a method references it as a subtask.
func UnifyDuplicateActions(st *reachability.State) {
	remap := make(map[domain.GroundTaskID]domain.GroundTaskID)
	seen := make(map[string]domain.GroundTaskID)

	for _, p := range st.Primitives {
		if st.PrunedPrimitive[p.GroundedNo] {
			continue
		}
		kind := classifyFusion(p.Task, st.Dom)
		if kind == fuseNone {
			continue
		}
		key := fusionKey(st, p, kind)
		if repr, ok := seen[key]; ok {
			remap[p.GroundedNo] = repr
			st.PrunedPrimitive[p.GroundedNo] = true
			continue
		}
		seen[key] = p.GroundedNo
	}

	if len(remap) == 0 {
		return
	}
	for _, m := range st.Methods {
		for i, sub := range m.Subtasks {
			if !m.SubtaskIsPrimitive[i] {
				continue
			}
			if to, ok := remap[sub]; ok {
				m.Subtasks[i] = to
			}
		}
	}
}

type fusionKind int

const (
	fuseNone fusionKind = iota
	fuseSynthetic
	fuseCompacted
)

func classifyFusion(id domain.TaskID, dom *domain.Domain) fusionKind {
	if int(id) < 0 || int(id) >= len(dom.Tasks) {
		return fuseNone
	}
	name := dom.Tasks[id].Name
	switch {
	case strings.HasPrefix(name, "%"):
		return fuseCompacted
	case strings.HasPrefix(name, "_"):
		return fuseSynthetic
	default:
		return fuseNone
	}
}

// fusionKey builds a string that is identical for two primitives exactly
// when they are eligible to fuse under kind: always the sorted live
// precondition/add/delete fact ids, plus (for fuseCompacted) the task name
// and argument vector.
func fusionKey(st *reachability.State, p *domain.GroundedPrimitive, kind fusionKind) string {
	var b strings.Builder
	if kind == fuseCompacted {
		b.WriteString(st.Dom.Tasks[p.Task].Name)
		b.WriteByte('|')
		for _, a := range p.Args {
			b.WriteString(strconv.Itoa(int(a)))
			b.WriteByte(',')
		}
		b.WriteByte('|')
	}
	writeSortedFacts(&b, st.Facts, p.Preconditions)
	b.WriteByte('#')
	writeSortedFacts(&b, st.Facts, p.AddEffects)
	b.WriteByte('#')
	writeSortedFacts(&b, st.Facts, p.DelEffects)
	return b.String()
}

func writeSortedFacts(b *strings.Builder, facts *domain.FactTable, ids []domain.FactID) {
	live := make([]int, 0, len(ids))
	for _, id := range ids {
		if !facts.IsPruned(id) {
			live = append(live, int(id))
		}
	}
	sort.Ints(live)
	for _, id := range live {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte(',')
	}
}
