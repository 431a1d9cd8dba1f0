// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

// GroundTaskID identifies a grounded primitive or abstract task instance.
// Primitive and abstract grounded tasks live in separate dense id spaces
// (GroundedPrimitive.GroundedNo vs GroundedAbstract.GroundedNo); code that
// needs to refer to "whichever kind of grounded task" keeps the TaskID
// alongside to disambiguate, mirroring the lifted Task/TaskID split.
type GroundTaskID int

// MethodGroundID identifies a grounded decomposition method instance.
type MethodGroundID int

// GroundedPrimitive is a fully instantiated primitive action.
type GroundedPrimitive struct {
	Task       TaskID
	Args       []ConstantID
	GroundedNo GroundTaskID

	Preconditions []FactID
	AddEffects    []FactID
	DelEffects    []FactID

	// NoneOfThemFor holds the SAS+ variable indices for which this action
	// emits a synthetic "none-of-them" effect (§4.8's ground invariant
	// analysis populates this after SAS+ groups are chosen).
	NoneOfThemFor map[int]bool
}

// GroundedAbstract is a fully instantiated abstract task.
type GroundedAbstract struct {
	Task       TaskID
	Args       []ConstantID
	GroundedNo GroundTaskID

	// Methods lists every grounded method that can decompose this
	// instance, i.e. groundedDecompositionMethods in §3's vocabulary.
	Methods []MethodGroundID
}

// GroundedMethod is a fully instantiated decomposition method. Per
// invariant (iii) in §3, len(groundedAddEffects) == 1 and that single id
// names the GroundedAbstract this method decomposes.
type GroundedMethod struct {
	Method     MethodID
	Args       []ConstantID
	GroundedNo MethodGroundID

	// DecomposedTask is the single grounded abstract task this method
	// decomposes (groundedAddEffects[0] in §3's vocabulary).
	DecomposedTask GroundTaskID

	// Subtasks are the grounded task ids (primitive or abstract) this
	// method's subtasks were bound to, in the method's original subtask
	// order (groundedPreconditions in §3's vocabulary). SubtaskIsPrimitive
	// disambiguates which id space each entry belongs to.
	Subtasks           []GroundTaskID
	SubtaskIsPrimitive []bool

	// Order is a topological ordering of indices into Subtasks consistent
	// with the method's subtask ordering constraints.
	Order []int
}
