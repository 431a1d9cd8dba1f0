// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ground

import (
	"errors"
	"fmt"
)

// Sentinel errors naming two fatal grounding outcomes: a type lattice that
// cannot normalize into a tree even after an artificial root is added, and
// an add/delete conflict that cannot be resolved. No code path in this
// package returns either one today: a normalization failure surfaces as a
// *PhaseError for the FAM phase wrapping hierarchy.ErrStructuralViolation,
// and ResolveEffectPriority resolves every add/delete conflict.
// Unreachable-goal is deliberately not an error: Ground reports it in
// Summary.Unreachable and returns (nil error, exit status 0) per the
// diagnostic-not-failure contract.
var (
	// ErrStructuralViolation names a sort hierarchy that cannot be
	// normalized into a tree.
	ErrStructuralViolation = errors.New("ground: sort hierarchy is not a tree")

	// ErrUnresolvableEffectConflict names an add/delete conflict on the
	// same ground fact that cannot be resolved.
	ErrUnresolvableEffectConflict = errors.New("ground: unresolvable add/delete conflict")
)

// PhaseError wraps an error with the grounding phase that produced it, so
// a caller can tell HT failures from FAM failures without string matching.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("ground: phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// NewPhaseError wraps err with the phase that produced it. Returns nil if
// err is nil, so callers can write `return NewPhaseError(phase, fn())`.
func NewPhaseError(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}
