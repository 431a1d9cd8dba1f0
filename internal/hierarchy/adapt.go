// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hierarchy

import (
	"log/slog"

	"github.com/AleutianAI/htnground/internal/domain"
)

// adaptSorts converts a domain's sort list into the minimal SortMembers view
// Normalize operates over.
func adaptSorts(sorts []domain.Sort) []SortMembers {
	out := make([]SortMembers, len(sorts))
	for i, s := range sorts {
		members := make([]int, len(s.Members))
		for j, m := range s.Members {
			members[j] = int(m)
		}
		out[i] = SortMembers{Name: s.Name, Members: members}
	}
	return out
}

// NormalizeDomain runs Normalize over a domain's sort list, adapting
// domain.Sort via adaptSorts.
func NormalizeDomain(logger *slog.Logger, d *domain.Domain) (*Result, error) {
	return Normalize(logger, adaptSorts(d.Sorts), len(d.Constants))
}
