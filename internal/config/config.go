// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the Driver's run configuration: the
// §6 configuration flags (which optional passes run, writer/output
// selection, diagnostics) plus the resource limits §4.7/§4.9 leave
// tunable. Values are unmarshaled from YAML and checked with struct tags,
// the same two-step load-then-validate shape the teacher's MCTS and
// orchestrator configs use.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SASMode selects how SAS+ group deletes are translated to output deletes.
type SASMode string

const (
	SASModeAsInput SASMode = "as-input"
	SASModeAll     SASMode = "all"
	SASModeNone    SASMode = "none"
)

// OutputFormat selects the writer §6 targets.
type OutputFormat string

const (
	OutputPlannerText OutputFormat = "planner-text"
	OutputHDDL        OutputFormat = "hddl"
	OutputSASPlus     OutputFormat = "sas-plus"
)

// Config is the Driver's run configuration: every §6 flag plus the
// resource bounds §4.7 (FAM candidates/groups) and §4.9 (h² budget) leave
// as tunables rather than hard constants.
type Config struct {
	// HT (§4.2)
	EnableHierarchyTyping           bool `yaml:"enable_hierarchy_typing"`
	WithStaticPreconditionChecking  bool `yaml:"with_static_precondition_checking"`

	// PG (§4.3)
	FutureCachingByPrecondition bool `yaml:"future_caching_by_precondition"`

	// Invariant/mutex passes
	ComputeInvariants bool `yaml:"compute_invariants"`
	H2Mutexes         bool `yaml:"h2_mutexes"`

	// Simplification passes (§4.10)
	RemoveUselessPredicates       bool `yaml:"remove_useless_predicates"`
	ExpandChoicelessAbstractTasks bool `yaml:"expand_choiceless_abstract_tasks"`
	PruneEmptyMethodPreconditions bool `yaml:"prune_empty_method_preconditions"`
	KeepTwoRegularisation         bool `yaml:"keep_two_regularisation"`
	AtMostTwoTasksPerMethod       bool `yaml:"at_most_two_tasks_per_method"`
	CompactConsecutivePrimitives  bool `yaml:"compact_consecutive_primitives"`
	RemoveDuplicateActions        bool `yaml:"remove_duplicate_actions"`
	NoopForEmptyMethods           bool `yaml:"noop_for_empty_methods"`
	CompileNegativeSASVariables   bool `yaml:"compile_negative_sas_variables"`

	// SAS+ synthesis (§4.8)
	OutputSASVariablesOnly bool    `yaml:"output_sas_variables_only"`
	SASMode                SASMode `yaml:"sas_mode" validate:"omitempty,oneof=as-input all none"`

	// Writer selection (§6) — exactly one must be set; the Driver itself
	// never calls the writer, but records the selection for the external
	// collaborator to read back.
	OutputForPlanner bool `yaml:"output_for_planner"`
	OutputHDDL       bool `yaml:"output_hddl"`
	OutputSASPlus    bool `yaml:"output_sas_plus"`

	// Diagnostics
	QuietMode    bool `yaml:"quiet_mode"`
	PrintTimings bool `yaml:"print_timings"`

	// FAM resource limits (§4.7 defaults: 10,000 each).
	MaxFamCandidates int `yaml:"max_fam_candidates" validate:"gte=0"`
	MaxFamGroups     int `yaml:"max_fam_groups" validate:"gte=0"`

	// CacheDir names a directory for an on-disk cache. No grounding code
	// reads it: the future-satisfiability cache and the hierarchy-typing
	// tuple index are always in-memory maps, and ground.OpenResultCache
	// takes its directory as an explicit argument. The field only takes
	// part in the configuration that keys the result cache.
	CacheDir string `yaml:"cache_dir"`
}

// Default returns the configuration a bare grounding run starts from: every
// optional pass enabled, FAM limits at the §4.7 defaults, no on-disk cache.
func Default() Config {
	return Config{
		EnableHierarchyTyping:          true,
		WithStaticPreconditionChecking: true,
		ComputeInvariants:              true,
		H2Mutexes:                      true,
		RemoveUselessPredicates:        true,
		ExpandChoicelessAbstractTasks:  true,
		PruneEmptyMethodPreconditions:  true,
		AtMostTwoTasksPerMethod:        true,
		CompactConsecutivePrimitives:   true,
		RemoveDuplicateActions:         true,
		SASMode:                        SASModeAsInput,
		OutputForPlanner:               true,
		MaxFamCandidates:               10_000,
		MaxFamGroups:                   10_000,
	}
}

// Load reads and validates a Config from a YAML file, starting from
// Default() so an omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct-tag constraints (SASMode enum, non-negative FAM
// limits) and the §6 "exactly one writer selected" rule.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	selected := boolCount(c.OutputForPlanner, c.OutputHDDL, c.OutputSASPlus)
	if selected != 1 {
		return fmt.Errorf("invalid config: exactly one of output_for_planner/output_hddl/output_sas_plus must be set, got %d", selected)
	}
	return nil
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
