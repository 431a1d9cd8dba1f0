// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ground sequences HT, PG, TDG, grounded reachability, FAM, SAS+,
// and h² into the fixpoint loop described by the surrounding packages'
// own doc comments ("re-running this after simplification may produce new
// pruning"): the Driver is the common caller every other internal package
// assumed but none of them provided on their own.
package ground

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/htnground/internal/config"
	"github.com/AleutianAI/htnground/internal/domain"
	"github.com/AleutianAI/htnground/internal/fam"
	"github.com/AleutianAI/htnground/internal/h2"
	"github.com/AleutianAI/htnground/internal/httyping"
	"github.com/AleutianAI/htnground/internal/planninggraph"
	"github.com/AleutianAI/htnground/internal/reachability"
	"github.com/AleutianAI/htnground/internal/sasplus"
	"github.com/AleutianAI/htnground/internal/simplify"
	"github.com/AleutianAI/htnground/internal/taskgraph"
	"github.com/AleutianAI/htnground/pkg/logging"
)

// maxFixpointIterations bounds the FAM/SAS+/h²/simplify loop. §4.8 expects
// this to settle in a handful of rounds for any domain the budget-sized
// grounder targets; a run that doesn't converge by here is a bug, not a
// slow domain, but a hard cap keeps a Driver call from spinning forever.
const maxFixpointIterations = 25

// Summary is everything a caller (a writer, a test, a future CLI) needs
// out of one grounding run.
type Summary struct {
	Domain     *domain.Domain
	State      *reachability.State
	GoalFacts  []domain.FactID
	SASResult  *sasplus.Result
	Mutexes    []h2.Mutex
	Invariants []h2.Invariant

	// Unreachable is set instead of returning an error when the initial
	// abstract task has no grounding, or a goal fact can never hold — per
	// §7's "unreachable goal: exit cleanly with a diagnostic, not a
	// failure" contract.
	Unreachable bool
	Reason      string

	Iterations int
}

// Driver runs one grounding invocation end to end.
type Driver struct {
	Config config.Config
	Cache  *ResultCache
	Tel    *Telemetry
}

// New builds a Driver. cache may be nil (no memoization); tel may be nil
// (no telemetry).
func New(cfg config.Config, cache *ResultCache, tel *Telemetry) *Driver {
	return &Driver{Config: cfg, Cache: cache, Tel: tel}
}

// Ground grounds dom/problem under d.Config, returning a Summary. A nil
// error with Summary.Unreachable set means the problem was determined
// unreachable; that is a successful run, not a failure (§7).
func (d *Driver) Ground(ctx context.Context, dom *domain.Domain, problem *domain.Problem) (*Summary, error) {
	runID := uuid.NewString()
	runLogger := logging.ForRun(runID, logging.LevelInfo)
	defer runLogger.Close()
	logger := runLogger.Slog()

	if d.Cache == nil {
		return d.ground(ctx, logger, dom, problem)
	}

	key := Key(fingerprint(dom, problem), d.Config)
	if cached, ok := d.Cache.Get(key); ok {
		if d.Tel != nil {
			d.Tel.RecordCacheResult(ctx, true)
		}
		return cached, nil
	}
	if d.Tel != nil {
		d.Tel.RecordCacheResult(ctx, false)
	}
	summary, err := d.ground(ctx, logger, dom, problem)
	if err == nil {
		d.Cache.Put(logger, key, summary)
	}
	return summary, err
}

func (d *Driver) ground(ctx context.Context, logger *slog.Logger, dom *domain.Domain, problem *domain.Problem) (*Summary, error) {
	cfg := d.Config

	workDom, initialTaskID := d.liftedTransforms(dom, problem)

	ctx, end := d.startPhase(ctx, phaseHT)
	typingOpt := httyping.Options{
		InclusionDedup:             true,
		StaticPreconditionChecking: cfg.WithStaticPreconditionChecking,
	}
	typing, err := httyping.Build(logger, workDom, problem, typingOpt)
	end(err)
	if err != nil {
		return nil, NewPhaseError(phaseHT, err)
	}

	ctx, end = d.startPhase(ctx, phasePG)
	pg := planninggraph.New(logger, workDom, typing, planninggraph.Options{
		EnableHierarchyTyping:       cfg.EnableHierarchyTyping,
		EnableFutureSatisfiability:  true,
		FutureCachingByPrecondition: cfg.FutureCachingByPrecondition,
	})
	pg.Seed(problem.InitialFacts)
	pg.Run()
	pg.ResolveDeleteEffects()
	end(nil)
	if d.Tel != nil {
		d.Tel.RecordCounts(ctx, phasePG, pg.Facts().Len(), len(pg.Primitives()))
	}

	var abstracts []*domain.GroundedAbstract
	var methods []*domain.GroundedMethod
	initialAbstract := reachability.NoInitialAbstract

	if problem.IsHierarchical() {
		ctx, end = d.startPhase(ctx, phaseTDG)
		tdg := taskgraph.New(logger, workDom)
		tdg.SeedPrimitives(pg.Primitives())
		tdg.Run()
		end(nil)

		abstracts = tdg.Abstracts()
		methods = tdg.Methods()
		found := false
		for _, a := range abstracts {
			if a.Task == initialTaskID && sameArgs(a.Args, problem.InitialTask.Args) {
				initialAbstract = a.GroundedNo
				found = true
				break
			}
		}
		if !found {
			return &Summary{
				Domain:      workDom,
				Unreachable: true,
				Reason:      "no method grounds the initial abstract task",
			}, nil
		}
	}

	goalIDs, unreachableGoal := resolveGoalFacts(pg.Facts(), problem.GoalFacts)
	if unreachableGoal {
		return &Summary{
			Domain:      workDom,
			Unreachable: true,
			Reason:      "a goal fact is never derivable",
		}, nil
	}

	state := reachability.NewState(workDom, pg.Facts(), pg.Primitives(), abstracts, methods, initialAbstract, goalIDs)
	state.SeedReachedFacts(problem.InitialFacts)

	ctx, end = d.startPhase(ctx, phaseReachability)
	reachability.RunFixpoint(state, problem.InitialFacts, problem.IsHierarchical())
	end(nil)
	if d.Tel != nil {
		d.Tel.RecordCounts(ctx, phaseReachability, len(state.Facts.Live()), livePrimitiveCount(state))
	}

	if problem.IsHierarchical() && state.PrunedAbstract[initialAbstract] {
		return &Summary{Domain: workDom, State: state, Unreachable: true,
			Reason: "the initial abstract task is unreachable"}, nil
	}

	initialSet := factSet(pg.Facts(), problem.InitialFacts)

	var sasResult *sasplus.Result
	var mutexes []h2.Mutex
	var invariants []h2.Invariant
	iterations := 0

	for ; iterations < maxFixpointIterations; iterations++ {
		if d.Tel != nil {
			d.Tel.RecordIteration(ctx, phaseSimplify)
		}
		changed := false

		if cfg.ComputeInvariants {
			res, mx, inv, passChanged, err := d.invariantPass(ctx, logger, workDom, state, initialSet)
			if err != nil {
				return nil, err
			}
			sasResult, mutexes, invariants = res, mx, inv
			changed = changed || passChanged
		}

		if changed {
			reachability.RunFixpoint(state, problem.InitialFacts, problem.IsHierarchical())
		}

		simplifyChanged := d.simplifyPass(state, initialSet)
		changed = changed || simplifyChanged

		if !changed {
			break
		}
	}

	goalUnreachable := false
	for _, gid := range goalIDs {
		if state.Facts.IsPruned(gid) {
			if !initialSet[gid] {
				goalUnreachable = true
			}
			continue
		}
		if !state.IsFactReached(gid) {
			goalUnreachable = true
		}
	}
	if goalUnreachable {
		return &Summary{Domain: workDom, State: state, Unreachable: true,
			Reason: "a goal fact is unreachable under the pruned domain"}, nil
	}

	return &Summary{
		Domain:     workDom,
		State:      state,
		GoalFacts:  goalIDs,
		SASResult:  sasResult,
		Mutexes:    mutexes,
		Invariants: invariants,
		Iterations: iterations,
	}, nil
}

// liftedTransforms applies the domain-level (pre-grounding) simplification
// passes: conditional effect compilation always runs (PG cannot ground a
// conditional effect directly), the rest are gated by config. Conditional
// effect compilation inserts new primitive tasks ahead of every existing
// abstract task, so the problem's initial abstract task id is remapped by
// the same shift before any later pass (which only ever appends new tasks,
// never reorders) consults it.
func (d *Driver) liftedTransforms(dom *domain.Domain, problem *domain.Problem) (*domain.Domain, domain.TaskID) {
	cfg := d.Config
	originalTaskCount := len(dom.Tasks)
	workDom := simplify.CompileConditionalEffects(dom)
	shift := domain.TaskID(len(workDom.Tasks) - originalTaskCount)

	var initialTaskID domain.TaskID
	if problem.IsHierarchical() {
		initialTaskID = problem.InitialTask.Task
		if int(initialTaskID) >= dom.NumPrimitives {
			initialTaskID += shift
		}
	}

	if cfg.PruneEmptyMethodPreconditions {
		simplify.PruneEmptyMethodPreconditions(workDom)
	}
	if problem.IsHierarchical() && cfg.ExpandChoicelessAbstractTasks {
		simplify.InlineOneMethodAbstracts(workDom, initialTaskID, cfg.KeepTwoRegularisation)
	}
	if cfg.AtMostTwoTasksPerMethod {
		simplify.RegularizeToTwoSubtasks(workDom)
	}
	return workDom, initialTaskID
}

// invariantPass runs FAM, SAS+ synthesis, ground invariant analysis, and
// (if enabled) h², returning whether anything new got pruned.
func (d *Driver) invariantPass(ctx context.Context, logger *slog.Logger, dom *domain.Domain, state *reachability.State, initial map[domain.FactID]bool) (*sasplus.Result, []h2.Mutex, []h2.Invariant, bool, error) {
	cfg := d.Config
	ctx, end := d.startPhase(ctx, phaseFAM)
	model, err := fam.BuildModel(logger, dom)
	if err != nil {
		end(err)
		return nil, nil, nil, false, NewPhaseError(phaseFAM, err)
	}
	groups, err := (fam.DefaultEngine{}).InferGroups(model, fam.Limits{
		MaxCandidates: cfg.MaxFamCandidates,
		MaxGroups:     cfg.MaxFamGroups,
	})
	end(err)
	if err != nil {
		return nil, nil, nil, false, NewPhaseError(phaseFAM, err)
	}
	groups = fam.SubsumptionPrune(groups)

	_, end = d.startPhase(ctx, phaseSASPlus)
	candidates := sasplus.InstantiateGroundGroups(state.Facts, groups)
	candidates = append(candidates, sasplus.AugmentWithMutexPredicates(state.Facts, dom)...)
	res := sasplus.GreedyCover(candidates, initial)
	sasplus.AddSingletonVariables(res, state.Facts)
	sasplus.MarkNoneOfThem(res, initial)
	changed := sasplus.RunGroundInvariantAnalysis(state.Primitives, state.PrunedPrimitive, res)
	end(nil)

	var mutexes []h2.Mutex
	var invariants []h2.Invariant
	if cfg.H2Mutexes {
		ctx, end = d.startPhase(ctx, phaseH2)
		enc := h2.BuildEncoding(state.Primitives, state.PrunedPrimitive, res, initial)
		h2res, err := (h2.DefaultEngine{}).Analyze(ctx, enc)
		if err != nil {
			end(err)
			return res, nil, nil, changed, NewPhaseError(phaseH2, err)
		}
		var survivors []int
		mutexes, survivors, invariants = h2.Translate(enc, h2res)
		end(nil)
		if d.Tel != nil {
			d.Tel.RecordMutexes(ctx, len(mutexes))
		}

		survivorSet := make(map[int]bool, len(survivors))
		for _, i := range survivors {
			survivorSet[i] = true
		}
		for i := range state.Primitives {
			if !state.PrunedPrimitive[i] && !survivorSet[i] {
				state.PrunedPrimitive[i] = true
				changed = true
			}
		}
	}

	return res, mutexes, invariants, changed, nil
}

// simplifyPass runs the grounded-level simplification passes once;
// ResolveEffectPriority and PruneUselessFacts/UnifyDuplicateActions/
// CompactConsecutivePrimitives are all idempotent (§8), so running a pass
// the fixpoint loop doesn't need again this round is harmless, not just
// safe.
func (d *Driver) simplifyPass(state *reachability.State, initial map[domain.FactID]bool) bool {
	cfg := d.Config
	before := livePrimitiveCount(state)
	beforeFacts := len(state.Facts.Live())

	simplify.ResolveEffectPriority(state)
	if cfg.RemoveUselessPredicates {
		simplify.PruneUselessFacts(state, initial)
	}
	if cfg.CompactConsecutivePrimitives {
		simplify.CompactConsecutivePrimitives(state)
	}
	if cfg.RemoveDuplicateActions {
		simplify.UnifyDuplicateActions(state)
	}

	return livePrimitiveCount(state) != before || len(state.Facts.Live()) != beforeFacts
}

func (d *Driver) startPhase(ctx context.Context, phase string) (context.Context, func(error)) {
	if d.Tel == nil {
		return ctx, func(error) {}
	}
	return d.Tel.StartPhase(ctx, phase)
}

func livePrimitiveCount(state *reachability.State) int {
	n := 0
	for _, pruned := range state.PrunedPrimitive {
		if !pruned {
			n++
		}
	}
	return n
}

func sameArgs(a, b []domain.ConstantID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// resolveGoalFacts looks every goal fact up in facts (it interns nothing)
// and reports whether any goal fact was never produced by PG at all, the
// "unreachable and absent" boundary case of §8; in that case it returns no
// ids.
func resolveGoalFacts(facts *domain.FactTable, goals []domain.Fact) ([]domain.FactID, bool) {
	ids := make([]domain.FactID, 0, len(goals))
	for _, g := range goals {
		id, ok := facts.Lookup(g)
		if !ok {
			return nil, true
		}
		ids = append(ids, id)
	}
	return ids, false
}

func factSet(facts *domain.FactTable, fs []domain.Fact) map[domain.FactID]bool {
	set := make(map[domain.FactID]bool, len(fs))
	for _, f := range fs {
		if id, ok := facts.Lookup(f); ok {
			set[id] = true
		}
	}
	return set
}

// fingerprint builds a deterministic string key for the cache from a
// domain/problem pair. It intentionally covers only the sizes and names
// that change when the input actually changes, not pointer identity.
func fingerprint(dom *domain.Domain, problem *domain.Problem) string {
	var b []byte
	b = append(b, []byte("tasks:")...)
	for _, t := range dom.Tasks {
		b = append(b, t.Name...)
		b = append(b, '|')
	}
	b = append(b, []byte("init:")...)
	for _, f := range problem.InitialFacts {
		b = appendFact(b, f)
	}
	b = append(b, []byte("goal:")...)
	for _, f := range problem.GoalFacts {
		b = appendFact(b, f)
	}
	return string(b)
}

func appendFact(b []byte, f domain.Fact) []byte {
	b = append(b, byte(f.Predicate))
	for _, a := range f.Args {
		b = append(b, byte(a), byte(a>>8))
	}
	return append(b, '|')
}
