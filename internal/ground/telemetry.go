// Copyright (C) 2025 HTN Ground Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ground

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrTelemetryInit is returned when a Telemetry sink's OpenTelemetry
// instruments fail to initialize.
var ErrTelemetryInit = errors.New("ground: telemetry initialization failed")

// phase names used for tracer spans and the "phase" metric attribute.
const (
	phaseHT           = "ht"
	phasePG           = "pg"
	phaseTDG          = "tdg"
	phaseReachability = "reachability"
	phaseFAM          = "fam"
	phaseSASPlus      = "sasplus"
	phaseH2           = "h2"
	phaseSimplify     = "simplify"
)

// Telemetry wraps the grounding tracer and metric instruments. A Driver
// receives its Telemetry from the caller (see New) and never closes it;
// the caller that built it with NewTelemetry calls Close.
type Telemetry struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
	tracer   trace.Tracer

	phaseDuration   metric.Float64Histogram
	passIterations  metric.Int64Counter
	factsReached    metric.Int64UpDownCounter
	primitivesLive  metric.Int64UpDownCounter
	mutexesFound    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewTelemetry builds a Telemetry backed by a fresh prometheus.Registry, so
// a caller (a test, or a future metrics-serving CLI) can Gather() it without
// standing up an HTTP server.
func NewTelemetry(serviceVersion string) (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, errors.Join(ErrTelemetryInit, err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	meter := provider.Meter(
		"github.com/AleutianAI/htnground/internal/ground",
		metric.WithInstrumentationVersion(serviceVersion),
	)
	tracer := otel.Tracer("github.com/AleutianAI/htnground/internal/ground")

	t := &Telemetry{registry: registry, provider: provider, tracer: tracer}
	if err := t.initInstruments(meter); err != nil {
		return nil, errors.Join(ErrTelemetryInit, err)
	}
	return t, nil
}

func (t *Telemetry) initInstruments(meter metric.Meter) error {
	var err error
	t.phaseDuration, err = meter.Float64Histogram(
		"ground.phase.duration",
		metric.WithDescription("Wall time spent in one grounding phase"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	t.passIterations, err = meter.Int64Counter(
		"ground.pass.iterations",
		metric.WithDescription("Number of fixpoint-loop iterations run"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return err
	}
	t.factsReached, err = meter.Int64UpDownCounter(
		"ground.facts.reached",
		metric.WithDescription("Live ground facts after the current phase"),
		metric.WithUnit("{fact}"),
	)
	if err != nil {
		return err
	}
	t.primitivesLive, err = meter.Int64UpDownCounter(
		"ground.primitives.live",
		metric.WithDescription("Live grounded primitives after the current phase"),
		metric.WithUnit("{primitive}"),
	)
	if err != nil {
		return err
	}
	t.mutexesFound, err = meter.Int64Counter(
		"ground.h2.mutexes",
		metric.WithDescription("h2 mutex pairs discovered"),
		metric.WithUnit("{mutex}"),
	)
	if err != nil {
		return err
	}
	t.cacheHits, err = meter.Int64Counter(
		"ground.cache.hits",
		metric.WithDescription("Grounding result cache hits"),
	)
	if err != nil {
		return err
	}
	t.cacheMisses, err = meter.Int64Counter(
		"ground.cache.misses",
		metric.WithDescription("Grounding result cache misses"),
	)
	return err
}

// Registry exposes the underlying prometheus.Registry for Gather() in
// tests, or for a future CLI to serve on an HTTP /metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// Close shuts down the meter provider, flushing any buffered readings.
func (t *Telemetry) Close(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// StartPhase opens a trace span for a grounding phase and returns a func
// that records its duration and ends the span, along with the span's
// context. Callers defer the returned func:
//
//	ctx, end := tel.StartPhase(ctx, phasePG)
//	defer end(nil)
func (t *Telemetry) StartPhase(ctx context.Context, phase string) (context.Context, func(err error)) {
	spanCtx, span := t.tracer.Start(ctx, phase)
	start := phaseClock()
	return spanCtx, func(err error) {
		elapsed := phaseClock() - start
		t.phaseDuration.Record(spanCtx, elapsed, metric.WithAttributes(phaseAttr(phase)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordIteration records one fixpoint-loop iteration for phase.
func (t *Telemetry) RecordIteration(ctx context.Context, phase string) {
	t.passIterations.Add(ctx, 1, metric.WithAttributes(phaseAttr(phase)))
}

// RecordCounts records the live fact/primitive counts after a phase.
func (t *Telemetry) RecordCounts(ctx context.Context, phase string, facts, primitives int) {
	attrs := metric.WithAttributes(phaseAttr(phase))
	t.factsReached.Add(ctx, int64(facts), attrs)
	t.primitivesLive.Add(ctx, int64(primitives), attrs)
}

// RecordMutexes records how many h2 mutex pairs a grounding run found.
func (t *Telemetry) RecordMutexes(ctx context.Context, n int) {
	t.mutexesFound.Add(ctx, int64(n))
}

// RecordCacheResult records a ResultCache lookup outcome.
func (t *Telemetry) RecordCacheResult(ctx context.Context, hit bool) {
	if hit {
		t.cacheHits.Add(ctx, 1)
		return
	}
	t.cacheMisses.Add(ctx, 1)
}

func phaseAttr(phase string) attribute.KeyValue {
	return attribute.String("phase", phase)
}

// phaseClock returns seconds since the Unix epoch as a float, for phase
// duration arithmetic. Wrapped so the one call to time.Now() in this
// package is easy to find.
func phaseClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
