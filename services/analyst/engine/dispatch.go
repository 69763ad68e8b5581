// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var dispatchTracer = otel.Tracer("aleutian.analyst.engine")

// =============================================================================
// Step State Machine
// =============================================================================

// StepState is the lifecycle state of one plan step.
type StepState string

const (
	StepPending   StepState = "PENDING"
	StepRunning   StepState = "RUNNING"
	StepSucceeded StepState = "SUCCEEDED"
	StepFailed    StepState = "FAILED"
)

// StepOutcome is the dispatch record of one step.
type StepOutcome struct {
	Index      int
	Op         string
	ContextKey string
	State      StepState
	Err        *EngineError
	Duration   time.Duration
}

// DispatchReport summarizes one plan dispatch.
type DispatchReport struct {
	Outcomes []StepOutcome

	// TimedOut is true when the deadline expired before every step ran.
	TimedOut bool
}

// Failed returns the outcomes of steps that did not succeed.
func (r *DispatchReport) Failed() []StepOutcome {
	var out []StepOutcome
	for _, o := range r.Outcomes {
		if o.State == StepFailed {
			out = append(out, o)
		}
	}
	return out
}

// =============================================================================
// Plan Dispatcher
// =============================================================================

// tableParamKeys are the parameter names under which a step may reference a
// context key holding the table it wants to operate on.
var tableParamKeys = []string{"table", "df", "data", "dataset", "input"}

// Dispatcher executes validated plans against the operation catalog.
//
// Description:
//
//	Strictly sequential, single-threaded per task: steps may depend on
//	each other's outputs and plans are short linear sequences, so there is
//	no correctness or throughput motivation for parallel execution.
//
//	Failure isolation is the core contract: any normalization failure,
//	coercion failure, or operation error transitions the step to FAILED
//	and writes an ErrorResult under its context key, then dispatch
//	continues. A step whose parameters reference a context key holding an
//	ErrorResult fails fast with an upstream tool error instead of
//	operating on the error value.
//
//	Cancellation is deadline-based and cooperative at step granularity: a
//	step in flight runs to completion, remaining steps are marked FAILED
//	with a timeout error, and synthesis proceeds with whatever context
//	exists.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
// Each Dispatch call owns its plan and store exclusively.
type Dispatcher struct {
	catalog *Catalog
}

// NewDispatcher creates a dispatcher over a catalog.
func NewDispatcher(catalog *Catalog) *Dispatcher {
	return &Dispatcher{catalog: catalog}
}

// Dispatch runs every step of a validated plan.
//
// Description:
//
//	The plan must already have passed ValidatePlan. Each step's write is
//	atomic: either the full Result or an ErrorResult lands under its
//	context key, never a partial table. Dispatch itself returns an error
//	only for dispatcher bugs (context key collision); step failures are
//	reported through the outcomes and the store.
//
// Inputs:
//
//	ctx - Carries the plan deadline. Checked between steps and passed to
//	      each operation.
//	plan - The validated plan.
//	base - The task's resolved input table; steps that do not reference a
//	       context table operate on this. May be nil for plans that only
//	       delegate remotely.
//	store - The task's context store, owned exclusively by this call.
//
// Outputs:
//
//	*DispatchReport - Per-step outcomes and the timeout flag.
//	error - Non-nil only for dispatcher-internal failures.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *Plan, base *Table, store *ContextStore) (*DispatchReport, error) {
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))

	report := &DispatchReport{Outcomes: make([]StepOutcome, 0, len(plan.Steps))}

	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			report.TimedOut = true
			timeoutErr := Errf(KindTimeout, "plan deadline exceeded before step %d (%s)", i+1, step.Op)
			if putErr := store.Put(step.ContextKey, ErrResult(timeoutErr)); putErr != nil {
				return report, putErr
			}
			report.Outcomes = append(report.Outcomes, StepOutcome{
				Index: i, Op: step.Op, ContextKey: step.ContextKey,
				State: StepFailed, Err: timeoutErr,
			})
			continue
		}

		start := time.Now()
		result, runErr := d.runStep(ctx, step, base, store)
		elapsed := time.Since(start)
		RecordStep(step.Op, elapsed.Seconds(), runErr)

		outcome := StepOutcome{
			Index: i, Op: step.Op, ContextKey: step.ContextKey,
			State: StepSucceeded, Duration: elapsed,
		}
		if runErr != nil {
			outcome.State = StepFailed
			outcome.Err = AsEngineError(runErr)
			result = ErrResult(runErr)
			slog.Warn("plan step failed",
				slog.Int("step", i+1),
				slog.String("operation", step.Op),
				slog.String("context_key", step.ContextKey),
				slog.String("kind", string(outcome.Err.Kind)),
				slog.String("error", outcome.Err.Message),
			)
		} else {
			slog.Debug("plan step succeeded",
				slog.Int("step", i+1),
				slog.String("operation", step.Op),
				slog.String("context_key", step.ContextKey),
				slog.String("result_kind", string(result.Kind)),
				slog.Duration("duration", elapsed),
			)
		}

		if putErr := store.Put(step.ContextKey, result); putErr != nil {
			return report, putErr
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	RecordPlan(report.TimedOut)
	return report, nil
}

// runStep executes a single step: dependency resolution, parameter
// normalization, then the catalog operation.
func (d *Dispatcher) runStep(ctx context.Context, step Step, base *Table, store *ContextStore) (Result, error) {
	op, ok := d.catalog.Lookup(step.Op)
	if !ok {
		// Unreachable after ValidatePlan; kept as a guard for direct callers.
		return Result{}, Errf(KindParameter, "unknown operation %q", step.Op)
	}

	params, table, err := resolveReferences(step.Params, base, store)
	if err != nil {
		return Result{}, err
	}

	var columns []string
	if op.Spec.NeedsTable {
		if table == nil {
			return Result{}, Errf(KindParameter,
				"operation %s requires a table but none is available", step.Op)
		}
		columns = table.Columns
	}

	canonical, err := NormalizeParams(op.Spec, params, columns)
	if err != nil {
		return Result{}, err
	}

	return op.Run(ctx, OpInput{Table: table, Params: canonical})
}

// resolveReferences substitutes context-key references in a step's raw
// parameters.
//
// Description:
//
//	Walks the parameter mapping recursively. A string value naming a
//	written context key is replaced by that entry's value: scalars
//	substitute in place, a table referenced under one of the table
//	parameter names selects that table as the step's input (and the
//	parameter is consumed), and an ErrorResult fails the step fast with an
//	upstream tool error naming the failed dependency. Image entries are
//	never substitutable.
func resolveReferences(raw map[string]any, base *Table, store *ContextStore) (map[string]any, *Table, error) {
	table := base
	out := make(map[string]any, len(raw))

	for key, value := range raw {
		resolved, err := substituteValue(value, store)
		if err != nil {
			return nil, nil, err
		}
		if t, isTable := resolved.(*Table); isTable {
			if isTableParamKey(key) {
				table = t
				continue
			}
			return nil, nil, Errf(KindParameter,
				"parameter %q references a table result; tables may only be passed under a table parameter", key)
		}
		out[key] = resolved
	}
	return out, table, nil
}

func isTableParamKey(key string) bool {
	for _, k := range tableParamKeys {
		if key == k {
			return true
		}
	}
	return false
}

func substituteValue(v any, store *ContextStore) (any, error) {
	switch val := v.(type) {
	case string:
		result, ok := store.Get(val)
		if !ok {
			return v, nil
		}
		switch result.Kind {
		case KindError:
			return nil, WrapErr(KindUpstreamTool, result.Err,
				"dependency step %q failed", val)
		case KindScalar:
			return result.Scalar, nil
		case KindTable:
			return result.Table, nil
		case KindImage:
			return nil, Errf(KindParameter,
				"dependency %q holds an image and cannot be used as an operation input", val)
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			resolved, err := substituteValue(inner, store)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			resolved, err := substituteValue(inner, store)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}
	return v, nil
}
