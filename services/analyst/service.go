// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyst wires the plan execution engine, the planner, and the
// ingest layer into the task execution service exposed over HTTP.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/ingest"
)

var tracer = otel.Tracer("aleutian.analyst")

// =============================================================================
// Service
// =============================================================================

// Planner is the external planning collaborator: plan generation plus the
// answer formatting call the synthesizer uses.
type Planner interface {
	GeneratePlan(ctx context.Context, task, dataShape string) (*engine.Plan, error)
	engine.AnswerFormatter
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	// PlanDeadline bounds a whole plan's wall-clock execution.
	PlanDeadline time.Duration

	// FetchTimeout bounds URL data downloads.
	FetchTimeout time.Duration
}

// DefaultServiceConfig returns the standard settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PlanDeadline: 2 * time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Service executes analytical tasks end to end: resolve data, obtain a
// plan, dispatch it, synthesize the answer.
//
// Thread Safety: Safe for concurrent use; each task gets its own plan and
// context store.
type Service struct {
	cfg         ServiceConfig
	catalog     *engine.Catalog
	dispatcher  *engine.Dispatcher
	synthesizer *engine.Synthesizer
	planner     Planner
	fetcher     *ingest.Fetcher
}

// NewService wires the service together.
//
// Inputs:
//
//	cfg - Service settings.
//	planner - The planning collaborator. Must not be nil.
//	collab - Engine collaborators (chart renderer, remote query engine).
//
// Outputs:
//
//	*Service - The ready service.
func NewService(cfg ServiceConfig, planner Planner, collab engine.Collaborators) *Service {
	catalog := engine.NewCatalog(collab)
	return &Service{
		cfg:         cfg,
		catalog:     catalog,
		dispatcher:  engine.NewDispatcher(catalog),
		synthesizer: engine.NewSynthesizer(planner),
		planner:     planner,
		fetcher:     ingest.NewFetcher(cfg.FetchTimeout),
	}
}

// ErrPlanUnavailable marks plan-generation failures from the upstream
// planner model, so the request layer can distinguish them from bad input.
var ErrPlanUnavailable = errors.New("plan generation failed")

// Catalog exposes the operation registry, for handlers that advertise the
// available operations.
func (s *Service) Catalog() *engine.Catalog {
	return s.catalog
}

// TaskResult is the outcome of one executed task.
type TaskResult struct {
	// TaskID identifies the execution in logs and traces.
	TaskID string `json:"task_id"`

	// Answer is the final shaped answer: a JSON list or object.
	Answer any `json:"answer"`

	// Steps reports per-step outcomes for diagnostics.
	Steps []StepReport `json:"steps"`

	// TimedOut is true when the plan deadline expired mid-dispatch.
	TimedOut bool `json:"timed_out,omitempty"`
}

// StepReport is the caller-visible record of one dispatched step.
type StepReport struct {
	Op         string `json:"operation"`
	ContextKey string `json:"context_key"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// Execute runs a task against an already-resolved table.
//
// Description:
//
//	When plan is nil the planner is asked for one; either way the plan is
//	validated before any step runs. Plan validation failure is the only
//	task-level failure: step errors are isolated into the context and the
//	answer is synthesized from whatever exists.
//
// Inputs:
//
//	ctx - Request cancellation; the plan deadline is layered on top.
//	task - Natural-language task description.
//	table - The resolved input data. May be nil for purely delegating
//	        plans.
//	plan - Optional caller-supplied plan; nil asks the planner.
//
// Outputs:
//
//	*TaskResult - The shaped answer and per-step diagnostics.
//	error - Non-nil only for plan acquisition or validation failure.
func (s *Service) Execute(ctx context.Context, task string, table *engine.Table, plan *engine.Plan) (*TaskResult, error) {
	taskID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Service.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))

	logger := slog.With(slog.String("task_id", taskID))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		logger = logger.With(slog.String("trace_id", sc.TraceID().String()))
	}
	logger.Info("task accepted",
		slog.Int("task_chars", len(task)),
		slog.Bool("has_plan", plan != nil),
	)

	if plan == nil {
		generated, err := s.planner.GeneratePlan(ctx, task, DescribeTable(table))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPlanUnavailable, err)
		}
		plan = generated
	}
	if err := engine.ValidatePlan(plan, s.catalog); err != nil {
		return nil, fmt.Errorf("rejecting plan: %w", err)
	}

	deadline := s.cfg.PlanDeadline
	if deadline <= 0 {
		deadline = DefaultServiceConfig().PlanDeadline
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	store := engine.NewContextStore()
	report, err := s.dispatcher.Dispatch(dispatchCtx, plan, table, store)
	if err != nil {
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}

	answer := s.synthesizer.Synthesize(ctx, plan, store)

	result := &TaskResult{
		TaskID:   taskID,
		Answer:   answer,
		TimedOut: report.TimedOut,
		Steps:    make([]StepReport, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		sr := StepReport{
			Op:         o.Op,
			ContextKey: o.ContextKey,
			State:      string(o.State),
		}
		if o.Err != nil {
			sr.Error = o.Err.Error()
		}
		result.Steps = append(result.Steps, sr)
	}

	logger.Info("task completed",
		slog.Int("steps", len(result.Steps)),
		slog.Int("failed_steps", len(report.Failed())),
		slog.Bool("timed_out", report.TimedOut),
	)
	return result, nil
}

// ExecuteRaw resolves a raw payload into a table first, then executes.
//
// Inputs:
//
//	payload - Raw bytes: CSV, HTML, or a URL per hint.
//	hint - "csv", "html", or "url"; empty means csv.
func (s *Service) ExecuteRaw(ctx context.Context, task string, payload []byte, hint string, plan *engine.Plan) (*TaskResult, error) {
	table, err := s.fetcher.Resolve(ctx, payload, hint)
	if err != nil {
		return nil, fmt.Errorf("resolving task data: %w", err)
	}
	return s.Execute(ctx, task, table, plan)
}

// DescribeTable builds the textual data shape description handed to the
// planner: column names, row count, and a few sample rows.
func DescribeTable(t *engine.Table) string {
	if t == nil {
		return "no tabular data supplied"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d rows, %d columns\ncolumns: %s\n",
		t.NumRows(), len(t.Columns), strings.Join(t.Columns, ", "))
	limit := t.NumRows()
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		parts := make([]string, len(t.Rows[i]))
		for j, cell := range t.Rows[i] {
			parts[j] = fmt.Sprintf("%v", cell)
		}
		fmt.Fprintf(&sb, "sample row %d: %s\n", i+1, strings.Join(parts, " | "))
	}
	return sb.String()
}
