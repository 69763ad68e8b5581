// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner adapts a language model into the engine's two planner
// calls: plan generation and answer formatting. The engine treats both as
// untrusted input; this package only handles transport and prompt assembly.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

var tracer = otel.Tracer("aleutian.analyst.planner")

// =============================================================================
// LLM Planner
// =============================================================================

const planSystemPrompt = `You are a data analysis planner. Given a task and a
description of the available data, produce a JSON execution plan.

The plan is a JSON object:
  {"steps": [...], "answer": {...}}

Each step is:
  {"action": "<operation>", "parameters": {...}, "description": "...", "data_key": "<unique key>"}

Available operations: %s

A step's parameters may reference an earlier step's data_key to consume its
result. Never reference a later step.

The "answer" object declares the final shape:
  {"shape": "list", "count": N}            for an ordered list of N answers
  {"shape": "object", "keys": ["a", "b"]}  for named answers

Respond with the JSON plan only. No prose, no markdown.`

const formatSystemPrompt = `You are finalizing a data analysis task. You are
given the accumulated results of an executed plan and the required answer
shape. Compose the final answer.

Respond with JSON only: a list for list shape, an object with exactly the
requested keys for object shape. Use the result values verbatim; do not
round, reformat, or invent values.`

// LLMPlanner drives plan generation and answer formatting through a
// langchaingo model.
//
// Description:
//
//	Each call is a single completion, no retry loop: the engine's
//	validation and fallback layers own recovery. Implements
//	engine.AnswerFormatter.
//
// Thread Safety: Safe for concurrent use if the underlying model is.
type LLMPlanner struct {
	model   llms.Model
	opNames []string
}

// NewLLMPlanner creates a planner over a model and the catalog's operation
// names (advertised in the planning prompt).
func NewLLMPlanner(model llms.Model, opNames []string) *LLMPlanner {
	return &LLMPlanner{model: model, opNames: opNames}
}

// GeneratePlan asks the model for an execution plan.
//
// Description:
//
//	The returned plan is parsed but NOT validated; callers must run
//	engine.ValidatePlan before dispatch.
//
// Inputs:
//
//	ctx - Cancellation.
//	task - The natural-language task description.
//	dataShape - A textual description of the available data (column names,
//	            row count, source kind).
//
// Outputs:
//
//	*engine.Plan - The parsed candidate plan.
//	error - Non-nil on transport failure or unparseable model output.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, task, dataShape string) (*engine.Plan, error) {
	ctx, span := tracer.Start(ctx, "LLMPlanner.GeneratePlan")
	defer span.End()

	system := fmt.Sprintf(planSystemPrompt, strings.Join(p.opNames, ", "))
	user := fmt.Sprintf("Task:\n%s\n\nAvailable data:\n%s", task, dataShape)

	raw, err := p.complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	var plan engine.Plan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		return nil, fmt.Errorf("planner returned unparseable plan: %w", err)
	}
	slog.Debug("plan generated",
		slog.Int("steps", len(plan.Steps)),
		slog.String("shape", string(plan.Answer.Shape)),
	)
	return &plan, nil
}

// FormatAnswer implements engine.AnswerFormatter.
func (p *LLMPlanner) FormatAnswer(ctx context.Context, contextSummary string, shape engine.AnswerSpec) (string, error) {
	ctx, span := tracer.Start(ctx, "LLMPlanner.FormatAnswer")
	defer span.End()

	shapeDesc := fmt.Sprintf("an ordered JSON list of exactly %d values", shape.Count)
	if shape.Shape == engine.ShapeObject {
		shapeDesc = fmt.Sprintf("a JSON object with exactly these keys: %s",
			strings.Join(shape.Keys, ", "))
	}
	user := fmt.Sprintf("Results:\n%s\nRequired shape: %s", contextSummary, shapeDesc)

	return p.complete(ctx, formatSystemPrompt, user)
}

func (p *LLMPlanner) complete(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}
	resp, err := p.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// extractJSON strips a surrounding markdown fence and any prose before the
// first brace, tolerating models that narrate despite instructions.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.IndexAny(s, "{["); idx > 0 {
		s = s[idx:]
	}
	return strings.TrimSpace(s)
}
