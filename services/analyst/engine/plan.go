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
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Plan Model
// =============================================================================

// AnswerShape declares how the final answer must be shaped.
type AnswerShape string

const (
	// ShapeList requests an ordered JSON array of answers.
	ShapeList AnswerShape = "list"

	// ShapeObject requests a JSON object with named answers.
	ShapeObject AnswerShape = "object"
)

// AnswerSpec declares the task's requested output shape.
type AnswerSpec struct {
	// Shape selects list or object output.
	Shape AnswerShape `json:"shape" validate:"required,oneof=list object"`

	// Count is the expected number of answers for list shape.
	Count int `json:"count,omitempty" validate:"min=0"`

	// Keys names the expected answers for object shape.
	Keys []string `json:"keys,omitempty"`

	// Bindings optionally pins an answer slot (the slot's ordinal as a
	// string for lists, the key name for objects) to a context key. Slots
	// without a binding fall back to the probing heuristics in
	// synthesize.go.
	Bindings map[string]string `json:"bindings,omitempty"`
}

// Slots returns the number of requested answer slots.
func (a AnswerSpec) Slots() int {
	if a.Shape == ShapeObject {
		return len(a.Keys)
	}
	return a.Count
}

// Step is one entry of a plan.
//
// Description:
//
//	The operation name must match a catalog entry. Parameters are a
//	heterogeneous mapping straight from the planner; string values may
//	reference an earlier step's context key. Description is diagnostic
//	only and never parsed.
type Step struct {
	Op          string         `json:"action" validate:"required"`
	Params      map[string]any `json:"parameters"`
	Description string         `json:"description,omitempty"`
	ContextKey  string         `json:"data_key" validate:"required"`
}

// Plan is the ordered sequence of steps plus the declared answer shape.
// Treated as untrusted external input; ValidatePlan must pass before any
// step runs.
type Plan struct {
	Steps  []Step     `json:"steps" validate:"required,min=1,dive"`
	Answer AnswerSpec `json:"answer" validate:"required"`
}

// =============================================================================
// Plan Validation
// =============================================================================

var planValidator = validator.New()

// ValidatePlan checks an untrusted plan before dispatch.
//
// Description:
//
//	Structural validation first (required fields, known shape), then the
//	semantic invariants the tag language cannot express: every operation
//	name must exist in the catalog, context keys must be unique, and no
//	step may reference a later step's context key (the plan is a DAG
//	collapsed into a total order by the planner; the engine never
//	re-orders it).
//
//	Any violation rejects the whole plan — no step runs.
//
// Inputs:
//
//	plan - The candidate plan. Must not be nil.
//	catalog - The operation registry to check names against.
//
// Outputs:
//
//	error - Non-nil describing the first violation found.
func ValidatePlan(plan *Plan, catalog *Catalog) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}
	if err := planValidator.Struct(plan); err != nil {
		return fmt.Errorf("malformed plan structure: %w", err)
	}
	if plan.Answer.Shape == ShapeList && plan.Answer.Count < 1 {
		return fmt.Errorf("list answer shape requires a positive count")
	}
	if plan.Answer.Shape == ShapeObject && len(plan.Answer.Keys) == 0 {
		return fmt.Errorf("object answer shape requires at least one key")
	}

	keyIndex := make(map[string]int, len(plan.Steps))
	for i, step := range plan.Steps {
		if _, ok := catalog.Lookup(step.Op); !ok {
			return fmt.Errorf("step %d: unknown operation %q", i+1, step.Op)
		}
		if prev, dup := keyIndex[step.ContextKey]; dup {
			return fmt.Errorf("step %d: duplicate context key %q (first used by step %d)",
				i+1, step.ContextKey, prev+1)
		}
		keyIndex[step.ContextKey] = i
	}

	for i, step := range plan.Steps {
		if ref, ok := findForwardReference(step.Params, keyIndex, i); ok {
			return fmt.Errorf("step %d: forward reference to context key %q", i+1, ref)
		}
	}

	return nil
}

// findForwardReference walks a parameter mapping looking for string values
// that name a context key produced by the same or a later step.
func findForwardReference(v any, keyIndex map[string]int, current int) (string, bool) {
	switch val := v.(type) {
	case string:
		if idx, ok := keyIndex[val]; ok && idx >= current {
			return val, true
		}
	case map[string]any:
		for _, inner := range val {
			if ref, ok := findForwardReference(inner, keyIndex, current); ok {
				return ref, true
			}
		}
	case []any:
		for _, inner := range val {
			if ref, ok := findForwardReference(inner, keyIndex, current); ok {
				return ref, true
			}
		}
	}
	return "", false
}
