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
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// =============================================================================
// Answer Synthesis
// =============================================================================

// AnswerFormatter is the planner collaborator's formatting call: given a
// compact context summary and the requested shape, return a candidate final
// answer as raw model text. Invoked at most once per task.
type AnswerFormatter interface {
	FormatAnswer(ctx context.Context, contextSummary string, shape AnswerSpec) (string, error)
}

// Synthesizer produces the final shaped answer from a task's context store.
//
// Description:
//
//	Two-stage protocol. Stage one asks the formatter to compose the answer
//	from a textual context summary and validates the returned value
//	against the requested shape. Stage two is the deterministic fallback:
//	a fixed extraction-heuristic table over the context entries that never
//	raises and always fills every requested slot, so synthesis degrades
//	gracefully rather than failing the task.
//
//	Stage one is skipped entirely when the context holds an image result:
//	encoded payloads do not belong in a prompt, and the fallback extracts
//	them exactly.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Synthesizer struct {
	formatter AnswerFormatter
}

// NewSynthesizer creates a synthesizer. formatter may be nil, in which case
// only the deterministic fallback runs.
func NewSynthesizer(formatter AnswerFormatter) *Synthesizer {
	return &Synthesizer{formatter: formatter}
}

// Synthesize produces the final answer in the plan's requested shape.
//
// Inputs:
//
//	ctx - Cancellation for the formatter call.
//	plan - The dispatched plan; supplies the answer spec and bindings.
//	store - The task's populated context store.
//
// Outputs:
//
//	any - []any for list shape, map[string]any for object shape. Always
//	      conforms to the requested arity and key set.
func (s *Synthesizer) Synthesize(ctx context.Context, plan *Plan, store *ContextStore) any {
	spec := plan.Answer

	if s.formatter != nil && !store.HasImage() {
		answer, err := s.formatWithModel(ctx, spec, store)
		if err == nil {
			RecordSynthesis("model", "ok")
			return answer
		}
		RecordSynthesis("model", outcomeFor(err))
		slog.Warn("model-assisted synthesis rejected, using deterministic fallback",
			slog.String("kind", string(KindOf(err))),
			slog.String("error", err.Error()),
		)
	}

	answer := s.fallback(spec, store)
	RecordSynthesis("fallback", "ok")
	return answer
}

func outcomeFor(err error) string {
	if KindOf(err) == KindFormatting {
		return "rejected"
	}
	return "error"
}

// -----------------------------------------------------------------------------
// Stage 1: Model-Assisted Formatting
// -----------------------------------------------------------------------------

// formatWithModel asks the formatter for the answer and validates it
// against the requested shape.
func (s *Synthesizer) formatWithModel(ctx context.Context, spec AnswerSpec, store *ContextStore) (any, error) {
	raw, err := s.formatter.FormatAnswer(ctx, store.Summary(), spec)
	if err != nil {
		return nil, WrapErr(KindUpstreamTool, err, "answer formatter call failed")
	}

	var candidate any
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &candidate); err != nil {
		return nil, WrapErr(KindFormatting, err, "formatter returned malformed JSON")
	}
	return validateShape(candidate, spec)
}

// stripCodeFences removes a surrounding markdown code fence from model
// output, with or without a language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// validateShape checks a candidate answer against the requested shape:
// correct arity for lists, the exact key set for objects.
func validateShape(candidate any, spec AnswerSpec) (any, error) {
	switch spec.Shape {
	case ShapeList:
		list, ok := candidate.([]any)
		if !ok {
			return nil, Errf(KindFormatting, "expected a JSON list, got %T", candidate)
		}
		if len(list) != spec.Count {
			return nil, Errf(KindFormatting,
				"expected %d answers, got %d", spec.Count, len(list))
		}
		return list, nil
	case ShapeObject:
		obj, ok := candidate.(map[string]any)
		if !ok {
			return nil, Errf(KindFormatting, "expected a JSON object, got %T", candidate)
		}
		if len(obj) != len(spec.Keys) {
			return nil, Errf(KindFormatting,
				"expected %d keys, got %d", len(spec.Keys), len(obj))
		}
		for _, key := range spec.Keys {
			if _, present := obj[key]; !present {
				return nil, Errf(KindFormatting, "missing requested key %q", key)
			}
		}
		return obj, nil
	}
	return nil, Errf(KindFormatting, "unknown answer shape %q", spec.Shape)
}

// -----------------------------------------------------------------------------
// Stage 2: Deterministic Fallback
// -----------------------------------------------------------------------------

// fallback fills every requested slot from the context using the fixed
// probing and extraction heuristics. It never fails; slots that cannot be
// resolved become nil.
func (s *Synthesizer) fallback(spec AnswerSpec, store *ContextStore) any {
	ordered := store.Keys()

	if spec.Shape == ShapeObject {
		out := make(map[string]any, len(spec.Keys))
		for i, key := range spec.Keys {
			out[key] = s.slotValue(spec, key, i, ordered, store)
		}
		return out
	}

	out := make([]any, spec.Count)
	for i := 0; i < spec.Count; i++ {
		out[i] = s.slotValue(spec, fmt.Sprintf("%d", i+1), i, ordered, store)
	}
	return out
}

// slotValue resolves one answer slot.
//
// Description:
//
//	Probe order: the plan's explicit binding for the slot, the slot name
//	itself as a context key, the conventional planner key spellings for
//	the slot's ordinal (q1, answer_1, step_1_result), then the i-th
//	context entry in insertion order. The first hit is extracted; no hit
//	yields nil.
func (s *Synthesizer) slotValue(spec AnswerSpec, slotName string, i int, ordered []string, store *ContextStore) any {
	probes := make([]string, 0, 5)
	if bound, ok := spec.Bindings[slotName]; ok {
		probes = append(probes, bound)
	}
	probes = append(probes,
		slotName,
		fmt.Sprintf("q%d", i+1),
		fmt.Sprintf("answer_%d", i+1),
		fmt.Sprintf("step_%d_result", i+1),
	)

	for _, key := range probes {
		if result, ok := store.Get(key); ok {
			return extractValue(result)
		}
	}
	if i < len(ordered) {
		if result, ok := store.Get(ordered[i]); ok {
			return extractValue(result)
		}
	}
	return nil
}

// extractValue reduces a stored result to an answer value using the fixed
// decision table.
func extractValue(result Result) any {
	switch result.Kind {
	case KindScalar:
		return result.Scalar
	case KindImage:
		if result.Image == nil {
			return nil
		}
		return result.Image.DataURI
	case KindError:
		// Graceful degradation: a failed step yields a placeholder, never
		// an aborted answer.
		return nil
	case KindTable:
		return extractTableValue(result.Table)
	}
	return nil
}

func extractTableValue(t *Table) any {
	if t == nil || t.NumRows() == 0 {
		return nil
	}
	if len(t.Columns) == 1 && t.NumRows() == 1 {
		return t.Rows[0][0]
	}
	if idx := countColumnIndex(t); idx >= 0 {
		if v, ok := parseCell(t.Rows[0][idx]); ok && !math.IsNaN(v) {
			return int(v)
		}
	}
	// Multi-column table: compose a readable string from the first row.
	parts := make([]string, 0, len(t.Columns))
	for i, col := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s: %v", col, t.Rows[0][i]))
	}
	return strings.Join(parts, ", ")
}

func countColumnIndex(t *Table) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col, "count") {
			return i
		}
	}
	return -1
}
