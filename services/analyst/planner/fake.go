// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// FakePlanner returns canned responses, for tests and offline operation.
//
// Thread Safety: Not safe for concurrent mutation; tests own one instance.
type FakePlanner struct {
	// Plan is returned by GeneratePlan. PlanErr takes precedence.
	Plan    *engine.Plan
	PlanErr error

	// Answer is the raw text returned by FormatAnswer. AnswerErr takes
	// precedence.
	Answer    string
	AnswerErr error

	// FormatCalls counts FormatAnswer invocations, so tests can assert the
	// image-context skip.
	FormatCalls int
}

// GeneratePlan returns the canned plan.
func (f *FakePlanner) GeneratePlan(ctx context.Context, task, dataShape string) (*engine.Plan, error) {
	if f.PlanErr != nil {
		return nil, f.PlanErr
	}
	return f.Plan, nil
}

// FormatAnswer implements engine.AnswerFormatter with the canned response.
func (f *FakePlanner) FormatAnswer(ctx context.Context, contextSummary string, shape engine.AnswerSpec) (string, error) {
	f.FormatCalls++
	if f.AnswerErr != nil {
		return "", f.AnswerErr
	}
	return f.Answer, nil
}
