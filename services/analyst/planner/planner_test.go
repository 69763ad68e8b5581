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
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// stubModel returns a canned completion.
type stubModel struct {
	response   string
	lastSystem string
	lastUser   string
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		text := ""
		for _, part := range m.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				text += tp.Text
			}
		}
		switch m.Role {
		case llms.ChatMessageTypeSystem:
			s.lastSystem = text
		case llms.ChatMessageTypeHuman:
			s.lastUser = text
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: s.response}},
	}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return s.response, nil
}

func TestGeneratePlanParsesWireFormat(t *testing.T) {
	model := &stubModel{response: `{
		"steps": [
			{"action": "count_condition",
			 "parameters": {"column": "Year", "operator": "<", "value": 2000},
			 "data_key": "q1"}
		],
		"answer": {"shape": "list", "count": 1}
	}`}
	p := NewLLMPlanner(model, []string{"count_condition", "correlation"})

	plan, err := p.GeneratePlan(context.Background(), "how many pre-2000 rows?", "5 rows, columns: Year")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Op != "count_condition" {
		t.Errorf("plan steps = %+v", plan.Steps)
	}
	if plan.Answer.Count != 1 {
		t.Errorf("answer count = %d, want 1", plan.Answer.Count)
	}
	if !strings.Contains(model.lastSystem, "count_condition, correlation") {
		t.Error("operation names not advertised in the system prompt")
	}
	if !strings.Contains(model.lastUser, "5 rows, columns: Year") {
		t.Error("data shape description not included in the user prompt")
	}
}

func TestGeneratePlanToleratesFencedOutput(t *testing.T) {
	model := &stubModel{response: "Here is the plan:\n```json\n" +
		`{"steps": [{"action": "correlation", "parameters": {}, "data_key": "q1"}], "answer": {"shape": "list", "count": 1}}` +
		"\n```"}
	p := NewLLMPlanner(model, []string{"correlation"})

	plan, err := p.GeneratePlan(context.Background(), "task", "data")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if plan.Steps[0].Op != "correlation" {
		t.Errorf("op = %q", plan.Steps[0].Op)
	}
}

func TestGeneratePlanRejectsNonJSON(t *testing.T) {
	model := &stubModel{response: "I cannot help with that."}
	p := NewLLMPlanner(model, nil)
	if _, err := p.GeneratePlan(context.Background(), "task", "data"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFormatAnswerMentionsShape(t *testing.T) {
	model := &stubModel{response: `[1, "Titanic (1997)"]`}
	p := NewLLMPlanner(model, nil)

	got, err := p.FormatAnswer(context.Background(), "- q1 (scalar): scalar: 1\n",
		engine.AnswerSpec{Shape: engine.ShapeList, Count: 2})
	if err != nil {
		t.Fatalf("FormatAnswer: %v", err)
	}
	if got != `[1, "Titanic (1997)"]` {
		t.Errorf("raw answer = %q", got)
	}
	if !strings.Contains(model.lastUser, "exactly 2 values") {
		t.Errorf("shape requirement not in prompt: %q", model.lastUser)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare", input: `{"a": 1}`, want: `{"a": 1}`},
		{name: "fenced", input: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "fence no tag", input: "```\n[1]\n```", want: `[1]`},
		{name: "leading prose", input: "Sure thing: {\"a\": 1}", want: `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
