// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyst

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/planner"
)

func newTestRouter(p Planner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := NewHandlers(newTestService(p))
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

const handlersCSV = "Title,Year\nTitanic (1997),1997\nAvatar (2009),2009\n"

func countPlan() *engine.Plan {
	return &engine.Plan{
		Steps: []engine.Step{
			{Op: "count_condition", Params: map[string]any{"column": "Year", "operator": "<", "value": 2000}, ContextKey: "q1"},
		},
		Answer: engine.AnswerSpec{Shape: engine.ShapeList, Count: 1},
	}
}

func TestHandleExecuteTaskInlineCSV(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	body, _ := json.Marshal(TaskRequest{
		Task:     "how many pre-2000 films?",
		Data:     handlersCSV,
		DataKind: "csv",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result TaskResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	answer, ok := result.Answer.([]any)
	if !ok || len(answer) != 1 {
		t.Fatalf("answer = %#v, want 1-element list", result.Answer)
	}
	// JSON round-trips the count as float64.
	if answer[0] != float64(1) {
		t.Errorf("answer = %v, want 1", answer[0])
	}
	if result.TaskID == "" {
		t.Error("task id missing from response")
	}
}

func TestHandleExecuteTaskMissingTask(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks", strings.NewReader(`{"data":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("code = %s, want INVALID_REQUEST", resp.Code)
	}
}

func TestHandleExecuteTaskPlannerDown(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{PlanErr: errors.New("model endpoint unreachable")})

	body, _ := json.Marshal(TaskRequest{Task: "task", Data: handlersCSV, DataKind: "csv"})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for planner failure", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "PLANNER_UNAVAILABLE" {
		t.Errorf("code = %s, want PLANNER_UNAVAILABLE", resp.Code)
	}
}

func TestHandleExecuteTaskRejectedPlan(t *testing.T) {
	bad := countPlan()
	bad.Steps[0].Op = "divine_answer"
	router := newTestRouter(&planner.FakePlanner{Plan: bad})

	body, _ := json.Marshal(TaskRequest{Task: "task", Data: handlersCSV, DataKind: "csv"})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "TASK_FAILED") {
		t.Errorf("body = %s, want TASK_FAILED code", rec.Body.String())
	}
}

func TestHandleExecuteTextNoData(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	body := `{"task_description": "how many pre-2000 films?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks/text", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// With no table attached the table-bound step fails, but the answer
	// keeps its declared shape.
	var result TaskResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	answer, ok := result.Answer.([]any)
	if !ok || len(answer) != 1 || answer[0] != nil {
		t.Errorf("answer = %#v, want [nil]", result.Answer)
	}
}

func TestHandleExecuteUpload(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("task", "how many pre-2000 films?")
	mw.WriteField("data_kind", "csv")
	fw, _ := mw.CreateFormFile("file", "films.csv")
	fw.Write([]byte(handlersCSV))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleExecuteUploadMissingFile(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("task", "a task with no file")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/analyst/tasks/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleOperations(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyst/operations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, op := range []string{"count_condition", "correlation", "visualize"} {
		if !strings.Contains(rec.Body.String(), op) {
			t.Errorf("operations listing missing %s", op)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(&planner.FakePlanner{Plan: countPlan()})

	for _, path := range []string{"/v1/analyst/health", "/v1/analyst/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}
