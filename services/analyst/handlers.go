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
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// maxUploadBytes bounds uploaded data files.
const maxUploadBytes = 32 << 20

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers holds the HTTP handlers over a Service.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// TaskRequest is the JSON body for POST /v1/analyst/tasks.
type TaskRequest struct {
	// Task is the natural-language question. Required.
	Task string `json:"task" binding:"required"`

	// Data is the inline payload: CSV text, HTML text, or a URL.
	Data string `json:"data"`

	// DataKind hints how Data should be interpreted: csv, html, or url.
	DataKind string `json:"data_kind"`

	// Plan optionally supplies a pre-built plan, skipping plan generation.
	Plan *engine.Plan `json:"plan,omitempty"`
}

// HandleExecuteTask handles POST /v1/analyst/tasks.
//
// Description:
//
//	Accepts a JSON task with inline or referenced data, executes the full
//	pipeline, and returns the shaped answer with per-step diagnostics.
//
// Response:
//
//	200 OK: TaskResult
//	400 Bad Request: Malformed request, unresolvable data, or rejected plan
//	502 Bad Gateway: Plan generation failed upstream
func (h *Handlers) HandleExecuteTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	var (
		result *TaskResult
		err    error
	)
	if req.Data == "" {
		result, err = h.service.Execute(c.Request.Context(), req.Task, nil, req.Plan)
	} else {
		result, err = h.service.ExecuteRaw(c.Request.Context(), req.Task, []byte(req.Data), req.DataKind, req.Plan)
	}
	if err != nil {
		h.writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TextTaskRequest is the JSON body for POST /v1/analyst/tasks/text, a
// task-only variant for questions that name their data source inline.
type TextTaskRequest struct {
	TaskDescription string `json:"task_description" binding:"required"`
}

// HandleExecuteText handles POST /v1/analyst/tasks/text.
//
// Description:
//
//	Executes a task with no attached data. The plan must acquire its own
//	inputs, typically through remote_query delegation.
//
// Response:
//
//	200 OK: TaskResult
//	400 Bad Request: Missing task description or rejected plan
//	502 Bad Gateway: Plan generation failed upstream
func (h *Handlers) HandleExecuteText(c *gin.Context) {
	var req TextTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.service.Execute(c.Request.Context(), req.TaskDescription, nil, nil)
	if err != nil {
		h.writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleExecuteUpload handles POST /v1/analyst/tasks/upload.
//
// Description:
//
//	Multipart variant: a "file" part carries the data (CSV or HTML per the
//	"data_kind" form field) and a "task" field carries the question.
//
// Response:
//
//	200 OK: TaskResult
//	400 Bad Request: Missing task or file, unresolvable data
//	502 Bad Gateway: Plan generation failed upstream
func (h *Handlers) HandleExecuteUpload(c *gin.Context) {
	task := c.PostForm("task")
	if task == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "task form field is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "file form field is required: " + err.Error(),
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "reading upload: " + err.Error(),
			Code:  "INVALID_UPLOAD",
		})
		return
	}

	result, err := h.service.ExecuteRaw(c.Request.Context(), task, payload, c.PostForm("data_kind"), nil)
	if err != nil {
		h.writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleOperations handles GET /v1/analyst/operations: the catalog's
// operation names, for planner prompts and debugging.
func (h *Handlers) HandleOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.service.Catalog().Names()})
}

// HandleHealth handles GET /v1/analyst/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/analyst/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handlers) writeTaskError(c *gin.Context, err error) {
	slog.Warn("task execution rejected", slog.String("error", err.Error()))
	if errors.Is(err, ErrPlanUnavailable) {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: err.Error(),
			Code:  "PLANNER_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  "TASK_FAILED",
	})
}
