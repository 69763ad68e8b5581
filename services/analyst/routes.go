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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Analyst routes with the router.
//
// Description:
//
//	Registers all /v1/analyst/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/analyst/tasks - Execute a task with inline or referenced data
//	POST /v1/analyst/tasks/text - Execute a task with no attached data
//	POST /v1/analyst/tasks/upload - Execute a task with an uploaded data file
//	GET  /v1/analyst/operations - List catalog operations
//	GET  /v1/analyst/health - Health check
//	GET  /v1/analyst/ready - Readiness check
//
// Example:
//
//	service := analyst.NewService(analyst.DefaultServiceConfig(), planner, collab)
//	handlers := analyst.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	analyst.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	analyst := rg.Group("/analyst")
	{
		analyst.POST("/tasks", handlers.HandleExecuteTask)
		analyst.POST("/tasks/text", handlers.HandleExecuteText)
		analyst.POST("/tasks/upload", handlers.HandleExecuteUpload)
		analyst.GET("/operations", handlers.HandleOperations)

		analyst.GET("/health", handlers.HandleHealth)
		analyst.GET("/ready", handlers.HandleReady)
	}
}
