// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command analyst starts the Aleutian Analyst API server.
//
// Aleutian Analyst answers natural-language analytical questions over
// tabular data by executing LLM-generated plans against a catalog of
// analysis operations (filtering, statistics, visualization, remote query
// delegation).
//
// Usage:
//
//	go run ./cmd/analyst
//	go run ./cmd/analyst -port 9090
//
// With an OpenAI-compatible planner endpoint:
//
//	OPENAI_API_KEY=... OPENAI_MODEL=gpt-4o go run ./cmd/analyst
//	OPENAI_BASE_URL=http://localhost:11434/v1 OPENAI_MODEL=qwen2.5 go run ./cmd/analyst
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/analyst/health
//
//	# Execute a task over inline CSV data
//	curl -X POST http://localhost:8080/v1/analyst/tasks \
//	  -H "Content-Type: application/json" \
//	  -d '{"task": "How many rows have Year < 2000?", "data": "Title,Year\nTitanic,1997\n", "data_kind": "csv"}'
//
//	# Execute a task over an uploaded file
//	curl -X POST http://localhost:8080/v1/analyst/tasks/upload \
//	  -F task="Which group is most common?" -F file=@data.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/columnar"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/planner"
	"github.com/AleutianAI/AleutianAnalyst/services/analyst/viz"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	traceStdout := flag.Bool("trace-stdout", false, "Export OTel spans to stdout")
	dbPath := flag.String("db", "", "SQLite database for remote_query delegation (default in-memory)")
	flag.Parse()

	setupLogging(*debug)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdownTracing := setupTracing(*traceStdout)

	store, err := openColumnarStore(*dbPath)
	if err != nil {
		slog.Error("Failed to open columnar store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	collab := engine.Collaborators{
		Renderer: viz.NewPlotRenderer(),
		Queryer:  store,
	}

	taskPlanner, err := buildPlanner()
	if err != nil {
		slog.Error("Failed to build planner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc := analyst.NewService(analyst.DefaultServiceConfig(), taskPlanner, collab)
	handlers := analyst.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-analyst"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	analyst.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Analyst server")
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close columnar store", slog.String("error", err.Error()))
		}
		shutdownTracing()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Aleutian Analyst server",
		slog.String("address", addr),
		slog.Int("operations", len(svc.Catalog().Names())),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		store.Close()
		shutdownTracing()
		os.Exit(1)
	}
}

// setupLogging installs the default structured logger.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// setupTracing installs a stdout span exporter when requested. Returns a
// shutdown function, a no-op when tracing is disabled.
func setupTracing(enabled bool) func() {
	if !enabled {
		return func() {}
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("Failed to create stdout trace exporter", slog.String("error", err.Error()))
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("Trace provider shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// openColumnarStore opens the SQLite store backing remote_query delegation.
func openColumnarStore(path string) (*columnar.Store, error) {
	if path == "" {
		return columnar.OpenMemory()
	}
	return columnar.Open(path)
}

// buildPlanner constructs the LLM planner from environment configuration.
//
// Environment:
//
//	OPENAI_API_KEY - API key for the planner model.
//	OPENAI_MODEL - Model name. Default gpt-4o-mini.
//	OPENAI_BASE_URL - Optional OpenAI-compatible endpoint (e.g. Ollama).
func buildPlanner() (analyst.Planner, error) {
	opNames := engine.NewCatalog(engine.Collaborators{}).Names()

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []openai.Option{openai.WithModel(model)}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		opts = append(opts, openai.WithToken(key))
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing planner model: %w", err)
	}
	return planner.NewLLMPlanner(llm, opNames), nil
}
