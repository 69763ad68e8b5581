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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Plan Execution
// =============================================================================

var (
	// stepsTotal counts executed plan steps by operation and outcome.
	// Labels: operation, outcome (succeeded, failed)
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "engine",
		Name:      "steps_total",
		Help:      "Total executed plan steps by operation and outcome",
	}, []string{"operation", "outcome"})

	// stepFailuresTotal counts failed steps by operation and error kind.
	// Labels: operation, kind (parameter_error, column_not_found, ...)
	stepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "engine",
		Name:      "step_failures_total",
		Help:      "Failed plan steps by operation and error kind",
	}, []string{"operation", "kind"})

	// stepDurationSeconds measures per-step execution latency.
	// Labels: operation
	stepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "engine",
		Name:      "step_duration_seconds",
		Help:      "Per-step execution latency",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	// plansTotal counts dispatched plans by outcome.
	// Labels: outcome (completed, timed_out)
	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "engine",
		Name:      "plans_total",
		Help:      "Total dispatched plans by outcome",
	}, []string{"outcome"})

	// synthesisTotal counts answer synthesis attempts by stage and outcome.
	// Labels: stage (model, fallback), outcome (ok, rejected, error)
	synthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "engine",
		Name:      "synthesis_total",
		Help:      "Answer synthesis attempts by stage and outcome",
	}, []string{"stage", "outcome"})
)

// RecordStep records one executed step's outcome and duration.
//
// Inputs:
//   - operation: The catalog operation name.
//   - durationSec: Step execution time in seconds.
//   - err: The step failure, nil on success.
func RecordStep(operation string, durationSec float64, err error) {
	stepDurationSeconds.WithLabelValues(operation).Observe(durationSec)
	if err == nil {
		stepsTotal.WithLabelValues(operation, "succeeded").Inc()
		return
	}
	stepsTotal.WithLabelValues(operation, "failed").Inc()
	stepFailuresTotal.WithLabelValues(operation, string(KindOf(err))).Inc()
}

// RecordPlan records a completed plan dispatch.
//
// Inputs:
//   - timedOut: Whether the plan deadline expired before all steps ran.
func RecordPlan(timedOut bool) {
	outcome := "completed"
	if timedOut {
		outcome = "timed_out"
	}
	plansTotal.WithLabelValues(outcome).Inc()
}

// RecordSynthesis records one synthesis stage attempt.
//
// Inputs:
//   - stage: "model" or "fallback".
//   - outcome: "ok", "rejected", or "error".
func RecordSynthesis(stage, outcome string) {
	synthesisTotal.WithLabelValues(stage, outcome).Inc()
}
