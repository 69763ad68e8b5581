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
	"strings"
)

// =============================================================================
// Collaborator-Backed Operations
// =============================================================================

// visualizeOp renders a chart of two coerced columns through the rendering
// collaborator.
//
// Description:
//
//	The regression overlay, when requested, is computed with the same fit
//	the regression operation uses and drawn by the renderer as a dashed
//	line in a fixed color. Rendering is not byte-deterministic, but the
//	logical plot is fixed by the inputs.
func visualizeOp(renderer ChartRenderer) *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "visualize",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "x", Aliases: []string{"x_column", "col1", "column1"}, Required: true, IsColumn: true},
				{Canonical: "y", Aliases: []string{"y_column", "col2", "column2"}, Required: true, IsColumn: true},
				{Canonical: "kind", Aliases: []string{"chart_type", "type"}, Default: "scatter"},
				{Canonical: "overlay", Aliases: []string{"trendline"}},
				{Canonical: "title", Aliases: []string{"chart_title"}},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			if renderer == nil {
				return Result{}, Errf(KindUpstreamTool, "no chart renderer configured")
			}

			colX := in.Params["x"].(string)
			colY := in.Params["y"].(string)
			kind := strings.ToLower(cellString(in.Params["kind"]))
			switch kind {
			case "scatter", "line", "bar":
			default:
				return Result{}, Errf(KindParameter, "unsupported chart kind %q", kind)
			}

			xs, ys, err := pairedColumns(in.Table, colX, colY)
			if err != nil {
				return Result{}, err
			}

			spec := ChartSpec{
				Kind:   kind,
				Title:  cellString(in.Params["title"]),
				XLabel: colX,
				YLabel: colY,
				XS:     xs,
				YS:     ys,
			}
			if wantsRegressionOverlay(in.Params["overlay"]) {
				slope, intercept, rsq := fitLine(xs, ys)
				spec.Overlay = &RegressionOverlay{Slope: slope, Intercept: intercept, RSquared: rsq}
			}

			img, err := renderer.Render(ctx, spec)
			if err != nil {
				return Result{}, WrapErr(KindUpstreamTool, err, "chart rendering failed")
			}
			return ImageResult(img), nil
		},
	}
}

func wantsRegressionOverlay(v any) bool {
	switch o := v.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(o))
		return s == "regression_line" || s == "regression" || s == "trendline" || s == "true"
	case bool:
		return o
	}
	return false
}

// remoteQueryOp forwards a query string to the external columnar engine.
//
// Description:
//
//	The query is forwarded verbatim, one attempt, no interpretation.
//	Collaborator failures surface as upstream tool errors. A one-cell
//	result table collapses to a Scalar, since single-value queries ("how
//	many registrations in 2024") are the common case for answer slots.
func remoteQueryOp(queryer RemoteQueryer) *Operation {
	return &Operation{
		Spec: OpSpec{
			Name: "remote_query",
			Params: []ParamSpec{
				{Canonical: "query", Aliases: []string{"query_string", "sql", "q"}, Required: true},
				{Canonical: "source_ref", Aliases: []string{"source", "dataset", "table_name"}},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			if queryer == nil {
				return Result{}, Errf(KindUpstreamTool, "no remote query engine configured")
			}
			query, ok := in.Params["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return Result{}, Errf(KindParameter, "query must be a non-empty string")
			}
			sourceRef := cellString(in.Params["source_ref"])

			table, err := queryer.RunQuery(ctx, query, sourceRef)
			if err != nil {
				return Result{}, WrapErr(KindUpstreamTool, err, "remote query failed")
			}
			if table.NumRows() == 1 && len(table.Columns) == 1 {
				return ScalarResult(table.Rows[0][0]), nil
			}
			return TableResult(table), nil
		},
	}
}
