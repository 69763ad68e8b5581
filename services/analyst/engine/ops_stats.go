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

	"gonum.org/v1/gonum/stat"
)

// =============================================================================
// Statistical Operations
// =============================================================================

// pairedColumns coerces two columns numeric and drops rows where either
// value is non-coercible. Shared by correlation, regression, and the
// visualization overlay.
func pairedColumns(table *Table, colX, colY string) ([]float64, []float64, error) {
	xs, err := CoerceNumeric(table.ColumnValues(colX))
	if err != nil {
		return nil, nil, WrapErr(KindTypeConversion, err, "column %q", colX)
	}
	ys, err := CoerceNumeric(table.ColumnValues(colY))
	if err != nil {
		return nil, nil, WrapErr(KindTypeConversion, err, "column %q", colY)
	}
	xs, ys = dropNaNPairs(xs, ys)
	if len(xs) < 2 {
		return nil, nil, Errf(KindInsufficientData,
			"only %d valid paired rows for %q vs %q, need at least 2", len(xs), colX, colY)
	}
	return xs, ys, nil
}

// correlationOp computes the Pearson correlation of two coerced columns.
func correlationOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "correlation",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "col1", Aliases: []string{"column1", "x", "col_a"}, Required: true, IsColumn: true},
				{Canonical: "col2", Aliases: []string{"column2", "y", "col_b"}, Required: true, IsColumn: true},
				{Canonical: "method", Default: "pearson"},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			method := strings.ToLower(cellString(in.Params["method"]))
			if method != "pearson" {
				return Result{}, Errf(KindParameter, "unsupported correlation method %q", method)
			}
			xs, ys, err := pairedColumns(in.Table,
				in.Params["col1"].(string), in.Params["col2"].(string))
			if err != nil {
				return Result{}, err
			}
			return ScalarResult(stat.Correlation(xs, ys, nil)), nil
		},
	}
}

// fitLine runs an ordinary least-squares fit and reports slope, intercept,
// and r-squared.
func fitLine(xs, ys []float64) (slope, intercept, rsq float64) {
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	rsq = stat.RSquaredFrom(estimates(xs, slope, intercept), ys, nil)
	return slope, intercept, rsq
}

func estimates(xs []float64, slope, intercept float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = intercept + slope*x
	}
	return out
}

// regressionOp fits ordinary least squares over two coerced columns.
func regressionOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "regression",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "x", Aliases: []string{"x_column", "col1", "column1", "independent"}, Required: true, IsColumn: true},
				{Canonical: "y", Aliases: []string{"y_column", "col2", "column2", "dependent"}, Required: true, IsColumn: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			xs, ys, err := pairedColumns(in.Table,
				in.Params["x"].(string), in.Params["y"].(string))
			if err != nil {
				return Result{}, err
			}
			slope, intercept, rsq := fitLine(xs, ys)
			out := NewTable("slope", "intercept", "r_squared")
			out.AppendRow(slope, intercept, rsq)
			return TableResult(out), nil
		},
	}
}
