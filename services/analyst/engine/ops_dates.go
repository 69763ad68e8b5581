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
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// =============================================================================
// Date Operations
// =============================================================================

// parseDateColumn parses every cell of a column as a date.
//
// Description:
//
//	Uses lenient format detection so scraped tables with mixed formats
//	("2024-01-05", "Jan 5, 2024", "05/01/2024") parse without a declared
//	layout. The same >50% failure threshold as numeric coercion decides
//	whether the column counts as a date column at all; individual failed
//	cells come back as zero times with ok=false.
func parseDateColumn(cells []any) ([]time.Time, []bool, error) {
	if len(cells) == 0 {
		return nil, nil, Errf(KindTypeConversion, "cannot parse dates from empty column")
	}
	times := make([]time.Time, len(cells))
	valid := make([]bool, len(cells))
	failed := 0
	for i, c := range cells {
		s := strings.TrimSpace(cellString(c))
		if s == "" {
			failed++
			continue
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			failed++
			continue
		}
		times[i] = t
		valid[i] = true
	}
	if ratio(failed, len(cells)) > maxNullRatio {
		return nil, nil, Errf(KindTypeConversion,
			"column is not parseable as dates: %d of %d cells failed", failed, len(cells))
	}
	return times, valid, nil
}

// dateDiffIn converts a duration between two dates into the requested unit.
func dateDiffIn(a, b time.Time, unit string) float64 {
	days := b.Sub(a).Hours() / 24
	switch unit {
	case "months":
		return days / 30.44
	case "years":
		return days / 365.25
	default: // days
		return days
	}
}

// calculateDateDifferenceOp appends a date_diff column holding the
// difference between two date columns in the requested unit.
func calculateDateDifferenceOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "calculate_date_difference",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "date_col_a", Aliases: []string{"start_column", "col1", "column1", "from"}, Required: true, IsColumn: true},
				{Canonical: "date_col_b", Aliases: []string{"end_column", "col2", "column2", "to"}, Required: true, IsColumn: true},
				{Canonical: "unit", Aliases: []string{"units"}, Default: "days"},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			colA := in.Params["date_col_a"].(string)
			colB := in.Params["date_col_b"].(string)
			unit := strings.ToLower(cellString(in.Params["unit"]))
			switch unit {
			case "days", "months", "years":
			default:
				return Result{}, Errf(KindParameter, "unsupported date unit %q", unit)
			}

			timesA, validA, err := parseDateColumn(in.Table.ColumnValues(colA))
			if err != nil {
				return Result{}, WrapErr(KindTypeConversion, err, "column %q", colA)
			}
			timesB, validB, err := parseDateColumn(in.Table.ColumnValues(colB))
			if err != nil {
				return Result{}, WrapErr(KindTypeConversion, err, "column %q", colB)
			}

			diffs := make([]any, in.Table.NumRows())
			for i := range diffs {
				if !validA[i] || !validB[i] {
					continue
				}
				diffs[i] = dateDiffIn(timesA[i], timesB[i], unit)
			}
			return TableResult(in.Table.WithColumn("date_diff", diffs)), nil
		},
	}
}

// dateDifferenceRegressionOp regresses day differences between two date
// columns against the year of the first column, optionally aggregated per
// group first.
//
// Description:
//
//	Without group_col the fit is over every row with two valid dates:
//	difference in days as the dependent variable, the year of date_col_a
//	as the independent one. With group_col the per-group mean difference
//	and mean year are computed first and the fit runs over group means, so
//	heavily represented groups do not dominate the slope.
func dateDifferenceRegressionOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "date_difference_regression",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "date_col_a", Aliases: []string{"start_column", "col1", "column1"}, Required: true, IsColumn: true},
				{Canonical: "date_col_b", Aliases: []string{"end_column", "col2", "column2"}, Required: true, IsColumn: true},
				{Canonical: "group_col", Aliases: []string{"group_by", "group_column"}, IsColumn: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			colA := in.Params["date_col_a"].(string)
			colB := in.Params["date_col_b"].(string)

			timesA, validA, err := parseDateColumn(in.Table.ColumnValues(colA))
			if err != nil {
				return Result{}, WrapErr(KindTypeConversion, err, "column %q", colA)
			}
			timesB, validB, err := parseDateColumn(in.Table.ColumnValues(colB))
			if err != nil {
				return Result{}, WrapErr(KindTypeConversion, err, "column %q", colB)
			}

			years := make([]float64, 0, in.Table.NumRows())
			diffs := make([]float64, 0, in.Table.NumRows())
			rows := make([]int, 0, in.Table.NumRows())
			for i := 0; i < in.Table.NumRows(); i++ {
				if !validA[i] || !validB[i] {
					continue
				}
				years = append(years, float64(timesA[i].Year()))
				diffs = append(diffs, dateDiffIn(timesA[i], timesB[i], "days"))
				rows = append(rows, i)
			}

			groupCol, grouped := in.Params["group_col"].(string)
			if grouped {
				years, diffs = groupMeans(in.Table, groupCol, rows, years, diffs)
			}
			if len(years) < 2 {
				return Result{}, Errf(KindInsufficientData,
					"only %d valid date pairs for regression, need at least 2", len(years))
			}

			slope, intercept, rsq := fitLine(years, diffs)
			out := NewTable("slope", "intercept", "r_squared", "n")
			out.AppendRow(slope, intercept, rsq, len(years))
			return TableResult(out), nil
		},
	}
}

// groupMeans collapses per-row (year, diff) observations into per-group
// means keyed on the group column's string form. Output order follows the
// sorted group labels so the fit is deterministic.
func groupMeans(table *Table, groupCol string, rows []int, years, diffs []float64) ([]float64, []float64) {
	type acc struct {
		year, diff float64
		n          int
	}
	groups := make(map[string]*acc)
	cells := table.ColumnValues(groupCol)
	for i, row := range rows {
		label := cellString(cells[row])
		a := groups[label]
		if a == nil {
			a = &acc{}
			groups[label] = a
		}
		a.year += years[i]
		a.diff += diffs[i]
		a.n++
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	outYears := make([]float64, 0, len(labels))
	outDiffs := make([]float64, 0, len(labels))
	for _, label := range labels {
		a := groups[label]
		outYears = append(outYears, a.year/float64(a.n))
		outDiffs = append(outDiffs, a.diff/float64(a.n))
	}
	return outYears, outDiffs
}
