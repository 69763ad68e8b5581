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
	"math"
	"regexp"
	"strconv"
)

// =============================================================================
// Cleaning Operations
// =============================================================================

// calendarYearRe matches a plausible four-digit calendar year inside a
// decorated cell, e.g. "Titanic (1997)" -> "1997".
var calendarYearRe = regexp.MustCompile(`(19|20)\d{2}`)

// cleanMonetaryValuesOp rewrites a currency-decorated column in place as
// plain numbers.
//
// Description:
//
//	Runs the shared coercion policy over the column and substitutes the
//	coerced values into a clone of the table. Cells that stayed
//	non-parseable become nil, so downstream numeric operations see them as
//	missing rather than as decorated text.
func cleanMonetaryValuesOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "clean_monetary_values",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "column", Aliases: []string{"col", "col1", "column1", "field"}, Required: true, IsColumn: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			column := in.Params["column"].(string)
			coerced, err := CoerceNumeric(in.Table.ColumnValues(column))
			if err != nil {
				return Result{}, err
			}
			out := in.Table.Clone()
			idx := out.ColumnIndex(column)
			for i, v := range coerced {
				if math.IsNaN(v) {
					out.Rows[i][idx] = nil
					continue
				}
				out.Rows[i][idx] = v
			}
			return TableResult(out), nil
		},
	}
}

// cleanYearColumnOp extracts a four-digit calendar year from each cell of a
// column.
//
// Description:
//
//	Unlike generic coercion, year extraction anchors on the (19|20)\d{2}
//	shape so "Titanic (1997)" yields 1997 rather than whatever leading
//	number the title happens to contain. Cells without a recognizable year
//	become nil. Fails when more than half the cells yield no year.
func cleanYearColumnOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "clean_year_column",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "column", Aliases: []string{"col", "col1", "column1", "field"}, Required: true, IsColumn: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			column := in.Params["column"].(string)
			cells := in.Table.ColumnValues(column)
			if len(cells) == 0 {
				return Result{}, Errf(KindTypeConversion, "cannot extract years from empty column")
			}

			out := in.Table.Clone()
			idx := out.ColumnIndex(column)
			failed := 0
			for i, c := range cells {
				m := calendarYearRe.FindString(cellString(c))
				if m == "" {
					out.Rows[i][idx] = nil
					failed++
					continue
				}
				year, err := strconv.Atoi(m)
				if err != nil {
					out.Rows[i][idx] = nil
					failed++
					continue
				}
				out.Rows[i][idx] = year
			}
			if ratio(failed, len(cells)) > maxNullRatio {
				return Result{}, Errf(KindTypeConversion,
					"column %q does not contain years: %d of %d cells failed", column, failed, len(cells))
			}
			return TableResult(out), nil
		},
	}
}
