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
	"sort"
	"strings"
)

// =============================================================================
// Grouping Operations
// =============================================================================

// topByCountOp groups by a column, counts rows per group, and returns the
// single top group with its count.
//
// Description:
//
//	An optional within_filter narrows the rows before grouping. Ties on
//	the count break by group label, ascending, so the result is
//	deterministic for identical inputs.
func topByCountOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "top_by_count",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "group_by", Aliases: []string{"group_col", "group_column", "column", "col"}, Required: true, IsColumn: true},
				{Canonical: "within_filter", Aliases: []string{"filters", "conditions", "where"}},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			clauses, err := parseFilterClauses(in.Params["within_filter"], in.Table)
			if err != nil {
				return Result{}, err
			}
			idxs, err := applyFilters(in.Table, clauses)
			if err != nil {
				return Result{}, err
			}
			if len(idxs) == 0 {
				return Result{}, Errf(KindInsufficientData, "no rows left to group after filtering")
			}

			groupBy := in.Params["group_by"].(string)
			cells := in.Table.ColumnValues(groupBy)
			counts := make(map[string]int)
			for _, idx := range idxs {
				counts[cellString(cells[idx])]++
			}

			top, topCount := "", -1
			for label, n := range counts {
				if n > topCount || (n == topCount && label < top) {
					top, topCount = label, n
				}
			}

			out := NewTable(groupBy, "count")
			out.AppendRow(top, topCount)
			return TableResult(out), nil
		},
	}
}

// groupAndAggregateOp groups by a column and aggregates a value column per
// group.
//
// Description:
//
//	Supported aggregations: count, sum, mean, max, min. Count needs no
//	value column; the others coerce the value column numeric and skip NaN
//	cells per group. Output rows are sorted by the aggregate descending,
//	labels ascending on ties.
func groupAndAggregateOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "group_and_aggregate",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "group_by", Aliases: []string{"group_col", "group_column"}, Required: true, IsColumn: true},
				{Canonical: "agg", Aliases: []string{"aggregation", "aggregate", "func"}, Default: "count"},
				{Canonical: "value_column", Aliases: []string{"value_col", "agg_column", "target_column"}, IsColumn: true},
				{Canonical: "limit", Aliases: []string{"n_rows", "top_n", "n"}},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			groupBy := in.Params["group_by"].(string)
			agg := strings.ToLower(cellString(in.Params["agg"]))

			labels := in.Table.ColumnValues(groupBy)
			var values []float64
			if agg != "count" {
				valueCol, ok := in.Params["value_column"].(string)
				if !ok {
					return Result{}, Errf(KindParameter,
						"aggregation %q requires a value_column", agg)
				}
				coerced, err := CoerceNumeric(in.Table.ColumnValues(valueCol))
				if err != nil {
					return Result{}, err
				}
				values = coerced
			}

			type acc struct {
				sum, max, min float64
				n             int
			}
			groups := make(map[string]*acc)
			for i := range labels {
				label := cellString(labels[i])
				a := groups[label]
				if a == nil {
					a = &acc{max: math.Inf(-1), min: math.Inf(1)}
					groups[label] = a
				}
				if agg == "count" {
					a.n++
					continue
				}
				v := values[i]
				if math.IsNaN(v) {
					continue
				}
				a.sum += v
				a.n++
				if v > a.max {
					a.max = v
				}
				if v < a.min {
					a.min = v
				}
			}

			type row struct {
				label string
				value float64
			}
			rows := make([]row, 0, len(groups))
			for label, a := range groups {
				var v float64
				switch agg {
				case "count":
					v = float64(a.n)
				case "sum":
					v = a.sum
				case "mean":
					if a.n == 0 {
						continue
					}
					v = a.sum / float64(a.n)
				case "max":
					if a.n == 0 {
						continue
					}
					v = a.max
				case "min":
					if a.n == 0 {
						continue
					}
					v = a.min
				default:
					return Result{}, Errf(KindParameter, "unsupported aggregation %q", agg)
				}
				rows = append(rows, row{label: label, value: v})
			}

			sort.Slice(rows, func(a, b int) bool {
				if rows[a].value != rows[b].value {
					return rows[a].value > rows[b].value
				}
				return rows[a].label < rows[b].label
			})
			if limit := intParam(in.Params["limit"], 0); limit > 0 && limit < len(rows) {
				rows = rows[:limit]
			}

			out := NewTable(groupBy, agg)
			for _, r := range rows {
				if agg == "count" {
					out.AppendRow(r.label, int(r.value))
				} else {
					out.AppendRow(r.label, r.value)
				}
			}
			return TableResult(out), nil
		},
	}
}
