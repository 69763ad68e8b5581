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
// Filter Predicates
// =============================================================================

// filterClause is one column/operator/value predicate. Clauses combine with
// AND semantics.
type filterClause struct {
	Column   string
	Operator string
	Value    any
}

// parseFilterClauses decodes the planner's filter list into clauses,
// resolving each column name against the table.
//
// Description:
//
//	Accepts the shapes an LLM planner actually emits: a list of
//	{column, operator, value} mappings, a single such mapping, or nil.
//	Synonym keys inside each clause (col/field for column, op for
//	operator, val for value) are tolerated for the same reason the
//	top-level alias tables exist.
func parseFilterClauses(raw any, table *Table) ([]filterClause, error) {
	if raw == nil {
		return nil, nil
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, Errf(KindParameter, "filters must be a list of mappings, got %T", raw)
	}

	clauses := make([]filterClause, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, Errf(KindParameter, "filter %d must be a mapping, got %T", i+1, item)
		}
		col := firstString(m, "column", "col", "field", "name")
		if col == "" {
			return nil, Errf(KindParameter, "filter %d is missing a column", i+1)
		}
		resolved, err := ResolveColumn(col, table.Columns)
		if err != nil {
			return nil, err
		}
		op := firstString(m, "operator", "op", "comparison")
		if op == "" {
			op = "=="
		}
		if !validOperator(op) {
			return nil, Errf(KindParameter, "filter %d has unsupported operator %q", i+1, op)
		}
		val, found := firstValue(m, "value", "val", "threshold")
		if !found {
			return nil, Errf(KindParameter, "filter %d is missing a value", i+1)
		}
		clauses = append(clauses, filterClause{Column: resolved, Operator: op, Value: val})
	}
	return clauses, nil
}

func validOperator(op string) bool {
	switch op {
	case ">", "<", ">=", "<=", "==", "!=":
		return true
	}
	return false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// applyFilters returns the indices of rows satisfying every clause.
//
// Description:
//
//	Each clause's column is coerced numeric once for the whole table. When
//	the column resists coercion, equality operators fall back to
//	trimmed-string comparison; ordering operators fail with the coercion
//	error, since "Titanic > 2000" has no defensible meaning.
func applyFilters(table *Table, clauses []filterClause) ([]int, error) {
	keep := make([]int, 0, table.NumRows())
	for i := 0; i < table.NumRows(); i++ {
		keep = append(keep, i)
	}

	for _, clause := range clauses {
		cells := table.ColumnValues(clause.Column)
		coerced, coerceErr := CoerceNumeric(cells)
		target, targetOK := parseFilterValue(clause.Value)

		numeric := coerceErr == nil && targetOK
		if !numeric && clause.Operator != "==" && clause.Operator != "!=" {
			if coerceErr != nil {
				return nil, coerceErr
			}
			return nil, Errf(KindTypeConversion,
				"filter value %v on column %q is not numeric", clause.Value, clause.Column)
		}

		next := keep[:0]
		for _, idx := range keep {
			var pass bool
			if numeric {
				pass = compareNumeric(coerced[idx], clause.Operator, target)
			} else {
				pass = compareString(cells[idx], clause.Operator, clause.Value)
			}
			if pass {
				next = append(next, idx)
			}
		}
		keep = next
	}
	return keep, nil
}

// parseFilterValue coerces a single filter operand the same way column cells
// are coerced, extraction tier included, so "$2B"-style thresholds work.
func parseFilterValue(v any) (float64, bool) {
	if f, ok := parseCell(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return extractLeadingNumber(s)
	}
	return 0, false
}

func compareNumeric(cell float64, op string, target float64) bool {
	if math.IsNaN(cell) {
		return false
	}
	switch op {
	case ">":
		return cell > target
	case "<":
		return cell < target
	case ">=":
		return cell >= target
	case "<=":
		return cell <= target
	case "==":
		return cell == target
	case "!=":
		return cell != target
	}
	return false
}

func compareString(cell any, op string, target any) bool {
	a := strings.TrimSpace(cellString(cell))
	b := strings.TrimSpace(cellString(target))
	eq := strings.EqualFold(a, b)
	if op == "!=" {
		return !eq
	}
	return eq
}

// rowSubset materializes the rows at the given indices into a new table.
func rowSubset(table *Table, idxs []int) *Table {
	out := &Table{Columns: append([]string(nil), table.Columns...)}
	out.Rows = make([][]any, 0, len(idxs))
	for _, idx := range idxs {
		out.Rows = append(out.Rows, append([]any(nil), table.Rows[idx]...))
	}
	return out
}

// =============================================================================
// Filtering Operations
// =============================================================================

// countConditionOp counts rows where a single column/operator/value
// predicate holds.
func countConditionOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "count_condition",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "column", Aliases: []string{"col", "col1", "column1", "field"}, Required: true, IsColumn: true},
				{Canonical: "operator", Aliases: []string{"op", "comparison"}, Default: "=="},
				{Canonical: "value", Aliases: []string{"val", "threshold"}, Required: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			clause := filterClause{
				Column:   in.Params["column"].(string),
				Operator: cellString(in.Params["operator"]),
				Value:    in.Params["value"],
			}
			if !validOperator(clause.Operator) {
				return Result{}, Errf(KindParameter, "unsupported operator %q", clause.Operator)
			}
			idxs, err := applyFilters(in.Table, []filterClause{clause})
			if err != nil {
				return Result{}, err
			}
			return ScalarResult(len(idxs)), nil
		},
	}
}

// filterAndCountOp applies a conjunctive filter list and returns the count
// of surviving rows.
func filterAndCountOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "filter_and_count",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "filters", Aliases: []string{"conditions", "where", "criteria"}, Required: true},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			clauses, err := parseFilterClauses(in.Params["filters"], in.Table)
			if err != nil {
				return Result{}, err
			}
			idxs, err := applyFilters(in.Table, clauses)
			if err != nil {
				return Result{}, err
			}
			return ScalarResult(len(idxs)), nil
		},
	}
}

// filterSortSelectOp filters, stable-sorts, and projects the leading rows.
//
// Description:
//
//	Ties under the sort key preserve original row order. When limit is 1
//	and a single select column was requested the lone cell collapses to a
//	Scalar, which is what answer slots want ("the earliest film over
//	$1.5B" is a title, not a one-cell table). Otherwise the result keeps
//	the select column plus the sort key for context.
func filterSortSelectOp() *Operation {
	return &Operation{
		Spec: OpSpec{
			Name:       "filter_sort_select",
			NeedsTable: true,
			Params: []ParamSpec{
				{Canonical: "filters", Aliases: []string{"conditions", "where", "criteria"}},
				{Canonical: "sort_by", Aliases: []string{"sort_column", "order_by"}, Required: true, IsColumn: true},
				{Canonical: "ascending", Aliases: []string{"asc"}, Default: true},
				{Canonical: "select_column", Aliases: []string{"select_columns", "select", "columns", "column"}, IsColumn: true},
				{Canonical: "limit", Aliases: []string{"n_rows", "top_n", "n"}, Default: 1},
			},
		},
		Run: func(ctx context.Context, in OpInput) (Result, error) {
			clauses, err := parseFilterClauses(in.Params["filters"], in.Table)
			if err != nil {
				return Result{}, err
			}
			idxs, err := applyFilters(in.Table, clauses)
			if err != nil {
				return Result{}, err
			}

			sortBy := in.Params["sort_by"].(string)
			ascending := truthy(in.Params["ascending"])
			limit := intParam(in.Params["limit"], 1)

			keys, err := sortKeys(in.Table, sortBy, idxs)
			if err != nil {
				return Result{}, err
			}
			sort.SliceStable(idxs, func(a, b int) bool {
				ka, kb := keys[idxs[a]], keys[idxs[b]]
				if math.IsNaN(ka) {
					return false
				}
				if math.IsNaN(kb) {
					return true
				}
				if ascending {
					return ka < kb
				}
				return ka > kb
			})

			if limit < len(idxs) {
				idxs = idxs[:limit]
			}

			selectCol, hasSelect := in.Params["select_column"].(string)
			subset := rowSubset(in.Table, idxs)
			if hasSelect && selectCol != sortBy {
				subset = subset.Select(selectCol, sortBy)
			} else if hasSelect {
				subset = subset.Select(selectCol)
			}

			if limit == 1 && hasSelect && subset.NumRows() == 1 {
				if ci := subset.ColumnIndex(selectCol); ci >= 0 {
					return ScalarResult(subset.Rows[0][ci]), nil
				}
			}
			return TableResult(subset), nil
		},
	}
}

// sortKeys produces a per-row float key for the sort column: coerced
// numerics when the column allows it, lexicographic rank of the string form
// otherwise. Cells that resist coercion keep NaN; the comparator places
// those rows last in either direction.
func sortKeys(table *Table, column string, idxs []int) (map[int]float64, error) {
	cells := table.ColumnValues(column)
	coerced, err := CoerceNumeric(cells)
	if err == nil {
		keys := make(map[int]float64, len(idxs))
		for _, idx := range idxs {
			keys[idx] = coerced[idx]
		}
		return keys, nil
	}

	// Non-numeric column: rank by sorted string form.
	forms := make([]string, 0, len(idxs))
	for _, idx := range idxs {
		forms = append(forms, cellString(cells[idx]))
	}
	sorted := append([]string(nil), forms...)
	sort.Strings(sorted)
	rank := make(map[string]float64, len(sorted))
	for i, s := range sorted {
		if _, seen := rank[s]; !seen {
			rank[s] = float64(i)
		}
	}
	keys := make(map[int]float64, len(idxs))
	for _, idx := range idxs {
		keys[idx] = rank[cellString(cells[idx])]
	}
	return keys, nil
}

// truthy interprets the loose boolean forms planners emit.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "yes" || s == "1" || s == "ascending"
	case float64:
		return b != 0
	case int:
		return b != 0
	case nil:
		return false
	}
	return false
}

// intParam reads an integer parameter that may arrive as float64 (JSON),
// int, or a numeric string.
func intParam(v any, fallback int) int {
	if f, ok := parseCell(v); ok && !math.IsNaN(f) {
		return int(f)
	}
	return fallback
}
