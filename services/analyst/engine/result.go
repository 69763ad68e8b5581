// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the plan execution core of Aleutian Analyst: the
// result model, the per-task context store, parameter normalization, the
// analysis operation catalog, the step dispatcher, and answer synthesis.
//
// The engine treats the upstream planner as untrusted input. Plans are
// validated at ingress, parameters are normalized through alias tables and a
// column resolver, and every step failure is isolated into an ErrorResult so
// a single bad step never aborts a task.
//
// Thread Safety:
//
//	A task owns its Plan and ContextStore exclusively; dispatch is
//	sequential. Types shared across tasks (Catalog, Dispatcher,
//	Synthesizer) are immutable after construction and safe for concurrent
//	use.
package engine

import (
	"fmt"
	"strings"
)

// =============================================================================
// Result Model
// =============================================================================

// ResultKind identifies the variant held by a Result.
type ResultKind string

const (
	// KindScalar holds a single number, string, or boolean.
	KindScalar ResultKind = "scalar"

	// KindTable holds named columns and heterogeneous rows.
	KindTable ResultKind = "table"

	// KindImage holds a self-describing encoded byte payload.
	KindImage ResultKind = "image"

	// KindError holds a terminal step failure. No operation may consume an
	// error result as a table.
	KindError ResultKind = "error"
)

// Result is the tagged value flowing through the engine.
//
// Description:
//
//	Exactly one variant field is populated, indicated by Kind. A Result is
//	immutable once written to the ContextStore; operations that transform
//	tables always allocate a new Table.
type Result struct {
	Kind   ResultKind
	Scalar any
	Table  *Table
	Image  *Image
	Err    *EngineError
}

// Image is an encoded chart payload, opaque to every operation except the
// visualization producer.
type Image struct {
	// DataURI is the full self-describing payload, e.g.
	// "data:image/png;base64,...".
	DataURI string

	// Encoding tags the payload format, e.g. "base64/png".
	Encoding string
}

// ScalarResult wraps a scalar value.
func ScalarResult(v any) Result {
	return Result{Kind: KindScalar, Scalar: v}
}

// TableResult wraps a table value.
func TableResult(t *Table) Result {
	return Result{Kind: KindTable, Table: t}
}

// ImageResult wraps an image value.
func ImageResult(img *Image) Result {
	return Result{Kind: KindImage, Image: img}
}

// ErrResult wraps a step failure. Foreign errors are classified as
// upstream tool failures.
func ErrResult(err error) Result {
	return Result{Kind: KindError, Err: AsEngineError(err)}
}

// IsError reports whether the result holds a terminal failure.
func (r Result) IsError() bool {
	return r.Kind == KindError
}

// Preview returns a short human-readable description of the result, used in
// the context summary sent to the answer formatter.
//
// Outputs:
//
//	string - One-line preview: scalar value, table dimensions and column
//	names, an image marker, or the error kind and message.
func (r Result) Preview() string {
	switch r.Kind {
	case KindScalar:
		return fmt.Sprintf("scalar: %v", r.Scalar)
	case KindTable:
		if r.Table == nil {
			return "table: <nil>"
		}
		return fmt.Sprintf("table: %d rows x %d cols [%s]",
			r.Table.NumRows(), len(r.Table.Columns), strings.Join(r.Table.Columns, ", "))
	case KindImage:
		return "image (encoded payload available)"
	case KindError:
		return fmt.Sprintf("error: %s", r.Err.Error())
	}
	return "unknown"
}

// =============================================================================
// Table Model
// =============================================================================

// Table is an ordered list of named columns over heterogeneous rows.
//
// Description:
//
//	Column names are unique. Cell values may be float64, int, int64,
//	string, bool, or nil; scraped data routinely mixes clean numbers with
//	decorated text within one column, which is why coercion is a policy
//	(coerce.go) rather than a column type.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given column names.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of an exactly-named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnValues returns the cells of one column in row order.
//
// Inputs:
//
//	name - Exact column name. Callers resolve aliases first.
//
// Outputs:
//
//	[]any - Cell values, nil slice if the column does not exist.
func (t *Table) ColumnValues(name string) []any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// AppendRow adds a row. Short rows are padded with nils so every row has one
// cell per column.
func (t *Table) AppendRow(cells ...any) {
	row := append([]any(nil), cells...)
	for len(row) < len(t.Columns) {
		row = append(row, nil)
	}
	t.Rows = append(t.Rows, row)
}

// Select returns a new table containing only the named columns, in the given
// order. Unknown names are skipped.
func (t *Table) Select(names ...string) *Table {
	idxs := make([]int, 0, len(names))
	cols := make([]string, 0, len(names))
	for _, n := range names {
		if idx := t.ColumnIndex(n); idx >= 0 {
			idxs = append(idxs, idx)
			cols = append(cols, n)
		}
	}
	out := &Table{Columns: cols, Rows: make([][]any, 0, len(t.Rows))}
	for _, row := range t.Rows {
		sel := make([]any, len(idxs))
		for i, idx := range idxs {
			if idx < len(row) {
				sel[i] = row[idx]
			}
		}
		out.Rows = append(out.Rows, sel)
	}
	return out
}

// Head returns a new table containing at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	out.Rows = append(out.Rows, t.Rows[:n]...)
	return out
}

// Clone returns a deep copy of the table. Operations that rewrite cells
// (cleaning, date differences) clone first to preserve the immutability of
// results already in the context store.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// WithColumn returns a copy of the table with an extra column appended. The
// values slice is padded or truncated to the row count.
func (t *Table) WithColumn(name string, values []any) *Table {
	out := t.Clone()
	out.Columns = append(out.Columns, name)
	for i := range out.Rows {
		var v any
		if i < len(values) {
			v = values[i]
		}
		out.Rows[i] = append(out.Rows[i], v)
	}
	return out
}
