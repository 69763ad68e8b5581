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
	"errors"
	"math"
	"testing"
)

// filmsTable mirrors a scraped highest-grossing-films table: decorated
// currency cells, a Peak column mixing clean and suffixed values.
func filmsTable() *Table {
	t := NewTable("Rank", "Peak", "Title", "Worldwide gross", "Year")
	t.AppendRow("1", "1", "Avatar (2009)", "$2,923,706,026", "2009")
	t.AppendRow("2", "3RK", "Avengers: Endgame (2019)", "$2,797,501,328", "2019")
	t.AppendRow("3", "2RK", "Avatar: The Way of Water (2022)", "$2,320,250,281", "2022")
	t.AppendRow("4", "5RK", "Titanic (1997)", "$2,257,844,554", "1997")
	t.AppendRow("5", "4RK", "Star Wars: The Force Awakens (2015)", "$2,068,223,624", "2015")
	return t
}

// runOp normalizes raw params and invokes a catalog operation directly.
func runOp(t *testing.T, name string, table *Table, raw map[string]any) (Result, error) {
	t.Helper()
	op, ok := testCatalog().Lookup(name)
	if !ok {
		t.Fatalf("operation %q not registered", name)
	}
	var columns []string
	if table != nil {
		columns = table.Columns
	}
	params, err := NormalizeParams(op.Spec, raw, columns)
	if err != nil {
		return Result{}, err
	}
	return op.Run(context.Background(), OpInput{Table: table, Params: params})
}

func TestCountCondition(t *testing.T) {
	res, err := runOp(t, "count_condition", filmsTable(), map[string]any{
		"column": "Year", "operator": "<", "value": 2000,
	})
	if err != nil {
		t.Fatalf("count_condition: %v", err)
	}
	if res.Scalar != 1 {
		t.Errorf("count = %v, want 1", res.Scalar)
	}
}

func TestFilterAndCountConjunctive(t *testing.T) {
	res, err := runOp(t, "filter_and_count", filmsTable(), map[string]any{
		"filters": []any{
			map[string]any{"column": "Worldwide gross", "operator": ">", "value": 2000000000},
			map[string]any{"column": "Year", "operator": "<", "value": 2000},
		},
	})
	if err != nil {
		t.Fatalf("filter_and_count: %v", err)
	}
	if res.Scalar != 1 {
		t.Errorf("count = %v, want 1 (only Titanic)", res.Scalar)
	}
}

func TestFilterAndCountAcceptsAliasKeys(t *testing.T) {
	res, err := runOp(t, "filter_and_count", filmsTable(), map[string]any{
		"conditions": []any{
			map[string]any{"col": "Year", "op": ">=", "val": "2009"},
		},
	})
	if err != nil {
		t.Fatalf("filter_and_count: %v", err)
	}
	if res.Scalar != 3 {
		t.Errorf("count = %v, want 3", res.Scalar)
	}
}

func TestFilterSortSelectScalarCollapse(t *testing.T) {
	res, err := runOp(t, "filter_sort_select", filmsTable(), map[string]any{
		"filters": []any{
			map[string]any{"column": "Worldwide gross", "operator": ">", "value": "1,500,000,000"},
		},
		"sort_by":       "Year",
		"ascending":     true,
		"select_column": "Title",
		"limit":         1,
	})
	if err != nil {
		t.Fatalf("filter_sort_select: %v", err)
	}
	if res.Kind != KindScalar {
		t.Fatalf("kind = %s, want scalar for limit 1", res.Kind)
	}
	if res.Scalar != "Titanic (1997)" {
		t.Errorf("earliest film = %v, want Titanic (1997)", res.Scalar)
	}
}

func TestFilterSortSelectTableResult(t *testing.T) {
	res, err := runOp(t, "filter_sort_select", filmsTable(), map[string]any{
		"sort_by":       "Year",
		"ascending":     false,
		"select_column": "Title",
		"limit":         2,
	})
	if err != nil {
		t.Fatalf("filter_sort_select: %v", err)
	}
	if res.Kind != KindTable {
		t.Fatalf("kind = %s, want table", res.Kind)
	}
	if res.Table.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", res.Table.NumRows())
	}
	if got := res.Table.Rows[0][0]; got != "Avatar: The Way of Water (2022)" {
		t.Errorf("newest film = %v", got)
	}
}

func TestFilterSortSelectStableSortPreservesTies(t *testing.T) {
	table := NewTable("name", "score")
	table.AppendRow("first", "10")
	table.AppendRow("second", "10")
	table.AppendRow("third", "10")
	res, err := runOp(t, "filter_sort_select", table, map[string]any{
		"sort_by":       "score",
		"select_column": "name",
		"limit":         3,
	})
	if err != nil {
		t.Fatalf("filter_sort_select: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if got := res.Table.Rows[i][0]; got != want {
			t.Errorf("row %d = %v, want %v (ties must keep original order)", i, got, want)
		}
	}
}

func TestFilterSortSelectUncoercibleCellsSortLast(t *testing.T) {
	table := NewTable("Title", "Gross")
	table.AppendRow("Alpha", "100")
	table.AppendRow("Beta", "50")
	table.AppendRow("Junk", "xyz")

	res, err := runOp(t, "filter_sort_select", table, map[string]any{
		"sort_by":       "Gross",
		"ascending":     false,
		"select_column": "Title",
		"limit":         1,
	})
	if err != nil {
		t.Fatalf("filter_sort_select: %v", err)
	}
	if res.Scalar != "Alpha" {
		t.Errorf("descending top-1 = %v, want Alpha (gross 100)", res.Scalar)
	}

	res, err = runOp(t, "filter_sort_select", table, map[string]any{
		"sort_by":       "Gross",
		"ascending":     true,
		"select_column": "Title",
		"limit":         3,
	})
	if err != nil {
		t.Fatalf("filter_sort_select: %v", err)
	}
	if got := res.Table.Rows[2][0]; got != "Junk" {
		t.Errorf("ascending last row = %v, want the uncoercible row", got)
	}
}

func TestCorrelationWithDecoratedColumn(t *testing.T) {
	// Peak extracts to [1 3 2 5 4] against Rank [1 2 3 4 5]: r = 0.8.
	res, err := runOp(t, "correlation", filmsTable(), map[string]any{
		"col1": "Rank", "col2": "Peak",
	})
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	r, ok := res.Scalar.(float64)
	if !ok {
		t.Fatalf("scalar type %T", res.Scalar)
	}
	if math.Abs(r-0.8) > 1e-9 {
		t.Errorf("r = %v, want 0.8", r)
	}
}

func TestCorrelationAliasParams(t *testing.T) {
	res, err := runOp(t, "correlation", filmsTable(), map[string]any{
		"column1": "Rank", "column2": "Peak",
	})
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if r := res.Scalar.(float64); math.Abs(r-0.8) > 1e-9 {
		t.Errorf("r = %v, want 0.8", r)
	}
}

func TestCorrelationRejectsUnknownMethod(t *testing.T) {
	_, err := runOp(t, "correlation", filmsTable(), map[string]any{
		"col1": "Rank", "col2": "Peak", "method": "spearman",
	})
	if KindOf(err) != KindParameter {
		t.Errorf("got %v, want parameter error", err)
	}
}

func TestCorrelationInsufficientData(t *testing.T) {
	table := NewTable("a", "b")
	table.AppendRow("1", "2")
	_, err := runOp(t, "correlation", table, map[string]any{"col1": "a", "col2": "b"})
	if KindOf(err) != KindInsufficientData {
		t.Errorf("got %v, want insufficient data error", err)
	}
}

func TestRegressionPerfectLine(t *testing.T) {
	table := NewTable("x", "y")
	for i := 1; i <= 5; i++ {
		table.AppendRow(float64(i), float64(2*i+1))
	}
	res, err := runOp(t, "regression", table, map[string]any{"x": "x", "y": "y"})
	if err != nil {
		t.Fatalf("regression: %v", err)
	}
	if res.Kind != KindTable {
		t.Fatalf("kind = %s, want table", res.Kind)
	}
	slope := res.Table.Rows[0][res.Table.ColumnIndex("slope")].(float64)
	intercept := res.Table.Rows[0][res.Table.ColumnIndex("intercept")].(float64)
	rsq := res.Table.Rows[0][res.Table.ColumnIndex("r_squared")].(float64)
	if math.Abs(slope-2) > 1e-9 || math.Abs(intercept-1) > 1e-9 {
		t.Errorf("fit = %v x + %v, want 2x + 1", slope, intercept)
	}
	if math.Abs(rsq-1) > 1e-9 {
		t.Errorf("r_squared = %v, want 1", rsq)
	}
}

func TestTopByCount(t *testing.T) {
	table := NewTable("court", "decision")
	table.AppendRow("9th Circuit", "affirmed")
	table.AppendRow("5th Circuit", "reversed")
	table.AppendRow("9th Circuit", "reversed")
	table.AppendRow("9th Circuit", "affirmed")
	res, err := runOp(t, "top_by_count", table, map[string]any{"group_by": "court"})
	if err != nil {
		t.Fatalf("top_by_count: %v", err)
	}
	if res.Table.Rows[0][0] != "9th Circuit" {
		t.Errorf("top group = %v, want 9th Circuit", res.Table.Rows[0][0])
	}
	if res.Table.Rows[0][1] != 3 {
		t.Errorf("top count = %v, want 3", res.Table.Rows[0][1])
	}
}

func TestGroupAndAggregateMean(t *testing.T) {
	table := NewTable("group", "value")
	table.AppendRow("a", "10")
	table.AppendRow("a", "20")
	table.AppendRow("b", "5")
	res, err := runOp(t, "group_and_aggregate", table, map[string]any{
		"group_by": "group", "agg": "mean", "value_column": "value",
	})
	if err != nil {
		t.Fatalf("group_and_aggregate: %v", err)
	}
	if res.Table.Rows[0][0] != "a" || res.Table.Rows[0][1].(float64) != 15 {
		t.Errorf("top row = %v, want [a 15]", res.Table.Rows[0])
	}
	if res.Table.Rows[1][0] != "b" || res.Table.Rows[1][1].(float64) != 5 {
		t.Errorf("second row = %v, want [b 5]", res.Table.Rows[1])
	}
}

func TestCleanMonetaryValues(t *testing.T) {
	res, err := runOp(t, "clean_monetary_values", filmsTable(), map[string]any{
		"column": "Worldwide gross",
	})
	if err != nil {
		t.Fatalf("clean_monetary_values: %v", err)
	}
	idx := res.Table.ColumnIndex("Worldwide gross")
	if got := res.Table.Rows[0][idx]; got != 2923706026.0 {
		t.Errorf("cleaned gross = %v, want 2923706026", got)
	}
}

func TestCleanYearColumn(t *testing.T) {
	res, err := runOp(t, "clean_year_column", filmsTable(), map[string]any{
		"column": "Title",
	})
	if err != nil {
		t.Fatalf("clean_year_column: %v", err)
	}
	idx := res.Table.ColumnIndex("Title")
	if got := res.Table.Rows[3][idx]; got != 1997 {
		t.Errorf("extracted year = %v, want 1997", got)
	}
}

func TestCleanYearColumnDoesNotMutateInput(t *testing.T) {
	table := filmsTable()
	if _, err := runOp(t, "clean_year_column", table, map[string]any{"column": "Title"}); err != nil {
		t.Fatalf("clean_year_column: %v", err)
	}
	if table.Rows[3][table.ColumnIndex("Title")] != "Titanic (1997)" {
		t.Error("input table was mutated")
	}
}

func TestCalculateDateDifference(t *testing.T) {
	table := NewTable("registered", "decided")
	table.AppendRow("2024-01-01", "2024-01-11")
	table.AppendRow("2023-06-01", "2023-06-02")
	res, err := runOp(t, "calculate_date_difference", table, map[string]any{
		"date_col_a": "registered", "date_col_b": "decided",
	})
	if err != nil {
		t.Fatalf("calculate_date_difference: %v", err)
	}
	idx := res.Table.ColumnIndex("date_diff")
	if idx < 0 {
		t.Fatal("date_diff column missing")
	}
	if got := res.Table.Rows[0][idx].(float64); math.Abs(got-10) > 1e-9 {
		t.Errorf("diff = %v, want 10 days", got)
	}
}

func TestDateDifferenceRegression(t *testing.T) {
	// Delay grows exactly 1 day per year: slope 1.
	table := NewTable("start", "end")
	table.AppendRow("2020-01-01", "2020-01-11")
	table.AppendRow("2021-01-01", "2021-01-12")
	table.AppendRow("2022-01-01", "2022-01-13")
	res, err := runOp(t, "date_difference_regression", table, map[string]any{
		"date_col_a": "start", "date_col_b": "end",
	})
	if err != nil {
		t.Fatalf("date_difference_regression: %v", err)
	}
	slope := res.Table.Rows[0][res.Table.ColumnIndex("slope")].(float64)
	if math.Abs(slope-1) > 1e-9 {
		t.Errorf("slope = %v, want 1", slope)
	}
}

// stubRenderer implements ChartRenderer without a real plotting backend.
type stubRenderer struct {
	lastSpec ChartSpec
	err      error
}

func (s *stubRenderer) Render(ctx context.Context, spec ChartSpec) (*Image, error) {
	s.lastSpec = spec
	if s.err != nil {
		return nil, s.err
	}
	return &Image{DataURI: "data:image/png;base64,c3R1Yg==", Encoding: "base64/png"}, nil
}

func TestVisualizeWithRegressionOverlay(t *testing.T) {
	renderer := &stubRenderer{}
	op := visualizeOp(renderer)
	params, err := NormalizeParams(op.Spec, map[string]any{
		"x": "Rank", "y": "Peak", "kind": "scatter", "overlay": "regression_line",
	}, filmsTable().Columns)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	res, err := op.Run(context.Background(), OpInput{Table: filmsTable(), Params: params})
	if err != nil {
		t.Fatalf("visualize: %v", err)
	}
	if res.Kind != KindImage {
		t.Fatalf("kind = %s, want image", res.Kind)
	}
	if renderer.lastSpec.Overlay == nil {
		t.Fatal("regression overlay not requested from renderer")
	}
	if len(renderer.lastSpec.XS) != 5 {
		t.Errorf("points = %d, want 5", len(renderer.lastSpec.XS))
	}
}

func TestVisualizeRendererFailureIsUpstream(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("canvas exploded")}
	op := visualizeOp(renderer)
	params, _ := NormalizeParams(op.Spec, map[string]any{"x": "Rank", "y": "Peak"}, filmsTable().Columns)
	_, err := op.Run(context.Background(), OpInput{Table: filmsTable(), Params: params})
	if KindOf(err) != KindUpstreamTool {
		t.Errorf("got %v, want upstream tool error", err)
	}
}

// stubQueryer implements RemoteQueryer with a canned table.
type stubQueryer struct {
	table *Table
	err   error
	query string
}

func (s *stubQueryer) RunQuery(ctx context.Context, query, sourceRef string) (*Table, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return s.table, nil
}

func TestRemoteQueryScalarCollapse(t *testing.T) {
	result := NewTable("count")
	result.AppendRow(int64(42))
	queryer := &stubQueryer{table: result}
	op := remoteQueryOp(queryer)
	params, err := NormalizeParams(op.Spec, map[string]any{
		"query_string": "SELECT COUNT(*) AS count FROM cases", "source": "cases",
	}, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	res, err := op.Run(context.Background(), OpInput{Params: params})
	if err != nil {
		t.Fatalf("remote_query: %v", err)
	}
	if res.Kind != KindScalar || res.Scalar != int64(42) {
		t.Errorf("got %s %v, want scalar 42", res.Kind, res.Scalar)
	}
	if queryer.query != "SELECT COUNT(*) AS count FROM cases" {
		t.Errorf("query not forwarded verbatim: %q", queryer.query)
	}
}

func TestRemoteQueryErrorIsUpstream(t *testing.T) {
	op := remoteQueryOp(&stubQueryer{err: errors.New("connection refused")})
	params, _ := NormalizeParams(op.Spec, map[string]any{"query": "SELECT 1"}, nil)
	_, err := op.Run(context.Background(), OpInput{Params: params})
	if KindOf(err) != KindUpstreamTool {
		t.Errorf("got %v, want upstream tool error", err)
	}
}

func TestOrderingFilterOnTextColumnFails(t *testing.T) {
	_, err := runOp(t, "count_condition", filmsTable(), map[string]any{
		"column": "Title", "operator": ">", "value": "Avatar",
	})
	if KindOf(err) != KindTypeConversion {
		t.Errorf("got %v, want type conversion error", err)
	}
}

func TestEqualityFilterOnTextColumn(t *testing.T) {
	res, err := runOp(t, "count_condition", filmsTable(), map[string]any{
		"column": "Title", "operator": "==", "value": "Titanic (1997)",
	})
	if err != nil {
		t.Fatalf("count_condition: %v", err)
	}
	if res.Scalar != 1 {
		t.Errorf("count = %v, want 1", res.Scalar)
	}
}
