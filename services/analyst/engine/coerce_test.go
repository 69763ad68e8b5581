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
	"errors"
	"math"
	"testing"
)

func TestCoerceNumericDirectParse(t *testing.T) {
	cells := []any{1, 2.5, "3", "  4.5 ", int64(5)}
	got, err := CoerceNumeric(cells)
	if err != nil {
		t.Fatalf("CoerceNumeric returned error: %v", err)
	}
	want := []float64{1, 2.5, 3, 4.5, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCoerceNumericKeepsDirectBelowThreshold(t *testing.T) {
	// 2 of 5 unparseable: direct results used, bad cells stay NaN.
	cells := []any{"1", "2", "x", "4", "y"}
	got, err := CoerceNumeric(cells)
	if err != nil {
		t.Fatalf("CoerceNumeric returned error: %v", err)
	}
	if got[0] != 1 || got[1] != 2 || got[3] != 4 {
		t.Errorf("direct values not preserved: %v", got)
	}
	if !math.IsNaN(got[2]) || !math.IsNaN(got[4]) {
		t.Errorf("unparseable cells should be NaN: %v", got)
	}
}

func TestCoerceNumericExtractionRetry(t *testing.T) {
	// Decorated cells dominate: the extraction tier must kick in.
	cells := []any{"24RK", "30RK", "$2,257.8", "1,500,000", "12 (tied)"}
	got, err := CoerceNumeric(cells)
	if err != nil {
		t.Fatalf("CoerceNumeric returned error: %v", err)
	}
	want := []float64{24, 30, 2257.8, 1500000, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCoerceNumericFailsWhenRetryInsufficient(t *testing.T) {
	cells := []any{"alpha", "beta", "gamma", "4", nil}
	_, err := CoerceNumeric(cells)
	if err == nil {
		t.Fatal("expected TypeConversionError, got nil")
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Kind != KindTypeConversion {
		t.Errorf("got error %v, want kind %s", err, KindTypeConversion)
	}
}

func TestCoerceNumericEmptyColumn(t *testing.T) {
	if _, err := CoerceNumeric(nil); err == nil {
		t.Fatal("expected error for empty column")
	}
}

func TestExtractLeadingNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "rank suffix", input: "24RK", want: 24, ok: true},
		{name: "currency and commas", input: "$2,257,844,554", want: 2257844554, ok: true},
		{name: "negative", input: "-3.5pts", want: -3.5, ok: true},
		{name: "embedded", input: "about 12 units", want: 12, ok: true},
		{name: "no digits", input: "n/a", ok: false},
		{name: "empty", input: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractLeadingNumber(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDropNaNPairs(t *testing.T) {
	xs := []float64{1, math.NaN(), 3, 4}
	ys := []float64{10, 20, math.NaN(), 40}
	gx, gy := dropNaNPairs(xs, ys)
	if len(gx) != 2 || len(gy) != 2 {
		t.Fatalf("got %d pairs, want 2", len(gx))
	}
	if gx[0] != 1 || gy[0] != 10 || gx[1] != 4 || gy[1] != 40 {
		t.Errorf("wrong surviving pairs: %v %v", gx, gy)
	}
}
