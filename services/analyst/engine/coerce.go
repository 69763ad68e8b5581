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
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Numeric Coercion Policy
// =============================================================================

// maxNullRatio is the fraction of non-parseable cells above which a direct
// parse is considered to have failed and the extraction retry kicks in. The
// same threshold decides whether the retry itself succeeded.
const maxNullRatio = 0.5

// leadingNumberRe matches the leading numeric substring of a decorated cell,
// e.g. "24RK" -> "24", "$2,257.8M" (after symbol stripping) -> "2257.8".
var leadingNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// currencyDecorRe strips currency symbols and thousands separators before
// extraction so "2,257,844,554" survives as one number rather than "2".
var currencyDecorRe = regexp.MustCompile(`[$£€,]`)

// CoerceNumeric applies the two-tier coercion policy to a column.
//
// Description:
//
//	Tier 1 parses every cell directly (numeric cells pass through, strings
//	go through strconv). If more than half the cells fail, tier 2 retries
//	by extracting the leading numeric substring from each cell's string
//	form. If the failure ratio still exceeds half after the retry, the
//	column is deemed non-numeric.
//
//	Scraped tabular data frequently mixes clean numbers with decorated
//	text (footnote markers, currency symbols), which is what the retry
//	tier exists for.
//
// Inputs:
//
//	cells - The column's cell values.
//
// Outputs:
//
//	[]float64 - Coerced values, NaN for cells that stayed non-parseable.
//	error - KindTypeConversion if the column is non-numeric under the
//	        policy, or the column is empty.
func CoerceNumeric(cells []any) ([]float64, error) {
	if len(cells) == 0 {
		return nil, Errf(KindTypeConversion, "cannot coerce empty column")
	}

	direct := make([]float64, len(cells))
	nulls := 0
	for i, c := range cells {
		v, ok := parseCell(c)
		if !ok {
			direct[i] = math.NaN()
			nulls++
			continue
		}
		direct[i] = v
	}
	if ratio(nulls, len(cells)) <= maxNullRatio {
		return direct, nil
	}

	// Retry tier: leading numeric substring extraction.
	extracted := make([]float64, len(cells))
	nulls = 0
	for i, c := range cells {
		v, ok := extractLeadingNumber(cellString(c))
		if !ok {
			extracted[i] = math.NaN()
			nulls++
			continue
		}
		extracted[i] = v
	}
	if ratio(nulls, len(cells)) <= maxNullRatio {
		return extracted, nil
	}

	return nil, Errf(KindTypeConversion,
		"column is non-numeric: %d of %d cells unparseable after extraction retry",
		nulls, len(cells))
}

// parseCell attempts a direct numeric parse of one cell.
func parseCell(c any) (float64, bool) {
	switch v := c.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case nil:
		return 0, false
	}
	return 0, false
}

// extractLeadingNumber pulls the first numeric substring out of a decorated
// cell string, stripping currency symbols and thousands separators first.
func extractLeadingNumber(s string) (float64, bool) {
	s = currencyDecorRe.ReplaceAllString(strings.TrimSpace(s), "")
	m := leadingNumberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// cellString renders a cell as the string form the extraction tier operates
// on.
func cellString(c any) string {
	switch v := c.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(n) / float64(total)
}

// dropNaNPairs filters two coerced columns down to rows where both values
// are valid, preserving order. Statistical operations share this.
func dropNaNPairs(xs, ys []float64) ([]float64, []float64) {
	outX := make([]float64, 0, len(xs))
	outY := make([]float64, 0, len(ys))
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		outX = append(outX, xs[i])
		outY = append(outY, ys[i])
	}
	return outX, outY
}
