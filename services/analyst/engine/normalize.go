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
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Domain Column Aliases
// =============================================================================

//go:embed column_aliases.yaml
var defaultColumnAliasesYAML []byte

// ColumnAliases maps lowercased requested column names to the actual column
// names planners usually mean. Loaded once from column_aliases.yaml and
// cached.
//
// # Thread Safety
//
// Safe for concurrent use after initialization (immutable after load).
type ColumnAliases map[string][]string

var (
	cachedColumnAliases ColumnAliases
	columnAliasesOnce   sync.Once
	columnAliasesErr    error
)

// LoadColumnAliases loads and caches the domain column alias dictionary from
// the embedded YAML configuration. Returns the cached result on subsequent
// calls.
//
// # Outputs
//
//   - ColumnAliases: The loaded mapping. Never nil on success.
//   - error: Non-nil if YAML parsing fails.
func LoadColumnAliases() (ColumnAliases, error) {
	columnAliasesOnce.Do(func() {
		var raw map[string][]string
		if err := yaml.Unmarshal(defaultColumnAliasesYAML, &raw); err != nil {
			columnAliasesErr = fmt.Errorf("parsing column_aliases.yaml: %w", err)
			return
		}
		cachedColumnAliases = raw
		slog.Debug("column aliases loaded",
			slog.Int("alias_count", len(raw)),
		)
	})
	return cachedColumnAliases, columnAliasesErr
}

// =============================================================================
// Parameter Normalization
// =============================================================================

// NormalizeParams resolves parameter aliasing and column naming for one
// operation invocation.
//
// Description:
//
//	Pure function with no side effects and no context access beyond the
//	column list passed in. For each declared parameter the canonical key
//	wins if present; otherwise the first alias found in table order is
//	used; otherwise the declared default applies, and a required parameter
//	with no value fails. Parameters marked IsColumn are then run through
//	the column resolver against the available columns.
//
//	Normalization is idempotent: an already-canonical mapping passes
//	through unchanged.
//
// Inputs:
//
//	spec - The operation's declared contract.
//	raw - The step's parameter mapping as the planner supplied it.
//	columns - The input table's actual column names; nil when the
//	          operation takes no table.
//
// Outputs:
//
//	map[string]any - Canonical parameters.
//	error - KindParameter for a required parameter absent after alias
//	        resolution, KindColumnNotFound for an unresolvable column.
func NormalizeParams(spec OpSpec, raw map[string]any, columns []string) (map[string]any, error) {
	out := make(map[string]any, len(spec.Params))

	for _, p := range spec.Params {
		val, found := raw[p.Canonical]
		if !found {
			for _, alias := range p.Aliases {
				if v, ok := raw[alias]; ok {
					val, found = v, true
					break
				}
			}
		}
		if !found || val == nil {
			if p.Default != nil {
				out[p.Canonical] = p.Default
				continue
			}
			if p.Required {
				return nil, Errf(KindParameter,
					"operation %s: required parameter %q absent after alias resolution",
					spec.Name, p.Canonical)
			}
			continue
		}

		if p.IsColumn {
			name, ok := val.(string)
			if !ok {
				return nil, Errf(KindParameter,
					"operation %s: parameter %q must name a column, got %T",
					spec.Name, p.Canonical, val)
			}
			resolved, err := ResolveColumn(name, columns)
			if err != nil {
				return nil, err
			}
			val = resolved
		}
		out[p.Canonical] = val
	}

	return out, nil
}

// ResolveColumn maps a requested column name onto one of a table's actual
// columns.
//
// Description:
//
//	Resolution order: exact match, case-insensitive exact match, domain
//	alias dictionary, then substring containment in either direction. The
//	containment tier catches planner output like "gross" against
//	"Worldwide gross"; the dictionary catches vocabulary drift like
//	"Film" against "Title".
//
// Inputs:
//
//	requested - The column name as the planner supplied it.
//	columns - The table's actual column names.
//
// Outputs:
//
//	string - The resolved actual column name.
//	error - KindColumnNotFound when every strategy is exhausted.
func ResolveColumn(requested string, columns []string) (string, error) {
	if requested == "" {
		return "", Errf(KindColumnNotFound, "empty column name requested")
	}

	// Exact.
	for _, c := range columns {
		if c == requested {
			return c, nil
		}
	}

	// Case-insensitive exact.
	lowered := strings.ToLower(strings.TrimSpace(requested))
	for _, c := range columns {
		if strings.ToLower(c) == lowered {
			return c, nil
		}
	}

	// Domain alias dictionary.
	if aliases, err := LoadColumnAliases(); err == nil {
		key := strings.ToLower(strings.ReplaceAll(lowered, " ", "_"))
		for _, candidate := range aliases[key] {
			for _, c := range columns {
				if strings.EqualFold(c, candidate) {
					return c, nil
				}
			}
		}
	}

	// Containment, either direction.
	for _, c := range columns {
		cl := strings.ToLower(c)
		if strings.Contains(cl, lowered) || strings.Contains(lowered, cl) {
			return c, nil
		}
	}

	return "", Errf(KindColumnNotFound,
		"column %q not found; available columns: %s",
		requested, strings.Join(columns, ", "))
}
