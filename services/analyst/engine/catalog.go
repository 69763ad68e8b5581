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
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ChartSpec describes a chart for the rendering collaborator.
type ChartSpec struct {
	// Kind is the chart type: "scatter", "line", or "bar".
	Kind string

	// Title, XLabel, YLabel annotate the chart.
	Title  string
	XLabel string
	YLabel string

	// XS and YS are the plotted points, already coerced and NaN-free.
	XS []float64
	YS []float64

	// Overlay, when non-nil, draws a dashed regression line over the data.
	Overlay *RegressionOverlay
}

// RegressionOverlay is the fitted line drawn over a scatter chart.
type RegressionOverlay struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// ChartRenderer renders a chart spec into an encoded image. Implemented by
// the viz package; rendering is CPU-bound and must honor ctx cancellation.
type ChartRenderer interface {
	Render(ctx context.Context, spec ChartSpec) (*Image, error)
}

// RemoteQueryer forwards a query string to the external columnar engine.
//
// Description:
//
//	The engine never interprets the query; it forwards it verbatim and
//	receives back a table. Collaborator failures surface to the catalog as
//	plain errors and are classified KindUpstreamTool by the dispatcher.
//
// Thread Safety: Implementations must be safe for concurrent use.
type RemoteQueryer interface {
	RunQuery(ctx context.Context, query, sourceRef string) (*Table, error)
}

// Collaborators bundles the external dependencies operations may delegate
// to. Either field may be nil; the corresponding operation then fails with
// an upstream tool error instead of panicking.
type Collaborators struct {
	Renderer ChartRenderer
	Queryer  RemoteQueryer
}

// =============================================================================
// Operation Catalog
// =============================================================================

// ParamSpec declares one canonical parameter of an operation.
//
// Description:
//
//	Aliases list the accepted synonym keys in priority order; the
//	normalizer resolves the canonical key first, then aliases in table
//	order. IsColumn marks parameters whose value names a table column and
//	must go through the column resolver.
type ParamSpec struct {
	Canonical string
	Aliases   []string
	Required  bool
	IsColumn  bool
	Default   any
}

// OpSpec is the declared contract of a catalog operation.
type OpSpec struct {
	// Name is the fixed registry key the planner addresses the operation by.
	Name string

	// NeedsTable marks operations that consume a table from the context.
	NeedsTable bool

	// Params declares the canonical parameters and their alias tables.
	Params []ParamSpec
}

// OpInput carries the normalized inputs into an operation.
type OpInput struct {
	// Table is the resolved input table, nil for operations with
	// NeedsTable false.
	Table *Table

	// Params holds canonical parameters after alias and column resolution.
	Params map[string]any
}

// OpFunc is a catalog operation: a pure transformation from a table and
// canonical parameters to a Result. Only visualize and remote_query touch
// collaborators, captured at registration time.
type OpFunc func(ctx context.Context, in OpInput) (Result, error)

// Operation pairs a spec with its implementation.
type Operation struct {
	Spec OpSpec
	Run  OpFunc
}

// Catalog is the closed registry of analysis operations.
//
// Description:
//
//	Operation dispatch is by fixed name against this registry; adding an
//	operation means registering a new entry here, never reflection. The
//	registry is populated once at construction and immutable afterwards.
//
// Thread Safety: Immutable after NewCatalog; safe for concurrent use.
type Catalog struct {
	ops map[string]*Operation
}

// NewCatalog builds the full operation registry.
//
// Inputs:
//
//	collab - External collaborators for visualize and remote_query. May
//	         contain nil fields; the affected operations then fail at call
//	         time with an upstream tool error.
//
// Outputs:
//
//	*Catalog - The populated registry.
func NewCatalog(collab Collaborators) *Catalog {
	c := &Catalog{ops: make(map[string]*Operation)}

	c.register(countConditionOp())
	c.register(filterAndCountOp())
	c.register(filterSortSelectOp())
	c.register(correlationOp())
	c.register(regressionOp())
	c.register(dateDifferenceRegressionOp())
	c.register(calculateDateDifferenceOp())
	c.register(topByCountOp())
	c.register(groupAndAggregateOp())
	c.register(cleanMonetaryValuesOp())
	c.register(cleanYearColumnOp())
	c.register(visualizeOp(collab.Renderer))
	c.register(remoteQueryOp(collab.Queryer))

	return c
}

func (c *Catalog) register(op *Operation) {
	c.ops[op.Spec.Name] = op
}

// Lookup returns the operation registered under a name.
func (c *Catalog) Lookup(name string) (*Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Names returns all registered operation names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.ops))
	for n := range c.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
