// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package viz renders chart specs into encoded images for the engine's
// visualization operation.
package viz

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// =============================================================================
// Plot Renderer
// =============================================================================

// regressionLineColor is the fixed overlay color. The overlay is always a
// dashed red line regardless of the chart's own styling.
var regressionLineColor = color.RGBA{R: 0xd6, G: 0x2c, B: 0x2c, A: 0xff}

// PlotRenderer renders charts to base64 PNG data URIs.
//
// Description:
//
//	Rendering is CPU-bound; the context is checked once up front, and the
//	dispatcher's step isolation contains anything slower. Identical inputs
//	produce the same logical plot, though not necessarily byte-identical
//	PNG output.
//
// Thread Safety: Stateless; safe for concurrent use.
type PlotRenderer struct {
	// Width and Height of the rendered canvas. Zero values fall back to
	// 6x4 inches.
	Width  vg.Length
	Height vg.Length
}

// NewPlotRenderer creates a renderer with the default canvas size.
func NewPlotRenderer() *PlotRenderer {
	return &PlotRenderer{Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

// Render implements engine.ChartRenderer.
//
// Inputs:
//
//	ctx - Checked for cancellation before rendering starts.
//	spec - The chart to draw; XS and YS are equal-length and NaN-free.
//
// Outputs:
//
//	*engine.Image - PNG payload as a base64 data URI.
//	error - Non-nil on an unsupported kind or a plotting failure.
func (r *PlotRenderer) Render(ctx context.Context, spec engine.ChartSpec) (*engine.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(spec.XS) != len(spec.YS) {
		return nil, fmt.Errorf("mismatched series lengths: %d x, %d y", len(spec.XS), len(spec.YS))
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel

	pts := make(plotter.XYs, len(spec.XS))
	for i := range spec.XS {
		pts[i].X = spec.XS[i]
		pts[i].Y = spec.YS[i]
	}

	switch spec.Kind {
	case "scatter":
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("building scatter: %w", err)
		}
		p.Add(sc)
	case "line":
		ln, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("building line: %w", err)
		}
		p.Add(ln)
	case "bar":
		vals := make(plotter.Values, len(spec.YS))
		copy(vals, spec.YS)
		bars, err := plotter.NewBarChart(vals, vg.Points(12))
		if err != nil {
			return nil, fmt.Errorf("building bar chart: %w", err)
		}
		p.Add(bars)
	default:
		return nil, fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}

	if spec.Overlay != nil && len(spec.XS) > 0 {
		if err := addRegressionLine(p, spec); err != nil {
			return nil, err
		}
	}
	p.Add(plotter.NewGrid())

	width, height := r.Width, r.Height
	if width == 0 || height == 0 {
		width, height = 6*vg.Inch, 4*vg.Inch
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("encoding plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("writing png: %w", err)
	}

	return &engine.Image{
		DataURI:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Encoding: "base64/png",
	}, nil
}

// addRegressionLine draws the fitted line across the x range as a dashed
// segment in the fixed overlay color.
func addRegressionLine(p *plot.Plot, spec engine.ChartSpec) error {
	minX, maxX := spec.XS[0], spec.XS[0]
	for _, x := range spec.XS {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
	}

	fit := spec.Overlay
	line := plotter.XYs{
		{X: minX, Y: fit.Intercept + fit.Slope*minX},
		{X: maxX, Y: fit.Intercept + fit.Slope*maxX},
	}
	ln, err := plotter.NewLine(line)
	if err != nil {
		return fmt.Errorf("building regression overlay: %w", err)
	}
	ln.LineStyle.Color = regressionLineColor
	ln.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(4)}
	p.Add(ln)
	p.Legend.Add(fmt.Sprintf("fit (r²=%.2f)", fit.RSquared), ln)
	return nil
}
