// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest resolves raw task inputs (CSV payloads, HTML pages, URL
// references) into engine tables. The engine itself only ever sees the
// resolved table.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// =============================================================================
// CSV
// =============================================================================

// FromCSV parses a CSV payload into a table using the first record as the
// header row. Cells stay strings; numeric coercion is the engine's job and
// happens per operation.
func FromCSV(r io.Reader) (*engine.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	table := engine.NewTable(header...)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", table.NumRows()+2, err)
		}
		cells := make([]any, len(record))
		for i, f := range record {
			cells[i] = f
		}
		table.AppendRow(cells...)
	}
	return table, nil
}

// =============================================================================
// HTML Tables
// =============================================================================

// FromHTML extracts every <table> element from an HTML document.
//
// Description:
//
//	Header cells come from the first row's <th> elements, falling back to
//	its <td> text when the table has no header row. Rowspan/colspan
//	expansion is not attempted; scraped wiki-style tables degrade to
//	padded cells, which the coercion policy tolerates.
func FromHTML(r io.Reader) ([]*engine.Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var tables []*engine.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		if t := tableFromSelection(sel); t != nil && len(t.Columns) > 0 {
			tables = append(tables, t)
		}
	})
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found in document")
	}
	return tables, nil
}

// LargestHTMLTable extracts the table with the most rows, the usual target
// on a scraped page full of navigation tables.
func LargestHTMLTable(r io.Reader) (*engine.Table, error) {
	tables, err := FromHTML(r)
	if err != nil {
		return nil, err
	}
	best := tables[0]
	for _, t := range tables[1:] {
		if t.NumRows() > best.NumRows() {
			best = t
		}
	}
	return best, nil
}

func tableFromSelection(sel *goquery.Selection) *engine.Table {
	rows := sel.Find("tr")
	if rows.Length() == 0 {
		return nil
	}

	var columns []string
	first := rows.First()
	first.Find("th").Each(func(_ int, cell *goquery.Selection) {
		columns = append(columns, cleanCellText(cell.Text()))
	})
	headerConsumed := len(columns) > 0
	if !headerConsumed {
		first.Find("td").Each(func(_ int, cell *goquery.Selection) {
			columns = append(columns, cleanCellText(cell.Text()))
		})
		headerConsumed = len(columns) > 0
	}
	if len(columns) == 0 {
		return nil
	}

	table := engine.NewTable(columns...)
	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 && headerConsumed {
			return
		}
		var cells []any
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cleanCellText(cell.Text()))
		})
		if len(cells) > 0 {
			table.AppendRow(cells...)
		}
	})
	return table
}

func cleanCellText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// Resolution
// =============================================================================

// Fetcher resolves raw task data into a table, downloading URL references
// as needed.
//
// Thread Safety: Safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded-timeout HTTP client.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Resolve turns a raw input into a table.
//
// Description:
//
//	Accepts a payload and a content hint: "csv", "html", or "url". A url
//	payload is fetched and its body resolved by Content-Type, preferring
//	CSV when the server is ambiguous and the body parses as CSV.
//
// Inputs:
//
//	ctx - Cancellation and deadline for any download.
//	payload - The raw bytes, or the URL for the url hint.
//	hint - Content kind; empty defaults to csv.
//
// Outputs:
//
//	*engine.Table - The resolved table.
//	error - Non-nil when nothing table-shaped could be extracted.
func (f *Fetcher) Resolve(ctx context.Context, payload []byte, hint string) (*engine.Table, error) {
	switch strings.ToLower(hint) {
	case "", "csv":
		return FromCSV(bytes.NewReader(payload))
	case "html":
		return LargestHTMLTable(bytes.NewReader(payload))
	case "url":
		return f.fetch(ctx, strings.TrimSpace(string(payload)))
	default:
		return nil, fmt.Errorf("unsupported content hint %q", hint)
	}
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*engine.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	slog.Debug("fetched remote data",
		slog.String("url", url),
		slog.String("content_type", resp.Header.Get("Content-Type")),
		slog.Int("bytes", len(body)),
	)

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") {
		return LargestHTMLTable(bytes.NewReader(body))
	}
	if table, err := FromCSV(bytes.NewReader(body)); err == nil {
		return table, nil
	}
	return LargestHTMLTable(bytes.NewReader(body))
}
