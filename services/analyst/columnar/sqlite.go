// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package columnar executes delegated queries against a local SQLite
// database, standing in for the remote columnar engine used with large
// external datasets.
package columnar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

// =============================================================================
// SQLite Query Engine
// =============================================================================

// Store is a SQLite-backed query engine implementing engine.RemoteQueryer.
//
// Thread Safety: Safe for concurrent use; database/sql pools connections.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database file, creating it if absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory database, used in tests and for per-task
// scratch datasets.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunQuery implements engine.RemoteQueryer.
//
// Description:
//
//	Executes the query verbatim, single attempt, and materializes the
//	result set into an engine.Table. sourceRef is diagnostic only; the
//	query itself names the tables it reads.
//
// Inputs:
//
//	ctx - Cancellation and deadline.
//	query - SQL, forwarded unmodified.
//	sourceRef - Caller-supplied dataset label for logging.
//
// Outputs:
//
//	*engine.Table - The full result set.
//	error - Non-nil on query or scan failure.
func (s *Store) RunQuery(ctx context.Context, query, sourceRef string) (*engine.Table, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	table := engine.NewTable(cols...)
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		for i, c := range cells {
			// Drivers hand back []byte for TEXT affinity.
			if b, ok := c.([]byte); ok {
				cells[i] = string(b)
			}
		}
		table.AppendRow(cells...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}

	slog.Debug("remote query executed",
		slog.String("source_ref", sourceRef),
		slog.Int("rows", table.NumRows()),
		slog.Int("columns", len(table.Columns)),
	)
	return table, nil
}

// ImportTable loads an engine.Table into the database under a name, so
// delegated queries can reference uploaded data.
//
// Description:
//
//	All columns get no declared type; SQLite's affinity rules keep numbers
//	numeric and text textual, which matches the engine's heterogeneous
//	cell model. An existing table under the same name is replaced.
func (s *Store) ImportTable(ctx context.Context, name string, t *engine.Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("cannot import table %q with no columns", name)
	}

	quoted := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = quoteIdent(c)
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("dropping existing table %q: %w", name, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(quoted, ", "))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), placeholders)
	for _, row := range t.Rows {
		if _, err := s.db.ExecContext(ctx, insert, row...); err != nil {
			return fmt.Errorf("inserting into table %q: %w", name, err)
		}
	}
	return nil
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
