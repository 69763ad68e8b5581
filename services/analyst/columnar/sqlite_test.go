// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package columnar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnalyst/services/analyst/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestImportAndQueryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cases := engine.NewTable("court", "year")
	cases.AppendRow("9th Circuit", 2023)
	cases.AppendRow("9th Circuit", 2024)
	cases.AppendRow("5th Circuit", 2024)
	require.NoError(t, store.ImportTable(ctx, "cases", cases))

	got, err := store.RunQuery(ctx,
		`SELECT COUNT(*) AS count FROM cases WHERE court = '9th Circuit'`, "cases")
	require.NoError(t, err)
	require.Equal(t, []string{"count"}, got.Columns)
	require.Equal(t, 1, got.NumRows())
	require.EqualValues(t, 2, got.Rows[0][0])
}

func TestImportReplacesExistingTable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := engine.NewTable("v")
	first.AppendRow(1)
	require.NoError(t, store.ImportTable(ctx, "data", first))

	second := engine.NewTable("v")
	second.AppendRow(2)
	second.AppendRow(3)
	require.NoError(t, store.ImportTable(ctx, "data", second))

	got, err := store.RunQuery(ctx, "SELECT COUNT(*) AS count FROM data", "data")
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Rows[0][0])
}

func TestRunQueryTextCellsAreStrings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	table := engine.NewTable("name")
	table.AppendRow("Titanic (1997)")
	require.NoError(t, store.ImportTable(ctx, "films", table))

	got, err := store.RunQuery(ctx, "SELECT name FROM films", "films")
	require.NoError(t, err)
	_, isString := got.Rows[0][0].(string)
	require.True(t, isString, "TEXT cells must come back as strings, got %T", got.Rows[0][0])
}

func TestRunQuerySyntaxError(t *testing.T) {
	store := openTestStore(t)
	_, err := store.RunQuery(context.Background(), "SELEKT nope", "scratch")
	require.Error(t, err)
}

func TestImportRejectsEmptyTable(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.ImportTable(context.Background(), "empty", engine.NewTable()))
}

func TestQuotedIdentifiers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	table := engine.NewTable("Worldwide gross")
	table.AppendRow(2257844554)
	require.NoError(t, store.ImportTable(ctx, "films", table))

	got, err := store.RunQuery(ctx, `SELECT "Worldwide gross" FROM films`, "films")
	require.NoError(t, err)
	require.EqualValues(t, 2257844554, got.Rows[0][0])
}
