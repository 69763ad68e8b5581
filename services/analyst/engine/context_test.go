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
	"strings"
	"testing"
)

func TestContextStoreWriteOnce(t *testing.T) {
	store := NewContextStore()
	if err := store.Put("q1", ScalarResult(1)); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.Put("q1", ScalarResult(2)); err == nil {
		t.Fatal("second put under the same key must fail")
	}
	if r, _ := store.Get("q1"); r.Scalar != 1 {
		t.Errorf("q1 = %v, original value must survive", r.Scalar)
	}
}

func TestContextStoreRejectsEmptyKey(t *testing.T) {
	store := NewContextStore()
	if err := store.Put("", ScalarResult(1)); err == nil {
		t.Fatal("empty key accepted")
	}
}

func TestContextStoreKeysInsertionOrder(t *testing.T) {
	store := NewContextStore()
	for _, k := range []string{"c", "a", "b"} {
		if err := store.Put(k, ScalarResult(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	keys := store.Keys()
	want := []string{"c", "a", "b"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestContextStoreHasImage(t *testing.T) {
	store := NewContextStore()
	store.Put("q1", ScalarResult(1))
	if store.HasImage() {
		t.Error("HasImage true without an image entry")
	}
	store.Put("q2", ImageResult(&Image{DataURI: "data:image/png;base64,AA"}))
	if !store.HasImage() {
		t.Error("HasImage false with an image entry")
	}
}

func TestContextStoreSummary(t *testing.T) {
	store := NewContextStore()
	store.Put("q1", ScalarResult(7))
	counts := NewTable("count")
	counts.AppendRow(3)
	store.Put("q2", TableResult(counts))
	store.Put("q3", ErrResult(Errf(KindColumnNotFound, "no column")))

	summary := store.Summary()
	for _, want := range []string{"q1", "scalar: 7", "q2", "1 rows x 1 cols", "q3", "column_not_found"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestTableCloneIsDeep(t *testing.T) {
	table := NewTable("a", "b")
	table.AppendRow(1, 2)
	clone := table.Clone()
	clone.Rows[0][0] = 99
	if table.Rows[0][0] != 1 {
		t.Error("clone shares row storage with the original")
	}
}

func TestTableAppendRowPadsShortRows(t *testing.T) {
	table := NewTable("a", "b", "c")
	table.AppendRow(1)
	if len(table.Rows[0]) != 3 {
		t.Fatalf("row length %d, want 3", len(table.Rows[0]))
	}
	if table.Rows[0][1] != nil || table.Rows[0][2] != nil {
		t.Error("padding cells must be nil")
	}
}

func TestEngineErrorKindOf(t *testing.T) {
	err := WrapErr(KindTypeConversion, Errf(KindColumnNotFound, "inner"), "outer")
	if KindOf(err) != KindTypeConversion {
		t.Errorf("KindOf = %s, want outermost kind", KindOf(err))
	}
	foreign := errors.New("socket closed")
	if KindOf(foreign) != KindUpstreamTool {
		t.Errorf("foreign errors must classify as %s", KindUpstreamTool)
	}
	if AsEngineError(foreign).Kind != KindUpstreamTool {
		t.Error("AsEngineError must wrap foreign errors as upstream tool failures")
	}
}
