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
	"strings"
)

// =============================================================================
// Context Store
// =============================================================================

// ContextStore is the per-task mapping from context key to Result.
//
// Description:
//
//	Populated strictly in step order, write-once per key, readable by any
//	later step and by the synthesizer. Created empty for each task and
//	discarded after the final answer is produced; nothing persists across
//	tasks.
//
//	The store is passed explicitly to each step invocation rather than held
//	as ambient state, so two tasks can never observe each other's results.
//
// Thread Safety:
//
//	Not safe for concurrent use. A task owns its store exclusively and
//	dispatch is sequential, so no locking is needed.
type ContextStore struct {
	order  []string
	values map[string]Result
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{values: make(map[string]Result)}
}

// Put writes a result under a key.
//
// Inputs:
//
//	key - Context key. Must not be empty.
//	result - The result to store.
//
// Outputs:
//
//	error - Non-nil if the key is empty or already written. Plan validation
//	        rejects duplicate keys up front, so a collision here indicates
//	        a dispatcher bug rather than bad input.
func (s *ContextStore) Put(key string, result Result) error {
	if key == "" {
		return fmt.Errorf("context key must not be empty")
	}
	if _, exists := s.values[key]; exists {
		return fmt.Errorf("context key %q already written", key)
	}
	s.order = append(s.order, key)
	s.values[key] = result
	return nil
}

// Get returns the result stored under a key.
func (s *ContextStore) Get(key string) (Result, bool) {
	r, ok := s.values[key]
	return r, ok
}

// Has reports whether a key has been written.
func (s *ContextStore) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys returns all written keys in insertion order.
func (s *ContextStore) Keys() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of stored entries.
func (s *ContextStore) Len() int {
	return len(s.order)
}

// HasImage reports whether any stored result is an image. The synthesizer
// uses this to skip model-assisted formatting: encoded payloads do not
// belong in a prompt.
func (s *ContextStore) HasImage() bool {
	for _, r := range s.values {
		if r.Kind == KindImage {
			return true
		}
	}
	return false
}

// Summary builds the compact textual description of every entry that is
// handed to the answer formatter.
//
// Outputs:
//
//	string - One line per entry: key, result kind, and a short preview.
func (s *ContextStore) Summary() string {
	var sb strings.Builder
	for _, key := range s.order {
		r := s.values[key]
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", key, r.Kind, r.Preview()))
	}
	return sb.String()
}
