// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"fmt"
	"testing"
)

func TestConditionCache_PutGet(t *testing.T) {
	cache := NewConditionCache(10)

	cond := Filter("grade == 8")
	cache.Put("grade 8 students", ruleColumns, "gemini-1.5-flash", cond)

	got, ok := cache.Get("grade 8 students", ruleColumns, "gemini-1.5-flash")
	if !ok || got != cond {
		t.Errorf("Get = %+v, %v; want %+v, true", got, ok, cond)
	}
}

func TestConditionCache_KeyIsCaseInsensitiveOnQuestion(t *testing.T) {
	cache := NewConditionCache(10)
	cache.Put("Grade 8 Students", ruleColumns, "gemini-1.5-flash", Filter("grade == 8"))

	if _, ok := cache.Get("grade 8 students", ruleColumns, "gemini-1.5-flash"); !ok {
		t.Error("question casing should not change the cache key")
	}
}

func TestConditionCache_ColumnsPartitionTheKey(t *testing.T) {
	cache := NewConditionCache(10)
	cache.Put("highest", []string{"a", "b"}, "gemini-1.5-flash", GlobalAggregate(OpMax, "b"))

	if _, ok := cache.Get("highest", []string{"a", "c"}, "gemini-1.5-flash"); ok {
		t.Error("different column sets must not share entries")
	}
}

func TestConditionCache_ModelPartitionsTheKey(t *testing.T) {
	cache := NewConditionCache(10)
	if err := cache.OpenPersistence(t.TempDir()); err != nil {
		t.Fatalf("OpenPersistence failed: %v", err)
	}
	defer cache.Close()

	cache.Put("who is the topper", ruleColumns, "gemini-1.5-flash", GlobalAggregate(OpMax, "quiz_score"))

	// A model switch must not serve the previous model's conditions, even
	// from the persistent tier.
	if _, ok := cache.Get("who is the topper", ruleColumns, "llama3"); ok {
		t.Error("different models must not share entries")
	}
}

func TestConditionCache_EvictsWhenFull(t *testing.T) {
	cache := NewConditionCache(3)
	for i := 0; i < 5; i++ {
		cache.Put(fmt.Sprintf("question %d", i), ruleColumns, "gemini-1.5-flash", EmptyFilter())
	}

	if got := cache.Stats().Size; got != 3 {
		t.Errorf("Size = %d, want 3", got)
	}
}

func TestConditionCache_Stats(t *testing.T) {
	cache := NewConditionCache(10)
	cache.Put("q1", ruleColumns, "gemini-1.5-flash", EmptyFilter())

	cache.Get("q1", ruleColumns, "gemini-1.5-flash")
	cache.Get("q2", ruleColumns, "gemini-1.5-flash")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits = %d, Misses = %d; want 1, 1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 50 {
		t.Errorf("HitRate = %v, want 50", stats.HitRate)
	}
	if stats.Persistent {
		t.Error("memory-only cache should not report persistence")
	}
}

func TestConditionCache_PersistenceSurvivesMemoryEviction(t *testing.T) {
	cache := NewConditionCache(1)
	if err := cache.OpenPersistence(t.TempDir()); err != nil {
		t.Fatalf("OpenPersistence failed: %v", err)
	}
	defer cache.Close()

	cond := GlobalAggregate(OpMax, "quiz_score")
	cache.Put("who is the topper", ruleColumns, "gemini-1.5-flash", cond)
	// Second entry evicts the first from the memory tier.
	cache.Put("another question", ruleColumns, "gemini-1.5-flash", EmptyFilter())

	got, ok := cache.Get("who is the topper", ruleColumns, "gemini-1.5-flash")
	if !ok || got != cond {
		t.Errorf("Get after eviction = %+v, %v; want %+v from the persistent tier", got, ok, cond)
	}
	if !cache.Stats().Persistent {
		t.Error("Stats should report persistence")
	}
}
