// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"fmt"
	"sync"
	"testing"
)

func TestSession_AppendEvictsOldest(t *testing.T) {
	store := NewSessionStore(3)
	sess := store.GetOrCreate("s1")

	for i := 0; i < 5; i++ {
		sess.Append(fmt.Sprintf("q%d", i), EmptyFilter())
	}

	history := sess.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, want := range []string{"q2", "q3", "q4"} {
		if history[i].Question != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Question, want)
		}
	}
}

func TestSession_NilIsInert(t *testing.T) {
	var sess *Session
	sess.Append("q", EmptyFilter())
	if got := sess.History(); got != nil {
		t.Errorf("nil session history = %v, want nil", got)
	}
}

func TestSessionStore_GetOrCreateIsIdempotent(t *testing.T) {
	store := NewSessionStore(0)

	a := store.GetOrCreate("s1")
	b := store.GetOrCreate("s1")
	if a != b {
		t.Error("same id should return the same session")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}

	if store.GetOrCreate("s2") == a {
		t.Error("different ids should not share a session")
	}
}

func TestSessionStore_ConcurrentAppends(t *testing.T) {
	store := NewSessionStore(100)
	sess := store.GetOrCreate("shared")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				sess.Append(fmt.Sprintf("g%d-q%d", n, j), EmptyFilter())
			}
		}(i)
	}
	wg.Wait()

	if got := len(sess.History()); got != 100 {
		t.Errorf("history length = %d, want 100", got)
	}
}
