// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sync"
	"testing"
)

// =============================================================================
// RETENTION TESTS
// =============================================================================

func TestHistory_Retention(t *testing.T) {
	tests := []struct {
		name      string
		retention int
		appends   int
		wantLen   int
		wantFirst string
	}{
		{"unlimited keeps all", 0, 25, 25, "u0"},
		{"under window", 10, 4, 4, "u0"},
		{"exactly window", 10, 10, 10, "u0"},
		{"over window drops oldest", 10, 13, 10, "u3"},
		{"negative treated as unlimited", -5, 7, 7, "u0"},
		{"window of one", 1, 3, 1, "u2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.retention)
			for i := 0; i < tt.appends; i++ {
				h.Append(NewExchange(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i)))
			}
			if h.Len() != tt.wantLen {
				t.Fatalf("Len() = %d, want %d", h.Len(), tt.wantLen)
			}
			all := h.All()
			if all[0].User != tt.wantFirst {
				t.Errorf("first exchange = %q, want %q", all[0].User, tt.wantFirst)
			}
			if last := all[len(all)-1].User; last != fmt.Sprintf("u%d", tt.appends-1) {
				t.Errorf("last exchange = %q, want most recent", last)
			}
		})
	}
}

func TestHistory_Recent(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 5; i++ {
		h.Append(NewExchange(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i)))
	}

	tests := []struct {
		k     int
		users []string
	}{
		{0, nil},
		{-1, nil},
		{1, []string{"u4"}},
		{3, []string{"u2", "u3", "u4"}},
		{5, []string{"u0", "u1", "u2", "u3", "u4"}},
		{9, []string{"u0", "u1", "u2", "u3", "u4"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d", tt.k), func(t *testing.T) {
			got := h.Recent(tt.k)
			if len(got) != len(tt.users) {
				t.Fatalf("Recent(%d) returned %d exchanges, want %d", tt.k, len(got), len(tt.users))
			}
			for i, ex := range got {
				if ex.User != tt.users[i] {
					t.Errorf("Recent(%d)[%d] = %q, want %q", tt.k, i, ex.User, tt.users[i])
				}
			}
		})
	}
}

func TestHistory_CopiesAreIndependent(t *testing.T) {
	h := NewHistory(0)
	h.Append(NewExchange("hello", "hi"))

	all := h.All()
	all[0].User = "mutated"
	recent := h.Recent(1)
	recent[0].Assistant = "mutated"

	got, ok := h.Last()
	if !ok {
		t.Fatal("Last() reported empty history")
	}
	if got.User != "hello" || got.Assistant != "hi" {
		t.Errorf("history was mutated through a returned slice: %+v", got)
	}
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(3)
	h.Append(NewExchange("a", "b"))
	h.Append(NewExchange("c", "d"))
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", h.Len())
	}
	if _, ok := h.Last(); ok {
		t.Error("Last() should report empty history after Clear")
	}
	if h.Retention() != 3 {
		t.Errorf("Retention() = %d, want 3", h.Retention())
	}
}

func TestHistory_ConcurrentAccess(t *testing.T) {
	h := NewHistory(20)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			h.Append(NewExchange(fmt.Sprintf("u%d", id), "a"))
		}(i)
		go func() {
			defer wg.Done()
			_ = h.Recent(3)
		}()
	}
	wg.Wait()

	if h.Len() != 20 {
		t.Errorf("Len() = %d, want 20", h.Len())
	}
}

func TestNewExchange_Timestamp(t *testing.T) {
	ex := NewExchange("u", "a")
	if ex.Timestamp.IsZero() {
		t.Error("NewExchange should stamp the current time")
	}
}
