// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// =============================================================================
// HISTORY TYPE
// =============================================================================

// History holds the exchanges of one chat session in order, most recent last.
//
// The history is only shortened by Clear or by the retention window, which
// drops the oldest exchanges once more than Retention entries are held.
// A Retention of 0 keeps everything.
//
// History is safe for concurrent use; readers always receive copies.
type History struct {
	mu        sync.RWMutex
	exchanges []Exchange
	retention int
}

// NewHistory creates an empty history with the given retention window.
// Negative values are treated as 0 (unlimited).
func NewHistory(retention int) *History {
	if retention < 0 {
		retention = 0
	}
	return &History{
		exchanges: make([]Exchange, 0),
		retention: retention,
	}
}

// Retention returns the retention window (0 = unlimited).
func (h *History) Retention() int {
	return h.retention
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds an exchange at the end and prunes the oldest entries beyond
// the retention window.
func (h *History) Append(ex Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.exchanges = append(h.exchanges, ex)
	h.pruneOldExchanges()
}

// Clear removes all exchanges.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = make([]Exchange, 0)
}

// pruneOldExchanges drops the oldest exchanges beyond the retention window.
// Caller must hold the write lock.
func (h *History) pruneOldExchanges() {
	if h.retention == 0 || len(h.exchanges) <= h.retention {
		return
	}
	excess := len(h.exchanges) - h.retention
	kept := make([]Exchange, h.retention)
	copy(kept, h.exchanges[excess:])
	h.exchanges = kept
}

// =============================================================================
// ACCESS
// =============================================================================

// Len returns the number of exchanges held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.exchanges)
}

// All returns a copy of every exchange, oldest first.
func (h *History) All() []Exchange {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Recent returns a copy of the last k exchanges, oldest first.
// Fewer are returned when the history is shorter; k <= 0 returns none.
func (h *History) Recent(k int) []Exchange {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 {
		return []Exchange{}
	}
	start := len(h.exchanges) - k
	if start < 0 {
		start = 0
	}
	out := make([]Exchange, len(h.exchanges)-start)
	copy(out, h.exchanges[start:])
	return out
}

// Last returns the most recent exchange and whether one exists.
func (h *History) Last() (Exchange, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.exchanges) == 0 {
		return Exchange{}, false
	}
	return h.exchanges[len(h.exchanges)-1], true
}
