// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search decides when a message needs a web lookup and performs it.
//
// Gate is a plain keyword check over configurable trigger phrases. Client
// queries the DuckDuckGo Instant Answer API and falls back to the HTML
// results page, returning a one-line summary that is appended to the prompt.
package search

import "strings"

// Gate decides whether a user message should trigger a web search.
type Gate struct {
	triggers []string
}

// NewGate creates a gate for the given trigger phrases. Matching is
// case-insensitive substring matching; an empty list never triggers.
func NewGate(triggers []string) Gate {
	lowered := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	return Gate{triggers: lowered}
}

// ShouldSearch reports whether input contains any trigger phrase.
func (g Gate) ShouldSearch(input string) bool {
	lower := strings.ToLower(input)
	for _, t := range g.triggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// Triggers returns a copy of the normalized trigger phrases.
func (g Gate) Triggers() []string {
	return append([]string(nil), g.triggers...)
}
