// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sanitize turns raw model continuations into presentable replies.
//
// A raw generation starts with the prompt verbatim followed by whatever the
// model produced. Small causal models routinely keep going past their turn,
// invent a "Human:" reply, loop on a phrase, or ramble. Clean removes the
// echoed prompt and all of that, and never returns an empty reply.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// Fallback is returned whenever nothing usable survives cleaning.
const Fallback = "Hello! How can I help you today?"

// MaxReplyLength is the default reply cap in characters.
const MaxReplyLength = 300

// minReplyLength is the shortest reply shown instead of Fallback.
const minReplyLength = 3

// DefaultDenylist holds lowercase substrings that mark a line as filler.
var DefaultDenylist = []string{
	"professor:",
	"dr. dr.",
	strings.Repeat("university of california", 3),
}

// turnDelimiters are checked in order; the first one present ends the reply.
var turnDelimiters = []string{"\n\nHuman:", "\nHuman:", "\n\nAssistant:", "\nAssistant:"}

// turnLabels are the role labels stripped from the reply text.
var turnLabels = []string{"Human:", "Assistant:"}

// speakerPrefixes mark lines that belong to another speaker.
var speakerPrefixes = []string{"Human:", "Assistant:", "You:", "User:"}

// =============================================================================
// SANITIZER
// =============================================================================

// Sanitizer holds the tunable parts of reply cleaning.
// The zero value is not useful; use New or Default.
type Sanitizer struct {
	// Denylist substrings are matched against lowercased lines.
	Denylist []string

	// MaxLength caps the reply length in characters.
	MaxLength int
}

// New creates a sanitizer with the given denylist and length cap.
// A nil denylist selects DefaultDenylist and maxLength <= 0 selects MaxReplyLength.
func New(denylist []string, maxLength int) *Sanitizer {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	if maxLength <= 0 {
		maxLength = MaxReplyLength
	}
	lowered := make([]string, 0, len(denylist))
	for _, d := range denylist {
		if d = strings.ToLower(d); d != "" {
			lowered = append(lowered, d)
		}
	}
	return &Sanitizer{Denylist: lowered, MaxLength: maxLength}
}

// Default returns a sanitizer with the default denylist and cap.
func Default() *Sanitizer {
	return New(nil, MaxReplyLength)
}

// Clean cleans raw with the default sanitizer.
func Clean(raw string, promptLength int) string {
	return Default().Clean(raw, promptLength)
}

// Clean strips the first promptLength characters (the echoed prompt) from raw
// and returns a single-turn reply. It never returns an empty string.
func (s *Sanitizer) Clean(raw string, promptLength int) string {
	text := StripPrompt(raw, promptLength)
	if text == "" {
		return Fallback
	}

	text = CutTurns(text)
	text = s.FilterLines(text)
	text = CollapseRepetition(text)
	text = CapLength(text, s.MaxLength)

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minReplyLength {
		return Fallback
	}
	return text
}

// =============================================================================
// STEPS
// =============================================================================

// StripPrompt drops the first promptLength characters of raw and trims the rest.
// A negative length strips nothing; a length past the end leaves nothing.
func StripPrompt(raw string, promptLength int) string {
	if promptLength <= 0 {
		return strings.TrimSpace(raw)
	}
	// Walk runes instead of converting, the prompt is usually most of raw.
	n := 0
	for i := range raw {
		if n == promptLength {
			return strings.TrimSpace(raw[i:])
		}
		n++
	}
	return ""
}

// CutTurns ends the reply before the first invented follow-up turn and
// removes any remaining role labels. Delimiters are located before labels are
// removed; removing them first would leave no delimiter to find.
func CutTurns(text string) string {
	for _, d := range turnDelimiters {
		if idx := strings.Index(text, d); idx >= 0 {
			text = text[:idx]
			break
		}
	}
	for _, label := range turnLabels {
		text = strings.ReplaceAll(text, label, "")
	}
	return text
}

// FilterLines drops blank lines, lines spoken by someone else and lines
// containing a denylisted phrase, then joins the rest with single spaces.
func (s *Sanitizer) FilterLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || hasAnyPrefix(line, speakerPrefixes) {
			continue
		}
		if containsAny(strings.ToLower(line), s.Denylist) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, " "))
}

// CollapseRepetition truncates text after the first 3-word group that is
// immediately repeated. Text without such a repeat is returned unchanged.
func CollapseRepetition(text string) string {
	words := strings.Fields(text)
	for i := 0; i+6 <= len(words); i++ {
		if words[i] == words[i+3] && words[i+1] == words[i+4] && words[i+2] == words[i+5] {
			return strings.Join(words[:i+3], " ")
		}
	}
	return text
}

// CapLength shortens text longer than maxLength characters to the last full
// sentence inside the cap, or to the cap plus "..." when no sentence ends
// inside it. The trailing fragment is dropped even if it was the useful part.
func CapLength(text string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	head := truncateRunes(text, maxLength)
	parts := strings.Split(head, ".")
	if len(parts) > 1 {
		return strings.Join(parts[:len(parts)-1], ".") + "."
	}
	return head + "..."
}

// =============================================================================
// HELPERS
// =============================================================================

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
