// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs one conversational turn at a time.
//
// A Session owns the conversation history and wires the pure pipeline
// (prompt.Build, then generation, then sanitize.Clean) to its collaborators:
// a Generator, an optional Searcher, an optional Archive and a logger. It is
// driven by a single REPL goroutine; Stats may be read concurrently.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/minigpt/internal/logging"
	"github.com/jeranaias/minigpt/internal/model"
	"github.com/jeranaias/minigpt/internal/prompt"
	"github.com/jeranaias/minigpt/internal/sanitize"
	"github.com/jeranaias/minigpt/internal/search"
)

// ApologyPrefix starts the reply shown when generation fails.
const ApologyPrefix = "I apologize, but I encountered an error while generating a response: "

// SearchResultsLabel introduces search output appended to the prompt.
const SearchResultsLabel = "\n\nWeb search results: "

// ErrEmptyInput is returned by Respond for blank input.
var ErrEmptyInput = errors.New("empty input")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Generator continues a raw prompt. The returned text starts with the prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Searcher performs a web lookup and returns a one-line summary.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Archive persists completed exchanges.
type Archive interface {
	Append(ctx context.Context, sessionID, modelName string, ex model.Exchange) error
}

// =============================================================================
// SESSION
// =============================================================================

// Options configures a Session. Zero values are usable: unlimited retention,
// no search, no archive, default sanitizer, discarded logs.
type Options struct {
	// Retention caps the in-memory history; 0 keeps everything.
	Retention int

	Searcher Searcher
	Triggers []string

	Archive   Archive
	Sanitizer *sanitize.Sanitizer
	Logger    *slog.Logger
}

// Turn describes one completed (or failed) call to Respond.
type Turn struct {
	Input        string        `json:"input"`
	Reply        string        `json:"reply"`
	Prompt       string        `json:"-"`
	Raw          string        `json:"-"`
	Searched     bool          `json:"searched"`
	SearchResult string        `json:"search_result,omitempty"`
	Model        string        `json:"model"`
	Duration     time.Duration `json:"duration_ns"`
}

// Stats summarizes a session.
type Stats struct {
	Turns    int           `json:"turns"`
	Failures int           `json:"failures"`
	Searches int           `json:"searches"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
}

// Session is one conversation.
type Session struct {
	id        string
	history   *model.History
	gen       Generator
	searcher  Searcher
	gate      search.Gate
	archive   Archive
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSession creates a session with a fresh time-ordered ID and logs its start.
func NewSession(gen Generator, opts Options) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	s := &Session{
		id:        id.String(),
		history:   model.NewHistory(opts.Retention),
		gen:       gen,
		searcher:  opts.Searcher,
		gate:      search.NewGate(opts.Triggers),
		archive:   opts.Archive,
		sanitizer: opts.Sanitizer,
		logger:    opts.Logger.With("session", id.String()),
		stats:     Stats{Started: time.Now()},
	}

	s.logger.Info(logging.EventSessionStart, "model", s.Model(), "search", s.SearchEnabled())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the current generator's model name.
func (s *Session) Model() string {
	if s.gen == nil {
		return ""
	}
	return s.gen.Model()
}

// SetGenerator swaps the generator, e.g. after a model switch. History is kept.
func (s *Session) SetGenerator(gen Generator) {
	s.gen = gen
}

// SearchEnabled reports whether messages can trigger a web lookup.
func (s *Session) SearchEnabled() bool {
	return s.searcher != nil
}

// History returns a copy of the conversation so far, oldest first.
func (s *Session) History() []model.Exchange {
	return s.history.All()
}

// Clear empties the conversation history.
func (s *Session) Clear() {
	n := s.history.Len()
	s.history.Clear()
	s.logger.Info(logging.EventHistoryCleared, "exchanges", n)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Duration = time.Since(st.Started)
	return st
}

// Close logs the end of the session.
func (s *Session) Close() {
	st := s.Stats()
	s.logger.Info(logging.EventSessionEnd,
		"turns", st.Turns,
		"failures", st.Failures,
		"duration", st.Duration.Round(time.Second).String())
}

// =============================================================================
// RESPOND
// =============================================================================

// Respond answers one user message.
//
// The prompt is built from the last few exchanges; when the message matches
// a search trigger the lookup result is appended to it. The raw generation is
// sanitized against the length of the prompt actually sent, and the exchange
// is appended to history, logged and archived.
//
// When generation fails the returned Turn carries the apology reply and the
// error is returned; history is left unchanged. A canceled context returns
// the context error and an empty reply.
func (s *Session) Respond(ctx context.Context, input string) (Turn, error) {
	input = norm.NFC.String(strings.TrimSpace(input))
	if input == "" {
		return Turn{}, ErrEmptyInput
	}
	if s.gen == nil {
		return Turn{}, errors.New("no generator configured")
	}

	start := time.Now()
	turn := Turn{Input: input, Model: s.gen.Model()}

	fullPrompt := prompt.Build(s.history.Recent(prompt.ContextWindow), input)

	if s.searcher != nil && s.gate.ShouldSearch(input) {
		result, err := s.searcher.Search(ctx, input)
		switch {
		case ctx.Err() != nil:
			return turn, ctx.Err()
		case err != nil:
			s.logger.Warn(logging.EventSearchFailed, "query", input, "error", err)
		case result != "":
			fullPrompt += SearchResultsLabel + result
			turn.Searched = true
			turn.SearchResult = result
			s.logger.Info(logging.EventSearch, "query", input, "result", result)
		}
	}
	turn.Prompt = fullPrompt

	raw, err := s.gen.Generate(ctx, fullPrompt)
	turn.Duration = time.Since(start)
	if turn.Searched {
		s.count(func(st *Stats) { st.Searches++ })
	}
	if err != nil {
		if ctx.Err() != nil {
			return turn, ctx.Err()
		}
		s.count(func(st *Stats) { st.Failures++ })
		s.logger.Error(logging.EventGenerateFailed, "model", turn.Model, "error", err)
		turn.Reply = ApologyPrefix + err.Error()
		return turn, fmt.Errorf("generation failed: %w", err)
	}
	turn.Raw = raw

	turn.Reply = s.sanitizer.Clean(raw, prompt.Length(fullPrompt))

	ex := model.NewExchange(input, turn.Reply)
	s.history.Append(ex)
	s.count(func(st *Stats) { st.Turns++ })

	s.logger.Info(logging.EventExchange,
		"user", input,
		"assistant", turn.Reply,
		"model", turn.Model,
		"searched", turn.Searched,
		"duration_ms", turn.Duration.Milliseconds())

	if s.archive != nil {
		if err := s.archive.Append(ctx, s.id, turn.Model, ex); err != nil {
			s.logger.Warn(logging.EventArchiveFailed, "error", err)
		}
	}

	return turn, nil
}

func (s *Session) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
