// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging sets up the structured exchange log.
//
// Every completed exchange and every failure is written as one line to the
// log file, either as logfmt-style text or JSON:
//
//	time=2025-01-02T15:04:05Z level=INFO msg=EXCHANGE session=0194... user="hi" assistant="Hello!"
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/minigpt/internal/config"
)

// Event names used as log messages.
const (
	EventSessionStart   = "SESSION_START"
	EventSessionEnd     = "SESSION_END"
	EventExchange       = "EXCHANGE"
	EventSearch         = "SEARCH"
	EventSearchFailed   = "SEARCH_FAILED"
	EventGenerateFailed = "GENERATE_FAILED"
	EventHistoryCleared = "HISTORY_CLEARED"
	EventArchiveFailed  = "ARCHIVE_FAILED"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup opens the configured log file and returns a logger writing to it.
// The returned closer must be closed on exit. With logging disabled the
// logger discards everything and the closer is a no-op.
func Setup(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	if !cfg.Enabled {
		return Discard(), nopCloser{}, nil
	}

	path := config.ExpandPath(cfg.File)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return New(f, cfg.Level, cfg.Format), f, nil
}

// New returns a logger writing to w at the given level and format.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to a slog level. Unknown names mean INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
