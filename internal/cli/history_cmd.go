// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Archived conversation commands.
//
// Command: history [subcommand]
// Short:   Browse and delete archived conversations
// Aliases: sessions
//
// Subcommands:
//   list [--limit N]        List recent sessions (default)
//   show ID                 Print every exchange of a session
//   delete ID --confirm     Delete one session
//   clear --confirm         Delete every session
//
// Session IDs may be abbreviated to any unambiguous prefix.
//
// Examples:
//   minigpt history
//   minigpt history list --limit 5
//   minigpt history show 0194ab
//   minigpt history delete 0194ab --confirm
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/minigpt/internal/config"
	"github.com/jeranaias/minigpt/internal/storage"
	"github.com/jeranaias/minigpt/internal/util"
)

// defaultHistoryLimit is the number of sessions listed without --limit.
const defaultHistoryLimit = 20

// HandleHistory handles the "history" command.
func HandleHistory(args Args) error {
	p := NewArgParser(args.Raw, "confirm", "all")

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled {
		return NewCommandError("history", "open", "the history archive is disabled (archive.enabled = false)", nil)
	}
	path := config.ExpandPath(cfg.Archive.Path)

	sub := strings.ToLower(p.Subcommand())
	switch sub {
	case "", "list", "ls":
	case "show", "delete", "rm", "clear":
	default:
		return NewValidationErrorWithExample("subcommand", p.Subcommand(),
			"unknown history subcommand", "minigpt history [list|show|delete|clear]")
	}

	// A missing archive is empty; it is not created just to be read.
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		switch sub {
		case "show", "delete", "rm":
			if p.Positional(1) == "" {
				return ErrMissingArgument("id", "minigpt history "+sub+" ID")
			}
			return NewNotFoundError("session", p.Positional(1))
		case "clear":
			if !p.BoolFlag("confirm") {
				return ErrConfirmRequired("minigpt history clear --confirm")
			}
			if args.JSON {
				return NewJSONResponse("history clear", map[string]interface{}{"deleted": 0}).Print()
			}
			fmt.Fprintf(stdout, "%s Deleted 0 sessions\n", SuccessStyle.Render("[OK]"))
			return nil
		default:
			return printSessionList(args, path, nil)
		}
	}

	archive, err := storage.Open(path)
	if err != nil {
		return NewCommandError("history", "open", path, err)
	}
	defer archive.Close()

	ctx := context.Background()

	switch sub {
	case "", "list", "ls":
		limit := defaultHistoryLimit
		if p.HasFlag("limit") {
			limit, err = ParseIntWithValidation(p.Flag("limit"), "limit")
			if err != nil {
				return err
			}
		}
		if p.BoolFlag("all") {
			limit = 0
		}
		sessions, err := archive.Sessions(ctx, limit)
		if err != nil {
			return NewCommandError("history", "list", "failed to read archive", err)
		}
		return printSessionList(args, path, sessions)

	case "show":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("id", "minigpt history show ID")
		}
		return showSession(ctx, args, archive, id)

	case "delete", "rm":
		id := p.Positional(1)
		if id == "" {
			return ErrMissingArgument("id", "minigpt history delete ID --confirm")
		}
		if !p.BoolFlag("confirm") {
			return ErrConfirmRequired("minigpt history delete " + id + " --confirm")
		}
		deleted, err := archive.DeleteSession(ctx, id)
		if err != nil {
			return historyLookupError(id, err)
		}
		if args.JSON {
			return NewJSONResponse("history delete", map[string]interface{}{"deleted": deleted}).Print()
		}
		fmt.Fprintf(stdout, "%s Deleted session %s\n", SuccessStyle.Render("[OK]"), deleted)
		return nil

	default: // clear
		if !p.BoolFlag("confirm") {
			return ErrConfirmRequired("minigpt history clear --confirm")
		}
		n, err := archive.DeleteAll(ctx)
		if err != nil {
			return NewCommandError("history", "clear", "failed to clear archive", err)
		}
		if args.JSON {
			return NewJSONResponse("history clear", map[string]interface{}{"deleted": n}).Print()
		}
		fmt.Fprintf(stdout, "%s Deleted %d sessions\n", SuccessStyle.Render("[OK]"), n)
		return nil
	}
}

// historyLookupError maps archive lookup failures onto CLI errors.
func historyLookupError(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, storage.ErrAmbiguousID):
		return NewValidationError("id", id, "matches more than one session; use a longer prefix")
	default:
		return err
	}
}

// printSessionList prints one line per session, newest first.
func printSessionList(args Args, path string, sessions []storage.SessionMeta) error {
	if sessions == nil {
		sessions = []storage.SessionMeta{}
	}
	if args.JSON {
		return NewJSONResponse("history list", HistoryListData{Archive: path, Sessions: sessions}).Print()
	}

	if len(sessions) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("No archived conversations."))
		return nil
	}

	width := GetTerminalWidth() - 48
	if width < 20 {
		width = 20
	}
	for _, s := range sessions {
		fmt.Fprintf(stdout, "%s  %s  %s  %s\n",
			HighlightStyle.Render(shortID(s.ID)),
			DimStyle.Render(fmt.Sprintf("%-8s", formatDuration(time.Since(s.UpdatedAt))+" ago")),
			DimStyle.Render(fmt.Sprintf("%3d msgs", s.ExchangeCount)),
			util.TruncateWidth(util.OneLine(s.Preview), width))
	}
	if !args.Quiet {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, DimStyle.Render("Show one with: minigpt history show ID"))
	}
	return nil
}

// showSession prints every exchange of one session.
func showSession(ctx context.Context, args Args, archive *storage.Archive, id string) error {
	meta, err := archive.Session(ctx, id)
	if err != nil {
		return historyLookupError(id, err)
	}
	exchanges, err := archive.Exchanges(ctx, meta.ID)
	if err != nil {
		return historyLookupError(id, err)
	}

	if args.JSON {
		return NewJSONResponse("history show", HistoryShowData{Session: meta, Exchanges: exchanges}).Print()
	}

	fmt.Fprintln(stdout, TitleStyle.Render("Session "+meta.ID))
	fmt.Fprintln(stdout, RenderField("Model:", meta.Model))
	fmt.Fprintln(stdout, RenderField("Started:", meta.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	fmt.Fprintln(stdout, RenderField("Exchanges:", fmt.Sprintf("%d", meta.ExchangeCount)))
	fmt.Fprintln(stdout, RenderSeparator())
	for _, ex := range exchanges {
		fmt.Fprintf(stdout, "%s %s\n", promptStyle.Render("You:"), ex.User)
		fmt.Fprintf(stdout, "%s %s\n\n", assistantStyle.Render("Assistant:"), ex.Assistant)
	}
	return nil
}

// shortID abbreviates a session ID for listing.
func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}
