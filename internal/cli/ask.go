// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command handler.
//
// Command: ask
// Short:   Ask a single question and print the reply
//
// Examples:
//   minigpt ask "What is Go?"             Ask a question
//   echo "What is Go?" | minigpt ask      Read the question from stdin
//   minigpt ask --json "latest go news"   JSON output for scripts
//   minigpt ask --no-search "hello"       Skip web search
//
// The question goes through the same prompt, search and sanitizing steps as
// a chat message, with an empty history.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/minigpt/internal/chat"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders replies on a TTY. Nil when glamour fails to start.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// displayReply prints a reply, rendered as markdown only on a color TTY so
// piped output stays plain.
func displayReply(reply string, markdown bool) {
	if useMarkdown(markdown) {
		fmt.Fprintln(stdout, renderMarkdown(reply))
		return
	}
	fmt.Fprintln(stdout, reply)
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(args Args) error {
	question := args.Query
	if question == "" {
		question = readPipedStdin(args.Quiet || args.JSON)
	}
	if question == "" {
		return ErrMissingArgument("question", `minigpt ask "your question"`)
	}
	// Reserved words only mean something inside a chat and never reach the model.
	if cmd := chat.ParseCommand(question); cmd.IsCommand() && cmd.Kind != chat.CmdUnknown {
		return NewValidationErrorWithExample("question", question,
			"is a chat command, not a question", "minigpt chat")
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = a.ensureOllama(startCtx)
	cancel()
	if err != nil {
		return err
	}

	session := a.newSession()
	defer session.Close()

	turn, err := session.Respond(ctx, question)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("ask", AskData{
			Response:     turn.Reply,
			Model:        turn.Model,
			SessionID:    session.ID(),
			Searched:     turn.Searched,
			SearchResult: turn.SearchResult,
			DurationMs:   turn.Duration.Milliseconds(),
		}).Print()
	}

	displayReply(turn.Reply, cfg.UI.Markdown)
	if !args.Quiet {
		parts := []string{turn.Model, formatDurationShort(turn.Duration)}
		if turn.Searched {
			parts = append(parts, "web search")
		}
		fmt.Fprintln(stderr, DimStyle.Render("["+strings.Join(parts, " | ")+"]"))
	}
	return nil
}

// readPipedStdin returns stdin's content when it is a pipe, "" otherwise.
func readPipedStdin(quiet bool) string {
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
	if err != nil {
		return ""
	}
	question := strings.TrimSpace(string(data))
	if question != "" && !quiet {
		fmt.Fprintf(stderr, "%s Read question from stdin (%d bytes)\n",
			HighlightStyle.Render("[+]"), len(data))
	}
	return question
}
