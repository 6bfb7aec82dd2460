// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler.
//
// Handles "minigpt chat" (and bare "minigpt"), a REPL that keeps the last
// exchanges as context for every reply.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   minigpt                          Start chatting with the configured model
//   minigpt chat --model llama3.2    Use a specific model
//   minigpt chat --no-search         Never consult web search
//   minigpt chat --offline           Localhost only
//
// Interactive Commands (during chat):
//   help, /help, /h       Show available commands
//   clear, /clear, /c     Clear conversation history
//   history, /history     Show conversation history
//   status, /status, /s   Show session statistics
//   /model [name]         Show or switch model
//   quit, exit, bye, /q   Exit chat
//   Ctrl+C                Cancel current generation
//   Ctrl+D                Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/minigpt/internal/chat"
	"github.com/jeranaias/minigpt/internal/config"
	"github.com/jeranaias/minigpt/internal/offline"
	"github.com/jeranaias/minigpt/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persisted input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
	persist     bool
}

// NewChatCLI creates a line editor. With persist set, input history is
// loaded from and saved to ~/.minigpt/input_history.
func NewChatCLI(persist bool) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "input_history"),
		persist:     persist,
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if !c.persist {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes input history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if !c.persist {
		return
	}
	var buf strings.Builder
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return
	}
	_ = util.AtomicWriteFile(c.historyFile, []byte(buf.String()), 0600)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state of one interactive chat.
type ChatSession struct {
	app     *app
	session *chat.Session
	input   *ChatCLI
	quiet   bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopping bool
}

// exit ends the process when the chat is terminated at the prompt.
var exit = os.Exit

// setCancel records the cancel function of the in-flight generation. It
// reports false once the session is stopping, and no generation should start.
func (s *ChatSession) setCancel(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel != nil && s.stopping {
		return false
	}
	s.cancel = cancel
	return true
}

// terminate marks the session as stopping and cancels the in-flight
// generation. It reports whether the chat was idle, in which case the loop
// is blocked reading input and must be shut down by the caller.
func (s *ChatSession) terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
	if s.cancel == nil {
		return true
	}
	s.cancel()
	s.cancel = nil
	return false
}

// isStopping reports whether terminate has been called.
func (s *ChatSession) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// cancelInFlight cancels the in-flight generation, if any.
func (s *ChatSession) cancelInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand handles the "chat" command.
func HandleChatCommand(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = a.ensureOllama(startCtx)
	cancel()
	if err != nil {
		return err
	}

	session := &ChatSession{
		app:     a,
		session: a.newSession(),
		quiet:   args.Quiet,
	}
	defer session.session.Close()

	if !session.quiet {
		printWelcome(session)
	}

	session.input = NewChatCLI(cfg.UI.InputHistory)
	defer session.input.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGTERM {
				if session.terminate() {
					session.input.Close()
					fmt.Fprintln(stdout)
					printExitSummary(session)
					session.session.Close()
					a.Close()
					exit(0)
				}
				continue
			}
			if session.cancelInFlight() {
				fmt.Fprintln(stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := session.input.ReadInput(promptStyle.Render("You: "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin all end the chat.
			fmt.Fprintln(stdout)
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd := chat.ParseCommand(input)
		if cmd.IsCommand() {
			if !handleCommand(session, cmd) {
				printExitSummary(session)
				return nil
			}
			continue
		}

		processMessage(session, input)
		if session.isStopping() {
			printExitSummary(session)
			return nil
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one message and prints the reply.
func processMessage(s *ChatSession, input string) {
	ctx, cancel := context.WithCancel(context.Background())
	if !s.setCancel(cancel) {
		cancel()
		return
	}
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	if s.session.SearchEnabled() && !s.quiet {
		fmt.Fprint(stdout, DimStyle.Render("Thinking..."))
	}

	turn, err := s.session.Respond(ctx, input)
	if s.session.SearchEnabled() && !s.quiet {
		fmt.Fprint(stdout, "\r"+strings.Repeat(" ", 11)+"\r")
	}

	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, chat.ErrEmptyInput):
		return
	case err != nil && turn.Reply == "":
		fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}

	fmt.Fprint(stdout, assistantStyle.Render("Assistant: "))
	if err != nil {
		fmt.Fprintln(stdout, turn.Reply)
		return
	}
	displayReply(turn.Reply, s.app.cfg.UI.Markdown)

	if !s.quiet {
		showBriefStats(turn)
	}
}

// showBriefStats prints a one-line summary under a reply.
func showBriefStats(turn chat.Turn) {
	parts := []string{turn.Model, formatDurationShort(turn.Duration)}
	if turn.Searched {
		parts = append(parts, "web search")
	}
	fmt.Fprintln(stdout, DimStyle.Render("["+strings.Join(parts, " | ")+"]"))
	fmt.Fprintln(stdout)
}

// =============================================================================
// COMMAND HANDLING
// =============================================================================

// handleCommand runs a reserved input. It returns false when the chat should end.
func handleCommand(s *ChatSession, cmd chat.Command) bool {
	switch cmd.Kind {
	case chat.CmdQuit:
		return false
	case chat.CmdHelp:
		printHelp()
	case chat.CmdClear:
		s.session.Clear()
		fmt.Fprintln(stdout, SuccessStyle.Render("Conversation history cleared."))
	case chat.CmdHistory:
		printHistory(s)
	case chat.CmdStatus:
		printStatus(s)
	case chat.CmdModel:
		handleModelCommand(s, cmd.Args)
	default:
		fmt.Fprintf(stderr, "%s unknown command %q. Type /help for commands.\n",
			WarningStyle.Render("[!]"), cmd.Name)
	}
	return true
}

// handleModelCommand shows or switches the model. History is kept.
func handleModelCommand(s *ChatSession, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(stdout, "%s %s\n", LabelStyle.Render("Model:"), HighlightStyle.Render(s.session.Model()))
		return
	}

	name := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	exists := s.app.client.ModelExists(ctx, name)
	cancel()
	if !exists {
		fmt.Fprintf(stderr, "%s model %s is not installed locally. Pull it with: ollama pull %s\n",
			WarningStyle.Render("[!]"), name, name)
	}

	s.session.SetGenerator(s.app.generator(name))
	fmt.Fprintf(stdout, "%s %s\n", SuccessStyle.Render("Switched to"), HighlightStyle.Render(name))
}

// =============================================================================
// DISPLAY
// =============================================================================

// printWelcome prints the banner shown at chat start.
func printWelcome(s *ChatSession) {
	cfg := s.app.cfg

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, welcomeStyle.Render("minigpt chat"))
	fmt.Fprintln(stdout, RenderSeparator(30))
	fmt.Fprintln(stdout, RenderField("Model:", HighlightStyle.Render(s.session.Model())))

	switch {
	case cfg.OfflineMode:
		fmt.Fprintln(stdout, RenderField("Search:", WarningStyle.Render("off (offline mode)")))
	case s.session.SearchEnabled():
		fmt.Fprintln(stdout, RenderField("Search:", SuccessStyle.Render("internet search enabled")))
	default:
		fmt.Fprintln(stdout, RenderField("Search:", DimStyle.Render("disabled")))
	}
	if s.app.archive != nil {
		fmt.Fprintln(stdout, RenderField("Session:", DimStyle.Render(s.session.ID())))
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Type your message and press Enter. Commands: help, clear, history, quit"))
	fmt.Fprintln(stdout)
}

// printHelp prints available commands.
func printHelp() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(stdout, RenderSeparator(20))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"help, /h", "Show this help"},
		{"clear, /c", "Clear conversation history"},
		{"history", "Show conversation history"},
		{"status, /s", "Show session statistics"},
		{"/model [name]", "Show or switch model"},
		{"quit, exit, bye", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Fprintf(stdout, "  %s  %s\n",
			HighlightStyle.Render(fmt.Sprintf("%-16s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(stdout)
}

// printStatus prints session statistics.
func printStatus(s *ChatSession) {
	st := s.session.Stats()

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Session Status"))
	fmt.Fprintln(stdout, RenderSeparator(20))
	fmt.Fprintln(stdout, RenderField("Model:", s.session.Model()))
	fmt.Fprintln(stdout, RenderField("Session:", s.session.ID()))
	fmt.Fprintln(stdout, RenderField("Duration:", formatDuration(st.Duration)))
	fmt.Fprintln(stdout, RenderField("History:", fmt.Sprintf("%d exchanges", len(s.session.History()))))
	fmt.Fprintln(stdout, RenderField("Replies:", fmt.Sprintf("%d", st.Turns)))
	fmt.Fprintln(stdout, RenderField("Searches:", fmt.Sprintf("%d", st.Searches)))
	if st.Failures > 0 {
		fmt.Fprintln(stdout, RenderField("Failures:", WarningStyle.Render(fmt.Sprintf("%d", st.Failures))))
	}

	cfg := s.app.cfg
	search := searchState(cfg)
	fmt.Fprintln(stdout, RenderField("Search:", RenderStatus(search)+" "+search))
	fmt.Fprintln(stdout, RenderField("Network:", offline.NewPolicy(cfg.OfflineMode).Label()))
	if logFile := logFilePath(cfg); logFile != "" {
		fmt.Fprintln(stdout, RenderField("Log:", logFile))
	} else {
		fmt.Fprintln(stdout, RenderField("Log:", DimStyle.Render("disabled")))
	}
	fmt.Fprintln(stdout)
}

// printHistory prints the in-memory conversation, one line per message.
func printHistory(s *ChatSession) {
	history := s.session.History()
	if len(history) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("[No messages yet]"))
		return
	}

	width := GetTerminalWidth() - 12
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Conversation History"))
	fmt.Fprintln(stdout, RenderSeparator(25))
	for i, ex := range history {
		fmt.Fprintf(stdout, "  %d. %s %s\n", i+1,
			promptStyle.Render("You:"),
			util.TruncateWidth(util.OneLine(ex.User), width))
		fmt.Fprintf(stdout, "     %s %s\n",
			assistantStyle.Render("AI:"),
			util.TruncateWidth(util.OneLine(ex.Assistant), width))
	}
	fmt.Fprintln(stdout)
}

// printExitSummary prints the session summary on exit.
func printExitSummary(s *ChatSession) {
	st := s.session.Stats()
	if s.quiet || (st.Turns == 0 && st.Failures == 0) {
		fmt.Fprintln(stdout, DimStyle.Render("Goodbye!"))
		return
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Session Summary"))
	fmt.Fprintln(stdout, RenderSeparator(15))
	fmt.Fprintln(stdout, RenderField("Replies:", fmt.Sprintf("%d", st.Turns)))
	fmt.Fprintln(stdout, RenderField("Searches:", fmt.Sprintf("%d", st.Searches)))
	fmt.Fprintln(stdout, RenderField("Duration:", formatDuration(st.Duration)))
	if s.app.archive != nil {
		fmt.Fprintln(stdout, RenderField("Saved as:", s.session.ID()))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, DimStyle.Render("Goodbye!"))
}
