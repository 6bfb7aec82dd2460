// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and shared command plumbing for minigpt.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output streams. Tests swap these.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdStatus
	CmdConfig
	CmdHistory
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	Offline    bool
	NoSearch   bool
	Model      string
	ConfigPath string

	// Command-specific
	Query      string
	Subcommand string

	// Raw args (remaining after global flag parsing, command word removed)
	Raw []string
}

const usageText = `minigpt - a small local chat assistant

Chats with a local Ollama model from the terminal. Messages that ask for
current information (weather, news, prices, ...) can be looked up on
DuckDuckGo first; every exchange is logged and archived locally.

Usage:
  minigpt                        Start interactive chat (default)
  minigpt chat                   Start interactive chat
  minigpt ask "question"         Ask a single question
  minigpt status                 Show model, Ollama and search status
  minigpt config [subcommand]    Show or edit configuration
  minigpt history [subcommand]   Browse archived conversations
  minigpt version                Show version information
  minigpt help                   Show this help

Ask Flags:
  --no-search                    Never run a web search for this question
  --json                         Output the reply as JSON

Config Commands:
  minigpt config show            Show the effective configuration (default)
  minigpt config path            Show the configuration file path
  minigpt config init [--force]  Write a default configuration file
  minigpt config get KEY         Print one value (e.g. generation.temperature)
  minigpt config set KEY VALUE   Set one value in the configuration file
  minigpt config keys            List all keys

History Commands:
  minigpt history list [--limit N]      List archived sessions (default)
  minigpt history show ID               Show a session's exchanges
  minigpt history delete ID --confirm   Delete one session
  minigpt history clear --confirm       Delete every session

  Session IDs may be shortened to any unique prefix.

Chat Commands:
  help, /help                    Show chat commands
  clear, /clear                  Clear conversation history
  history, /history              Show conversation history
  status, /status                Show session status
  /model [name]                  Show or switch model
  quit, exit, bye, /quit         End the conversation
  Ctrl+C                         Cancel current generation
  Ctrl+D                         Exit chat

Global Flags:
  --model NAME                   Override the configured model
  --config PATH                  Use a specific configuration file
  --offline                      Localhost only; disables web search
  --no-search                    Disable web search
  -q, --quiet                    Minimal output
  -v, --verbose                  Debug logging
  --json                         Output in JSON format

Environment:
  MINIGPT_MODEL, MINIGPT_OLLAMA_URL, MINIGPT_OFFLINE, MINIGPT_NO_SEARCH,
  MINIGPT_LOG_FILE, MINIGPT_LOG_LEVEL, NO_COLOR

Examples:
  minigpt ask "What is a goroutine?"
  minigpt ask "what's the weather in Paris" --json
  minigpt --model llama3.2:1b chat
  minigpt config set conversation.memory 20
  minigpt history show 0194

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Fprintf(stdout, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Fprintf(stdout, "minigpt version %s\n", Version)
	fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(stdout, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(stdout, "  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "config":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = strings.ToLower(remaining[0])
		}
		return CmdConfig, parsedArgs

	case "history", "sessions":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = strings.ToLower(remaining[0])
		}
		return CmdHistory, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		parsedArgs.Subcommand = cmd
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear anywhere on the command line.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--offline", "--no-network":
			parsedArgs.Offline = true
		case "--no-search":
			parsedArgs.NoSearch = true
		case "--model", "-m":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		case "--config", "-c":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// parseAskArgs joins the non-flag words into the query.
func parseAskArgs(args *Args, remaining []string) {
	var query []string
	for _, arg := range remaining {
		if arg == "--" {
			continue
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			continue
		}
		query = append(query, arg)
	}
	args.Query = strings.TrimSpace(strings.Join(query, " "))
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleVersion handles the "version" command with JSON output support.
func HandleVersion(args Args) error {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		return NewJSONResponse("version", data).Print()
	}
	PrintVersion()
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp() error {
	PrintUsage()
	return nil
}

// Run dispatches a parsed command.
func Run(cmd Command, args Args) error {
	switch cmd {
	case CmdChat:
		return HandleChatCommand(args)
	case CmdAsk:
		return HandleAskCommand(args)
	case CmdStatus:
		return HandleStatus(args)
	case CmdConfig:
		return HandleConfig(args)
	case CmdHistory:
		return HandleHistory(args)
	case CmdVersion:
		return HandleVersion(args)
	case CmdHelp:
		return HandleHelp()
	default:
		return NewValidationErrorWithExample("command", args.Subcommand,
			"unknown command", "minigpt help")
	}
}
