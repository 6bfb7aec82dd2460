// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strings"

// CommandKind identifies a reserved chat input.
type CommandKind int

const (
	// CmdNone means the input is a message for the model.
	CmdNone CommandKind = iota
	CmdHelp
	CmdClear
	CmdHistory
	CmdStatus
	CmdQuit
	CmdModel
	CmdUnknown
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CmdHelp:
		return "help"
	case CmdClear:
		return "clear"
	case CmdHistory:
		return "history"
	case CmdStatus:
		return "status"
	case CmdQuit:
		return "quit"
	case CmdModel:
		return "model"
	case CmdUnknown:
		return "unknown"
	default:
		return "none"
	}
}

// Command is a parsed reserved input.
type Command struct {
	Kind CommandKind
	Name string // as typed, lowercased
	Args []string
}

// IsCommand reports whether the input was reserved.
func (c Command) IsCommand() bool {
	return c.Kind != CmdNone
}

// reservedWords are accepted as the whole input, case-insensitively.
var reservedWords = map[string]CommandKind{
	"help":    CmdHelp,
	"clear":   CmdClear,
	"history": CmdHistory,
	"status":  CmdStatus,
	"quit":    CmdQuit,
	"exit":    CmdQuit,
	"bye":     CmdQuit,
}

var slashCommands = map[string]CommandKind{
	"/":        CmdHelp,
	"/help":    CmdHelp,
	"/h":       CmdHelp,
	"/?":       CmdHelp,
	"/clear":   CmdClear,
	"/c":       CmdClear,
	"/history": CmdHistory,
	"/status":  CmdStatus,
	"/s":       CmdStatus,
	"/quit":    CmdQuit,
	"/q":       CmdQuit,
	"/exit":    CmdQuit,
	"/model":   CmdModel,
	"/m":       CmdModel,
}

// ParseCommand classifies trimmed user input. Anything that is not a
// reserved word or a slash command yields CmdNone and goes to the model.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	lower := strings.ToLower(input)

	if kind, ok := reservedWords[lower]; ok {
		return Command{Kind: kind, Name: lower}
	}

	if !strings.HasPrefix(input, "/") {
		return Command{Kind: CmdNone}
	}

	parts := strings.Fields(input)
	name := strings.ToLower(parts[0])
	if kind, ok := slashCommands[name]; ok {
		return Command{Kind: kind, Name: name, Args: parts[1:]}
	}
	return Command{Kind: CmdUnknown, Name: name, Args: parts[1:]}
}
