// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for minigpt.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//   - ArgParser: Flag/positional parsing shared by the subcommand handlers
//   - JSONResponse: Envelope for --json output
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    err = cli.HandleChatCommand(args)
//	case cli.CmdAsk:
//	    err = cli.HandleAskCommand(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - chat: Interactive chat loop (default)
//   - ask: Single question, empty history
//   - status: Model, Ollama and search status
//   - config: Show and edit the configuration file
//   - history: Browse the exchange archive
//   - version, help
//
// Commands that print data support --json.
package cli
