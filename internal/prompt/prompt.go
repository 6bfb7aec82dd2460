// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt assembles the plain-text prompt sent to the language model.
//
// The prompt is a transcript in "Human:"/"Assistant:" form: a fixed system
// instruction, a blank line, the last ContextWindow exchanges, the new user
// input and an open "Assistant:" line for the model to continue.
package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/minigpt/internal/model"
)

// SystemInstruction is the first line of every prompt.
const SystemInstruction = "You are a helpful AI assistant. Please provide clear, concise, and helpful responses to the user's questions."

// ContextWindow is the number of most recent exchanges included in a prompt.
// It is independent of how many exchanges the history retains.
const ContextWindow = 3

// Turn labels used in the transcript.
const (
	HumanLabel     = "Human:"
	AssistantLabel = "Assistant:"
)

// Build returns the prompt for userInput given the conversation so far.
//
// userInput is expected to be trimmed already. The result has no trailing
// newline and ends with the bare "Assistant:" line. Build is pure.
func Build(history []model.Exchange, userInput string) string {
	if len(history) > ContextWindow {
		history = history[len(history)-ContextWindow:]
	}

	lines := make([]string, 0, 2*len(history)+4)
	lines = append(lines, SystemInstruction, "")
	for _, ex := range history {
		lines = append(lines,
			HumanLabel+" "+ex.User,
			AssistantLabel+" "+ex.Assistant,
		)
	}
	lines = append(lines, HumanLabel+" "+userInput, AssistantLabel)

	return strings.Join(lines, "\n")
}

// Length returns the length of p in characters, the unit the sanitizer uses
// to strip the echoed prompt from a raw generation.
func Length(p string) int {
	return utf8.RuneCountInString(p)
}
