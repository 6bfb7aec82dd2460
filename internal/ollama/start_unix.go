// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package ollama

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// findOllamaExecutable searches PATH and the usual Linux/macOS install locations.
func findOllamaExecutable() (string, error) {
	fallbacks := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}
	if home, err := os.UserHomeDir(); err == nil {
		fallbacks = append(fallbacks,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}
	fallbacks = append(fallbacks, "/Applications/Ollama.app/Contents/Resources/ollama")

	return findExecutable([]string{"ollama"}, fallbacks)
}

// detach puts the server in its own process group so a Ctrl+C in the chat
// does not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
