// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package ollama

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
)

// findOllamaExecutable searches PATH and the usual Windows install locations.
func findOllamaExecutable() (string, error) {
	var fallbacks []string
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		fallbacks = append(fallbacks, filepath.Join(localAppData, "Programs", "Ollama", "ollama.exe"))
	}
	fallbacks = append(fallbacks,
		`C:\Program Files\Ollama\ollama.exe`,
		`C:\Program Files (x86)\Ollama\ollama.exe`,
	)
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		fallbacks = append(fallbacks, filepath.Join(userProfile, "Ollama", "ollama.exe"))
	}

	return findExecutable([]string{"ollama.exe", "ollama"}, fallbacks)
}

// detach starts the server without a console window in its own process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW | windows.DETACHED_PROCESS,
	}
}
