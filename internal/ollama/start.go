// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// findExecutable returns the first candidate on PATH, then the first
// existing fallback path.
func findExecutable(names []string, fallbacks []string) (string, error) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, p := range fallbacks {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ollama not found in PATH or common installation directories; checked %v", fallbacks)
}

// startOllamaProcess launches `ollama serve` detached from this process and
// polls until the server answers or StartupTimeout passes.
func (c *Client) startOllamaProcess(ctx context.Context) error {
	ollamaPath, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to find Ollama executable", Cause: err}
	}

	cmd := exec.Command(ollamaPath, "serve")
	// GPU selection variables such as OLLAMA_VULKAN must reach the server.
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: fmt.Sprintf("failed to start Ollama (path: %s)", ollamaPath),
			Cause:   err,
		}
	}
	if cmd.Process != nil {
		// Keep the server alive after we exit.
		_ = cmd.Process.Release()
	}

	out := c.config.Progress
	started := time.Now()
	deadline := started.Add(c.config.StartupTimeout)
	var lastErr error

	fmt.Fprintf(out, "Starting Ollama service...")
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return &ClientError{Type: ErrTypeConnection, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		default:
		}

		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		lastErr = c.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			fmt.Fprintf(out, "\rOllama service started (%.1fs)      \n", time.Since(started).Seconds())
			return nil
		}

		fmt.Fprintf(out, "\rStarting Ollama service... %.1fs elapsed", time.Since(started).Seconds())
		time.Sleep(500 * time.Millisecond)
	}
	fmt.Fprintln(out)

	return &ClientError{
		Type:    ErrTypeConnection,
		Message: fmt.Sprintf("Ollama started but not responding after %s (path: %s)", c.config.StartupTimeout, ollamaPath),
		Cause:   lastErr,
	}
}
