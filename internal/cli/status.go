// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation.
//
// Command: status
// Short:   Show model, search and storage status
// Aliases: s
//
// Examples:
//   minigpt status            Show status
//   minigpt status --json     Status in JSON format
//
// Output Fields:
//   Ollama     Whether the server answers at model.ollama_url
//   Model      Configured model and whether it is loaded, installed or missing
//   Device     Where a loaded model runs (GPU, CPU or a split)
//   Search     enabled, disabled or offline, with the trigger count
//   Memory     Exchanges kept per session (0 = unlimited)
//   Log        Exchange log file
//   Archive    Archive path and number of stored sessions
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/minigpt/internal/config"
	"github.com/jeranaias/minigpt/internal/offline"
	"github.com/jeranaias/minigpt/internal/ollama"
	"github.com/jeranaias/minigpt/internal/storage"
)

// statusCheckTimeout bounds every network probe made by the status command.
const statusCheckTimeout = 3 * time.Second

// =============================================================================
// HANDLE STATUS
// =============================================================================

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	data := collectStatus(cfg, args)
	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("minigpt Status"))
	fmt.Fprintln(stdout, RenderSeparator(41))
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, SectionStyle.Render("Model"))
	fmt.Fprintln(stdout, RenderField("Ollama:", RenderStatus(data.Ollama)+" "+data.OllamaURL))
	fmt.Fprintln(stdout, RenderField("Model:", RenderStatus(data.ModelStatus)+" "+data.Model+" "+DimStyle.Render("("+data.ModelStatus+")")))
	if data.Device != "" {
		fmt.Fprintln(stdout, RenderField("Device:", data.Device))
	}
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, SectionStyle.Render("Conversation"))
	fmt.Fprintln(stdout, RenderField("Search:", RenderStatus(data.Search)+" "+
		fmt.Sprintf("%s (%d triggers)", data.Search, data.Triggers)))
	fmt.Fprintln(stdout, RenderField("Network:", offline.NewPolicy(data.Offline).Label()))
	fmt.Fprintln(stdout, RenderField("Memory:", memoryLabel(data.Memory)))
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, SectionStyle.Render("Storage"))
	fmt.Fprintln(stdout, RenderField("Config:", data.ConfigPath))
	if data.LogFile != "" {
		fmt.Fprintln(stdout, RenderField("Log:", data.LogFile))
	} else {
		fmt.Fprintln(stdout, RenderField("Log:", DimStyle.Render("disabled")))
	}
	if data.Archive != "" {
		fmt.Fprintln(stdout, RenderField("Archive:", fmt.Sprintf("%s (%d sessions)", data.Archive, data.Sessions)))
	} else {
		fmt.Fprintln(stdout, RenderField("Archive:", DimStyle.Render("disabled")))
	}
	fmt.Fprintln(stdout)

	return nil
}

// collectStatus gathers everything the status command reports.
func collectStatus(cfg *config.Config, args Args) StatusData {
	path, exists := resolveConfigPath(args.ConfigPath)
	if !exists {
		path += " (not created, using defaults)"
	}

	data := StatusData{
		Model:       cfg.Model.Name,
		OllamaURL:   cfg.Model.OllamaURL,
		Ollama:      "not_running",
		ModelStatus: "unknown",
		Triggers:    len(cfg.Search.Triggers),
		Offline:     cfg.OfflineMode,
		Memory:      cfg.Conversation.Memory,
		ConfigPath:  path,
	}

	data.Search = searchState(cfg)
	data.LogFile = logFilePath(cfg)

	collectModelStatus(cfg, &data)

	if cfg.Archive.Enabled {
		data.Archive = config.ExpandPath(cfg.Archive.Path)
		data.Sessions = countArchivedSessions(data.Archive)
	}

	return data
}

// collectModelStatus probes Ollama for the server and model state.
func collectModelStatus(cfg *config.Config, data *StatusData) {
	if err := offline.NewPolicy(cfg.OfflineMode).ValidateURL(cfg.Model.OllamaURL); err != nil {
		return
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Model.OllamaURL,
		Timeout: statusCheckTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), statusCheckTimeout)
	defer cancel()

	if err := client.CheckRunning(ctx); err != nil {
		return
	}
	data.Ollama = "running"

	if running, err := client.RunningModels(ctx); err == nil {
		for _, m := range running {
			if m.Name == cfg.Model.Name || m.Model == cfg.Model.Name {
				data.ModelStatus = "loaded"
				data.Device = m.Processor()
				return
			}
		}
	}

	if client.ModelExists(ctx, cfg.Model.Name) {
		data.ModelStatus = "available"
	} else {
		data.ModelStatus = "not_downloaded"
	}
}

// countArchivedSessions counts stored sessions without creating the archive.
func countArchivedSessions(path string) int {
	if _, err := os.Stat(path); err != nil {
		return 0
	}
	archive, err := storage.Open(path)
	if err != nil {
		return 0
	}
	defer archive.Close()

	sessions, err := archive.Sessions(context.Background(), 0)
	if err != nil {
		return 0
	}
	return len(sessions)
}

// searchState reports web search as offline, enabled or disabled.
func searchState(cfg *config.Config) string {
	switch {
	case cfg.OfflineMode:
		return "offline"
	case cfg.Search.Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// logFilePath returns the expanded exchange log path, or "" when logging is off.
func logFilePath(cfg *config.Config) string {
	if !cfg.Logging.Enabled {
		return ""
	}
	return config.ExpandPath(cfg.Logging.File)
}

func memoryLabel(memory int) string {
	if memory <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d exchanges", memory)
}
