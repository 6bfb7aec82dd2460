// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output envelope and per-command payloads.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/minigpt/internal/model"
	"github.com/jeranaias/minigpt/internal/storage"
)

// JSONResponse is the envelope for every --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response to stdout, indented.
// Human-readable messages go to stderr when JSON mode is enabled.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	Response     string `json:"response"`
	Model        string `json:"model"`
	SessionID    string `json:"session_id"`
	Searched     bool   `json:"searched"`
	SearchResult string `json:"search_result,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// StatusData represents the data returned by the status command.
type StatusData struct {
	Model       string `json:"model"`
	OllamaURL   string `json:"ollama_url"`
	Ollama      string `json:"ollama"`       // running, not_running
	ModelStatus string `json:"model_status"` // loaded, available, not_downloaded, unknown
	Device      string `json:"device,omitempty"`
	Search      string `json:"search"` // enabled, disabled, offline
	Triggers    int    `json:"search_triggers"`
	Offline     bool   `json:"offline"`
	Memory      int    `json:"memory"`
	LogFile     string `json:"log_file,omitempty"`
	Archive     string `json:"archive,omitempty"`
	Sessions    int    `json:"archived_sessions"`
	ConfigPath  string `json:"config_path,omitempty"`
}

// ConfigData represents the data returned by config show.
type ConfigData struct {
	Path   string      `json:"config_path"`
	Exists bool        `json:"exists"`
	Config interface{} `json:"config"`
}

// HistoryListData represents the data returned by history list.
type HistoryListData struct {
	Archive  string                `json:"archive"`
	Sessions []storage.SessionMeta `json:"sessions"`
}

// HistoryShowData represents the data returned by history show.
type HistoryShowData struct {
	Session   storage.SessionMeta `json:"session"`
	Exchanges []model.Exchange    `json:"exchanges"`
}
