// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for minigpt.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelConfig: Ollama server, model name and timeout
//   - GenerationConfig: Sampling parameters sent with every generation
//   - SearchConfig: Web search endpoints, limits and trigger phrases
//   - LoggingConfig, ArchiveConfig: Where exchanges are logged and stored
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MINIGPT_*)
//   - --config PATH
//   - ~/.minigpt/config.toml
//   - ~/.minigpt/config.json
//   - Built-in defaults
//
// A Config is loaded once at startup and handed to every component that
// needs it. Nothing mutates it afterwards; command-line overrides are
// applied to a Clone before the session starts.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	cfg.Set("conversation.memory", "20")
//	config.Save(cfg, "")
package config
