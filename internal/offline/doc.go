// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline decides which outbound requests minigpt may make.
//
// A Policy is a plain value built from the loaded configuration and passed
// to every component that talks to the network. In offline mode only
// loopback hosts are reachable, which keeps a local Ollama usable while web
// search is refused.
//
//	policy := offline.NewPolicy(cfg.OfflineMode)
//	if err := policy.ValidateURL(target); err != nil {
//		return err
//	}
package offline
