// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage archives completed chat exchanges in a local SQLite database.
//
// The in-memory history that feeds the prompt is bounded; the archive keeps
// every exchange of every session so it can be listed and reviewed later
// with `minigpt history`.
//
// # Key Types
//
//   - Archive: the SQLite-backed store
//   - SessionMeta: one row per session for listings
//
// # Usage
//
//	a, err := storage.Open(filepath.Join(home, ".minigpt", "history.db"))
//	defer a.Close()
//	err = a.Append(ctx, sessionID, "qwen2.5:0.5b", exchange)
//	metas, err := a.Sessions(ctx, 20)
//	exchanges, err := a.Exchanges(ctx, metas[0].ID[:8])
//
// Session IDs may be abbreviated to any unique prefix.
package storage
