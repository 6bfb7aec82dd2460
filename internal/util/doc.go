// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the minigpt packages.
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - TruncateWidth, TruncateRunes, OneLine: display helpers for terminal output
package util
