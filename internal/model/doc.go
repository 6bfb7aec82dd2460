// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation exchanges.
//
// # Key Types
//
//   - Exchange: One completed user/assistant turn, immutable once created
//   - History: Ordered exchanges for a session, most recent last, with an
//     optional retention window
//
// # Usage
//
//	h := model.NewHistory(10)
//	h.Append(model.NewExchange("hi", "Hello! How can I help you today?"))
//	recent := h.Recent(3)
package model
