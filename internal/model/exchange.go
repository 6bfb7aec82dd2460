// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Exchange is one completed turn: what the user typed and the sanitized reply
// that was shown. Values are never mutated after creation.
type Exchange struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExchange creates an exchange stamped with the current time.
func NewExchange(user, assistant string) Exchange {
	return Exchange{
		User:      user,
		Assistant: assistant,
		Timestamp: time.Now(),
	}
}
