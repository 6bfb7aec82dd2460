// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNonLocalhost is returned for non-loopback hosts in offline mode.
	ErrNonLocalhost = errors.New("offline mode: only localhost connections are allowed")

	// ErrWebFetchBlocked is returned when web search is attempted in offline mode.
	ErrWebFetchBlocked = errors.New("offline mode: web search is disabled")

	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https URLs are allowed")

	// ErrInvalidURL is returned when a URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid URL")
)

// =============================================================================
// POLICY
// =============================================================================

// Policy is the network policy for one run. The zero value allows every
// http(s) URL.
type Policy struct {
	Offline bool
}

// NewPolicy returns a policy with offline mode set as given.
func NewPolicy(offline bool) Policy {
	return Policy{Offline: offline}
}

// CheckWebFetchAllowed reports whether web search may run.
func (p Policy) CheckWebFetchAllowed() error {
	if p.Offline {
		return ErrWebFetchBlocked
	}
	return nil
}

// ValidateURL checks that rawURL uses http or https and, in offline mode,
// points at a loopback host. The scheme check applies in both modes.
func (p Policy) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}

	if p.Offline && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// Label returns a short human-readable mode name for status output.
func (p Policy) Label() string {
	if p.Offline {
		return "offline (localhost only)"
	}
	return "online"
}

// IsLocalhost reports whether host (optionally with a port or IPv6
// brackets) names the local machine. Every 127.0.0.0/8 address and every
// spelling of ::1 counts.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
