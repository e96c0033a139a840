// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"net/url"
	"strings"
)

// =============================================================================
// LOGIN CALLBACK SURFACE
// =============================================================================

// Callback carries the query parameters delivered by the OAuth redirect:
// token, login status ("success" or "error"), and an optional server-supplied
// error message.
type Callback struct {
	Token   string
	Status  string
	Message string
}

// IsZero reports whether the callback carries no parameters at all.
func (c Callback) IsZero() bool {
	return c.Token == "" && c.Status == "" && c.Message == ""
}

// fingerprint identifies a callback for duplicate-consumption detection.
func (c Callback) fingerprint() string {
	return c.Token + "|" + c.Status + "|" + c.Message
}

// ParseCallbackURL extracts the login-callback parameters from a redirect URL
// and returns the URL with those parameters stripped. Stripping happens on
// every parse so no other component can reprocess the same parameters.
//
// The boolean result reports whether any callback parameter was present.
func ParseCallbackURL(raw string) (Callback, string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Callback{}, raw, false
	}

	q := u.Query()
	cb := Callback{
		Token:   q.Get("token"),
		Status:  q.Get("login"),
		Message: q.Get("message"),
	}
	if cb.IsZero() {
		return Callback{}, raw, false
	}

	q.Del("token")
	q.Del("login")
	q.Del("message")
	u.RawQuery = q.Encode()

	return cb, u.String(), true
}

// LooksLikeCallback reports whether a URL appears to be mid-login-callback:
// either it targets the callback route or it carries callback parameters.
// Used during restore to decide whether a token without a user profile is
// a pending login rather than corrupt state.
func LooksLikeCallback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if strings.Contains(u.Path, "/auth/callback") {
		return true
	}
	q := u.Query()
	return q.Get("token") != "" || q.Get("login") == "success"
}
