// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages the authenticated SpySearch session: restoring
// credentials at startup, verifying them against the server, completing
// OAuth login callbacks, and logging out.
package auth

import (
	"errors"
	"fmt"
)

// =============================================================================
// USER AND SESSION TYPES
// =============================================================================

// User is the profile returned by the server's verify endpoint.
type User struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Session is a snapshot of the authentication state.
//
// Invariant: IsAuthenticated == (Token != "" && User != nil).
type Session struct {
	Token           string
	User            *User
	IsAuthenticated bool
	IsLoading       bool
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the position of the session in its lifecycle.
//
// Permitted transitions:
//
//	Unknown -> Restoring -> {Authenticated, Anonymous}
//	Authenticated -> Anonymous        (logout, or confirmed 401)
//	Anonymous -> Authenticating -> Authenticated
//
// A verification failure that is not a confirmed 401 never changes state.
type State int

const (
	StateUnknown State = iota
	StateRestoring
	StateAnonymous
	StateAuthenticating
	StateAuthenticated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateRestoring:
		return "restoring"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized indicates the server explicitly rejected the token (401).
	// This is the only verification outcome that evicts a session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedCredential indicates the stored user profile failed to
	// parse. Trust in the cached state is void and the session is cleared.
	ErrMalformedCredential = errors.New("stored credential is malformed")
)

// AuthError wraps a failure in an auth operation with the operation name.
type AuthError struct {
	Op  string // "restore", "login", "callback", "verify"
	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}
